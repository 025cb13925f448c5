package sink

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muandane/slugcache/internal/event"
)

var sampleEvent = event.Event{
	Slug:      "abc",
	Kind:      event.KindResolved,
	Timestamp: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
	UserAgent: strings.Repeat("A", 80),
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	require.NoError(t, NewLog(logger).Record(context.Background(), sampleEvent))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "slug resolved", line["msg"])
	assert.Equal(t, "abc", line["slug"])
	assert.Equal(t, "resolved", line["kind"])
	assert.Equal(t, "direct", line["referer"])
	assert.Len(t, line["user_agent"], maxLoggedUserAgent)
}

func TestLogSinkMiss(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	e := event.Event{Slug: "gone", Kind: event.KindMiss, Referer: "https://ref.example"}
	require.NoError(t, NewLog(logger).Record(context.Background(), e))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "slug miss", line["msg"])
	assert.Equal(t, "https://ref.example", line["referer"])
}

func TestTruncateKeepsRunes(t *testing.T) {
	ua := strings.Repeat("a", maxLoggedUserAgent-1) + "日本"

	got := truncate(ua, maxLoggedUserAgent)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("a", maxLoggedUserAgent-1), got)
	assert.Equal(t, "short", truncate("short", maxLoggedUserAgent))
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subject = subject
	p.data = data
	return p.err
}

func TestNATSSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATS(pub, "")

	require.NoError(t, s.Record(context.Background(), sampleEvent))
	assert.Equal(t, DefaultNATSSubject, pub.subject)

	var got event.Event
	require.NoError(t, json.Unmarshal(pub.data, &got))
	assert.Equal(t, sampleEvent, got)

	pub.err = errors.New("nats: connection closed")
	assert.Error(t, s.Record(context.Background(), sampleEvent))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Record(ctx, sampleEvent), context.Canceled)

	assert.NoError(t, s.Close(context.Background()))
}

type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
	opts    minio.PutObjectOptions
	err     error
}

func (p *fakePutter) PutObject(ctx context.Context, bucket, name string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return minio.UploadInfo{}, p.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if p.objects == nil {
		p.objects = make(map[string][]byte)
	}
	p.objects[bucket+"/"+name] = data
	p.opts = opts
	return minio.UploadInfo{Bucket: bucket, Key: name, Size: size}, nil
}

func decodeBatch(t *testing.T, compressed []byte) []event.Event {
	t.Helper()
	raw, err := gunzipBatch(compressed)
	require.NoError(t, err)

	var events []event.Event
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		var e event.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		events = append(events, e)
	}
	require.NoError(t, sc.Err())
	return events
}

func TestArchiveUploadsFullBatches(t *testing.T) {
	putter := &fakePutter{}
	a, err := NewArchive(putter, "logs", "access/", 2)
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC) }

	require.NoError(t, a.Record(context.Background(), sampleEvent))
	assert.Empty(t, putter.objects)

	require.NoError(t, a.Record(context.Background(), sampleEvent))
	require.Len(t, putter.objects, 1)
	assert.Equal(t, "gzip", putter.opts.ContentEncoding)

	for name, data := range putter.objects {
		assert.True(t, strings.HasPrefix(name, "logs/access/2026/10/16/"), name)
		assert.Len(t, decodeBatch(t, data), 2)
	}
}

func TestArchiveFlushOnClose(t *testing.T) {
	putter := &fakePutter{}
	a, err := NewArchive(putter, "logs", "", 100)
	require.NoError(t, err)

	require.NoError(t, a.Close(context.Background()), "empty flush uploads nothing")
	assert.Empty(t, putter.objects)

	require.NoError(t, a.Record(context.Background(), sampleEvent))
	require.NoError(t, a.Close(context.Background()))
	assert.Len(t, putter.objects, 1)
}

func TestArchiveUploadError(t *testing.T) {
	putter := &fakePutter{err: errors.New("AccessDenied")}
	a, err := NewArchive(putter, "logs", "", 1)
	require.NoError(t, err)

	assert.Error(t, a.Record(context.Background(), sampleEvent))
	assert.NoError(t, a.Flush(context.Background()), "failed batch is dropped")
}

func TestNewArchiveValidation(t *testing.T) {
	_, err := NewArchive(nil, "logs", "", 1)
	assert.Error(t, err)
	_, err = NewArchive(&fakePutter{}, "", "", 1)
	assert.Error(t, err)
}

type closingSink struct {
	err    error
	closed bool
}

func (c *closingSink) Record(context.Context, event.Event) error { return c.err }

func (c *closingSink) Close(context.Context) error {
	c.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	ok := &closingSink{}
	failing := &closingSink{err: errors.New("down")}
	var count int
	counting := event.SinkFunc(func(context.Context, event.Event) error {
		count++
		return nil
	})

	m := Multi{ok, failing, counting}
	err := m.Record(context.Background(), sampleEvent)
	assert.ErrorIs(t, err, failing.err)
	assert.Equal(t, 1, count, "a failing sink does not stop the others")

	require.NoError(t, m.Close(context.Background()))
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func TestClicksSink(t *testing.T) {
	counter := &fakeCounter{}
	s := NewClicks(counter, "")
	ctx := context.Background()

	for _, kind := range []event.Kind{event.KindHit, event.KindHit, event.KindResolved, event.KindMiss} {
		require.NoError(t, s.Record(ctx, event.Event{Slug: "abc", Kind: kind}))
	}
	require.NoError(t, s.Record(ctx, event.Event{Slug: "gone", Kind: event.KindMiss}))

	assert.Equal(t, map[string]int64{"clicks:abc": 3}, counter.counts)
}

func TestClicksSinkError(t *testing.T) {
	counter := &fakeCounter{err: errors.New("redis: connection refused")}
	s := NewClicks(counter, "hits:")

	err := s.Record(context.Background(), event.Event{Slug: "abc", Kind: event.KindHit})
	assert.ErrorIs(t, err, counter.err)
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("slug", 1000))
	compressed, err := gzipBatch(data)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data))

	out, err := gunzipBatch(compressed)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func gunzipBatch(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
