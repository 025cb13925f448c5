package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/muandane/slugcache/internal/event"
)

const DefaultArchiveBatchSize = 500

// ObjectPutter is the part of *minio.Client the archive uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archive batches events and uploads each batch as a gzip-compressed
// NDJSON object named {prefix}{yyyy/mm/dd}/{unix-nanos}-{seq}.ndjson.gz.
// A failed upload drops the batch.
type Archive struct {
	client    ObjectPutter
	bucket    string
	prefix    string
	batchSize int
	now       func() time.Time

	mu  sync.Mutex
	buf bytes.Buffer
	n   int
	seq uint64
}

func NewArchive(client ObjectPutter, bucket, prefix string, batchSize int) (*Archive, error) {
	if client == nil {
		return nil, fmt.Errorf("archive client cannot be nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket cannot be empty")
	}
	if batchSize <= 0 {
		batchSize = DefaultArchiveBatchSize
	}
	return &Archive{
		client:    client,
		bucket:    bucket,
		prefix:    prefix,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

func (a *Archive) Record(ctx context.Context, e event.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	a.mu.Lock()
	a.buf.Write(line)
	a.buf.WriteByte('\n')
	a.n++
	if a.n < a.batchSize {
		a.mu.Unlock()
		return nil
	}
	batch, name := a.takeLocked()
	a.mu.Unlock()

	return a.upload(ctx, name, batch)
}

// Flush uploads whatever is buffered.
func (a *Archive) Flush(ctx context.Context) error {
	a.mu.Lock()
	if a.n == 0 {
		a.mu.Unlock()
		return nil
	}
	batch, name := a.takeLocked()
	a.mu.Unlock()

	return a.upload(ctx, name, batch)
}

func (a *Archive) Close(ctx context.Context) error {
	return a.Flush(ctx)
}

func (a *Archive) takeLocked() ([]byte, string) {
	batch := bytes.Clone(a.buf.Bytes())
	a.buf.Reset()
	a.n = 0
	a.seq++

	now := a.now().UTC()
	name := fmt.Sprintf("%s%s/%d-%d.ndjson.gz", a.prefix, now.Format("2006/01/02"), now.UnixNano(), a.seq)
	return batch, name
}

func (a *Archive) upload(ctx context.Context, name string, batch []byte) error {
	compressed, err := gzipBatch(batch)
	if err != nil {
		return fmt.Errorf("compress batch: %w", err)
	}

	_, err = a.client.PutObject(
		ctx,
		a.bucket,
		name,
		bytes.NewReader(compressed),
		int64(len(compressed)),
		minio.PutObjectOptions{
			ContentType:     "application/x-ndjson",
			ContentEncoding: "gzip",
		},
	)
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", a.bucket, name, err)
	}
	return nil
}
