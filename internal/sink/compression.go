package sink

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"
)

// Archive batches are small and frequent; favour speed over ratio.
var gzipWriters = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	},
}

// gzipBatch compresses an NDJSON batch for upload.
func gzipBatch(batch []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(len(batch) / 4)

	zw := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(zw)
	zw.Reset(&out)

	if _, err := zw.Write(batch); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
