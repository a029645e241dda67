package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"

	"github.com/l3acucm/urepricer/internal/domain"
)

const (
	defaultBufferSize    = 4096
	defaultFlushInterval = time.Minute

	// Objects above this size are uploaded in parts; S3 rejects multipart
	// parts smaller than 5 MiB.
	multipartThreshold = 5 * 1024 * 1024
)

// ArchiverConfig tunes the outcome archiver.
type ArchiverConfig struct {
	BufferSize    int
	FlushInterval time.Duration
}

func (c ArchiverConfig) withDefaults() ArchiverConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}

// Archiver batches calculated prices in memory and periodically flushes them
// to object storage as newline-delimited JSON. Archival is best-effort: when
// the buffer is full new records are dropped rather than blocking the
// repricing path, and upload failures keep the batch for the next flush.
type Archiver struct {
	writer  domain.BlobWriter
	cfg     ArchiverConfig
	records chan domain.CalculatedPrice
	pending []domain.CalculatedPrice
	dropped atomic.Int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewArchiver creates an archiver that uploads through w.
func NewArchiver(w domain.BlobWriter, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	cfg = cfg.withDefaults()
	return &Archiver{
		writer:  w,
		cfg:     cfg,
		records: make(chan domain.CalculatedPrice, cfg.BufferSize),
		logger:  logger.With(slog.String("component", "archiver")),
		now:     time.Now,
	}
}

// Record queues one calculated price for archival. It never blocks; records
// that do not fit in the buffer are counted and discarded.
func (a *Archiver) Record(rec domain.CalculatedPrice) {
	select {
	case a.records <- rec:
	default:
		a.dropped.Add(1)
	}
}

// Dropped reports how many records were discarded because the buffer was full.
func (a *Archiver) Dropped() int64 {
	return a.dropped.Load()
}

// Run flushes the buffer on a fixed interval until ctx is cancelled, then
// performs a final flush so shutdown does not lose buffered records.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info("Starting outcome archiver",
		slog.Int("buffer_size", a.cfg.BufferSize),
		slog.Duration("flush_interval", a.cfg.FlushInterval))

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.Flush(flushCtx); err != nil {
				a.logger.Warn("Final archive flush failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				a.logger.Warn("Archive flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush uploads everything buffered so far as a single JSONL object. A failed
// upload keeps the records in memory so the next flush retries them.
func (a *Archiver) Flush(ctx context.Context) error {
	a.drain()
	if len(a.pending) == 0 {
		return nil
	}

	buf, err := marshalJSONL(a.pending)
	if err != nil {
		// A record that cannot be marshalled would fail every retry.
		a.pending = nil
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(a.now())
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.Debug("Archived repricing outcomes",
		slog.String("path", path),
		slog.Int("count", len(a.pending)),
		slog.Int("bytes", len(buf)))
	a.pending = nil
	return nil
}

// drain moves everything currently queued into the pending batch.
func (a *Archiver) drain() {
	for {
		select {
		case rec := <-a.records:
			a.pending = append(a.pending, rec)
		default:
			return
		}
	}
}

// archivePath builds the S3 key for a flush, partitioned by day:
//
//	archive/2025/01/31/repricing-1738281600.jsonl
func archivePath(t time.Time) string {
	return fmt.Sprintf("archive/%s/repricing-%d.jsonl", t.UTC().Format("2006/01/02"), t.UTC().Unix())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
