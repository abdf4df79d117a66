package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"mimic/internal/config"
	"mimic/internal/logging"
	"mimic/internal/services"
)

// ProgressFunc receives upload progress as a whole percentage between 0 and
// 100. Reported values never decrease, and a successful upload always ends
// with a final call at 100.
type ProgressFunc func(percent int)

// UploadRequest describes one object to push through the transport. Open is
// called once per attempt so a retried upload restarts from the beginning of
// the payload.
type UploadRequest struct {
	Bucket      string
	Key         string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
	Progress    ProgressFunc
}

// UploadResult reports where a completed upload landed.
type UploadResult struct {
	Bucket   string
	Key      string
	URL      string
	Attempts int
}

// Transport pushes objects into the store with bounded retries. Transient
// failures back off exponentially between attempts; permanent failures
// surface immediately.
type Transport struct {
	store     ObjectStore
	attempts  int
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewTransport builds a Transport from configuration.
func NewTransport(store ObjectStore, cfg *config.Config, logger *slog.Logger) *Transport {
	attempts := cfg.Storage.UploadAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := time.Duration(cfg.Storage.UploadBackoffSeconds) * time.Second
	if base <= 0 {
		base = time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transport{
		store:     store,
		attempts:  attempts,
		baseDelay: base,
		sleep:     sleepContext,
		logger:    logger.With(logging.String(logging.FieldComponent, "storage.transport")),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Upload pushes one object, retrying transient failures. The delay before
// retry n doubles each time starting from the configured base. Progress is
// monotonic across attempts: a retry that restarts the payload never reports
// a lower percentage than the caller has already seen.
func (t *Transport) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if req.Open == nil {
		return UploadResult{}, services.Wrap(services.ErrValidation, "storage", "upload", "payload source is required", nil)
	}
	if req.Bucket == "" || req.Key == "" {
		return UploadResult{}, services.Wrap(services.ErrValidation, "storage", "upload", "bucket and key are required", nil)
	}

	tracker := &progressTracker{report: req.Progress, total: req.Size}
	var lastErr error
	for attempt := 1; attempt <= t.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return UploadResult{}, err
		}

		err := t.attemptOnce(ctx, req, tracker)
		if err == nil {
			tracker.finish()
			return UploadResult{
				Bucket:   req.Bucket,
				Key:      req.Key,
				URL:      t.store.PublicURL(req.Bucket, req.Key),
				Attempts: attempt,
			}, nil
		}
		lastErr = err

		if !services.IsRetryable(err) {
			t.logger.Error("upload failed permanently",
				logging.String(logging.FieldBucket, req.Bucket),
				logging.String("key", req.Key),
				logging.Int("attempt", attempt),
				logging.Error(err))
			return UploadResult{}, err
		}
		if attempt == t.attempts {
			break
		}

		delay := t.baseDelay << (attempt - 1)
		t.logger.Warn("upload attempt failed, retrying",
			logging.String(logging.FieldBucket, req.Bucket),
			logging.String("key", req.Key),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err))
		if err := t.sleep(ctx, delay); err != nil {
			return UploadResult{}, err
		}
	}

	return UploadResult{}, services.Wrap(services.ErrTransient, "storage", "upload",
		fmt.Sprintf("exhausted %d attempts", t.attempts), lastErr)
}

func (t *Transport) attemptOnce(ctx context.Context, req UploadRequest, tracker *progressTracker) error {
	payload, err := req.Open()
	if err != nil {
		return services.Wrap(services.ErrPermanent, "storage", "upload", "open payload", err)
	}
	defer payload.Close()

	tracker.restart()
	return t.store.Put(ctx, req.Bucket, req.Key, tracker.wrap(payload), req.Size, req.ContentType)
}

// progressTracker converts bytes read into whole percentages and holds a high
// water mark so restarted attempts cannot report backwards progress.
type progressTracker struct {
	report ProgressFunc
	total  int64
	read   int64
	peak   int
}

func (p *progressTracker) wrap(r io.Reader) io.Reader {
	if p.report == nil {
		return r
	}
	return &progressReader{tracker: p, inner: r}
}

func (p *progressTracker) restart() {
	p.read = 0
}

func (p *progressTracker) advance(n int) {
	if p.report == nil || p.total <= 0 {
		return
	}
	p.read += int64(n)
	percent := int(p.read * 100 / p.total)
	if percent > 99 {
		percent = 99
	}
	if percent > p.peak {
		p.peak = percent
		p.report(percent)
	}
}

func (p *progressTracker) finish() {
	if p.report == nil {
		return
	}
	if p.peak < 100 {
		p.peak = 100
		p.report(100)
	}
}

type progressReader struct {
	tracker *progressTracker
	inner   io.Reader
}

func (r *progressReader) Read(buf []byte) (int, error) {
	n, err := r.inner.Read(buf)
	if n > 0 {
		r.tracker.advance(n)
	}
	return n, err
}
