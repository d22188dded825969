package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"mcfetch/internal/logging"
	"mcfetch/internal/progress"
)

// Fetcher downloads one job at a time from a Source into the local tree.
// It is safe for concurrent use by many workers.
type Fetcher struct {
	source  Source
	checker *Checker
	opts    Options
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher reading from source.
func NewFetcher(source Source, opts Options, logger *slog.Logger) *Fetcher {
	logger = logging.Or(logger)
	return &Fetcher{
		source:  source,
		checker: NewChecker(logger),
		opts:    opts.withDefaults(),
		logger:  logger,
	}
}

// Fetch materializes job at job.Path unless a verified copy is already
// there. fp may be nil. Errors are *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, job FileJob, fp *progress.FileProgress) error {
	if !f.checker.ShouldDownload(job.Path, job.Hash) {
		if fp != nil {
			fp.Complete()
		}
		return nil
	}

	var err error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		if attempt > 1 {
			if werr := f.backoff(ctx, attempt); werr != nil {
				return err
			}
		}

		err = f.fetchOnce(ctx, job, fp)
		if err == nil {
			return nil
		}

		var fe *FetchError
		if !errors.As(err, &fe) || !fe.Temporary() || attempt == f.opts.Attempts {
			return err
		}
		logging.LogJobRetry(f.logger, job.Path, job.URL, attempt, err)
	}
	return err
}

func (f *Fetcher) fetchOnce(ctx context.Context, job FileJob, fp *progress.FileProgress) error {
	start := time.Now()
	logging.LogJobStart(f.logger, job.Path, job.URL)

	body, err := f.source.Open(ctx, job.URL)
	if err != nil {
		return f.openError(job, err)
	}
	defer body.Close()

	var total uint64
	if body.Size > 0 {
		total = uint64(body.Size)
	}
	if fp != nil {
		fp.SetTotal(total)
	}

	file, err := os.OpenFile(job.Path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return &FetchError{Kind: ErrIO, Path: job.Path, URL: job.URL, Err: err}
	}

	written, err := f.stream(job, file, body, fp)
	if err == nil && total > 0 && uint64(written) != total {
		err = &FetchError{Kind: ErrIO, Path: job.Path, URL: job.URL, temporary: true,
			Err: fmt.Errorf("short body: got %d of %d bytes", written, total)}
	}
	if err != nil {
		file.Close()
		os.Remove(job.Path)
		return err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(job.Path)
		return &FetchError{Kind: ErrIO, Path: job.Path, URL: job.URL, Err: fmt.Errorf("flush: %w", err)}
	}
	if err := file.Close(); err != nil {
		os.Remove(job.Path)
		return &FetchError{Kind: ErrIO, Path: job.Path, URL: job.URL, Err: fmt.Errorf("close: %w", err)}
	}

	if f.opts.VerifyAfterWrite && job.Hash != "" {
		if err := f.checker.Verify(job.Path, job.Hash); err != nil {
			os.Remove(job.Path)
			return &FetchError{Kind: ErrChecksum, Path: job.Path, URL: job.URL, Err: err, temporary: true}
		}
	}

	if fp != nil {
		fp.Complete()
	}
	logging.LogJobComplete(f.logger, job.Path, written, time.Since(start))
	return nil
}

// stream copies body into file chunk by chunk, advancing fp after each write.
func (f *Fetcher) stream(job FileJob, file *os.File, body *Body, fp *progress.FileProgress) (int64, error) {
	buf := make([]byte, f.opts.BufferSize)
	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			nw, werr := file.Write(buf[:n])
			if werr == nil && nw != n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &FetchError{Kind: ErrIO, Path: job.Path, URL: job.URL, Err: fmt.Errorf("write: %w", werr)}
			}
			written += int64(n)
			if fp != nil {
				fp.Add(uint64(n))
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return written, nil
			}
			return written, &FetchError{Kind: ErrIO, Path: job.Path, URL: job.URL, Err: fmt.Errorf("read body: %w", rerr), temporary: true}
		}
	}
}

func (f *Fetcher) openError(job FileJob, err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		return &FetchError{Kind: ErrStatus, Path: job.Path, URL: job.URL, Err: err, temporary: se.Temporary()}
	}
	return &FetchError{Kind: ErrTransport, Path: job.Path, URL: job.URL, Err: err, temporary: true}
}

// backoff waits before the given attempt.
func (f *Fetcher) backoff(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay(attempt)):
		return nil
	}
}

// delay is the exponentially increasing wait before attempt, with jitter,
// never above MaxBackoff.
func (f *Fetcher) delay(attempt int) time.Duration {
	backoff := f.opts.Backoff * time.Duration(1<<uint(attempt-2))
	if backoff > f.opts.MaxBackoff || backoff <= 0 {
		backoff = f.opts.MaxBackoff
	}

	// 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))
	if jitter > f.opts.MaxBackoff {
		jitter = f.opts.MaxBackoff
	}
	return jitter
}
