package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mcfetch/internal/logging"
	"mcfetch/internal/progress"
)

// JobFetcher runs a single job. *Fetcher is the production implementation.
type JobFetcher interface {
	Fetch(ctx context.Context, job FileJob, fp *progress.FileProgress) error
}

// Scheduler fans a batch out to a JobFetcher with at most Limit fetches in
// flight, folding each terminal result into a progress.Tracker.
type Scheduler struct {
	fetcher JobFetcher
	limit   int
	tracker *progress.Tracker
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler. limit <= 0 uses DefaultConcurrency and
// a nil tracker gets a private one.
func NewScheduler(fetcher JobFetcher, limit int, tracker *progress.Tracker, logger *slog.Logger) *Scheduler {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if tracker == nil {
		tracker = progress.NewTracker()
	}
	return &Scheduler{
		fetcher: fetcher,
		limit:   limit,
		tracker: tracker,
		logger:  logging.Or(logger),
	}
}

// Limit returns the admission gate size.
func (s *Scheduler) Limit() int {
	return s.limit
}

// Tracker returns the tracker the scheduler reports into.
func (s *Scheduler) Tracker() *progress.Tracker {
	return s.tracker
}

// RunAll attempts every job exactly once, in no particular order, and
// returns after all of them reached a terminal state. A failed job never
// cancels its siblings. The error is non-nil only for a rejected batch or
// when every job failed.
//
// The tracker's totals are left to the caller; RunAll only advances the
// completed count, one per job, successful or not. Once ctx is done no new
// job is admitted and the remainder is counted as failed.
//
// A batch with duplicate destinations is rejected with ErrDuplicatePath
// before anything runs and the tracker is left untouched, so a tracker the
// caller already moved to StateDownloading will not finish. Check with
// ValidateBatch before priming the tracker when jobs come from outside.
func (s *Scheduler) RunAll(ctx context.Context, jobs []FileJob) (Outcome, error) {
	start := time.Now()
	out := Outcome{Total: len(jobs)}

	if err := ValidateBatch(jobs); err != nil {
		return out, err
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(job FileJob, err error) {
		mu.Lock()
		if err != nil {
			out.Failed++
			out.Failures = append(out.Failures, Failure{Job: job, Err: err})
		} else {
			out.Succeeded++
		}
		mu.Unlock()
		if err != nil {
			s.tracker.RecordFailure()
			logging.LogJobFailed(s.logger, job.Path, job.URL, err)
		}
		s.tracker.AdvanceCompleted(1)
	}

	gate := semaphore.NewWeighted(int64(s.limit))
	for i, job := range jobs {
		err := ctx.Err()
		if err == nil {
			err = gate.Acquire(ctx, 1)
		}
		if err != nil {
			for _, rest := range jobs[i:] {
				record(rest, fmt.Errorf("not started: %w", err))
			}
			break
		}

		wg.Add(1)
		go func(job FileJob) {
			defer wg.Done()
			defer gate.Release(1)

			fp := s.tracker.Start(job.URL)
			err := s.fetcher.Fetch(ctx, job, fp)
			// unregister before counting so a finished tracker has no active units
			s.tracker.Unregister(fp)
			record(job, err)
		}(job)
	}
	wg.Wait()

	out.Elapsed = time.Since(start)
	logging.LogBatch(s.logger, out.Total, out.Failed, out.Elapsed)

	if out.Total > 0 && out.Failed == out.Total {
		return out, fmt.Errorf("%w (%d jobs): %w", ErrAllFailed, out.Total, out.Failures[0].Err)
	}
	return out, nil
}

// ValidateBatch rejects a batch in which two jobs share a destination path.
func ValidateBatch(jobs []FileJob) error {
	seen := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		if _, ok := seen[j.Path]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePath, j.Path)
		}
		seen[j.Path] = struct{}{}
	}
	return nil
}
