package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcfetch/internal/logging"
	"mcfetch/internal/progress"
)

// slowFetcher records peak concurrency and fails jobs listed in fail.
type slowFetcher struct {
	delay time.Duration
	fail  map[string]bool

	mu     sync.Mutex
	active int
	peak   int
	calls  map[string]int
}

func (f *slowFetcher) Fetch(ctx context.Context, job FileJob, fp *progress.FileProgress) error {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[job.Path]++
	f.mu.Unlock()

	fp.SetTotal(10)
	time.Sleep(f.delay)
	fp.Add(10)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if f.fail[job.Path] {
		return &FetchError{Kind: ErrTransport, Path: job.Path, URL: job.URL, Err: errors.New("unreachable")}
	}
	return nil
}

func makeJobs(n int) []FileJob {
	jobs := make([]FileJob, n)
	for i := range jobs {
		jobs[i] = FileJob{Path: fmt.Sprintf("/dest/%03d", i), URL: fmt.Sprintf("https://example.com/%03d", i)}
	}
	return jobs
}

func TestRunAllConcurrencyBound(t *testing.T) {
	for _, limit := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			f := &slowFetcher{delay: 5 * time.Millisecond}
			tr := progress.NewTracker()
			jobs := makeJobs(40)
			tr.SetTotals(0, len(jobs))

			s := NewScheduler(f, limit, tr, logging.Discard())
			out, err := s.RunAll(context.Background(), jobs)
			require.NoError(t, err)

			assert.LessOrEqual(t, f.peak, limit)
			assert.Equal(t, 40, out.Succeeded)
			for _, j := range jobs {
				assert.Equal(t, 1, f.calls[j.Path], "job %s attempted exactly once", j.Path)
			}
		})
	}
}

func TestRunAllThreeJobsAllSucceed(t *testing.T) {
	f := &slowFetcher{delay: time.Millisecond}
	tr := progress.NewTracker()
	jobs := makeJobs(3)
	tr.SetTotals(0, len(jobs))
	tr.SetState(progress.StateDownloading)

	out, err := NewScheduler(f, 2, tr, logging.Discard()).RunAll(context.Background(), jobs)
	require.NoError(t, err)

	s := tr.Snapshot()
	assert.Equal(t, 3, s.Completed)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, progress.StateFinished, s.State)
	assert.Empty(t, s.Active)
	assert.Equal(t, Outcome{Total: 3, Succeeded: 3, Elapsed: out.Elapsed}, out)
}

func TestRunAllOneFailureDoesNotStopSiblings(t *testing.T) {
	jobs := makeJobs(3)
	f := &slowFetcher{delay: time.Millisecond, fail: map[string]bool{jobs[1].Path: true}}
	tr := progress.NewTracker()
	tr.SetTotals(0, len(jobs))
	tr.SetState(progress.StateDownloading)

	out, err := NewScheduler(f, 2, tr, logging.Discard()).RunAll(context.Background(), jobs)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 2, out.Succeeded)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, jobs[1], out.Failures[0].Job)
	assert.ErrorIs(t, out.Failures[0].Err, ErrTransport)

	s := tr.Snapshot()
	assert.Equal(t, progress.StateFinished, s.State)
	assert.Equal(t, s.Total, s.Completed)
	assert.Equal(t, 1, s.Failed)
}

func TestRunAllEveryJobFailed(t *testing.T) {
	jobs := makeJobs(2)
	f := &slowFetcher{fail: map[string]bool{jobs[0].Path: true, jobs[1].Path: true}}

	out, err := NewScheduler(f, 4, nil, logging.Discard()).RunAll(context.Background(), jobs)
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 2, out.Failed)
}

func TestRunAllEmptyBatch(t *testing.T) {
	out, err := NewScheduler(&slowFetcher{}, 4, nil, logging.Discard()).RunAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, out.Total)
}

func TestRunAllRejectsDuplicatePaths(t *testing.T) {
	jobs := []FileJob{
		{Path: "/dest/a", URL: "https://example.com/1"},
		{Path: "/dest/a", URL: "https://example.com/2"},
	}
	f := &slowFetcher{}
	_, err := NewScheduler(f, 4, nil, logging.Discard()).RunAll(context.Background(), jobs)
	assert.ErrorIs(t, err, ErrDuplicatePath)
	assert.Zero(t, f.peak, "nothing may run for a rejected batch")
}

func TestRunAllDuplicateBatchLeavesTrackerUntouched(t *testing.T) {
	jobs := []FileJob{
		{Path: "/dest/a", URL: "https://example.com/1"},
		{Path: "/dest/b", URL: "https://example.com/2"},
		{Path: "/dest/a", URL: "https://example.com/3"},
	}
	tr := progress.NewTracker()
	tr.SetState(progress.StateDownloading)

	_, err := NewScheduler(&slowFetcher{}, 4, tr, logging.Discard()).RunAll(context.Background(), jobs)
	require.ErrorIs(t, err, ErrDuplicatePath)

	snap := tr.Snapshot()
	assert.Equal(t, progress.StateDownloading, snap.State)
	assert.Zero(t, snap.Completed)
	assert.Zero(t, snap.Failed)
	assert.False(t, tr.IsFinished())
}

func TestValidateBatch(t *testing.T) {
	assert.NoError(t, ValidateBatch(nil))
	assert.NoError(t, ValidateBatch(makeJobs(3)))

	err := ValidateBatch([]FileJob{{Path: "/dest/a"}, {Path: "/dest/b"}, {Path: "/dest/a"}})
	assert.ErrorIs(t, err, ErrDuplicatePath)
	assert.ErrorContains(t, err, "/dest/a")
}

func TestRunAllCancelledContextCountsRemainder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := makeJobs(5)
	tr := progress.NewTracker()
	tr.SetTotals(0, len(jobs))
	tr.SetState(progress.StateDownloading)

	out, err := NewScheduler(&slowFetcher{}, 1, tr, logging.Discard()).RunAll(ctx, jobs)
	assert.ErrorIs(t, err, ErrAllFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, out.Failed)
	assert.Equal(t, progress.StateFinished, tr.State())
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(&slowFetcher{}, 0, nil, nil)
	assert.Equal(t, DefaultConcurrency, s.Limit())
	assert.NotNil(t, s.Tracker())
}

func TestRunAllWithRealFetcherIsIdempotent(t *testing.T) {
	files := map[string][]byte{}
	var jobs []FileJob
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		data := []byte(fmt.Sprintf("object-%d", i))
		name := fmt.Sprintf("/objects/%02d", i)
		files[name] = data
		jobs = append(jobs, FileJob{Path: filepath.Join(dir, name), Hash: sha1Hex(data)})
	}
	srv := newFileServer(t, files)
	for i := range jobs {
		jobs[i].URL = srv.URL + fmt.Sprintf("/objects/%02d", i)
	}

	fetcher := testFetcher(NewHTTPSource(srv.Client()), Options{VerifyAfterWrite: true})

	out, err := NewScheduler(fetcher, 4, nil, logging.Discard()).RunAll(context.Background(), jobs)
	require.NoError(t, err)
	assert.Zero(t, out.Failed)
	assert.Equal(t, int64(20), srv.hits.Load())

	out, err = NewScheduler(fetcher, 4, nil, logging.Discard()).RunAll(context.Background(), jobs)
	require.NoError(t, err)
	assert.Zero(t, out.Failed)
	assert.Equal(t, int64(20), srv.hits.Load(), "second run must be served from disk")
}

func TestRunAllUnreachableSourceWithRealFetcher(t *testing.T) {
	srv := newFileServer(t, map[string][]byte{"/a": []byte("a"), "/b": []byte("b")})
	dead := httptest.NewServer(nil)
	deadURL := dead.URL + "/c"
	dead.Close()

	dir := t.TempDir()
	jobs := []FileJob{
		{Path: filepath.Join(dir, "a"), URL: srv.URL + "/a"},
		{Path: filepath.Join(dir, "b"), URL: srv.URL + "/b"},
		{Path: filepath.Join(dir, "c"), URL: deadURL},
	}
	tr := progress.NewTracker()
	tr.SetTotals(0, len(jobs))
	tr.SetState(progress.StateDownloading)

	var calls atomic.Int64
	counting := fetcherFunc(func(ctx context.Context, job FileJob, fp *progress.FileProgress) error {
		calls.Add(1)
		return testFetcher(NewHTTPSource(srv.Client()), Options{}).Fetch(ctx, job, fp)
	})

	out, err := NewScheduler(counting, 2, tr, logging.Discard()).RunAll(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, progress.StateFinished, tr.State())
	assert.Equal(t, 3, tr.Snapshot().Completed)
}

type fetcherFunc func(ctx context.Context, job FileJob, fp *progress.FileProgress) error

func (f fetcherFunc) Fetch(ctx context.Context, job FileJob, fp *progress.FileProgress) error {
	return f(ctx, job, fp)
}
