package downloader

import (
	"fmt"
	"time"
)

const (
	// DefaultConcurrency suits object-storage origins serving many small files.
	DefaultConcurrency = 64

	// DefaultBufferSize is the chunk size used to stream bodies to disk.
	DefaultBufferSize = 32 * 1024
)

// FileJob is one file to materialize locally. Its identity is Path.
type FileJob struct {
	Path string
	URL  string
	// Hash is the expected hex SHA-1 of the content, or empty if unknown.
	Hash string
}

func (j FileJob) String() string {
	return fmt.Sprintf("%s <- %s", j.Path, j.URL)
}

// Failure records a job that ended in error.
type Failure struct {
	Job FileJob
	Err error
}

// Outcome summarizes one scheduler run.
type Outcome struct {
	Total     int
	Succeeded int
	Failed    int
	Failures  []Failure
	Elapsed   time.Duration
}

// Options configures a Fetcher.
type Options struct {
	// Attempts is the per-file attempt budget. 1 makes every failure terminal.
	Attempts int

	// Backoff is the delay before the second attempt; it doubles after that.
	Backoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// VerifyAfterWrite checks the written file against FileJob.Hash.
	VerifyAfterWrite bool

	// BufferSize is the read chunk size. Default: 32KB
	BufferSize int
}

func (o Options) withDefaults() Options {
	if o.Attempts <= 0 {
		o.Attempts = 1
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return o
}
