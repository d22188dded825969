package downloader

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport covers DNS, connection and TLS failures reaching the source.
	ErrTransport = errors.New("downloader: transport failure")

	// ErrStatus is returned when the source answers with a non-success status.
	ErrStatus = errors.New("downloader: unexpected response status")

	// ErrIO covers local create, write and flush failures and broken bodies.
	ErrIO = errors.New("downloader: i/o failure")

	// ErrChecksum is returned when a freshly written file fails verification.
	ErrChecksum = errors.New("downloader: checksum mismatch")

	// ErrAllFailed is returned by RunAll when no job in a non-empty batch succeeded.
	ErrAllFailed = errors.New("downloader: every job in the batch failed")

	// ErrDuplicatePath is returned by RunAll when two jobs share a destination.
	ErrDuplicatePath = errors.New("downloader: duplicate destination path")
)

// FetchError describes a failed job. Kind is one of the sentinels above and
// matches with errors.Is; Err is the underlying cause.
type FetchError struct {
	Kind error
	Path string
	URL  string
	Err  error

	temporary bool
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%v: %s (%s): %v", e.Kind, e.Path, e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Temporary reports whether another attempt could succeed.
func (e *FetchError) Temporary() bool {
	return e.temporary
}

// StatusError is a non-2xx answer from a source.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected status: %s", e.Status)
	}
	return fmt.Sprintf("unexpected status: %d %s", e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}
