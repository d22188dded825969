package progress

import "sync"

// FileProgress is the byte-level progress of one file. A total of 0 means
// the size is not known yet.
type FileProgress struct {
	label string

	mu    sync.RWMutex
	done  uint64
	total uint64
}

// NewFileProgress creates an unstarted handle.
func NewFileProgress(label string) *FileProgress {
	return &FileProgress{label: label}
}

// Label returns the display label, usually the source URL.
func (f *FileProgress) Label() string {
	return f.label
}

// SetTotal sets the expected size in bytes and resets the done counter.
func (f *FileProgress) SetTotal(total uint64) {
	f.mu.Lock()
	f.total = total
	f.done = 0
	f.mu.Unlock()
}

// Add advances the done counter by n bytes.
func (f *FileProgress) Add(n uint64) {
	f.mu.Lock()
	f.done += n
	if f.total != 0 && f.done > f.total {
		f.total = f.done
	}
	f.mu.Unlock()
}

// Complete marks the file as fully done. A file of unknown size reports
// its drained byte count as the total; an empty one reports 1/1.
func (f *FileProgress) Complete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.total == 0 {
		f.total = f.done
	}
	if f.total == 0 {
		f.total = 1
	}
	f.done = f.total
}

// Progress returns (done, total).
func (f *FileProgress) Progress() (uint64, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.done, f.total
}

// Finished reports whether a known total has been reached.
func (f *FileProgress) Finished() bool {
	done, total := f.Progress()
	return total != 0 && done >= total
}
