package config

import "sync/atomic"

// Holder publishes the watch daemon's live configuration. Readers always get
// a complete *Resolved; Swap replaces it in one step and reports what the
// reload changed.
type Holder struct {
	cur  atomic.Pointer[Resolved]
	path string
}

// NewHolder creates a Holder for cfg, loaded from the file at path.
func NewHolder(cfg *Resolved, path string) *Holder {
	h := &Holder{path: path}
	h.cur.Store(cfg)

	return h
}

// Config returns the current configuration.
func (h *Holder) Config() *Resolved {
	return h.cur.Load()
}

// Path returns the watched config file.
func (h *Holder) Path() string {
	return h.path
}

// Change is the difference between two configurations.
type Change struct {
	Prev *Resolved
	Next *Resolved

	// Interval is applied by the running scheduler.
	Interval bool

	// Restart lists changed keys that only take effect when the daemon
	// starts: the store, the remote, the batch size, and logging.
	Restart []string
}

// Swap installs next and returns how it differs from the configuration it
// replaced.
func (h *Holder) Swap(next *Resolved) Change {
	return Diff(h.cur.Swap(next), next)
}

// Diff compares two resolved configurations.
func Diff(prev, next *Resolved) Change {
	c := Change{Prev: prev, Next: next}
	if prev == nil || next == nil {
		return c
	}

	c.Interval = prev.Interval != next.Interval

	if prev.DBPath != next.DBPath {
		c.Restart = append(c.Restart, "store.db_path")
	}

	if prev.BatchSize != next.BatchSize {
		c.Restart = append(c.Restart, "sync.batch_size")
	}

	if prev.Remote != next.Remote {
		c.Restart = append(c.Restart, "remote")
	}

	if prev.Logging != next.Logging {
		c.Restart = append(c.Restart, "logging")
	}

	return c
}
