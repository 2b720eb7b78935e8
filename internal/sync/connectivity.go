package sync

import (
	"log/slog"
	"sync/atomic"
)

// Connectivity is the operator-controlled online/offline gate. It starts
// offline and is never persisted.
type Connectivity struct {
	online atomic.Bool
	logger *slog.Logger
}

// NewConnectivity returns a gate in the given initial state.
func NewConnectivity(online bool, logger *slog.Logger) *Connectivity {
	c := &Connectivity{logger: logger}
	c.online.Store(online)
	connectivityGauge.Set(boolToFloat(online))

	return c
}

// Online reports the current state.
func (c *Connectivity) Online() bool {
	return c.online.Load()
}

// Set forces the state and reports whether it changed.
func (c *Connectivity) Set(online bool) bool {
	changed := c.online.Swap(online) != online
	if changed {
		c.logChange(online)
	}

	return changed
}

// Toggle flips the state and returns the new value.
func (c *Connectivity) Toggle() bool {
	for {
		old := c.online.Load()
		if c.online.CompareAndSwap(old, !old) {
			c.logChange(!old)

			return !old
		}
	}
}

func (c *Connectivity) logChange(online bool) {
	connectivityGauge.Set(boolToFloat(online))
	c.logger.Info("connectivity changed", slog.Bool("online", online))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
