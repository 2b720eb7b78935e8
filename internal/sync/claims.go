package sync

import (
	stdsync "sync"
)

// claimSet tracks transactions that a reconciliation pass is currently
// attempting. A transaction is attempted by at most one pass at a time;
// a concurrent pass that finds it claimed skips it. Thread-safe.
type claimSet struct {
	mu     stdsync.Mutex
	claims map[string]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{claims: make(map[string]struct{})}
}

// claim returns false if id is already held by another pass.
func (c *claimSet) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.claims[id]; held {
		return false
	}

	c.claims[id] = struct{}{}

	return true
}

// release drops the claim on id.
func (c *claimSet) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.claims, id)
}

// len returns the number of claims currently held.
func (c *claimSet) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.claims)
}
