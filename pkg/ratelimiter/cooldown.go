package ratelimiter

import (
	"fmt"
	"sync"
	"time"
)

// CooldownError is returned by Cooldown.Check while the cooldown is active
type CooldownError struct {
	// RetryAfter is the remaining wait rounded up to whole seconds
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry after %s", e.RetryAfter)
}

// Seconds returns RetryAfter as whole seconds
func (e *CooldownError) Seconds() int {
	return int(e.RetryAfter / time.Second)
}

// Cooldown enforces a minimum gap between accepted disbursements.
//
// Check only reads the state. The gap starts when the caller commits, which the
// faucet does once a disbursement is confirmed, so failures never consume it.
type Cooldown struct {
	mu             sync.Mutex
	period         time.Duration
	lastAcceptedAt time.Time
	accepted       bool
}

// NewCooldown creates a Cooldown that has never accepted anything
func NewCooldown(period time.Duration) *Cooldown {
	return &Cooldown{period: period}
}

// Period returns the configured gap
func (c *Cooldown) Period() time.Duration {
	return c.period
}

// Check returns *CooldownError if now is within the period after the last commit
func (c *Cooldown) Check(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.accepted {
		return nil
	}

	elapsed := now.Sub(c.lastAcceptedAt)
	if elapsed >= c.period {
		return nil
	}

	remaining := c.period - elapsed
	return &CooldownError{RetryAfter: (remaining + time.Second - 1) / time.Second * time.Second}
}

// Commit records now as the last accepted disbursement
func (c *Cooldown) Commit(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastAcceptedAt = now
	c.accepted = true
}

// LastAcceptedAt returns the last commit time, or false if there was none
func (c *Cooldown) LastAcceptedAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastAcceptedAt, c.accepted
}
