package service

import "time"

// Clock supplies the current unix-second checkpoint the core is deterministic
// against. The core never reads wall time itself; batch windows only advance
// when the next operation arrives.
type Clock interface {
	Now() int64
}

type SystemClock struct{}

func (SystemClock) Now() int64 {
	return time.Now().Unix()
}

// ManualClock is a settable clock for tests and replay tooling.
type ManualClock struct {
	T int64
}

func (c *ManualClock) Now() int64 {
	return c.T
}

func (c *ManualClock) Advance(seconds int64) {
	c.T += seconds
}
