// Package playback schedules decoded model audio segments for gapless
// rendition. Segments arrive faster than real time; the scheduler anchors
// each one at the moment the previous one ends so the output sounds like
// a single continuous utterance.
package playback

import "time"

// Clock measures elapsed playback time. It exists so the scheduler's
// timing decisions can be tested without sleeping.
type Clock interface {
	// Now returns time elapsed since the clock's origin.
	Now() time.Duration
	// AfterFunc runs f once d has elapsed and returns a stop function.
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realClock struct {
	origin time.Time
}

// NewClock returns a monotonic clock anchored at the moment of the call.
func NewClock() Clock {
	return &realClock{origin: time.Now()}
}

func (c *realClock) Now() time.Duration {
	return time.Since(c.origin)
}

func (c *realClock) AfterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}
