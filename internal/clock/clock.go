// Package clock abstracts time so the heartbeat ticker and peer-expiry scan
// can run under a fake clock in tests instead of sleeping in wall time.
package clock

import "time"

// Clock abstracts time.Now and periodic-tick generation.
type Clock interface {
	Now() time.Time
	NewTicker(period time.Duration) Ticker
}

// Ticker is the injectable counterpart of *time.Ticker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real implements Clock using the system clock and time.Ticker.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) NewTicker(period time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(period)}
}

type realTicker struct{ t *time.Ticker }

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }
