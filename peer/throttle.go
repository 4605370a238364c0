// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultMsgThrottlePerSec is the default number of inbound messages
	// per second a peer may send before it is throttled.
	DefaultMsgThrottlePerSec = 200

	// DefaultMsgThrottlePer10Sec is the default number of inbound messages
	// per ten seconds a peer may send before it is throttled.
	DefaultMsgThrottlePer10Sec = 1000

	// DefaultThrottleViolationLimit is the default number of throttle
	// violations after which the connection is closed as abusive.
	DefaultThrottleViolationLimit = 10

	// throttleViolationWindow is the period violations accumulate over
	// before the count starts again.
	throttleViolationWindow = time.Minute
)

// inboundThrottle limits the rate at which messages are read from a single
// connection with two independent token buckets.  A message that finds either
// bucket empty is a violation and the reader is delayed until both buckets
// have tokens again.  Violations only add up within throttleViolationWindow of
// the first one, so occasional bursts of a long lived peer are never fatal.
//
// Only the input handler of its peer calls wait.
type inboundThrottle struct {
	perSec     *rate.Limiter
	per10Sec   *rate.Limiter
	limit      uint32
	violations atomic.Uint32
	windowEnd  time.Time

	// sleep is replaced by tests.
	sleep func(time.Duration, <-chan struct{})
}

// newInboundThrottle returns a throttle which allows perSec messages per
// second and per10Sec messages per ten seconds, closing after limit
// violations.
func newInboundThrottle(perSec, per10Sec int, limit uint32) *inboundThrottle {
	return &inboundThrottle{
		perSec:   rate.NewLimiter(rate.Limit(perSec), perSec),
		per10Sec: rate.NewLimiter(rate.Every(10*time.Second/time.Duration(per10Sec)), per10Sec),
		limit:    limit,
		sleep:    sleepOrQuit,
	}
}

// sleepOrQuit blocks for d or until quit is closed.
func sleepOrQuit(d time.Duration, quit <-chan struct{}) {
	t := time.NewTimer(d)
	select {
	case <-t.C:
	case <-quit:
		t.Stop()
	}
}

// wait accounts for one received message at now.  It blocks while the
// message exceeds either rate and returns ErrThrottled once the peer reached
// the violation limit.
func (t *inboundThrottle) wait(now time.Time, quit <-chan struct{}) error {
	r1 := t.perSec.ReserveN(now, 1)
	r2 := t.per10Sec.ReserveN(now, 1)
	delay := max(r1.DelayFrom(now), r2.DelayFrom(now))
	if delay <= 0 {
		return nil
	}

	if now.After(t.windowEnd) {
		t.windowEnd = now.Add(throttleViolationWindow)
		t.violations.Store(0)
	}
	violations := t.violations.Add(1)
	if violations >= t.limit {
		r1.CancelAt(now)
		r2.CancelAt(now)
		str := fmt.Sprintf("exceeded inbound message rate %d times",
			violations)
		return makeError(ErrThrottled, str)
	}
	t.sleep(delay, quit)
	return nil
}

// Violations returns the number of throttle violations in the current window.
func (t *inboundThrottle) Violations() uint32 {
	return t.violations.Load()
}
