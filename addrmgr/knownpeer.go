// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"math"
	"time"

	"github.com/decred/tradenet/wire"
)

// KnownPeer tracks information about a known overlay address that is used to
// determine how viable the address is.
type KnownPeer struct {
	// Addr is the overlay address of the peer.
	Addr wire.NodeAddress

	// Capabilities are the capabilities the peer advertised last.
	Capabilities wire.Capability

	// LastSeen is the last time the peer was seen, either connected or
	// reported by another peer.
	LastSeen time.Time

	// Connected indicates whether there currently is a connection to the
	// peer.
	Connected bool

	// The following fields track the attempts made to connect to the peer.
	// Initially connecting to a peer counts as an attempt, and a successful
	// handshake resets the number of attempts to zero.
	Attempts    int
	LastAttempt time.Time
	LastSuccess time.Time
}

// ReportedPeer returns the known peer in the form it is relayed in during
// peer exchange.
func (kp *KnownPeer) ReportedPeer() wire.ReportedPeer {
	return wire.ReportedPeer{
		Addr:         kp.Addr,
		Capabilities: kp.Capabilities,
		LastSeen:     kp.LastSeen,
	}
}

// chance returns the selection probability for a known peer.  The priority
// depends upon how recently the peer was last attempted and how often
// attempts to connect to it have failed.
func (kp *KnownPeer) chance(now time.Time) float64 {
	// Very recent attempts are less likely to be retried.
	const minChance = 0.01
	if !kp.LastAttempt.IsZero() && now.Sub(kp.LastAttempt) < 10*time.Minute {
		return minChance
	}

	// Failed attempts deprioritise.
	c := 1.0 / math.Pow(1.5, float64(kp.Attempts))

	return math.Max(c, minChance)
}

// isBad returns true if the peer in question has not been tried in the last
// minute and meets one of the following criteria:
// 1) It claims to be from the future
// 2) It hasn't been seen in over a month
// 3) It has failed at least three times and never succeeded
// 4) It has failed a total of maxFailures in the last week
// A peer that meets any of these criteria is assumed to be worthless.
func (kp *KnownPeer) isBad(now time.Time) bool {
	switch {
	// Wait a minute after the last check.
	case kp.LastAttempt.After(now.Add(-1 * time.Minute)):
		return false

	// From the future?
	case kp.LastSeen.After(now.Add(10 * time.Minute)):
		return true

	// Over a month old?
	case kp.LastSeen.Before(now.Add(-1 * numMissingDays * time.Hour * 24)):
		return true

	// Never succeeded?
	case kp.LastSuccess.IsZero() && kp.Attempts >= numRetries:
		return true

	// Hasn't succeeded in too long?
	case !kp.LastSuccess.After(now.Add(-1*minBadDays*time.Hour*24)) &&
		kp.Attempts >= maxFailures:
		return true

	default:
		return false
	}
}
