// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package broadcaster floods accepted data to the connected peers.
package broadcaster

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

const (
	// DefaultThrottleTrigger is the default number of sends within the
	// throttle window after which sends are delayed.
	DefaultThrottleTrigger = 20

	// DefaultThrottleWindow is the default length of the throttle window.
	DefaultThrottleWindow = time.Second

	// DefaultThrottleSleep is the default delay applied to each send while
	// throttled.
	DefaultThrottleSleep = 50 * time.Millisecond

	// DefaultMaxRelayDelay is the default upper bound of the random delay
	// applied before relaying data received from another peer.
	DefaultMaxRelayDelay = 100 * time.Millisecond

	// DefaultMaxQueue is the default number of broadcasts waiting for
	// delivery after which the oldest relayed ones are dropped.
	DefaultMaxQueue = 5000

	// maxKnownInventory is the number of messages tracked per peer.
	maxKnownInventory = 20000

	// knownInventoryFPRate is the false positive rate of the per peer known
	// inventory filters.  A false positive skips a send, which the periodic
	// data sync of new connections compensates for.
	knownInventoryFPRate = 0.0001
)

// Peer is the subset of a connected peer used by the broadcaster.
// *peer.Peer implements it.
type Peer interface {
	ID() int32
	Connected() bool
	QueueMessage(msg wire.Message, done chan<- error)
}

// Ensure *peer.Peer implements the Peer interface.
var _ Peer = (*peer.Peer)(nil)

// Config houses the configuration of a Broadcaster.
type Config struct {
	// Peers returns the currently connected peers.
	Peers func() []Peer

	// ThrottleTrigger, ThrottleWindow and ThrottleSleep control the send
	// throttle.  Zero values select the defaults.
	ThrottleTrigger int
	ThrottleWindow  time.Duration
	ThrottleSleep   time.Duration

	// MaxRelayDelay bounds the random delay before relayed broadcasts.  A
	// negative value disables the delay.
	MaxRelayDelay time.Duration

	// MaxQueue bounds the number of queued broadcasts.  Zero selects the
	// default.
	MaxQueue int
}

// InventoryKey returns the key identifying msg in the known inventory of the
// peers.  Every version of a protected entry shares the payload hash, so the
// full encoding of the message is hashed instead.
func InventoryKey(msg wire.Message) chainhash.Hash {
	var buf bytes.Buffer
	buf.WriteString(msg.Command())
	// Messages are only broadcast after they were decoded or validated, so
	// they always encode.
	_ = msg.Encode(&buf, wire.ProtocolVersion)
	return chainhash.HashH(buf.Bytes())
}

// job is a single queued broadcast.  hash identifies the data for logging,
// key the message in the known inventory.  The job is not delivered before
// due.
type job struct {
	msg         wire.Message
	hash        chainhash.Hash
	key         chainhash.Hash
	exclude     int32
	isDataOwner bool
	due         time.Time
}

// newJob returns a broadcast of msg excluding the peer with the passed id.
// An id of -1 excludes no peer.
func newJob(msg wire.Message, hash chainhash.Hash, exclude int32, isDataOwner bool) job {
	return job{
		msg:         msg,
		hash:        hash,
		key:         InventoryKey(msg),
		exclude:     exclude,
		isDataOwner: isDataOwner,
	}
}

// Broadcaster sends messages to every connected peer except the one the data
// was received from.  Broadcasts are queued and delivered by a single worker
// goroutine.  Relayed broadcasts are held back by a random delay, otherwise
// they are delivered in the order they were queued.
type Broadcaster struct {
	cfg Config

	mtx    sync.Mutex
	queue  []job
	known  map[int32]*apbf.Filter
	signal chan struct{}

	// sends holds the times of the recent sends and is only accessed by the
	// worker.
	sends []time.Time

	// dropped counts the relayed broadcasts discarded from a full queue.
	dropped uint64

	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
}

// New returns a broadcaster with the passed configuration.
func New(cfg *Config) *Broadcaster {
	b := &Broadcaster{
		cfg:    *cfg,
		known:  make(map[int32]*apbf.Filter),
		signal: make(chan struct{}, 1),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	if b.cfg.ThrottleTrigger <= 0 {
		b.cfg.ThrottleTrigger = DefaultThrottleTrigger
	}
	if b.cfg.ThrottleWindow <= 0 {
		b.cfg.ThrottleWindow = DefaultThrottleWindow
	}
	if b.cfg.ThrottleSleep <= 0 {
		b.cfg.ThrottleSleep = DefaultThrottleSleep
	}
	if b.cfg.MaxRelayDelay == 0 {
		b.cfg.MaxRelayDelay = DefaultMaxRelayDelay
	}
	if b.cfg.MaxQueue <= 0 {
		b.cfg.MaxQueue = DefaultMaxQueue
	}
	return b
}

// sleepCtx waits for the duration and returns false when the context is done
// first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Broadcast queues msg for delivery to all connected peers other than
// exclude.  Peers already known to have the message are skipped.  hash
// identifies the data the message carries.  isDataOwner is set for data
// originating from this node, which is sent without the relay delay.
//
// When the queue is full the oldest relayed broadcast is dropped.  Data owner
// broadcasts are never dropped.
//
// This function is safe for concurrent access and never blocks on the
// network.
func (b *Broadcaster) Broadcast(msg wire.Message, hash chainhash.Hash, exclude *peer.Peer, isDataOwner bool) {
	var excludeID int32 = -1
	if exclude != nil {
		excludeID = exclude.ID()
	}
	j := newJob(msg, hash, excludeID, isDataOwner)
	if exclude != nil {
		b.MarkKnown(exclude, j.key)
	}
	b.enqueue(j)
}

// enqueue schedules the job and wakes the worker.
func (b *Broadcaster) enqueue(j job) {
	j.due = b.now()
	if !j.isDataOwner && b.cfg.MaxRelayDelay > 0 {
		j.due = j.due.Add(rand.Duration(b.cfg.MaxRelayDelay))
	}

	b.mtx.Lock()
	if len(b.queue) >= b.cfg.MaxQueue && !b.dropOldestRelay() && !j.isDataOwner {
		b.dropped++
		b.mtx.Unlock()
		log.Debugf("Dropping broadcast of %v with a full queue", j.hash)
		return
	}
	b.queue = append(b.queue, j)
	b.mtx.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// knownFilter returns the known inventory filter of the peer, creating it
// when needed.  The mutex must be held.
func (b *Broadcaster) knownFilter(id int32) *apbf.Filter {
	f, ok := b.known[id]
	if !ok {
		f = apbf.NewFilter(maxKnownInventory, knownInventoryFPRate)
		b.known[id] = f
	}
	return f
}

// MarkKnown records that the peer has the message identified by the
// inventory key so it is not sent to it again.
func (b *Broadcaster) MarkKnown(p Peer, key chainhash.Hash) {
	b.mtx.Lock()
	b.knownFilter(p.ID()).Add(key[:])
	b.mtx.Unlock()
}

// IsKnown returns whether the peer is known to have the message identified
// by the inventory key.
func (b *Broadcaster) IsKnown(p Peer, key chainhash.Hash) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	f, ok := b.known[p.ID()]
	return ok && f.Contains(key[:])
}

// RemovePeer discards the state kept for a disconnected peer.
func (b *Broadcaster) RemovePeer(p Peer) {
	b.mtx.Lock()
	delete(b.known, p.ID())
	b.mtx.Unlock()
}

// QueueLen returns the number of broadcasts waiting for the worker.
func (b *Broadcaster) QueueLen() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.queue)
}

// dropOldestRelay removes the oldest relayed job from the queue and reports
// whether there was one.  The mutex must be held.
func (b *Broadcaster) dropOldestRelay() bool {
	for i := range b.queue {
		if b.queue[i].isDataOwner {
			continue
		}
		log.Debugf("Dropping broadcast of %v with a full queue",
			b.queue[i].hash)
		b.queue = append(b.queue[:i], b.queue[i+1:]...)
		b.dropped++
		return true
	}
	return false
}

// Dropped returns the number of relayed broadcasts discarded because the
// queue was full.
func (b *Broadcaster) Dropped() uint64 {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return b.dropped
}

// takeDue removes and returns the queued jobs which are due at now in queue
// order.  It also returns the earliest due time of the remaining jobs, which
// is zero when none remain.
func (b *Broadcaster) takeDue(now time.Time) ([]job, time.Time) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	var due []job
	var next time.Time
	remaining := b.queue[:0]
	for _, j := range b.queue {
		if !j.due.After(now) {
			due = append(due, j)
			continue
		}
		if next.IsZero() || j.due.Before(next) {
			next = j.due
		}
		remaining = append(remaining, j)
	}
	clear(b.queue[len(remaining):])
	b.queue = remaining
	return due, next
}

// throttle delays the next send when the number of sends within the throttle
// window exceeds the trigger.  It returns false when the context is done.
func (b *Broadcaster) throttle(ctx context.Context) bool {
	now := b.now()
	cutoff := now.Add(-b.cfg.ThrottleWindow)
	i := 0
	for i < len(b.sends) && !b.sends[i].After(cutoff) {
		i++
	}
	b.sends = append(b.sends[:0], b.sends[i:]...)
	if len(b.sends) >= b.cfg.ThrottleTrigger {
		if !b.sleep(ctx, b.cfg.ThrottleSleep) {
			return false
		}
		now = b.now()
	}
	b.sends = append(b.sends, now)
	return true
}

// deliver sends a single job to every eligible peer.  It returns the number
// of peers the message was queued to.
func (b *Broadcaster) deliver(ctx context.Context, j *job) int {
	var sent int
	for _, p := range b.cfg.Peers() {
		id := p.ID()
		if id == j.exclude {
			continue
		}

		b.mtx.Lock()
		f := b.knownFilter(id)
		if f.Contains(j.key[:]) {
			b.mtx.Unlock()
			continue
		}
		f.Add(j.key[:])
		b.mtx.Unlock()

		if !p.Connected() {
			log.Debugf("Skipping broadcast of %v to disconnected peer %d",
				j.hash, id)
			continue
		}
		if !b.throttle(ctx) {
			return sent
		}
		p.QueueMessage(j.msg, nil)
		sent++
	}
	log.Tracef("Broadcast %s %v to %d peers", j.msg.Command(), j.hash, sent)
	return sent
}

// Run delivers queued broadcasts until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	log.Trace("Starting broadcaster")
	defer log.Trace("Broadcaster stopped")

	for {
		jobs, next := b.takeDue(b.now())
		for _, j := range jobs {
			if ctx.Err() != nil {
				return nil
			}
			b.deliver(ctx, &j)
		}

		var wake <-chan time.Time
		var timer *time.Timer
		if !next.IsZero() {
			timer = time.NewTimer(next.Sub(b.now()))
			wake = timer.C
		}
		select {
		case <-b.signal:
		case <-wake:
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if n := b.QueueLen(); n > 0 {
				log.Debugf("Discarding %d queued broadcasts on shutdown", n)
			}
			return nil
		}
		if timer != nil {
			timer.Stop()
		}
	}
}
