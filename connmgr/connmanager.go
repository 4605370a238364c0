// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2017-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/tradenet/wire"
)

// maxRetryDuration caps the linearly growing delay between attempts to
// reach a permanent peer.
var maxRetryDuration = time.Minute * 5

const (
	// maxFailedAttempts is the number of successive failed automatic
	// connection attempts after which the network is assumed to be down and
	// replacement attempts are delayed by the retry duration.
	maxFailedAttempts = 25

	// defaultRetryDuration is the default base delay between attempts.
	defaultRetryDuration = time.Second * 5

	// defaultTargetOutbound is the default number of outbound connections to
	// maintain.
	defaultTargetOutbound = uint32(8)
)

// ConnState represents the state of the requested connection.
type ConnState uint32

// A connection request starts out pending and becomes established or failed
// depending on the dial result.  Established connections end up disconnected
// once removed, while pending requests which are removed become canceled.
const (
	ConnPending ConnState = iota
	ConnEstablished
	ConnDisconnected
	ConnFailed
	ConnCanceled
)

// String returns the state as a human-readable string.
func (s ConnState) String() string {
	switch s {
	case ConnPending:
		return "pending"
	case ConnEstablished:
		return "established"
	case ConnDisconnected:
		return "disconnected"
	case ConnFailed:
		return "failed"
	case ConnCanceled:
		return "canceled"
	}
	return fmt.Sprintf("unknown state (%d)", uint32(s))
}

// ConnReq is a request to connect to an overlay address.  Permanent requests
// are retried with a growing delay whenever they fail or disconnect.
type ConnReq struct {
	id    atomic.Uint64
	state atomic.Uint32

	// Protected by the connection manager mutex.
	retryCount uint32
	conn       net.Conn

	// Addr is the address to connect to.
	Addr wire.NodeAddress

	// Permanent marks requests the connection manager keeps trying to
	// maintain for its whole lifetime.
	Permanent bool
}

func (c *ConnReq) setState(state ConnState) {
	c.state.Store(uint32(state))
}

// ID returns a unique identifier for the connection request.  It is zero
// until the request is first handed to the connection manager.
func (c *ConnReq) ID() uint64 {
	return c.id.Load()
}

// State is the connection state of the requested connection.
func (c *ConnReq) State() ConnState {
	return ConnState(c.state.Load())
}

// String returns a human-readable string for the connection request.
func (c *ConnReq) String() string {
	if c.Addr.IsZero() {
		return fmt.Sprintf("reqid %d", c.id.Load())
	}
	return fmt.Sprintf("%s (reqid %d)", c.Addr, c.id.Load())
}

// Config holds the configuration options related to the connection manager.
type Config struct {
	// Listeners are owned by the connection manager once it runs and are
	// closed on shutdown.  They are only served when OnAccept is set.
	Listeners []net.Listener

	// OnAccept is invoked with every accepted connection which does not come
	// from a banned host.  The callee owns the connection.
	OnAccept func(net.Conn)

	// IsBanned reports whether connections from the passed host are refused.
	// Accepted connections from banned hosts are closed before OnAccept is
	// invoked, so no data is ever exchanged with them.  It may be nil.
	IsBanned func(host string) bool

	// TargetOutbound is the number of outbound network connections to
	// maintain. Defaults to 8.
	TargetOutbound uint32

	// RetryDuration is the base delay between connection attempts.
	// Defaults to 5s.
	RetryDuration time.Duration

	// OnConnection is invoked when an outbound connection is established.
	OnConnection func(*ConnReq, net.Conn)

	// OnDisconnection is invoked when an established outbound connection is
	// disconnected.
	OnDisconnection func(*ConnReq)

	// GetNewAddress returns an address for automatic outbound connections.
	// When nil, only explicitly requested connections are made.
	GetNewAddress func() (wire.NodeAddress, error)

	// Dial connects to the passed overlay address.  It must be specified.
	Dial func(ctx context.Context, addr wire.NodeAddress) (net.Conn, error)

	// Timeout bounds each dial when non-zero.
	Timeout time.Duration
}

// ConnManager maintains the outbound connections of a node and accepts
// inbound connections on its listeners.
type ConnManager struct {
	cfg Config

	// connReqCount assigns unique connection request ids.
	connReqCount atomic.Uint64

	// ctx is canceled once the manager is shut down.  Automatic requests
	// are bound to it.
	ctx    context.Context
	cancel context.CancelFunc

	mtx sync.Mutex

	// pending holds the requests which are being dialed or wait for a retry,
	// conns the requests with an established connection.
	pending map[uint64]*ConnReq
	conns   map[uint64]*ConnReq

	// failedAttempts counts the automatic connection attempts which failed
	// since the last successful connection.
	failedAttempts uint64
}

func (cm *ConnManager) stopped() bool {
	return cm.ctx.Err() != nil
}

// register assigns an id to a new request and tracks it as pending.  It
// returns false when the request was canceled or the manager is stopped.
func (cm *ConnManager) register(c *ConnReq) bool {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()

	if cm.stopped() || c.State() == ConnCanceled {
		return false
	}
	if c.id.Load() == 0 {
		c.id.Store(cm.connReqCount.Add(1))
		cm.pending[c.ID()] = c
	}
	if _, ok := cm.pending[c.ID()]; ok {
		c.setState(ConnPending)
	}
	return true
}

// connected moves a pending request to the established connections.  The
// connection is closed when the request was removed in the meantime.
func (cm *ConnManager) connected(c *ConnReq, conn net.Conn) {
	cm.mtx.Lock()
	if _, ok := cm.pending[c.ID()]; !ok || cm.stopped() {
		cm.mtx.Unlock()
		conn.Close()
		log.Debugf("Ignoring connection for canceled connreq=%v", c)
		return
	}
	delete(cm.pending, c.ID())
	c.setState(ConnEstablished)
	c.conn = conn
	c.retryCount = 0
	cm.conns[c.ID()] = c
	cm.failedAttempts = 0
	cm.mtx.Unlock()

	log.Debugf("Connected to %v", c)
	if cm.cfg.OnConnection != nil {
		go cm.cfg.OnConnection(c, conn)
	}
}

// failed handles a dial error of a pending request.  Permanent requests are
// retried while automatic ones are replaced by a request for a different
// address.
func (cm *ConnManager) failed(ctx context.Context, c *ConnReq, err error) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()

	if _, ok := cm.pending[c.ID()]; !ok {
		log.Debugf("Ignoring failure of canceled connreq=%v", c)
		return
	}
	c.setState(ConnFailed)
	log.Debugf("Failed to connect to %v: %v", c, err)
	if !c.Permanent {
		delete(cm.pending, c.ID())
	}
	cm.scheduleRetry(ctx, c)
}

// disconnected removes the connection of the request with the passed id.
// Requests which are still pending are canceled.  When retry is set, a
// permanent request is redialed and an automatic one replaced while below
// the outbound target.
func (cm *ConnManager) disconnected(ctx context.Context, id uint64, retry bool) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()

	c, ok := cm.conns[id]
	if !ok {
		c, ok = cm.pending[id]
		if !ok {
			log.Debugf("Unknown connid=%d", id)
			return
		}
		delete(cm.pending, id)
		c.setState(ConnCanceled)
		log.Debugf("Canceling: %v", c)
		return
	}

	delete(cm.conns, id)
	c.conn.Close()
	c.conn = nil
	log.Debugf("Disconnected from %v", c)
	if cm.cfg.OnDisconnection != nil {
		go cm.cfg.OnDisconnection(c)
	}

	if !retry {
		c.setState(ConnDisconnected)
		return
	}
	if c.Permanent {
		c.setState(ConnPending)
		cm.pending[id] = c
		cm.scheduleRetry(ctx, c)
		return
	}
	c.setState(ConnDisconnected)
	if uint32(len(cm.conns)) < cm.cfg.TargetOutbound {
		cm.scheduleRetry(ctx, c)
	}
}

// scheduleRetry arranges the next attempt after the request c failed or
// disconnected.  It never blocks and must be called with the mutex held.
func (cm *ConnManager) scheduleRetry(ctx context.Context, c *ConnReq) {
	if ctx.Err() != nil || cm.stopped() {
		return
	}

	if c.Permanent {
		c.retryCount++
		d := time.Duration(c.retryCount) * cm.cfg.RetryDuration
		if d > maxRetryDuration {
			d = maxRetryDuration
		}
		log.Debugf("Retrying connection to %v in %v", c, d)
		time.AfterFunc(d, func() { cm.Connect(ctx, c) })
		return
	}
	if cm.cfg.GetNewAddress == nil {
		return
	}
	cm.failedAttempts++
	if cm.failedAttempts >= maxFailedAttempts {
		log.Debugf("Max failed connection attempts reached: [%d] "+
			"-- retrying connection in: %v", maxFailedAttempts,
			cm.cfg.RetryDuration)
		time.AfterFunc(cm.cfg.RetryDuration, func() { cm.newConnReq(ctx) })
		return
	}
	go cm.newConnReq(ctx)
}

// newConnReq makes an automatic connection request to an address returned by
// GetNewAddress.
func (cm *ConnManager) newConnReq(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c := new(ConnReq)
	if !cm.register(c) {
		return
	}
	addr, err := cm.cfg.GetNewAddress()
	if err != nil {
		cm.failed(ctx, c, err)
		return
	}
	c.Addr = addr
	cm.Connect(ctx, c)
}

// Connect dials the address of the connection request.  Requests which were
// not seen before are assigned an id first.  The attempt is skipped when the
// manager is stopped, the context is done or the request was canceled.
//
// The context bounds the dial and any retries of permanent requests.  It may
// be independent of the context Run is invoked with.
func (cm *ConnManager) Connect(ctx context.Context, c *ConnReq) {
	if ctx.Err() != nil || !cm.register(c) {
		return
	}

	log.Debugf("Attempting to connect to %v", c)
	dialCtx := ctx
	if cm.cfg.Timeout != 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cm.cfg.Timeout)
		defer cancel()
	}
	conn, err := cm.cfg.Dial(dialCtx, c.Addr)
	if err != nil {
		cm.failed(ctx, c, err)
		return
	}
	cm.connected(c, conn)
}

// Disconnect closes the connection of the request with the passed id.
// Permanent requests are redialed after a growing delay and automatic ones
// are replaced while below the outbound target.
func (cm *ConnManager) Disconnect(id uint64) {
	cm.disconnected(cm.ctx, id, true)
}

// Remove closes the connection of the request with the passed id, or
// cancels the request while it is still being attempted, without any retry.
func (cm *ConnManager) Remove(id uint64) {
	cm.disconnected(cm.ctx, id, false)
}

// NewCandidates signals that new addresses are available to connect to.  When
// the number of outbound connections and pending attempts is below the
// target, new connection requests are made to fill the free slots.
func (cm *ConnManager) NewCandidates() {
	if cm.cfg.GetNewAddress == nil {
		return
	}
	cm.mtx.Lock()
	active := uint32(len(cm.conns) + len(cm.pending))
	cm.mtx.Unlock()
	for i := active; i < cm.cfg.TargetOutbound; i++ {
		go cm.newConnReq(cm.ctx)
	}
}

// remoteHost returns the host part of the remote address of the connection.
func remoteHost(conn net.Conn) string {
	addr := conn.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// acceptLoop hands the connections accepted on the listener to OnAccept
// until the listener is closed.
func (cm *ConnManager) acceptLoop(ctx context.Context, listener net.Listener) {
	log.Infof("Server listening on %s", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || cm.stopped() {
				break
			}
			log.Errorf("Can't accept connection: %v", err)
			continue
		}
		if cm.cfg.IsBanned != nil && cm.cfg.IsBanned(remoteHost(conn)) {
			log.Debugf("Refusing connection from banned host %s",
				conn.RemoteAddr())
			conn.Close()
			continue
		}
		go cm.cfg.OnAccept(conn)
	}
	log.Tracef("Listener handler done for %s", listener.Addr())
}

// shutdown stops all further attempts and closes the listeners and the
// established outbound connections.
func (cm *ConnManager) shutdown(listeners []net.Listener) {
	cm.cancel()
	for _, listener := range listeners {
		_ = listener.Close()
	}

	cm.mtx.Lock()
	for id, c := range cm.conns {
		c.conn.Close()
		c.setState(ConnDisconnected)
		delete(cm.conns, id)
	}
	for id, c := range cm.pending {
		c.setState(ConnCanceled)
		delete(cm.pending, id)
	}
	cm.mtx.Unlock()
}

// Run serves the configured listeners and makes automatic outbound
// connections up to the target.  It blocks until the provided context is
// cancelled.
func (cm *ConnManager) Run(ctx context.Context) {
	log.Trace("Starting connection manager")

	var listeners []net.Listener
	if cm.cfg.OnAccept != nil {
		listeners = cm.cfg.Listeners
	}
	var wg sync.WaitGroup
	for _, listener := range listeners {
		wg.Add(1)
		go func(l net.Listener) {
			defer wg.Done()
			cm.acceptLoop(ctx, l)
		}(listener)
	}

	cm.NewCandidates()

	<-ctx.Done()
	cm.shutdown(listeners)
	wg.Wait()
	log.Trace("Connection manager stopped")
}

// New returns a new connection manager with the provided configuration.
//
// Use Run to start listening and/or connecting to the network.
func New(cfg *Config) (*ConnManager, error) {
	if cfg.Dial == nil {
		return nil, makeError(ErrDialNil, "config: dial cannot be nil")
	}
	c := *cfg
	if c.RetryDuration <= 0 {
		c.RetryDuration = defaultRetryDuration
	}
	if c.TargetOutbound == 0 {
		c.TargetOutbound = defaultTargetOutbound
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConnManager{
		cfg:     c,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint64]*ConnReq),
		conns:   make(map[uint64]*ConnReq),
	}, nil
}
