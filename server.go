// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/tradenet/addrmgr"
	"github.com/decred/tradenet/connmgr"
	"github.com/decred/tradenet/internal/apiserver"
	"github.com/decred/tradenet/internal/banmanager"
	"github.com/decred/tradenet/internal/broadcaster"
	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/internal/keepalive"
	"github.com/decred/tradenet/internal/peerexchange"
	"github.com/decred/tradenet/internal/peermgr"
	"github.com/decred/tradenet/internal/requestdata"
	"github.com/decred/tradenet/internal/version"
	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
	"golang.org/x/sync/errgroup"
)

const (
	// connectionTimeout is the maximum duration of an outbound dial.
	connectionTimeout = 30 * time.Second

	// maxSeedConnections is the number of seed nodes a node keeps permanent
	// connections to.
	maxSeedConnections = 2

	// newAddressTries is the number of known peers tried when looking for an
	// address to connect to that is not banned.
	newAddressTries = 10

	// Ban scores added for misbehavior.  Invalid data and malformed messages
	// are never produced by honest nodes, unsolicited replies may be late.
	invalidDataScore = 25
	malformedScore   = 20
	unsolicitedScore = 10

	// maxRecentRejects is the number of digests of rejected messages kept to
	// drop repeated copies without validating them again.
	maxRecentRejects = 1000

	// recentRejectTTL is how long a rejected message is remembered.
	recentRejectTTL = 10 * time.Minute
)

// server provides an overlay node which stores protected data and gossips it
// with the connected peers.
type server struct {
	cfg *config

	// ctx is canceled on shutdown.  Tasks bound to a peer derive their
	// context from it.
	ctx context.Context

	caps      wire.Capability
	listeners []net.Listener

	addrManager  *addrmgr.AddrManager
	connManager  *connmgr.ConnManager
	peerManager  *peermgr.PeerManager
	banManager   *banmanager.BanManager
	dataStore    *datastore.DataStore
	broadcaster  *broadcaster.Broadcaster
	requestData  *requestdata.Manager
	peerExchange *peerexchange.Manager
	keepAlive    *keepalive.Manager
	apiServer    *apiserver.Server

	// sentNonces holds the version nonces sent to peers so connections of
	// the node to itself are detected.
	sentNonces *lru.Set[uint64]

	// recentlyRejected holds the digests of messages which failed validation
	// in a bannable way.
	recentlyRejected *lru.Set[chainhash.Hash]

	// wg tracks the goroutines serving peers.
	wg sync.WaitGroup
}

// Ensure the server provides the backend of the API server.
var _ apiserver.Backend = (*server)(nil)

// broadcastPeers returns the active connections for the broadcaster.
func (s *server) broadcastPeers() []broadcaster.Peer {
	peers := s.peerManager.ConnectedPeers()
	result := make([]broadcaster.Peer, 0, len(peers))
	for _, p := range peers {
		result = append(result, p)
	}
	return result
}

// exchangePeers returns the active connections for the peer exchange.
func (s *server) exchangePeers() []peerexchange.Peer {
	peers := s.peerManager.ConnectedPeers()
	result := make([]peerexchange.Peer, 0, len(peers))
	for _, p := range peers {
		result = append(result, p)
	}
	return result
}

// keepAlivePeers returns the active connections for the keep-alive manager.
func (s *server) keepAlivePeers() []keepalive.Peer {
	peers := s.peerManager.ConnectedPeers()
	result := make([]keepalive.Peer, 0, len(peers))
	for _, p := range peers {
		result = append(result, p)
	}
	return result
}

// addBanScore increases the persistent and decaying ban score of the peer.
// The peer is banned and disconnected when the score exceeds the ban
// threshold.
func (s *server) addBanScore(p *peer.Peer, persistent, transient uint32, reason string) bool {
	return s.banManager.AddBanScore(p, persistent, transient, reason)
}

// handleData applies a data message received from a peer to the data store.
// hash identifies the data the message refers to.  Bannable failures add to
// the ban score of the peer.  Benign ones such as stale sequence numbers are
// common in gossip and only mark the message as known by the peer.
func (s *server) handleData(p *peer.Peer, msg wire.Message, hash chainhash.Hash, apply func() error) {
	// The inventory key covers the full encoding, so a modified copy of a
	// valid message never shadows the original.
	key := broadcaster.InventoryKey(msg)
	if s.recentlyRejected.Contains(key) {
		reason := fmt.Sprintf("sent rejected %s for %v again", msg.Command(),
			hash)
		s.addBanScore(p, 0, invalidDataScore, reason)
		return
	}

	err := apply()
	switch {
	case err == nil:
		// The data store excluded the peer from the broadcast and marked
		// the message as known by it.

	case datastore.IsBannable(err):
		s.recentlyRejected.Put(key)
		reason := fmt.Sprintf("sent invalid %s: %v", msg.Command(), err)
		s.addBanScore(p, 0, invalidDataScore, reason)

	default:
		srvrLog.Tracef("Ignoring %s for %v from %s: %v", msg.Command(), hash,
			p, err)
		s.broadcaster.MarkKnown(p, key)
	}
}

// onAddData is invoked when a peer receives an adddata message.
func (s *server) onAddData(p *peer.Peer, msg *wire.MsgAddData) {
	s.handleData(p, msg, msg.Entry.PayloadHash(), func() error {
		return s.dataStore.AddProtectedEntry(&msg.Entry, p, true)
	})
}

// onRemoveData is invoked when a peer receives a removedata message.
func (s *server) onRemoveData(p *peer.Peer, msg *wire.MsgRemoveData) {
	s.handleData(p, msg, msg.Entry.PayloadHash(), func() error {
		return s.dataStore.RemoveProtectedEntry(&msg.Entry, p, true)
	})
}

// onRefreshTTL is invoked when a peer receives a refreshttl message.
func (s *server) onRefreshTTL(p *peer.Peer, msg *wire.MsgRefreshTTL) {
	s.handleData(p, msg, msg.PayloadHash, func() error {
		return s.dataStore.RefreshTTL(msg, p, true)
	})
}

// onAddPayload is invoked when a peer receives an addpayload message.
func (s *server) onAddPayload(p *peer.Peer, msg *wire.MsgAddPayload) {
	s.handleData(p, msg, msg.Payload.Hash(), func() error {
		return s.dataStore.AddPersistablePayload(&msg.Payload, p, true)
	})
}

// onGetData is invoked when a peer receives a getdata message.
func (s *server) onGetData(p *peer.Peer, msg *wire.MsgGetData) {
	err := s.requestData.OnGetData(p, msg)
	if errors.Is(err, requestdata.ErrRequestPending) {
		s.addBanScore(p, 0, unsolicitedScore, err.Error())
		return
	}
	if err != nil {
		srvrLog.Debugf("Unable to serve data request of %s: %v", p, err)
	}
}

// onData is invoked when a peer receives a data message.
func (s *server) onData(p *peer.Peer, msg *wire.MsgData) {
	if !s.requestData.OnData(p, msg) {
		s.addBanScore(p, 0, unsolicitedScore, "unsolicited data message")
	}
}

// onGetPeers is invoked when a peer receives a getpeers message.
func (s *server) onGetPeers(p *peer.Peer, msg *wire.MsgGetPeers) {
	s.peerExchange.OnGetPeers(p, msg)
}

// onPeers is invoked when a peer receives a peers message.
func (s *server) onPeers(p *peer.Peer, msg *wire.MsgPeers) {
	if !s.peerExchange.OnPeers(p, msg) {
		s.addBanScore(p, 0, unsolicitedScore, "unsolicited peers message")
	}
}

// onPong is invoked when a peer receives a pong message.
func (s *server) onPong(p *peer.Peer, msg *wire.MsgPong) {
	s.keepAlive.OnPong(p, msg)
}

// onClose is invoked when a peer announces it closes the connection.
func (s *server) onClose(p *peer.Peer, msg *wire.MsgClose) {
	srvrLog.Debugf("Peer %s closed the connection: %s", p, msg.Reason)
}

// onRead is invoked when a peer receives a message.  Malformed messages add
// to the persistent ban score.
func (s *server) onRead(p *peer.Peer, bytesRead int, msg wire.Message, err error) {
	if err != nil && errors.Is(err, peer.ErrMalformedMessage) {
		s.addBanScore(p, malformedScore, 0, err.Error())
	}
}

// onThrottled bans a peer which repeatedly exceeded the message rate limits.
func (s *server) onThrottled(p *peer.Peer) {
	s.banManager.BanPeer(p)
}

// newPeerConfig returns the configuration of the peers of the server.
func (s *server) newPeerConfig() *peer.Config {
	return &peer.Config{
		Net:                    s.cfg.netID,
		ListenAddr:             s.cfg.self,
		Capabilities:           s.caps,
		UserAgent:              version.UserAgent(),
		IsBanned:               s.banManager.IsBanned,
		SentNonces:             s.sentNonces,
		MsgThrottlePerSec:      s.cfg.MsgThrottlePerSec,
		MsgThrottlePer10Sec:    s.cfg.MsgThrottlePer10Sec,
		ThrottleViolationLimit: s.cfg.ThrottleViolations,
		OnThrottled:            s.onThrottled,
		Listeners: peer.MessageListeners{
			OnGetData:    s.onGetData,
			OnData:       s.onData,
			OnAddData:    s.onAddData,
			OnRemoveData: s.onRemoveData,
			OnRefreshTTL: s.onRefreshTTL,
			OnAddPayload: s.onAddPayload,
			OnGetPeers:   s.onGetPeers,
			OnPeers:      s.onPeers,
			OnPong:       s.onPong,
			OnClose:      s.onClose,
			OnRead:       s.onRead,
		},
	}
}

// inboundPeerConnected is invoked by the connection manager when a new inbound
// connection is established.
func (s *server) inboundPeerConnected(conn net.Conn) {
	p := peer.NewInboundPeer(s.newPeerConfig())
	s.startPeer(p, nil, conn)
}

// outboundPeerConnected is invoked by the connection manager when a new
// outbound connection is established.
func (s *server) outboundPeerConnected(c *connmgr.ConnReq, conn net.Conn) {
	p := peer.NewOutboundPeer(s.newPeerConfig(), c.Addr)
	p.SetPersistent(c.Permanent)
	s.startPeer(p, c, conn)
}

// startPeer associates the connection with the peer and serves the peer until
// it disconnects.  The connection request is nil for inbound peers.
func (s *server) startPeer(p *peer.Peer, c *connmgr.ConnReq, conn net.Conn) {
	result := p.AssociateConnection(conn)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var err error
		select {
		case err = <-result:
		case <-s.ctx.Done():
			p.Disconnect()
			err = <-result
		}
		if err != nil {
			srvrLog.Debugf("Handshake with %s failed: %v", p, err)
		} else if s.addPeer(p) {
			ctx, cancel := context.WithCancel(s.ctx)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.syncPeer(ctx, p)
			}()
			p.WaitForDisconnect()
			cancel()
		}

		p.WaitForDisconnect()
		s.donePeer(p, c)
	}()
}

// addPeer registers a peer which completed the handshake.  Banned peers and
// peers refused for capacity are disconnected and false is returned.
func (s *server) addPeer(p *peer.Peer) bool {
	if err := s.banManager.AddPeer(p); err != nil {
		srvrLog.Debugf("Refusing peer %s: %v", p, err)
		return false
	}
	if err := s.peerManager.OnConnected(p); err != nil {
		srvrLog.Debugf("Refusing peer %s: %v", p, err)
		return false
	}
	srvrLog.Infof("New %s peer %s (%s, %v)", directionString(p.Inbound()),
		p, p.UserAgent(), p.Capabilities())
	return true
}

// syncPeer exchanges peers with newly connected seed nodes and requests the
// data missing locally from the peer.
func (s *server) syncPeer(ctx context.Context, p *peer.Peer) {
	s.peerExchange.OnConnected(ctx, p)
	if err := s.requestData.OnConnected(ctx, p); err != nil {
		srvrLog.Debugf("Initial data request to %s failed: %v", p, err)
	}
}

// donePeer removes a disconnected peer from the server.
func (s *server) donePeer(p *peer.Peer, c *connmgr.ConnReq) {
	if s.peerManager.OnDisconnected(p) {
		srvrLog.Debugf("Removed peer %s", p)
	}
	s.banManager.RemovePeer(p)
	s.broadcaster.RemovePeer(p)
	s.keepAlive.RemovePeer(p)
	if c != nil {
		s.connManager.Disconnect(c.ID())
	}
}

// newAddress returns a known peer to connect to which is not banned.
func (s *server) newAddress() (wire.NodeAddress, error) {
	for tries := 0; tries < newAddressTries; tries++ {
		na, err := s.addrManager.GetAddress()
		if err != nil {
			return wire.NodeAddress{}, err
		}
		if err := s.addrManager.Attempt(na); err != nil {
			srvrLog.Tracef("Unable to mark attempt of %v: %v", na, err)
		}
		if s.banManager.IsBanned(na.Host) {
			continue
		}
		return na, nil
	}
	return wire.NodeAddress{}, errors.New("no unbanned address found")
}

// connectSeeds adds the seed nodes to the known peers and keeps permanent
// connections to a few of them.
func (s *server) connectSeeds(ctx context.Context) {
	seeds := s.cfg.seedNodes
	if len(seeds) == 0 {
		seeds = connmgr.SeedNodes(s.cfg.netID)
	}
	connmgr.SeedFromList(seeds, s.cfg.self, func(peers []wire.ReportedPeer) {
		s.addrManager.AddPeers(peers)
	})

	candidates := make([]wire.NodeAddress, 0, len(seeds))
	for _, seed := range seeds {
		if seed != s.cfg.self {
			candidates = append(candidates, seed)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > maxSeedConnections {
		candidates = candidates[:maxSeedConnections]
	}
	for _, seed := range candidates {
		go s.connManager.Connect(ctx, &connmgr.ConnReq{
			Addr:      seed,
			Permanent: true,
		})
	}
}

// Publish applies data originating from the local node to the data store and
// broadcasts it.  The message is an adddata, removedata, refreshttl or
// addpayload message.
//
// This function is safe for concurrent access.
func (s *server) Publish(msg wire.Message) error {
	switch m := msg.(type) {
	case *wire.MsgAddData:
		return s.dataStore.AddProtectedEntry(&m.Entry, nil, true)
	case *wire.MsgRemoveData:
		return s.dataStore.RemoveProtectedEntry(&m.Entry, nil, true)
	case *wire.MsgRefreshTTL:
		return s.dataStore.RefreshTTL(m, nil, true)
	case *wire.MsgAddPayload:
		return s.dataStore.AddPersistablePayload(&m.Payload, nil, true)
	}
	return fmt.Errorf("unable to publish %s message", msg.Command())
}

// Query returns the stored entries and payloads matching the filter.
//
// This function is safe for concurrent access.
func (s *server) Query(f *datastore.Filter) ([]*wire.ProtectedEntry, []*wire.PersistablePayload) {
	return s.dataStore.Entries(f), s.dataStore.Payloads(f)
}

// Subscribe returns a subscription to the changes of the stored data.
//
// This function is safe for concurrent access.
func (s *server) Subscribe() *datastore.Subscription {
	return s.dataStore.Subscribe()
}

// OnUpdate invokes fn for every accepted change of the stored data until the
// returned cancel function is called.  Calls are made in acceptance order
// from a single goroutine.  Cancel must not be called from fn.
func (s *server) OnUpdate(fn func(datastore.Event)) (cancel func()) {
	sub := s.dataStore.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub.Events() {
			fn(ev)
		}
	}()
	return func() {
		sub.Close()
		<-done
	}
}

// Run starts the server and blocks until the provided context is cancelled or
// one of the subsystems failed.  The data store is closed before it returns.
func (s *server) Run(ctx context.Context) error {
	srvrLog.Trace("Starting server")

	s.addrManager.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.dataStore.Run(gctx) })
	g.Go(func() error { return s.broadcaster.Run(gctx) })
	g.Go(func() error { return s.peerExchange.Run(gctx) })
	g.Go(func() error { return s.keepAlive.Run(gctx) })
	if s.apiServer != nil {
		g.Go(func() error {
			s.apiServer.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		if len(s.cfg.connect) > 0 {
			for _, addr := range s.cfg.connect {
				go s.connManager.Connect(gctx, &connmgr.ConnReq{
					Addr:      addr,
					Permanent: true,
				})
			}
		} else if !s.cfg.DisableSeeders {
			s.connectSeeds(gctx)
		}
		s.connManager.Run(gctx)
		return nil
	})

	// Shutdown the server when the context is cancelled.
	<-gctx.Done()
	srvrLog.Warnf("Server shutting down")
	s.peerManager.DisconnectAll(wire.CloseReasonShutdown)
	err := g.Wait()
	s.wg.Wait()

	if err := s.addrManager.Stop(); err != nil {
		srvrLog.Errorf("Unable to stop address manager: %v", err)
	}
	srvrLog.Infof("Gracefully shutting down the data store...")
	if cerr := s.dataStore.Close(); cerr != nil {
		srvrLog.Errorf("Unable to close data store: %v", cerr)
		if err == nil {
			err = cerr
		}
	}
	srvrLog.Trace("Server stopped")
	return err
}

// listen opens TCP listeners on the passed addresses.  Listeners opened before
// a failure are closed.
func listen(addrs []string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return nil, fmt.Errorf("unable to listen on %s: %w", addr, err)
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

// newServer returns a new server configured to run the overlay node with the
// passed options and data store database.
func newServer(ctx context.Context, cfg *config, db datastore.Store) (*server, error) {
	s := server{
		cfg:              cfg,
		ctx:              ctx,
		caps:             wire.DefaultCapabilities,
		sentNonces:       peer.NewNonceSet(),
		recentlyRejected: lru.NewSetWithDefaultTTL[chainhash.Hash](maxRecentRejects, recentRejectTTL),
	}
	if cfg.SeedMode {
		s.caps |= wire.CapSeedNode
	}

	s.banManager = banmanager.NewBanManager(cfg.banManagerConfig())
	s.addrManager = addrmgr.New(&addrmgr.Config{
		DataDir:       cfg.DataDir,
		MaxKnownPeers: cfg.MaxKnownPeers,
		LocalOnly:     cfg.UseLocalhost,
		Self:          cfg.self,
	})
	s.peerManager = peermgr.New(&peermgr.Config{
		MaxConnections: cfg.MaxConnections,
		Policy:         cfg.evictPolicy,
		AddrManager:    s.addrManager,
	})
	s.broadcaster = broadcaster.New(&broadcaster.Config{
		Peers:           s.broadcastPeers,
		ThrottleTrigger: cfg.SendMsgThrottleTrigger,
		ThrottleWindow:  time.Second,
		ThrottleSleep:   cfg.SendMsgThrottleSleep,
	})

	var err error
	s.dataStore, err = datastore.New(&datastore.Config{
		Store:              db,
		Broadcaster:        s.broadcaster,
		MaxSequenceNumbers: cfg.MaxSequenceNumbers,
		SweepInterval:      cfg.SweepInterval,
	})
	if err != nil {
		return nil, err
	}
	srvrLog.Infof("Loaded %d data %s", s.dataStore.Len(),
		pickNoun(s.dataStore.Len(), "item", "items"))

	s.requestData = requestdata.New(&requestdata.Config{
		DataStore: s.dataStore,
		Timeout:   cfg.GetDataTimeout,
		OnReceived: func(p requestdata.Peer, hash chainhash.Hash) {
			srvrLog.Tracef("Received %v from peer %d", hash, p.ID())
		},
		OnRejected: func(p requestdata.Peer, err error) {
			if sp, ok := p.(*peer.Peer); ok && datastore.IsBannable(err) {
				reason := fmt.Sprintf("sent invalid data: %v", err)
				s.addBanScore(sp, 0, invalidDataScore, reason)
			}
		},
		OnSynced: func(p requestdata.Peer) {
			if sp, ok := p.(*peer.Peer); ok {
				s.peerManager.MarkSynced(sp)
			}
		},
	})
	s.keepAlive = keepalive.New(&keepalive.Config{
		Peers:    s.keepAlivePeers,
		Interval: cfg.KeepAliveInterval,
		Timeout:  cfg.IdleTimeout,
	})

	s.listeners, err = listen(cfg.Listeners)
	if err != nil {
		return nil, err
	}
	var getNewAddress func() (wire.NodeAddress, error)
	if len(cfg.connect) == 0 {
		getNewAddress = s.newAddress
	}
	s.connManager, err = connmgr.New(&connmgr.Config{
		Listeners:      s.listeners,
		OnAccept:       s.inboundPeerConnected,
		IsBanned:       s.banManager.IsBanned,
		TargetOutbound: cfg.TargetOutbound,
		OnConnection:   s.outboundPeerConnected,
		GetNewAddress:  getNewAddress,
		Dial: connmgr.NewDialer(connmgr.ProxyConfig{
			Addr:         cfg.Proxy,
			Username:     cfg.ProxyUser,
			Password:     cfg.ProxyPass,
			TorIsolation: cfg.TorIsolation,
		}),
		Timeout: connectionTimeout,
	})
	if err != nil {
		for _, l := range s.listeners {
			l.Close()
		}
		return nil, err
	}

	s.peerExchange = peerexchange.New(&peerexchange.Config{
		AddrManager: s.addrManager,
		Peers:       s.exchangePeers,
		NeedConnections: func() bool {
			return s.peerManager.NumConnected() < int(cfg.TargetOutbound)
		},
		NewCandidates: s.connManager.NewCandidates,
		Interval:      cfg.PeerExchangeInterval,
	})

	if !cfg.DisableAPI {
		apiListeners, err := listen(cfg.APIListeners)
		if err != nil {
			for _, l := range s.listeners {
				l.Close()
			}
			return nil, err
		}
		s.apiServer = apiserver.New(&apiserver.Config{
			Listeners:  apiListeners,
			Backend:    &s,
			MaxClients: cfg.APIMaxClients,
		})
	}

	return &s, nil
}
