// Copyright (c) 2021-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package banmanager

import (
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/decred/tradenet/peer"
	"github.com/decred/tradenet/wire"
)

// Config is the configuration struct for the ban manager.
type Config struct {
	// DisableBanning represents the status of disabling banning of
	// misbehaving peers.  Hosts in BanList are refused regardless.
	DisableBanning bool

	// BanThreshold represents the maximum allowed ban score before
	// misbehaving peers are disconnecting and banned.
	BanThreshold uint32

	// BanDuration is the duration for which misbehaving peers stay banned for.
	BanDuration time.Duration

	// MaxPeers indicates the maximum number of peers allowed.
	MaxPeers int

	// BanList holds hosts which are permanently refused.
	BanList []string

	// Whitelist represents the whitelisted IPs of the server.
	WhiteList []net.IPNet
}

// banMgrPeer extends a peer to maintain additional state maintained by the
// ban manager.
type banMgrPeer struct {
	*peer.Peer

	isWhitelisted bool
	banScore      DynamicBanScore
}

// BanManager tracks peer ban scores and the set of banned hosts.
type BanManager struct {
	cfg       Config
	peers     map[*peer.Peer]*banMgrPeer
	permanent map[string]struct{}
	banned    map[string]time.Time
	mtx       sync.Mutex
}

// NewBanManager initializes a new peer banning manager.
func NewBanManager(cfg *Config) *BanManager {
	permanent := make(map[string]struct{}, len(cfg.BanList))
	for _, host := range cfg.BanList {
		permanent[host] = struct{}{}
	}
	return &BanManager{
		cfg:       *cfg,
		peers:     make(map[*peer.Peer]*banMgrPeer, cfg.MaxPeers),
		permanent: permanent,
		banned:    make(map[string]time.Time, cfg.MaxPeers),
	}
}

// banHost returns the host a ban of the peer applies to.  Outbound peers are
// banned by the address they were dialed at.  Inbound peers are banned by
// their transport address since the address they advertise is not verified.
// There is no host for inbound peers on a loopback address, which every peer
// reaching the node through a local proxy or hidden service shares.
func banHost(p *peer.Peer) (string, bool) {
	if !p.Inbound() {
		na := p.NA()
		return na.Host, !na.IsZero()
	}
	host, _, err := net.SplitHostPort(p.Addr())
	if err != nil {
		return "", false
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return "", false
	}
	return host, true
}

// lookupPeer returns the ban manager peer that maintains additional state for
// a given base peer.  In the event the mapping does not exist, a warning is
// logged and nil is returned.
//
// This function MUST be called with the ban manager mutex locked (for reads).
func (bm *BanManager) lookupPeer(p *peer.Peer) *banMgrPeer {
	bmp, ok := bm.peers[p]
	if !ok {
		log.Warnf("Attempt to lookup unknown peer %s\nStack: %v", p,
			string(debug.Stack()))
		return nil
	}

	return bmp
}

// isBanned returns whether the host is permanently banned or is banned until
// a time after now.  Expired temporary bans are discarded.
//
// This function MUST be called with the ban manager mutex locked.
func (bm *BanManager) isBanned(host string, now time.Time) (time.Time, bool) {
	if _, ok := bm.permanent[host]; ok {
		return time.Time{}, true
	}
	banEnd, ok := bm.banned[host]
	if !ok {
		return time.Time{}, false
	}
	if now.Before(banEnd) {
		return banEnd, true
	}

	log.Infof("Peer %s is no longer banned", host)
	delete(bm.banned, host)
	return time.Time{}, false
}

// IsBanned returns whether the host is currently banned.  It is suitable for
// use as the IsBanned callback of a peer configuration and as the accept
// filter of the connection manager.
//
// This function is safe for concurrent access.
func (bm *BanManager) IsBanned(host string) bool {
	bm.mtx.Lock()
	_, banned := bm.isBanned(host, time.Now())
	bm.mtx.Unlock()
	return banned
}

// BanHost bans the host for the configured ban duration.  It has no effect
// when banning is disabled.
//
// This function is safe for concurrent access.
func (bm *BanManager) BanHost(host string) {
	if bm.cfg.DisableBanning {
		return
	}
	bm.mtx.Lock()
	bm.banned[host] = time.Now().Add(bm.cfg.BanDuration)
	bm.mtx.Unlock()
}

// BannedHosts returns the hosts with a temporary ban that is still active
// mapped to the end of the ban.
func (bm *BanManager) BannedHosts() map[string]time.Time {
	now := time.Now()
	bm.mtx.Lock()
	defer bm.mtx.Unlock()
	hosts := make(map[string]time.Time, len(bm.banned))
	for host := range bm.banned {
		if banEnd, ok := bm.isBanned(host, now); ok {
			hosts[host] = banEnd
		}
	}
	return hosts
}

// isPeerWhitelisted checks if the provided peer is whitelisted per the
// provided whitelist.
func (bm *BanManager) isPeerWhitelisted(p *peer.Peer, whitelist []net.IPNet) bool {
	if len(whitelist) == 0 {
		return false
	}

	host, _, err := net.SplitHostPort(p.Addr())
	if err != nil {
		log.Errorf("Unable to split peer '%s' IP: %v", p.Addr(), err)
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		log.Debugf("Unable to parse IP '%s'", p.Addr())
		return false
	}

	for _, ipnet := range whitelist {
		if ipnet.Contains(ip) {
			return true
		}
	}

	return false
}

// IsPeerWhitelisted checks if the provided peer is whitelisted.
func (bm *BanManager) IsPeerWhitelisted(p *peer.Peer) bool {
	bm.mtx.Lock()
	bmp := bm.lookupPeer(p)
	bm.mtx.Unlock()
	if bmp == nil {
		return false
	}

	return bmp.isWhitelisted
}

// AddPeer adds the provided peer to the ban manager.  A peer whose host is
// banned is disconnected and an error wrapping peer.ErrBanned is returned.
func (bm *BanManager) AddPeer(p *peer.Peer) error {
	host, ok := banHost(p)
	var banEnd time.Time
	var banned bool
	if ok {
		bm.mtx.Lock()
		banEnd, banned = bm.isBanned(host, time.Now())
		bm.mtx.Unlock()
	}
	if banned {
		p.Disconnect()
		if banEnd.IsZero() {
			return fmt.Errorf("peer %s is on the ban list - disconnecting: %w",
				host, peer.ErrBanned)
		}
		return fmt.Errorf("peer %s is banned for another %v - "+
			"disconnecting: %w", host, time.Until(banEnd).Round(time.Second),
			peer.ErrBanned)
	}

	bmp := &banMgrPeer{
		Peer:          p,
		isWhitelisted: bm.isPeerWhitelisted(p, bm.cfg.WhiteList),
	}

	bm.mtx.Lock()
	bm.peers[p] = bmp
	bm.mtx.Unlock()

	return nil
}

// RemovePeer discards the provided peer from the ban manager.
func (bm *BanManager) RemovePeer(p *peer.Peer) {
	bm.mtx.Lock()
	delete(bm.peers, p)
	bm.mtx.Unlock()
}

// BanPeer bans the provided peer.
func (bm *BanManager) BanPeer(p *peer.Peer) {
	// Return immediately if banning is disabled.
	if bm.cfg.DisableBanning {
		return
	}

	bm.mtx.Lock()
	bmp := bm.lookupPeer(p)
	bm.mtx.Unlock()
	if bmp == nil {
		return
	}

	// Return if the peer is whitelisted.
	if bmp.isWhitelisted {
		return
	}

	// Ban and remove the peer.
	if host, ok := banHost(p); ok {
		log.Infof("Banned peer %s (%s) for %v", host,
			directionString(p.Inbound()), bm.cfg.BanDuration)

		bm.mtx.Lock()
		bm.banned[host] = time.Now().Add(bm.cfg.BanDuration)
		bm.mtx.Unlock()
	} else {
		log.Infof("Disconnecting misbehaving peer %s (%s) without a host "+
			"to ban", p, directionString(p.Inbound()))
	}

	p.Close(wire.CloseReasonBanned)
	bm.RemovePeer(p)
}

// AddBanScore increases the persistent and decaying ban scores of the
// provided peer by the values passed as parameters. If the resulting score
// exceeds half of the ban threshold, a warning is logged including the reason
// provided. Further, if the score is above the ban threshold, the peer will
// be banned.
func (bm *BanManager) AddBanScore(p *peer.Peer, persistent, transient uint32, reason string) bool {
	// No warning is logged and no score is calculated if banning is disabled.
	if bm.cfg.DisableBanning {
		return false
	}

	bm.mtx.Lock()
	bmp := bm.lookupPeer(p)
	bm.mtx.Unlock()
	if bmp == nil {
		return false
	}

	if bmp.isWhitelisted {
		log.Debugf("Misbehaving whitelisted peer %s: %s", p, reason)
		return false
	}

	banScore := bmp.banScore.Int()
	warnThreshold := bm.cfg.BanThreshold >> 1
	if transient == 0 && persistent == 0 {
		// The score is not being increased, but a warning message is still
		// logged if the score is above the warn threshold.
		if banScore > warnThreshold {
			log.Warnf("Misbehaving peer %s: %s -- ban score is %d, "+
				"it was not increased this time", p, reason, banScore)
		}
		return false
	}

	banScore = bmp.banScore.Increase(persistent, transient)
	if banScore > warnThreshold {
		log.Warnf("Misbehaving peer %s: %s -- ban score increased to %d",
			p, reason, banScore)
		if banScore > bm.cfg.BanThreshold {
			log.Warnf("Misbehaving peer %s -- banning and disconnecting", p)
			bm.BanPeer(p)
			return true
		}
	}

	return false
}

// BanScore returns the ban score of the provided peer.
func (bm *BanManager) BanScore(p *peer.Peer) uint32 {
	bm.mtx.Lock()
	bmp := bm.lookupPeer(p)
	bm.mtx.Unlock()
	if bmp == nil {
		return 0
	}
	return bmp.banScore.Int()
}
