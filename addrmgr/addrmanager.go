// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/tradenet/wire"
)

// peersFilename is the default filename to store serialized peers.
const peersFilename = "peers.json"

const (
	// DefaultMaxKnownPeers is the default maximum number of known peers.
	DefaultMaxKnownPeers = 1000

	// dumpAddressInterval is the interval used to dump the known peers to
	// disk for future use.
	dumpAddressInterval = time.Minute * 10

	// minAttemptInterval is the minimum time between two connection attempts
	// to the same peer.
	minAttemptInterval = time.Minute

	// numMissingDays is the number of days before which we assume a peer has
	// vanished if we have not seen it announced in that long.
	numMissingDays = 30

	// numRetries is the number of tried without a single success before
	// we assume a peer is bad.
	numRetries = 3

	// maxFailures is the maximum number of failures we will accept without
	// a success before considering a peer bad.
	maxFailures = 5

	// minBadDays is the number of days since the last success before we
	// will consider evicting a peer.
	minBadDays = 7

	// serialisationVersion is the current version of the on-disk format.
	serialisationVersion = 1
)

// Config holds the configuration of the address manager.
type Config struct {
	// DataDir is the directory the known peers are persisted in.  Known peers
	// are not persisted when it is empty.
	DataDir string

	// MaxKnownPeers is the maximum number of known peers.  The peers seen
	// least recently are pruned when it is exceeded.  Defaults to
	// DefaultMaxKnownPeers.
	MaxKnownPeers int

	// LocalOnly restricts known peers to local addresses.  It is used for
	// development networks that run entirely on one host.
	LocalOnly bool

	// Self is the listen address of the local node.  It is never added.
	Self wire.NodeAddress
}

// AddrManager provides a concurrency safe manager for the set of known peers
// on the overlay network.
type AddrManager struct {
	// mtx is used to ensure safe concurrent access to fields on an instance
	// of the address manager.
	mtx sync.Mutex

	// peersFile is the path of file that the address manager's serialized state
	// is saved to and loaded from.
	peersFile string

	cfg Config

	// index maintains all known peers keyed by their address.
	index map[wire.NodeAddress]*KnownPeer

	// addrChanged signals whether the address manager needs to have its state
	// serialized and saved to the file system.
	addrChanged bool

	// started and shutdown signal whether the address manager has been
	// started and stopped.
	started  atomic.Bool
	shutdown atomic.Bool

	// The following fields are used for lifecycle management of the
	// address manager.
	wg   sync.WaitGroup
	quit chan struct{}

	// now is replaced by tests.
	now func() time.Time
}

// serializedKnownPeer is used to represent the serializable state of a known
// peer.  The connected flag is transient and not saved.
type serializedKnownPeer struct {
	Addr         string
	Capabilities uint32
	LastSeen     int64
	Attempts     int
	LastAttempt  int64
	LastSuccess  int64
}

// serializedAddrManager is used to represent the serializable state of an
// address manager instance.
type serializedAddrManager struct {
	Version int
	Peers   []*serializedKnownPeer
}

// unixOrZero returns the unix time of t, or zero for the zero time.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// timeOrZero is the inverse of unixOrZero.
func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// acceptable returns whether the address may be added to the known peers.
func (a *AddrManager) acceptable(na wire.NodeAddress) error {
	switch {
	case na.IsZero():
		return makeError(ErrUnacceptableAddress, "empty address")

	case na == a.cfg.Self:
		str := fmt.Sprintf("address %s is the local node", na)
		return makeError(ErrUnacceptableAddress, str)

	case a.cfg.LocalOnly && !na.IsLocal():
		str := fmt.Sprintf("address %s is not local", na)
		return makeError(ErrUnacceptableAddress, str)

	case !a.cfg.LocalOnly && !IsRoutable(na):
		str := fmt.Sprintf("address %s is not routable", na)
		return makeError(ErrUnacceptableAddress, str)
	}
	return nil
}

// updatePeer is a helper function to either refresh a peer already known to
// the address manager, or to add the peer if not already known.  It returns
// whether the peer was added.
//
// This function MUST be called with the address manager lock held.
func (a *AddrManager) updatePeer(rp *wire.ReportedPeer, now time.Time) bool {
	if err := a.acceptable(rp.Addr); err != nil {
		log.Tracef("Ignoring reported peer: %v", err)
		return false
	}

	// Peers claiming to be seen in the future are clamped to now and peers
	// without a timestamp are treated as seen now.
	lastSeen := rp.LastSeen
	if lastSeen.IsZero() || lastSeen.After(now) {
		lastSeen = now
	}

	kp, ok := a.index[rp.Addr]
	if ok {
		if lastSeen.After(kp.LastSeen) {
			kp.LastSeen = lastSeen
			kp.Capabilities = rp.Capabilities
			a.addrChanged = true
		}
		return false
	}

	a.index[rp.Addr] = &KnownPeer{
		Addr:         rp.Addr,
		Capabilities: rp.Capabilities,
		LastSeen:     lastSeen,
	}
	a.addrChanged = true
	a.prune()

	log.Tracef("Added new peer %s for a total of %d peers", rp.Addr,
		len(a.index))
	return true
}

// prune removes the peers seen least recently until the number of known
// peers is within the limit.  Connected peers are only removed when no other
// peer is left.
//
// This function MUST be called with the address manager lock held.
func (a *AddrManager) prune() {
	for len(a.index) > a.cfg.MaxKnownPeers {
		var oldest, oldestConnected *KnownPeer
		for _, kp := range a.index {
			if kp.Connected {
				if oldestConnected == nil ||
					kp.LastSeen.Before(oldestConnected.LastSeen) {
					oldestConnected = kp
				}
				continue
			}
			if oldest == nil || kp.LastSeen.Before(oldest.LastSeen) {
				oldest = kp
			}
		}
		if oldest == nil {
			oldest = oldestConnected
		}
		log.Tracef("Pruning known peer %s last seen %v", oldest.Addr,
			oldest.LastSeen)
		delete(a.index, oldest.Addr)
		a.addrChanged = true
	}
}

// addressHandler is the main handler for the address manager.  It must be run
// as a goroutine.
func (a *AddrManager) addressHandler() {
	dumpAddressTicker := time.NewTicker(dumpAddressInterval)
	defer dumpAddressTicker.Stop()
out:
	for {
		select {
		case <-dumpAddressTicker.C:
			a.savePeers()

		case <-a.quit:
			break out
		}
	}
	a.savePeers()
	a.wg.Done()
	log.Trace("Address handler done")
}

// savePeers saves all the known peers to a file so they can be read back in
// at next run.
func (a *AddrManager) savePeers() {
	if a.peersFile == "" {
		return
	}

	a.mtx.Lock()
	defer a.mtx.Unlock()

	if !a.addrChanged {
		// Nothing changed since last savePeers call.
		return
	}

	// First we make a serialisable data structure so we can encode it to JSON.
	sam := new(serializedAddrManager)
	sam.Version = serialisationVersion
	sam.Peers = make([]*serializedKnownPeer, 0, len(a.index))
	for _, kp := range a.index {
		sam.Peers = append(sam.Peers, &serializedKnownPeer{
			Addr:         kp.Addr.String(),
			Capabilities: uint32(kp.Capabilities),
			LastSeen:     unixOrZero(kp.LastSeen),
			Attempts:     kp.Attempts,
			LastAttempt:  unixOrZero(kp.LastAttempt),
			LastSuccess:  unixOrZero(kp.LastSuccess),
		})
	}

	// Write temporary peers file and then move it into place.
	tmpfile := a.peersFile + ".new"
	w, err := os.Create(tmpfile)
	if err != nil {
		log.Errorf("Error opening file %s: %v", tmpfile, err)
		return
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(&sam); err != nil {
		w.Close()
		log.Errorf("Failed to encode file %s: %v", tmpfile, err)
		return
	}
	if err := w.Close(); err != nil {
		log.Errorf("Error closing file %s: %v", tmpfile, err)
		return
	}
	if err := os.Rename(tmpfile, a.peersFile); err != nil {
		log.Errorf("Error writing file %s: %v", a.peersFile, err)
		return
	}
	a.addrChanged = false
}

// loadPeers loads the known peers from a saved file.  If the file is empty,
// missing, or malformed then no known peers will be added to the address
// manager from a call to this method.
func (a *AddrManager) loadPeers() {
	if a.peersFile == "" {
		return
	}

	a.mtx.Lock()
	defer a.mtx.Unlock()

	err := a.deserializePeers(a.peersFile)
	if err != nil {
		log.Errorf("Failed to parse file %s: %v", a.peersFile, err)
		// if it is invalid we nuke the old one unconditionally.
		err = os.Remove(a.peersFile)
		if err != nil {
			log.Warnf("Failed to remove corrupt peers file %s: %v",
				a.peersFile, err)
		}
		a.reset()
		return
	}
	log.Infof("Loaded %d known peers from file '%s'", len(a.index),
		a.peersFile)
}

func (a *AddrManager) deserializePeers(filePath string) error {
	_, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return nil
	}
	r, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("%s error opening file: %w", filePath, err)
	}
	defer r.Close()

	var sam serializedAddrManager
	dec := json.NewDecoder(r)
	err = dec.Decode(&sam)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", filePath, err)
	}

	if sam.Version != serialisationVersion {
		return fmt.Errorf("unknown version %v in serialized "+
			"addrmanager", sam.Version)
	}

	for _, v := range sam.Peers {
		na, err := wire.ParseNodeAddress(v.Addr)
		if err != nil {
			return fmt.Errorf("failed to deserialize address %s: %w",
				v.Addr, err)
		}
		if a.acceptable(na) != nil {
			continue
		}
		a.index[na] = &KnownPeer{
			Addr:         na,
			Capabilities: wire.Capability(v.Capabilities),
			LastSeen:     timeOrZero(v.LastSeen),
			Attempts:     v.Attempts,
			LastAttempt:  timeOrZero(v.LastAttempt),
			LastSuccess:  timeOrZero(v.LastSuccess),
		}
	}
	a.prune()
	a.addrChanged = false

	return nil
}

// Start begins the core address handler which manages the known peers and
// interval based writes.  If the address manager is starting or has already
// been started, invoking this method has no effect.
//
// This function is safe for concurrent access.
func (a *AddrManager) Start() {
	// Return early if the address manager has already been started.
	if a.started.Swap(true) {
		return
	}

	log.Trace("Starting address manager")

	// Load peers we already know about from file.
	a.loadPeers()

	// Start the address ticker to save addresses periodically.
	a.wg.Add(1)
	go a.addressHandler()
}

// Stop gracefully shuts down the address manager by stopping the main handler
// which saves the known peers a final time.
//
// This function is safe for concurrent access.
func (a *AddrManager) Stop() error {
	// Return early if the address manager has already been stopped.
	if a.shutdown.Swap(true) {
		log.Warnf("Address manager is already in the process of shutting down")
		return nil
	}

	log.Infof("Address manager shutting down")
	close(a.quit)
	a.wg.Wait()
	return nil
}

// AddPeers merges reported peers into the known peers.  Known peers are
// refreshed, duplicates and unacceptable addresses are ignored.  It returns
// the number of peers that were not known before.
//
// This function is safe for concurrent access.
func (a *AddrManager) AddPeers(peers []wire.ReportedPeer) int {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	now := a.now()
	var added int
	for i := range peers {
		if a.updatePeer(&peers[i], now) {
			added++
		}
	}
	return added
}

// NumPeers returns the number of known peers.
//
// This function is safe for concurrent access.
func (a *AddrManager) NumPeers() int {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return len(a.index)
}

// NeedMorePeers returns whether the set of known peers is below half of its
// capacity.
//
// This function is safe for concurrent access.
func (a *AddrManager) NeedMorePeers() bool {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	return len(a.index) < a.cfg.MaxKnownPeers/2
}

// KnownPeers returns a snapshot of all known peers.
//
// This function is safe for concurrent access.
func (a *AddrManager) KnownPeers() []KnownPeer {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	peers := make([]KnownPeer, 0, len(a.index))
	for _, kp := range a.index {
		peers = append(peers, *kp)
	}
	return peers
}

// Sample returns up to n randomly selected known peers that are not bad,
// excluding the passed addresses.  It is used to answer and send peer
// exchange requests.
//
// This function is safe for concurrent access.
func (a *AddrManager) Sample(n int, exclude ...wire.NodeAddress) []wire.ReportedPeer {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	now := a.now()
	all := make([]wire.ReportedPeer, 0, len(a.index))
next:
	for _, kp := range a.index {
		if kp.isBad(now) {
			continue
		}
		for _, na := range exclude {
			if kp.Addr == na {
				continue next
			}
		}
		all = append(all, kp.ReportedPeer())
	}

	rand.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// GetAddress returns the address of a random known peer which is neither
// connected nor was attempted recently, with preference given to peers that
// have not failed recently.  ErrNoCandidates is returned when there is no such
// peer.
//
// This function is safe for concurrent access.
func (a *AddrManager) GetAddress() (wire.NodeAddress, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	now := a.now()
	candidates := make([]*KnownPeer, 0, len(a.index))
	for _, kp := range a.index {
		if kp.Connected || now.Sub(kp.LastAttempt) < minAttemptInterval {
			continue
		}
		candidates = append(candidates, kp)
	}
	if len(candidates) == 0 {
		return wire.NodeAddress{}, makeError(ErrNoCandidates,
			"no known peers to connect to")
	}

	const large = 1 << 30
	factor := 1.0
	for {
		kp := candidates[rand.IntN(len(candidates))]
		randval := rand.IntN(large)
		if float64(randval) < (factor * kp.chance(now) * float64(large)) {
			log.Tracef("Selected known peer %v", kp.Addr)
			return kp.Addr, nil
		}
		factor *= 1.2
	}
}

// find returns the known peer for the address or an error when it is unknown.
//
// This function MUST be called with the address manager lock held.
func (a *AddrManager) find(na wire.NodeAddress) (*KnownPeer, error) {
	kp, ok := a.index[na]
	if !ok {
		str := fmt.Sprintf("address %s not found", na)
		return nil, makeError(ErrAddressNotFound, str)
	}
	return kp, nil
}

// Attempt increases the provided known peer's attempt counter and updates
// the last attempt time. If the address is unknown then an error is returned.
//
// This function is safe for concurrent access.
func (a *AddrManager) Attempt(na wire.NodeAddress) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	kp, err := a.find(na)
	if err != nil {
		return err
	}
	kp.Attempts++
	kp.LastAttempt = a.now()
	a.addrChanged = true
	return nil
}

// Connected marks the peer as connected and seen now.  Unknown peers are
// added, so inbound peers become known by the address they advertised.
//
// This function is safe for concurrent access.
func (a *AddrManager) Connected(na wire.NodeAddress, caps wire.Capability) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if err := a.acceptable(na); err != nil {
		return err
	}

	now := a.now()
	kp, ok := a.index[na]
	if !ok {
		kp = &KnownPeer{Addr: na}
		a.index[na] = kp
	}
	kp.Capabilities = caps
	kp.LastSeen = now
	kp.Connected = true
	a.addrChanged = true
	if !ok {
		a.prune()
	}
	return nil
}

// Disconnected marks the peer as no longer connected and seen now.
//
// This function is safe for concurrent access.
func (a *AddrManager) Disconnected(na wire.NodeAddress) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	kp, ok := a.index[na]
	if !ok {
		return
	}
	kp.Connected = false
	kp.LastSeen = a.now()
	a.addrChanged = true
}

// Good marks the provided known peer as good.  This should be called after a
// successful outbound connection and handshake with a peer.  If the address
// is unknown then an error is returned.
//
// This function is safe for concurrent access.
func (a *AddrManager) Good(na wire.NodeAddress) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	kp, err := a.find(na)
	if err != nil {
		return err
	}
	now := a.now()
	kp.LastSuccess = now
	kp.LastAttempt = now
	kp.Attempts = 0
	a.addrChanged = true
	return nil
}

// reset resets the address manager to an empty set of known peers.
func (a *AddrManager) reset() {
	a.index = make(map[wire.NodeAddress]*KnownPeer)
	a.addrChanged = true
}

// New constructs a new address manager instance.  Use Start to load the
// persisted known peers and begin saving them periodically.
func New(cfg *Config) *AddrManager {
	am := AddrManager{
		cfg:  *cfg,
		quit: make(chan struct{}),
		now:  time.Now,
	}
	if am.cfg.MaxKnownPeers <= 0 {
		am.cfg.MaxKnownPeers = DefaultMaxKnownPeers
	}
	if cfg.DataDir != "" {
		am.peersFile = filepath.Join(cfg.DataDir, peersFilename)
	}
	am.reset()
	return &am
}
