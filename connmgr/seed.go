// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2019-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"time"

	"github.com/decred/tradenet/wire"
)

// regNetSeeds are the seed nodes of a local regression test network.
var regNetSeeds = []wire.NodeAddress{
	{Host: "localhost", Port: 2002},
	{Host: "localhost", Port: 3002},
}

// SeedNodes returns the built in seed nodes of the passed network.  There are
// no built in seed nodes for the public networks, they are configured.
func SeedNodes(net wire.NetworkID) []wire.NodeAddress {
	switch net {
	case wire.RegNet:
		seeds := make([]wire.NodeAddress, len(regNetSeeds))
		copy(seeds, regNetSeeds)
		return seeds
	}
	return nil
}

// OnSeed is the signature of the callback function which is invoked with the
// seed nodes to add to the known peers.
type OnSeed func(peers []wire.ReportedPeer)

// SeedFromList reports the passed seed nodes, excluding the local node, as
// known peers advertising the seed node capability and seen now.
func SeedFromList(seeds []wire.NodeAddress, self wire.NodeAddress, seedFn OnSeed) {
	now := time.Now()
	peers := make([]wire.ReportedPeer, 0, len(seeds))
	for _, seed := range seeds {
		if seed == self {
			continue
		}
		peers = append(peers, wire.ReportedPeer{
			Addr:         seed,
			Capabilities: wire.CapSeedNode,
			LastSeen:     now,
		})
	}
	log.Infof("%d seed nodes known", len(peers))
	if len(peers) == 0 {
		return
	}
	seedFn(peers)
}
