// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// InitialProcotolVersion is the initial protocol version for the
	// network.
	InitialProcotolVersion uint32 = 1

	// RefreshTTLVersion is the protocol version which adds the refreshttl
	// message.
	RefreshTTLVersion uint32 = 2

	// ProtocolVersion is the latest protocol version this package supports.
	ProtocolVersion uint32 = 2
)

// NetworkID identifies the overlay network a node participates in.  Nodes on
// different networks never exchange messages since the network identifier is
// part of every message header.
type NetworkID uint32

const (
	// MainNet is the production network.
	MainNet NetworkID = 1

	// TestNet is the public test network.
	TestNet NetworkID = 2

	// RegNet is the local regression test network.
	RegNet NetworkID = 3
)

// networkMagicBase is mixed with a network id to produce the four byte
// magic value that prefixes each message header.
const networkMagicBase = 0x74726e00

// Magic returns the header magic used by messages on the network.
func (n NetworkID) Magic() uint32 {
	return networkMagicBase ^ uint32(n)
}

// String returns the NetworkID in human-readable form.
func (n NetworkID) String() string {
	switch n {
	case MainNet:
		return "mainnet"
	case TestNet:
		return "testnet"
	case RegNet:
		return "regnet"
	}
	return fmt.Sprintf("Unknown NetworkID (%d)", uint32(n))
}

// Capability identifies features supported by a node.  They are advertised
// during the handshake and relayed along with known peer addresses.
type Capability uint64

const (
	// CapSeedNode is a flag used to indicate the node is a seed node.
	CapSeedNode Capability = 1 << iota

	// CapTradeStatistics is a flag used to indicate the node stores and
	// relays trade statistics payloads.
	CapTradeStatistics

	// CapAccountAgeWitness is a flag used to indicate the node stores and
	// relays account age witness payloads.
	CapAccountAgeWitness

	// CapReceiveAllData is a flag used to indicate the node wants every data
	// item during a data sync regardless of its own capabilities.
	CapReceiveAllData

	// CapSignedWitness is a flag used to indicate the node stores and relays
	// signed account age witness payloads.
	CapSignedWitness
)

// DefaultCapabilities is the set of capabilities of a regular node.
const DefaultCapabilities = CapTradeStatistics | CapAccountAgeWitness |
	CapSignedWitness

// Map of capability flags back to their constant names for pretty printing.
var capStrings = map[Capability]string{
	CapSeedNode:          "CapSeedNode",
	CapTradeStatistics:   "CapTradeStatistics",
	CapAccountAgeWitness: "CapAccountAgeWitness",
	CapReceiveAllData:    "CapReceiveAllData",
	CapSignedWitness:     "CapSignedWitness",
}

// orderedCapFlags is an ordered list of capabilities from highest to lowest
// precedence when pretty printing.
var orderedCapFlags = []Capability{
	CapSeedNode,
	CapTradeStatistics,
	CapAccountAgeWitness,
	CapReceiveAllData,
	CapSignedWitness,
}

// Has returns whether all of the passed capabilities are set.
func (f Capability) Has(caps Capability) bool {
	return f&caps == caps
}

// Count returns the number of capabilities that are set.
func (f Capability) Count() int {
	var n int
	for v := f; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// String returns the Capability in human-readable form.
func (f Capability) String() string {
	if f == 0 {
		return "0x0"
	}

	var s strings.Builder
	for _, flag := range orderedCapFlags {
		if f&flag == flag {
			if s.Len() > 0 {
				s.WriteByte('|')
			}
			s.WriteString(capStrings[flag])
			f -= flag
		}
	}

	// Add any remaining flags which aren't accounted for as hex.
	if f != 0 {
		if s.Len() > 0 {
			s.WriteByte('|')
		}
		s.WriteString("0x" + strconv.FormatUint(uint64(f), 16))
	}
	return s.String()
}

// PayloadType identifies the kind of data carried by a storage payload or a
// persistable payload.
type PayloadType uint16

// Payload types for data wrapped by protected entries.  These are owned by a
// key and may be refreshed or removed by it.
const (
	PayloadOffer PayloadType = 1 + iota
	PayloadArbitrator
	PayloadMediator
	PayloadFilter
	PayloadAlert
)

// Payload types for append-only persistable payloads.
const (
	PayloadTradeStatistics PayloadType = 100 + iota
	PayloadAccountAgeWitness
	PayloadSignedWitness
)

var payloadTypeStrings = map[PayloadType]string{
	PayloadOffer:             "offer",
	PayloadArbitrator:        "arbitrator",
	PayloadMediator:          "mediator",
	PayloadFilter:            "filter",
	PayloadAlert:             "alert",
	PayloadTradeStatistics:   "tradestatistics",
	PayloadAccountAgeWitness: "accountagewitness",
	PayloadSignedWitness:     "signedwitness",
}

// IsAppendOnly returns whether the payload type describes content-addressed
// data that is never removed once accepted.
func (t PayloadType) IsAppendOnly() bool {
	return t >= PayloadTradeStatistics
}

// Capability returns the capability a node must advertise to receive payloads
// of the type during a data sync.  Zero means no capability is required.
func (t PayloadType) Capability() Capability {
	switch t {
	case PayloadTradeStatistics:
		return CapTradeStatistics
	case PayloadAccountAgeWitness:
		return CapAccountAgeWitness
	case PayloadSignedWitness:
		return CapSignedWitness
	}
	return 0
}

// String returns the PayloadType in human-readable form.
func (t PayloadType) String() string {
	if s, ok := payloadTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("Unknown PayloadType (%d)", uint16(t))
}

// ParsePayloadType returns the payload type with the passed name.
func ParsePayloadType(name string) (PayloadType, bool) {
	for t, s := range payloadTypeStrings {
		if s == name {
			return t, true
		}
	}
	return 0, false
}
