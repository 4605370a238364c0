// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"net/netip"
	"strings"

	"github.com/decred/tradenet/wire"
)

// unroutablePrefixes are the reserved address blocks which are never reachable
// from the public network.
var unroutablePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // this network
	netip.MustParsePrefix("10.0.0.0/8"),      // RFC1918
	netip.MustParsePrefix("172.16.0.0/12"),   // RFC1918
	netip.MustParsePrefix("192.168.0.0/16"),  // RFC1918
	netip.MustParsePrefix("100.64.0.0/10"),   // RFC6598 shared space
	netip.MustParsePrefix("169.254.0.0/16"),  // RFC3927 link local
	netip.MustParsePrefix("198.18.0.0/15"),   // RFC2544 benchmarking
	netip.MustParsePrefix("192.0.2.0/24"),    // RFC5737 documentation
	netip.MustParsePrefix("198.51.100.0/24"), // RFC5737 documentation
	netip.MustParsePrefix("203.0.113.0/24"),  // RFC5737 documentation
	netip.MustParsePrefix("2001:db8::/32"),   // RFC3849 documentation
	netip.MustParsePrefix("2001:10::/28"),    // RFC4843 ORCHID
	netip.MustParsePrefix("fc00::/7"),        // RFC4193 unique local
	netip.MustParsePrefix("fe80::/64"),       // RFC4862 autoconfiguration
}

// isRoutableIP returns whether the address lies outside of every reserved
// block.  IPv4-mapped IPv6 addresses are treated as IPv4.
func isRoutableIP(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || ip.IsUnspecified() || ip.IsLoopback() ||
		ip == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {

		return false
	}
	for _, prefix := range unroutablePrefixes {
		if prefix.Contains(ip) {
			return false
		}
	}
	return true
}

// IsRoutable returns whether or not the passed overlay address can be
// reached from the public network.  Onion service and DNS names are always
// considered routable.  IP addresses must not be in any reserved range.
func IsRoutable(na wire.NodeAddress) bool {
	if na.IsOnion() {
		return true
	}
	ip, err := netip.ParseAddr(na.Host)
	if err != nil {
		return na.Host != "localhost" && strings.Contains(na.Host, ".")
	}
	return isRoutableIP(ip)
}
