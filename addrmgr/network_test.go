// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrmgr

import (
	"testing"

	"github.com/decred/tradenet/wire"
)

// TestIsRoutable ensures addresses are classified as routable depending on
// their kind.
func TestIsRoutable(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"173.194.115.66", true},
		{"2620:100::1", true},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.1.1", false},
		{"198.18.0.1", false},
		{"100.64.0.1", false},
		{"127.0.0.1", false},
		{"::1", false},
		{"0.0.0.0", false},
		{"2001:db8::1", false},
		{"fc00::1", false},
		{"fe80::1", false},
		{"255.255.255.255", false},
		{"203.0.113.9", false},
		{"::ffff:10.0.0.1", false},
		{"::ffff:173.194.115.66", true},
		{"3g2upl4pq6kufc4m.onion", true},
		{"example.com", true},
		{"localhost", false},
		{"seednode", false},
	}

	for _, test := range tests {
		na := wire.NewNodeAddress(test.host, 9999)
		if got := IsRoutable(na); got != test.want {
			t.Errorf("IsRoutable(%s): got %v, want %v", na, got, test.want)
		}
	}
}
