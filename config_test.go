// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/decred/tradenet/wire"
)

// testConfig returns the default configuration with all directories inside a
// temporary directory of the test.
func testConfig(t *testing.T) config {
	t.Helper()
	dir := t.TempDir()
	cfg := defaultConfig()
	cfg.HomeDir = dir
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.LogDir = filepath.Join(dir, "logs")
	return cfg
}

// TestValidate ensures invalid option combinations are refused.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(cfg *config)
		wantErr bool
	}{{
		name:   "defaults",
		modify: func(cfg *config) {},
	}, {
		name:    "unknown network",
		modify:  func(cfg *config) { cfg.NetworkID = 9 },
		wantErr: true,
	}, {
		name:    "unknown eviction policy",
		modify:  func(cfg *config) { cfg.EvictPolicy = "random" },
		wantErr: true,
	}, {
		name:    "no connections",
		modify:  func(cfg *config) { cfg.MaxConnections = 0 },
		wantErr: true,
	}, {
		name: "throttle windows out of order",
		modify: func(cfg *config) {
			cfg.MsgThrottlePerSec = 20
			cfg.MsgThrottlePer10Sec = 10
		},
		wantErr: true,
	}, {
		name: "idle timeout below keep-alive interval",
		modify: func(cfg *config) {
			cfg.KeepAliveInterval = time.Minute
			cfg.IdleTimeout = time.Minute
		},
		wantErr: true,
	}, {
		name:    "short ban duration",
		modify:  func(cfg *config) { cfg.BanDuration = 500 * time.Millisecond },
		wantErr: true,
	}, {
		name:    "invalid whitelist",
		modify:  func(cfg *config) { cfg.Whitelists = []string{"10.0.0.0/33"} },
		wantErr: true,
	}, {
		name:    "invalid seed node",
		modify:  func(cfg *config) { cfg.SeedNodes = []string{"seed:0"} },
		wantErr: true,
	}, {
		name: "onion without proxy",
		modify: func(cfg *config) {
			cfg.ExternalHost = "3g2upl4pq6kufc4m.onion"
		},
		wantErr: true,
	}, {
		name: "onion with proxy",
		modify: func(cfg *config) {
			cfg.ExternalHost = "3g2upl4pq6kufc4m.onion"
			cfg.Proxy = "127.0.0.1"
		},
	}, {
		name: "remote external host on localhost network",
		modify: func(cfg *config) {
			cfg.UseLocalhost = true
			cfg.ExternalHost = "203.0.113.1"
		},
		wantErr: true,
	}}

	for _, test := range tests {
		cfg := testConfig(t)
		test.modify(&cfg)
		err := cfg.validate()
		if gotErr := err != nil; gotErr != test.wantErr {
			t.Errorf("%q: unexpected error %v", test.name, err)
		}
	}
}

// TestValidateDerived ensures validation derives the internal options.
func TestValidateDerived(t *testing.T) {
	cfg := testConfig(t)
	dataDir := cfg.DataDir
	cfg.NetworkID = uint32(wire.RegNet)
	cfg.UseLocalhost = true
	cfg.ConnectPeers = []string{"localhost", "localhost:2002", "localhost:9999"}
	cfg.Proxy = "127.0.0.1"
	cfg.Whitelists = []string{"192.168.1.0/24", "10.0.0.1"}
	cfg.DisableListen = true
	if err := cfg.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := filepath.Join(dataDir, "regnet"); cfg.DataDir != want {
		t.Errorf("data dir: got %q, want %q", cfg.DataDir, want)
	}
	if cfg.netID != wire.RegNet {
		t.Errorf("network: got %v, want %v", cfg.netID, wire.RegNet)
	}
	if want := wire.NewNodeAddress("localhost", defaultPort); cfg.self != want {
		t.Errorf("self: got %v, want %v", cfg.self, want)
	}
	wantConnect := []wire.NodeAddress{
		wire.NewNodeAddress("localhost", defaultPort),
		wire.NewNodeAddress("localhost", 2002),
	}
	if !reflect.DeepEqual(cfg.connect, wantConnect) {
		t.Errorf("connect: got %v, want %v", cfg.connect, wantConnect)
	}
	if !cfg.DisableSeeders {
		t.Error("connect did not disable the seed nodes")
	}
	if cfg.Proxy != "127.0.0.1:9050" {
		t.Errorf("proxy: got %q", cfg.Proxy)
	}
	if len(cfg.Listeners) != 0 {
		t.Errorf("listeners: got %v with listening disabled", cfg.Listeners)
	}
	if len(cfg.whitelists) != 2 {
		t.Fatalf("whitelists: got %d networks, want 2", len(cfg.whitelists))
	}
	if ones, bits := cfg.whitelists[1].Mask.Size(); ones != 32 || bits != 32 {
		t.Errorf("single IP whitelist: got mask /%d of %d bits", ones, bits)
	}
}

// TestNormalizeAddresses ensures default ports are added and duplicates
// removed.
func TestNormalizeAddresses(t *testing.T) {
	got := normalizeAddresses([]string{
		"10.0.0.1",
		"10.0.0.1:9999",
		"[::1]:8000",
		"::1",
		"example.com:1234",
	}, "9999")
	want := []string{
		"10.0.0.1:9999",
		"[::1]:8000",
		"[::1]:9999",
		"example.com:1234",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// TestParseAndSetDebugLevels ensures debug level strings are
// validated.
func TestParseAndSetDebugLevels(t *testing.T) {
	defer setLogLevels(defaultLogLevel)

	tests := []struct {
		levels  string
		wantErr bool
	}{
		{"debug", false},
		{"SRVR=trace,PEER=info", false},
		{"verbose", true},
		{"SRVR", true},
		{"SRVR=debug,BOGUS=debug", true},
		{"SRVR=loud", true},
	}
	for _, test := range tests {
		err := parseAndSetDebugLevels(test.levels)
		if gotErr := err != nil; gotErr != test.wantErr {
			t.Errorf("%q: unexpected error %v", test.levels, err)
		}
	}
}
