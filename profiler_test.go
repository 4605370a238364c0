// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"testing"
)

// TestProfileServer ensures the profile server refuses invalid addresses and
// serves the profiling endpoints until stopped.
func TestProfileServer(t *testing.T) {
	var s profileServer
	badAddrs := []string{"80", "127.0.0.1", "203.0.113.1:6060"}
	for _, addr := range badAddrs {
		if err := s.Start(addr, false); err == nil {
			s.Stop()
			t.Fatalf("started profile server on %q", addr)
		}
	}

	// Port 0 is refused by the port range check.
	var started bool
	for port := 16060; port < 16070; port++ {
		if err := s.Start(fmt.Sprint(port), false); err == nil {
			started = true
			break
		}
	}
	if !started {
		t.Skip("no free port for the profile server")
	}
	defer s.Stop()

	url := fmt.Sprintf("http://%s/debug/pprof/cmdline", s.Addr())
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("unable to query profile server: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("unable to stop profile server: %v", err)
	}
	if s.Addr() != nil {
		t.Fatal("stopped profile server still has a listener")
	}
}
