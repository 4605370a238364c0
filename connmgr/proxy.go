// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	"context"
	"fmt"
	"net"

	"github.com/decred/go-socks/socks"
	"github.com/decred/tradenet/wire"
)

// ProxyConfig describes the SOCKS5 proxy outbound connections are made
// through.
type ProxyConfig struct {
	// Addr is the host:port of the proxy.  An empty address disables the
	// proxy.
	Addr string

	// Username and Password authenticate with the proxy.
	Username string
	Password string

	// TorIsolation makes the proxy use a new circuit for every connection by
	// authenticating with random credentials.
	TorIsolation bool
}

// NewDialer returns a dial function for the connection manager.  Hidden
// service addresses can only be reached through the proxy and result in
// ErrProxyRequired without one.  All other addresses use the proxy when one
// is configured and a direct TCP connection otherwise.
func NewDialer(cfg ProxyConfig) func(context.Context, wire.NodeAddress) (net.Conn, error) {
	var proxy *socks.Proxy
	if cfg.Addr != "" {
		proxy = &socks.Proxy{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			TorIsolation: cfg.TorIsolation,
		}
	}

	var dialer net.Dialer
	return func(ctx context.Context, addr wire.NodeAddress) (net.Conn, error) {
		if proxy != nil {
			return proxy.DialContext(ctx, "tcp", addr.String())
		}
		if addr.IsOnion() {
			str := fmt.Sprintf("cannot connect to %s without a proxy", addr)
			return nil, makeError(ErrProxyRequired, str)
		}
		return dialer.DialContext(ctx, "tcp", addr.String())
	}
}

// RemoteNodeAddress returns the overlay address of the remote side of the
// connection.  Connections made through a SOCKS proxy report the requested
// address instead of the address of the proxy.
func RemoteNodeAddress(conn net.Conn) (wire.NodeAddress, error) {
	if pa, ok := conn.RemoteAddr().(*socks.ProxiedAddr); ok {
		return wire.NewNodeAddress(pa.Host, uint16(pa.Port)), nil
	}
	return wire.ParseNodeAddress(conn.RemoteAddr().String())
}
