// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// MaxHostLength is the maximum length of the host portion of a node address.
const MaxHostLength = 255

// NodeAddress identifies a node on the overlay network by its host, which is
// either an IP address, a DNS name, or a Tor onion service name, and port.
//
// NodeAddress is a comparable value type and is used as a map key.
type NodeAddress struct {
	Host string
	Port uint16
}

// NewNodeAddress returns a node address for the passed host and port.
func NewNodeAddress(host string, port uint16) NodeAddress {
	return NodeAddress{Host: strings.ToLower(host), Port: port}
}

// ParseNodeAddress parses an address of the form host:port.
func ParseNodeAddress(addr string) (NodeAddress, error) {
	const op = "ParseNodeAddress"
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		str := fmt.Sprintf("malformed address %q: %v", addr, err)
		return NodeAddress{}, messageError(op, ErrInvalidAddress, str)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		str := fmt.Sprintf("invalid port in address %q", addr)
		return NodeAddress{}, messageError(op, ErrInvalidAddress, str)
	}
	na := NewNodeAddress(host, uint16(port))
	if err := na.validate(op); err != nil {
		return NodeAddress{}, err
	}
	return na, nil
}

// validate ensures the host is non-empty, of sane length and strict ASCII.
func (na NodeAddress) validate(op string) error {
	if na.Host == "" || len(na.Host) > MaxHostLength || !isStrictAscii(na.Host) ||
		strings.ContainsAny(na.Host, " /") {

		str := fmt.Sprintf("invalid host %q", na.Host)
		return messageError(op, ErrInvalidAddress, str)
	}
	if na.Port == 0 {
		return messageError(op, ErrInvalidAddress, "port must not be zero")
	}
	return nil
}

// String returns the address in host:port form.
func (na NodeAddress) String() string {
	return net.JoinHostPort(na.Host, strconv.FormatUint(uint64(na.Port), 10))
}

// IsZero returns whether the address is unset.
func (na NodeAddress) IsZero() bool {
	return na == NodeAddress{}
}

// IsOnion returns whether the address refers to a Tor onion service.
func (na NodeAddress) IsOnion() bool {
	return strings.HasSuffix(na.Host, ".onion")
}

// IsLocal returns whether the address refers to the local host.
func (na NodeAddress) IsLocal() bool {
	if na.Host == "localhost" {
		return true
	}
	ip := net.ParseIP(na.Host)
	return ip != nil && ip.IsLoopback()
}

// Network returns the network name for use with net.Addr.
func (na NodeAddress) Network() string {
	return "tcp"
}

// ReportedPeer is a node address as relayed during peer exchange along with
// the capabilities the node advertised and when it was last seen.
type ReportedPeer struct {
	Addr         NodeAddress
	Capabilities Capability
	LastSeen     time.Time
}

// readNodeAddress reads an encoded NodeAddress from r.
func readNodeAddress(r io.Reader, pver uint32, na *NodeAddress) error {
	host, err := ReadAsciiVarString(r, pver, MaxHostLength)
	if err != nil {
		return err
	}
	var port uint16
	if err := readElement(r, &port); err != nil {
		return err
	}
	*na = NodeAddress{Host: host, Port: port}
	return nil
}

// writeNodeAddress serializes a NodeAddress to w.
func writeNodeAddress(w io.Writer, pver uint32, na *NodeAddress) error {
	if len(na.Host) > MaxHostLength {
		str := fmt.Sprintf("host is too long [len %d, max %d]",
			len(na.Host), MaxHostLength)
		return messageError("writeNodeAddress", ErrInvalidAddress, str)
	}
	if err := WriteVarString(w, pver, na.Host); err != nil {
		return err
	}
	return writeElement(w, na.Port)
}

// readReportedPeer reads an encoded ReportedPeer from r.
func readReportedPeer(r io.Reader, pver uint32, rp *ReportedPeer) error {
	if err := readNodeAddress(r, pver, &rp.Addr); err != nil {
		return err
	}
	return readElements(r, &rp.Capabilities, &rp.LastSeen)
}

// writeReportedPeer serializes a ReportedPeer to w.
func writeReportedPeer(w io.Writer, pver uint32, rp *ReportedPeer) error {
	if err := writeNodeAddress(w, pver, &rp.Addr); err != nil {
		return err
	}
	return writeElements(w, rp.Capabilities, rp.LastSeen)
}

// maxReportedPeerPayload is the largest possible encoding of a ReportedPeer.
const maxReportedPeerPayload = MaxVarIntPayload + MaxHostLength + 2 + 8 + 8
