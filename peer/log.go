// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peer

import (
	"fmt"

	"github.com/decred/slog"
	"github.com/decred/tradenet/wire"
)

// log is a logger that is initialized with no output filters.  This
// means the package will not perform any logging by default until the caller
// requests it.
// The default amount of logging is none.
var log = slog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}

// directionString is a helper function that returns a string that represents
// the direction of a connection (inbound or outbound).
func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}

// messageSummary returns a human-readable string which summarizes a message.
// Not all messages have or need a summary.  This is used for debug logging.
func messageSummary(msg wire.Message) string {
	switch msg := msg.(type) {
	case *wire.MsgVersion:
		return fmt.Sprintf("agent %s, pver %d, addr %s, caps %s",
			msg.UserAgent, msg.ProtocolVersion, msg.Addr, msg.Capabilities)

	case *wire.MsgVerAck:
		// No summary.

	case *wire.MsgGetData:
		return fmt.Sprintf("nonce %d, known %d", msg.Nonce,
			len(msg.KnownHashes))

	case *wire.MsgData:
		return fmt.Sprintf("nonce %d, entries %d, payloads %d, truncated %v",
			msg.Nonce, len(msg.Entries), len(msg.Payloads), msg.Truncated)

	case *wire.MsgAddData:
		return fmt.Sprintf("%s seq %d", msg.Entry.Payload.Type,
			msg.Entry.SequenceNumber)

	case *wire.MsgRemoveData:
		return fmt.Sprintf("%s seq %d", msg.Entry.Payload.Type,
			msg.Entry.SequenceNumber)

	case *wire.MsgRefreshTTL:
		return fmt.Sprintf("hash %s, seq %d", msg.PayloadHash,
			msg.SequenceNumber)

	case *wire.MsgAddPayload:
		return fmt.Sprintf("%s, %d bytes", msg.Payload.Type,
			len(msg.Payload.Data))

	case *wire.MsgGetPeers:
		return fmt.Sprintf("nonce %d, %d peers", msg.Nonce, len(msg.Reported))

	case *wire.MsgPeers:
		return fmt.Sprintf("nonce %d, %d peers", msg.Nonce, len(msg.Reported))

	case *wire.MsgPing:
		return fmt.Sprintf("nonce %d", msg.Nonce)

	case *wire.MsgPong:
		return fmt.Sprintf("nonce %d", msg.Nonce)

	case *wire.MsgClose:
		return msg.Reason
	}

	// No summary for other messages.
	return ""
}
