// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// MessageHeaderSize is the number of bytes in a message header.
// Network magic 4 bytes + command 12 bytes + payload length 4 bytes +
// checksum 4 bytes.
const MessageHeaderSize = 24

// CommandSize is the fixed size of all commands in the common message
// header.  Shorter commands must be zero padded.
const CommandSize = 12

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = (1024 * 1024 * 32) // 32MB

// Commands used in message headers which describe the type of message.
const (
	CmdVersion    = "version"
	CmdVerAck     = "verack"
	CmdGetData    = "getdata"
	CmdData       = "data"
	CmdAddData    = "adddata"
	CmdRemoveData = "removedata"
	CmdRefreshTTL = "refreshttl"
	CmdAddPayload = "addpayload"
	CmdGetPeers   = "getpeers"
	CmdPeers      = "peers"
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdClose      = "close"
)

// Message is an interface that describes a network message.  A type that
// implements Message has complete control over the representation of its data
// and may therefore contain additional or fewer fields than those which
// are used directly in the protocol encoded message.
type Message interface {
	Decode(io.Reader, uint32) error
	Encode(io.Writer, uint32) error
	Command() string
	MaxPayloadLength(uint32) uint32
}

// makeEmptyMessage creates a message of the appropriate concrete type based
// on the command.
func makeEmptyMessage(command string) (Message, error) {
	const op = "makeEmptyMessage"

	var msg Message
	switch command {
	case CmdVersion:
		msg = &MsgVersion{}

	case CmdVerAck:
		msg = &MsgVerAck{}

	case CmdGetData:
		msg = &MsgGetData{}

	case CmdData:
		msg = &MsgData{}

	case CmdAddData:
		msg = &MsgAddData{}

	case CmdRemoveData:
		msg = &MsgRemoveData{}

	case CmdRefreshTTL:
		msg = &MsgRefreshTTL{}

	case CmdAddPayload:
		msg = &MsgAddPayload{}

	case CmdGetPeers:
		msg = &MsgGetPeers{}

	case CmdPeers:
		msg = &MsgPeers{}

	case CmdPing:
		msg = &MsgPing{}

	case CmdPong:
		msg = &MsgPong{}

	case CmdClose:
		msg = &MsgClose{}

	default:
		str := fmt.Sprintf("unhandled command [%s]", command)
		return nil, messageError(op, ErrUnknownCmd, str)
	}
	return msg, nil
}

// messageHeader defines the header structure for all protocol messages.
type messageHeader struct {
	magic    uint32  // 4 bytes
	command  string  // 12 bytes
	length   uint32  // 4 bytes
	checksum [4]byte // 4 bytes
}

// readMessageHeader reads a message header from r.
func readMessageHeader(r io.Reader) (int, *messageHeader, error) {
	// Read the entire header into a buffer first in case there is a short
	// read so the proper amount of read bytes are known.  This works since
	// the header is a fixed size.
	var headerBytes [MessageHeaderSize]byte
	n, err := io.ReadFull(r, headerBytes[:])
	if err != nil {
		return n, nil, err
	}
	hr := bytes.NewReader(headerBytes[:])

	hdr := messageHeader{}
	var command [CommandSize]byte
	readElements(hr, &hdr.magic, &command, &hdr.length, &hdr.checksum)

	// Strip trailing zeros from command string.
	hdr.command = string(bytes.TrimRight(command[:], string(rune(0))))

	return n, &hdr, nil
}

// WriteMessageN writes a Message to w including the necessary header
// information and returns the number of bytes written.
func WriteMessageN(w io.Writer, msg Message, pver uint32, net NetworkID) (int, error) {
	const op = "WriteMessage"
	totalBytes := 0

	// Enforce max command size.
	var command [CommandSize]byte
	cmd := msg.Command()
	if len(cmd) > CommandSize {
		str := fmt.Sprintf("command [%s] is too long [max %v]", cmd, CommandSize)
		return totalBytes, messageError(op, ErrCmdTooLong, str)
	}
	copy(command[:], cmd)

	// Encode the message payload.
	var bw bytes.Buffer
	err := msg.Encode(&bw, pver)
	if err != nil {
		return totalBytes, err
	}
	payload := bw.Bytes()
	lenp := len(payload)

	// Enforce maximum overall message payload.
	if lenp > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload is %d bytes",
			lenp, MaxMessagePayload)
		return totalBytes, messageError(op, ErrPayloadTooLarge, str)
	}

	// Enforce maximum message payload based on the message type.
	mpl := msg.MaxPayloadLength(pver)
	if uint32(lenp) > mpl {
		str := fmt.Sprintf("message payload is too large - encoded "+
			"%d bytes, but maximum message payload size for "+
			"messages of type [%s] is %d.", lenp, cmd, mpl)
		return totalBytes, messageError(op, ErrPayloadTooLarge, str)
	}

	// Encode the header for the message.  This is done to a buffer so the
	// header and payload are written with a single call.
	var checksum [4]byte
	cksumHash := chainhash.HashH(payload)
	copy(checksum[:], cksumHash[0:4])
	var buf bytes.Buffer
	buf.Grow(MessageHeaderSize + lenp)
	writeElements(&buf, net.Magic(), command, uint32(lenp), checksum)
	buf.Write(payload)

	n, err := w.Write(buf.Bytes())
	totalBytes += n
	return totalBytes, err
}

// WriteMessage writes a Message to w including the necessary header
// information.  This function is the same as WriteMessageN except it doesn't
// return the number of bytes written.
func WriteMessage(w io.Writer, msg Message, pver uint32, net NetworkID) error {
	_, err := WriteMessageN(w, msg, pver, net)
	return err
}

// discardInput reads and discards n bytes from r.
func discardInput(r io.Reader, n uint32) (int, error) {
	read, err := io.CopyN(io.Discard, r, int64(n))
	return int(read), err
}

// IsFramingIntact returns whether the stream a read error was returned for is
// still positioned at the start of the next message.  That is the case for
// messages whose header was valid and whose payload was read in full even
// though its contents were rejected.
func IsFramingIntact(err error) bool {
	var merr MessageError
	if !errors.As(err, &merr) {
		return false
	}
	switch {
	case errors.Is(merr, ErrWrongNetwork),
		errors.Is(merr, ErrMalformedCmd),
		errors.Is(merr, ErrPayloadTooLarge):
		return false
	}
	return true
}

// ReadMessageN reads, validates, and parses the next Message from r for the
// provided protocol version and network.  It returns the number of bytes read
// in addition to the parsed Message and raw bytes which comprise the message.
func ReadMessageN(r io.Reader, pver uint32, net NetworkID) (int, Message, []byte, error) {
	const op = "ReadMessage"
	totalBytes := 0
	n, hdr, err := readMessageHeader(r)
	totalBytes += n
	if err != nil {
		return totalBytes, nil, nil, err
	}

	// Enforce maximum message payload.
	if hdr.length > MaxMessagePayload {
		str := fmt.Sprintf("message payload is too large - header "+
			"indicates %d bytes, but max message payload is %d bytes.",
			hdr.length, MaxMessagePayload)
		return totalBytes, nil, nil, messageError(op, ErrPayloadTooLarge, str)
	}

	// Check for messages from the wrong network.
	if hdr.magic != net.Magic() {
		str := fmt.Sprintf("message from other network [%x]", hdr.magic)
		return totalBytes, nil, nil, messageError(op, ErrWrongNetwork, str)
	}

	// Check for malformed commands.
	command := hdr.command
	if !isStrictAscii(command) {
		str := fmt.Sprintf("invalid command %v", []byte(command))
		return totalBytes, nil, nil, messageError(op, ErrMalformedCmd, str)
	}

	// Create struct of appropriate message type based on the command.
	msg, err := makeEmptyMessage(command)
	if err != nil {
		// Consume the payload so the stream stays aligned on the next
		// message header.
		n, derr := discardInput(r, hdr.length)
		totalBytes += n
		if derr != nil {
			return totalBytes, nil, nil, derr
		}
		return totalBytes, nil, nil, err
	}

	// Check for maximum length based on the message type as a malicious client
	// could otherwise create a well-formed header and set the length to max
	// numbers in order to exhaust the machine's memory.
	mpl := msg.MaxPayloadLength(pver)
	if hdr.length > mpl {
		str := fmt.Sprintf("payload exceeds max length - header "+
			"indicates %v bytes, but max payload size for messages of "+
			"type [%v] is %v.", hdr.length, command, mpl)
		return totalBytes, nil, nil, messageError(op, ErrPayloadTooLarge, str)
	}

	// Read payload.
	payload := make([]byte, hdr.length)
	n, err = io.ReadFull(r, payload)
	totalBytes += n
	if err != nil {
		return totalBytes, nil, nil, err
	}

	// Test checksum.
	checksum := chainhash.HashB(payload)[0:4]
	if !bytes.Equal(checksum, hdr.checksum[:]) {
		str := fmt.Sprintf("payload checksum failed - header indicates %v, "+
			"but actual checksum is %v.", hdr.checksum, checksum)
		return totalBytes, nil, nil, messageError(op, ErrPayloadChecksum, str)
	}

	pr := bytes.NewReader(payload)
	err = msg.Decode(pr, pver)
	if err != nil {
		var merr MessageError
		if errors.As(err, &merr) {
			return totalBytes, nil, nil, err
		}
		str := fmt.Sprintf("unable to decode %s payload: %v", command, err)
		return totalBytes, nil, nil, messageError(op, ErrMalformedPayload, str)
	}

	return totalBytes, msg, payload, nil
}

// ReadMessage reads, validates, and parses the next Message from r for the
// provided protocol version and network.  It returns the parsed Message and
// raw bytes which comprise the message.  This function only differs from
// ReadMessageN in that it doesn't return the number of bytes read.
func ReadMessage(r io.Reader, pver uint32, net NetworkID) (Message, []byte, error) {
	_, msg, buf, err := ReadMessageN(r, pver, net)
	return msg, buf, err
}
