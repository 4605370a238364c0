// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

const (
	// MaxVarIntPayload is the maximum payload size for a variable length integer.
	MaxVarIntPayload = 9

	// strictAsciiRangeLower is the lower limit of the strict ASCII range.
	strictAsciiRangeLower = 0x20

	// strictAsciiRangeUpper is the upper limit of the strict ASCII range.
	strictAsciiRangeUpper = 0x7e

	// maxUnixSeconds is the largest unix timestamp that is accepted for
	// encoded timestamps.  It keeps decoded values well inside the range
	// that can be compared without overflow.
	maxUnixSeconds = math.MaxInt64 / 2 / int64(time.Second)
)

// littleEndian is a convenience variable since binary.LittleEndian is quite
// long.
var littleEndian = binary.LittleEndian

// nonCanonicalVarIntFormat is the common format string used for
// non-canonically encoded variable length integer errors.
var nonCanonicalVarIntFormat = "non-canonical varint %x - discriminant " +
	"%x must encode a value greater than %x"

// readUint8 reads a single byte from r.
func readUint8(r io.Reader, value *uint8) error {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*value = b[0]
	return nil
}

// readUint16 reads a little endian uint16 from r.
func readUint16(r io.Reader, value *uint16) error {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*value = littleEndian.Uint16(b[:])
	return nil
}

// readUint32 reads a little endian uint32 from r.
func readUint32(r io.Reader, value *uint32) error {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*value = littleEndian.Uint32(b[:])
	return nil
}

// readUint64 reads a little endian uint64 from r.
func readUint64(r io.Reader, value *uint64) error {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return err
	}
	*value = littleEndian.Uint64(b[:])
	return nil
}

// readElement reads the next sequence of bytes from r using little endian
// depending on the concrete type of element pointed to.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		return readUint8(r, e)

	case *bool:
		var b uint8
		if err := readUint8(r, &b); err != nil {
			return err
		}
		*e = b != 0x00
		return nil

	case *uint16:
		return readUint16(r, e)

	case *uint32:
		return readUint32(r, e)

	case *uint64:
		return readUint64(r, e)

	case *int64:
		var v uint64
		if err := readUint64(r, &v); err != nil {
			return err
		}
		*e = int64(v)
		return nil

	case *time.Time:
		// Timestamps are encoded as unix seconds in an int64.
		var v uint64
		if err := readUint64(r, &v); err != nil {
			return err
		}
		secs := int64(v)
		if secs < 0 || secs > maxUnixSeconds {
			str := fmt.Sprintf("timestamp %d is out of range", secs)
			return messageError("readElement", ErrInvalidTimestamp, str)
		}
		*e = time.Time{}
		if secs != 0 {
			*e = time.Unix(secs, 0)
		}
		return nil

	case *Capability:
		var v uint64
		if err := readUint64(r, &v); err != nil {
			return err
		}
		*e = Capability(v)
		return nil

	case *PayloadType:
		var v uint16
		if err := readUint16(r, &v); err != nil {
			return err
		}
		*e = PayloadType(v)
		return nil

	case *chainhash.Hash:
		_, err := io.ReadFull(r, e[:])
		return err

	case *[4]byte:
		_, err := io.ReadFull(r, e[:])
		return err

	case *[CommandSize]byte:
		_, err := io.ReadFull(r, e[:])
		return err
	}

	return fmt.Errorf("readElement: unsupported type %T", element)
}

// readElements reads multiple items from r.  It is equivalent to multiple
// calls to readElement.
func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		err := readElement(r, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeElement writes the little endian representation of element to w.
func writeElement(w io.Writer, element interface{}) error {
	var buf [8]byte
	switch e := element.(type) {
	case uint8:
		buf[0] = e
		_, err := w.Write(buf[:1])
		return err

	case bool:
		if e {
			buf[0] = 0x01
		}
		_, err := w.Write(buf[:1])
		return err

	case uint16:
		littleEndian.PutUint16(buf[:], e)
		_, err := w.Write(buf[:2])
		return err

	case uint32:
		littleEndian.PutUint32(buf[:], e)
		_, err := w.Write(buf[:4])
		return err

	case uint64:
		littleEndian.PutUint64(buf[:], e)
		_, err := w.Write(buf[:])
		return err

	case int64:
		littleEndian.PutUint64(buf[:], uint64(e))
		_, err := w.Write(buf[:])
		return err

	case time.Time:
		var secs int64
		if !e.IsZero() {
			secs = e.Unix()
		}
		littleEndian.PutUint64(buf[:], uint64(secs))
		_, err := w.Write(buf[:])
		return err

	case Capability:
		littleEndian.PutUint64(buf[:], uint64(e))
		_, err := w.Write(buf[:])
		return err

	case PayloadType:
		littleEndian.PutUint16(buf[:], uint16(e))
		_, err := w.Write(buf[:2])
		return err

	case *chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case chainhash.Hash:
		_, err := w.Write(e[:])
		return err

	case [4]byte:
		_, err := w.Write(e[:])
		return err

	case [CommandSize]byte:
		_, err := w.Write(e[:])
		return err
	}

	return fmt.Errorf("writeElement: unsupported type %T", element)
}

// writeElements writes multiple items to w.  It is equivalent to multiple
// calls to writeElement.
func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		err := writeElement(w, element)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadVarInt reads a variable length integer from r and returns it as a uint64.
func ReadVarInt(r io.Reader, pver uint32) (uint64, error) {
	const op = "ReadVarInt"
	var discriminant uint8
	err := readUint8(r, &discriminant)
	if err != nil {
		return 0, err
	}

	var rv, min uint64
	switch discriminant {
	case 0xff:
		err = readUint64(r, &rv)
		min = 0x100000000

	case 0xfe:
		var sv uint32
		err = readUint32(r, &sv)
		rv, min = uint64(sv), 0x10000

	case 0xfd:
		var sv uint16
		err = readUint16(r, &sv)
		rv, min = uint64(sv), 0xfd

	default:
		return uint64(discriminant), nil
	}
	if err != nil {
		return 0, err
	}

	// The encoding is not canonical if the value could have been encoded
	// using fewer bytes.
	if rv < min {
		msg := fmt.Sprintf(nonCanonicalVarIntFormat, rv, discriminant, min)
		return 0, messageError(op, ErrNonCanonicalVarInt, msg)
	}
	return rv, nil
}

// WriteVarInt serializes val to w using a variable number of bytes depending
// on its value.
func WriteVarInt(w io.Writer, pver uint32, val uint64) error {
	var buf [MaxVarIntPayload]byte
	var n int
	switch {
	case val < 0xfd:
		buf[0] = uint8(val)
		n = 1

	case val <= math.MaxUint16:
		buf[0] = 0xfd
		littleEndian.PutUint16(buf[1:], uint16(val))
		n = 3

	case val <= math.MaxUint32:
		buf[0] = 0xfe
		littleEndian.PutUint32(buf[1:], uint32(val))
		n = 5

	default:
		buf[0] = 0xff
		littleEndian.PutUint64(buf[1:], val)
		n = 9
	}
	_, err := w.Write(buf[:n])
	return err
}

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	switch {
	case val < 0xfd:
		return 1
	case val <= math.MaxUint16:
		return 3
	case val <= math.MaxUint32:
		return 5
	}
	return 9
}

// readCount reads a variable length integer used as an element count and
// rejects it when it exceeds max.
func readCount(r io.Reader, pver uint32, max uint64, op string, kind ErrorKind, what string) (uint64, error) {
	count, err := ReadVarInt(r, pver)
	if err != nil {
		return 0, err
	}
	if count > max {
		str := fmt.Sprintf("too many %s [count %d, max %d]", what, count, max)
		return 0, messageError(op, kind, str)
	}
	return count, nil
}

// ReadAsciiVarString reads a variable length string from r and returns it as a
// Go string.  An error is returned if the length is greater than maxAllowed or
// if the decoded string is not strictly an ascii string.
func ReadAsciiVarString(r io.Reader, pver uint32, maxAllowed uint64) (string, error) {
	const op = "ReadAsciiVarString"
	count, err := ReadVarInt(r, pver)
	if err != nil {
		return "", err
	}

	// Prevent variable length strings that are larger than the specified
	// size.  It would be possible to cause memory exhaustion and panics
	// without a sane upper bound on this count.
	if count > maxAllowed {
		msg := fmt.Sprintf("variable length string is too long "+
			"[count %d, max %d]", count, maxAllowed)
		return "", messageError(op, ErrVarStringTooLong, msg)
	}

	buf := make([]byte, count)
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return "", err
	}

	s := string(buf)
	if !isStrictAscii(s) {
		msg := "string is not strict ASCII"
		return "", messageError(op, ErrMalformedStrictString, msg)
	}

	return s, nil
}

// WriteVarString serializes str to w as a variable length integer containing
// the length of the string followed by the bytes that represent the string
// itself.
func WriteVarString(w io.Writer, pver uint32, str string) error {
	err := WriteVarInt(w, pver, uint64(len(str)))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, str)
	return err
}

// ReadVarBytes reads a variable length byte array.  A byte array is encoded
// as a varInt containing the length of the array followed by the bytes
// themselves.  An error is returned if the length is greater than the
// passed maxAllowed parameter which helps protect against memory exhaustion
// attacks and forced panics through malformed messages.  The fieldName
// parameter is only used for the error message so it provides more context in
// the error.
func ReadVarBytes(r io.Reader, pver uint32, maxAllowed uint32,
	fieldName string) ([]byte, error) {

	const op = "ReadVarBytes"
	count, err := ReadVarInt(r, pver)
	if err != nil {
		return nil, err
	}

	if count > uint64(maxAllowed) {
		msg := fmt.Sprintf("%s is larger than the max allowed size "+
			"[count %d, max %d]", fieldName, count, maxAllowed)
		return nil, messageError(op, ErrVarBytesTooLong, msg)
	}

	b := make([]byte, count)
	_, err = io.ReadFull(r, b)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// WriteVarBytes serializes a variable length byte array to w as a varInt
// containing the number of bytes, followed by the bytes themselves.
func WriteVarBytes(w io.Writer, pver uint32, bytes []byte) error {
	err := WriteVarInt(w, pver, uint64(len(bytes)))
	if err != nil {
		return err
	}

	_, err = w.Write(bytes)
	return err
}

// isStrictAscii determines returns true if the provided string only contains
// runes that are within the strict ASCII range.
func isStrictAscii(s string) bool {
	for _, r := range s {
		if r < strictAsciiRangeLower || r > strictAsciiRangeUpper {
			return false
		}
	}

	return true
}
