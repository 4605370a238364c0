// Copyright (c) 2017 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"errors"
	"testing"
)

// TestErrorKindStringer tests the stringized output for the ErrorKind type.
func TestErrorKindStringer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   ErrorKind
		want string
	}{
		{ErrNonCanonicalVarInt, "ErrNonCanonicalVarInt"},
		{ErrVarStringTooLong, "ErrVarStringTooLong"},
		{ErrVarBytesTooLong, "ErrVarBytesTooLong"},
		{ErrMalformedStrictString, "ErrMalformedStrictString"},
		{ErrCmdTooLong, "ErrCmdTooLong"},
		{ErrPayloadTooLarge, "ErrPayloadTooLarge"},
		{ErrPayloadChecksum, "ErrPayloadChecksum"},
		{ErrWrongNetwork, "ErrWrongNetwork"},
		{ErrMalformedCmd, "ErrMalformedCmd"},
		{ErrUnknownCmd, "ErrUnknownCmd"},
		{ErrMalformedPayload, "ErrMalformedPayload"},
		{ErrTooManyHashes, "ErrTooManyHashes"},
		{ErrTooManyEntries, "ErrTooManyEntries"},
		{ErrTooManyPeers, "ErrTooManyPeers"},
		{ErrInvalidPubKey, "ErrInvalidPubKey"},
		{ErrInvalidSignatureLen, "ErrInvalidSignatureLen"},
		{ErrInvalidTimestamp, "ErrInvalidTimestamp"},
		{ErrInvalidAddress, "ErrInvalidAddress"},
	}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		result := test.in.Error()
		if result != test.want {
			t.Errorf("Error #%d\n got: %s want: %s", i, result, test.want)
			continue
		}
	}
}

// TestMessageError tests the error output for the MessageError type.
func TestMessageError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   MessageError
		want string
	}{{
		MessageError{Description: "some error"},
		"some error",
	}, {
		MessageError{Description: "human-readable error"},
		"human-readable error",
	}, {
		MessageError{Func: "foo", Description: "something bad happened"},
		"foo: something bad happened",
	}}

	t.Logf("Running %d tests", len(tests))
	for i, test := range tests {
		result := test.in.Error()
		if result != test.want {
			t.Errorf("Error #%d\n got: %s want: %s", i, result, test.want)
			continue
		}
	}
}

// TestErrorKindIsAs ensures both ErrorKind and MessageError can be identified
// as being a specific error kind via errors.Is and unwrapped via errors.As.
func TestErrorKindIsAs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
		wantAs    ErrorKind
	}{{
		name:      "ErrUnknownCmd == ErrUnknownCmd",
		err:       ErrUnknownCmd,
		target:    ErrUnknownCmd,
		wantMatch: true,
		wantAs:    ErrUnknownCmd,
	}, {
		name:      "MessageError.ErrUnknownCmd == ErrUnknownCmd",
		err:       messageError("", ErrUnknownCmd, ""),
		target:    ErrUnknownCmd,
		wantMatch: true,
		wantAs:    ErrUnknownCmd,
	}, {
		name:      "ErrWrongNetwork != ErrUnknownCmd",
		err:       ErrWrongNetwork,
		target:    ErrUnknownCmd,
		wantMatch: false,
		wantAs:    ErrWrongNetwork,
	}, {
		name:      "MessageError.ErrWrongNetwork != ErrUnknownCmd",
		err:       messageError("", ErrWrongNetwork, ""),
		target:    ErrUnknownCmd,
		wantMatch: false,
		wantAs:    ErrWrongNetwork,
	}}

	for _, test := range tests {
		result := errors.Is(test.err, test.target)
		if result != test.wantMatch {
			t.Errorf("%s: incorrect error identification -- got %v, want %v",
				test.name, result, test.wantMatch)
			continue
		}

		var kind ErrorKind
		if !errors.As(test.err, &kind) {
			t.Errorf("%s: unable to unwrap to error kind", test.name)
			continue
		}
		if kind != test.wantAs {
			t.Errorf("%s: unexpected unwrapped error kind -- got %v, want %v",
				test.name, kind, test.wantAs)
			continue
		}
	}
}
