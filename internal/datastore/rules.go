// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package datastore

import (
	"bytes"
	"fmt"
	"time"

	"github.com/decred/tradenet/wire"
)

// maxClockSkew is the maximum amount of time the creation time of an entry
// may be ahead of the local clock.
const maxClockSkew = 2 * time.Hour

// payloadRule limits the payloads of one type.
type payloadRule struct {
	maxSize int
	maxTTL  time.Duration
}

// payloadRules houses the limits of every known payload type.  Append-only
// types have no lifetime.
var payloadRules = map[wire.PayloadType]payloadRule{
	wire.PayloadOffer:             {maxSize: 20000, maxTTL: 9 * time.Minute},
	wire.PayloadArbitrator:        {maxSize: 10000, maxTTL: 10 * 24 * time.Hour},
	wire.PayloadMediator:          {maxSize: 10000, maxTTL: 10 * 24 * time.Hour},
	wire.PayloadFilter:            {maxSize: wire.MaxPayloadDataSize, maxTTL: 180 * 24 * time.Hour},
	wire.PayloadAlert:             {maxSize: 4000, maxTTL: 90 * 24 * time.Hour},
	wire.PayloadTradeStatistics:   {maxSize: 1000},
	wire.PayloadAccountAgeWitness: {maxSize: 100},
	wire.PayloadSignedWitness:     {maxSize: 1000},
}

// checkPersistablePayload ensures the payload is of a known append-only type
// and within the size limit of the type.
func checkPersistablePayload(p *wire.PersistablePayload) error {
	if err := p.Validate(); err != nil {
		return makeError(ErrInvalidPayload, err.Error())
	}
	rule, ok := payloadRules[p.Type]
	if !ok || !p.Type.IsAppendOnly() {
		str := fmt.Sprintf("payload type %v is not an append-only type", p.Type)
		return makeError(ErrInvalidPayload, str)
	}
	if len(p.Data) > rule.maxSize {
		str := fmt.Sprintf("%v payload is %d bytes, max %d", p.Type,
			len(p.Data), rule.maxSize)
		return makeError(ErrInvalidPayload, str)
	}
	return nil
}

// checkEntry ensures the entry is well formed, wraps a payload of a known
// protected type within the limits of the type, and is signed by the owner of
// the payload.  The signature itself is not verified.
func checkEntry(e *wire.ProtectedEntry, now time.Time) error {
	if err := e.Validate(); err != nil {
		return makeError(ErrInvalidPayload, err.Error())
	}
	p := &e.Payload
	rule, ok := payloadRules[p.Type]
	if !ok || p.Type.IsAppendOnly() {
		str := fmt.Sprintf("payload type %v is not a protected type", p.Type)
		return makeError(ErrInvalidPayload, str)
	}
	if len(p.Data) > rule.maxSize {
		str := fmt.Sprintf("%v payload is %d bytes, max %d", p.Type,
			len(p.Data), rule.maxSize)
		return makeError(ErrInvalidPayload, str)
	}
	if p.TTL == 0 || p.TTLDuration() > rule.maxTTL {
		str := fmt.Sprintf("%v payload lifetime %v out of range (max %v)",
			p.Type, p.TTLDuration(), rule.maxTTL)
		return makeError(ErrInvalidPayload, str)
	}
	if e.CreationTime.After(now.Add(maxClockSkew)) {
		str := fmt.Sprintf("creation time %v is too far in the future",
			e.CreationTime)
		return makeError(ErrInvalidPayload, str)
	}
	if !bytes.Equal(e.OwnerPubKey, p.OwnerPubKey) {
		return makeError(ErrOwnerMismatch, "entry key differs from the "+
			"payload owner key")
	}
	return nil
}
