// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package apiserver

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/internal/version"
	"github.com/decred/tradenet/wire"
)

// handlerFunc handles a single method.
type handlerFunc func(c *wsClient, params json.RawMessage) (interface{}, *Error)

// handlers maps method names to their handlers.
var handlers map[string]handlerFunc

func init() {
	handlers = map[string]handlerFunc{
		MethodPublish:   handlePublish,
		MethodQuery:     handleQuery,
		MethodSubscribe: handleSubscribe,
		MethodVersion:   handleVersion,
	}
}

func invalidParams(format string, args ...interface{}) *Error {
	return &Error{Code: ErrInvalidParams, Message: fmt.Sprintf(format, args...)}
}

// handlePublish decodes and publishes a protected entry, a removal or a
// persistable payload with the node as the data owner.
func handlePublish(c *wsClient, params json.RawMessage) (interface{}, *Error) {
	var p PublishParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams("malformed publish parameters: %v", err)
	}
	raw, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, invalidParams("data is not hex encoded: %v", err)
	}

	var msg wire.Message
	var hashStr string
	switch p.Kind {
	case PublishAdd, PublishRemove:
		e := new(wire.ProtectedEntry)
		if err := e.FromBytes(raw); err != nil {
			return nil, invalidParams("malformed protected entry: %v", err)
		}
		if p.Kind == PublishAdd {
			msg = wire.NewMsgAddData(e)
		} else {
			msg = wire.NewMsgRemoveData(e)
		}
		hash := e.PayloadHash()
		hashStr = hash.String()

	case PublishPayload:
		pl := new(wire.PersistablePayload)
		if err := pl.FromBytes(raw); err != nil {
			return nil, invalidParams("malformed payload: %v", err)
		}
		msg = wire.NewMsgAddPayload(pl)
		hash := pl.Hash()
		hashStr = hash.String()

	default:
		return nil, invalidParams("unknown publish kind %q", p.Kind)
	}

	if err := c.server.cfg.Backend.Publish(msg); err != nil {
		return nil, &Error{Code: ErrRejected, Message: err.Error()}
	}
	return &PublishResult{Hash: hashStr}, nil
}

// parseFilter converts query parameters to a data store filter.
func parseFilter(p *QueryParams) (*datastore.Filter, *Error) {
	f := new(datastore.Filter)
	for _, name := range p.Types {
		t, ok := wire.ParsePayloadType(name)
		if !ok {
			return nil, invalidParams("unknown payload type %q", name)
		}
		f.Types = append(f.Types, t)
	}
	if p.Owner != "" {
		owner, err := hex.DecodeString(p.Owner)
		if err != nil || len(owner) != wire.PubKeyLen {
			return nil, invalidParams("malformed owner key %q", p.Owner)
		}
		f.Owner = owner
	}
	return f, nil
}

// handleQuery returns the stored items matching the filter.
func handleQuery(c *wsClient, params json.RawMessage) (interface{}, *Error) {
	var p QueryParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("malformed query parameters: %v", err)
		}
	}
	f, apiErr := parseFilter(&p)
	if apiErr != nil {
		return nil, apiErr
	}

	entries, payloads := c.server.cfg.Backend.Query(f)
	result := &QueryResult{
		Entries:  make([]EntryResult, 0, len(entries)),
		Payloads: make([]PayloadResult, 0, len(payloads)),
	}
	for _, e := range entries {
		result.Entries = append(result.Entries, entryResult(e))
	}
	for _, pl := range payloads {
		result.Payloads = append(result.Payloads, payloadResult(pl))
	}
	return result, nil
}

// handleSubscribe starts sending update notifications to the client.
func handleSubscribe(c *wsClient, _ json.RawMessage) (interface{}, *Error) {
	if !c.subscribe() {
		return nil, &Error{Code: ErrAlreadyActive, Message: "already subscribed"}
	}
	return true, nil
}

// handleVersion returns the version of the node.
func handleVersion(_ *wsClient, _ json.RawMessage) (interface{}, *Error) {
	return &VersionResult{
		Version:         version.String(),
		UserAgent:       version.UserAgent(),
		ProtocolVersion: wire.ProtocolVersion,
	}, nil
}
