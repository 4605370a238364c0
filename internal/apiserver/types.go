// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package apiserver

import (
	"encoding/hex"
	"encoding/json"

	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/wire"
)

// Method names.
const (
	MethodPublish   = "publish"
	MethodQuery     = "query"
	MethodSubscribe = "subscribe"
	MethodVersion   = "version"

	// NtfnUpdate is the method of the notifications sent to subscribed
	// clients.
	NtfnUpdate = "update"
)

// Publish kinds.
const (
	PublishAdd     = "add"
	PublishRemove  = "remove"
	PublishPayload = "payload"
)

// ErrorCode identifies a kind of API error.
type ErrorCode int

// Error codes follow the JSON-RPC 2.0 reserved ranges where applicable.
const (
	ErrParse          ErrorCode = -32700
	ErrInvalidRequest ErrorCode = -32600
	ErrMethodNotFound ErrorCode = -32601
	ErrInvalidParams  ErrorCode = -32602
	ErrInternal       ErrorCode = -32603
	ErrRejected       ErrorCode = -1
	ErrAlreadyActive  ErrorCode = -2
)

// Request is a request sent by a client.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Error is an error returned to a client.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Response is the reply to a Request with the same ID.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result interface{}     `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Notification is sent to clients without a preceding request.
type Notification struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// PublishParams are the parameters of the publish method.  Data holds the
// hex encoded serialization of a protected entry for the add and remove kinds
// and of a persistable payload for the payload kind.
type PublishParams struct {
	Kind string `json:"kind"`
	Data string `json:"data"`
}

// PublishResult is the result of the publish method.
type PublishResult struct {
	Hash string `json:"hash"`
}

// QueryParams are the parameters of the query method.  Empty fields match
// everything.
type QueryParams struct {
	Types []string `json:"types,omitempty"`
	Owner string   `json:"owner,omitempty"`
}

// EntryResult describes a protected entry.
type EntryResult struct {
	Hash           string `json:"hash"`
	Type           string `json:"type"`
	Owner          string `json:"owner"`
	SequenceNumber uint32 `json:"sequencenumber"`
	CreationTime   int64  `json:"creationtime"`
	ExpiresAt      int64  `json:"expiresat"`
	Data           string `json:"data"`
	Raw            string `json:"raw"`
}

// PayloadResult describes a persistable payload.
type PayloadResult struct {
	Hash string `json:"hash"`
	Type string `json:"type"`
	Data string `json:"data"`
	Raw  string `json:"raw"`
}

// QueryResult is the result of the query method.
type QueryResult struct {
	Entries  []EntryResult   `json:"entries"`
	Payloads []PayloadResult `json:"payloads"`
}

// VersionResult is the result of the version method.
type VersionResult struct {
	Version         string `json:"version"`
	UserAgent       string `json:"useragent"`
	ProtocolVersion uint32 `json:"protocolversion"`
}

// UpdateNtfn is the parameter of update notifications.
type UpdateNtfn struct {
	Kind    string         `json:"kind"`
	Hash    string         `json:"hash"`
	Expired bool           `json:"expired,omitempty"`
	Entry   *EntryResult   `json:"entry,omitempty"`
	Payload *PayloadResult `json:"payload,omitempty"`
}

func entryResult(e *wire.ProtectedEntry) EntryResult {
	hash := e.PayloadHash()
	raw, _ := e.Bytes()
	return EntryResult{
		Hash:           hash.String(),
		Type:           e.Payload.Type.String(),
		Owner:          hex.EncodeToString(e.OwnerPubKey),
		SequenceNumber: e.SequenceNumber,
		CreationTime:   e.CreationTime.Unix(),
		ExpiresAt:      e.ExpiresAt().Unix(),
		Data:           hex.EncodeToString(e.Payload.Data),
		Raw:            hex.EncodeToString(raw),
	}
}

func payloadResult(p *wire.PersistablePayload) PayloadResult {
	hash := p.Hash()
	raw, _ := p.Bytes()
	return PayloadResult{
		Hash: hash.String(),
		Type: p.Type.String(),
		Data: hex.EncodeToString(p.Data),
		Raw:  hex.EncodeToString(raw),
	}
}

func updateNtfn(ev *datastore.Event) *UpdateNtfn {
	ntfn := &UpdateNtfn{
		Kind:    ev.Kind.String(),
		Hash:    ev.Hash.String(),
		Expired: ev.Expired,
	}
	if ev.Entry != nil {
		r := entryResult(ev.Entry)
		ntfn.Entry = &r
	}
	if ev.Payload != nil {
		r := payloadResult(ev.Payload)
		ntfn.Payload = &r
	}
	return ntfn
}
