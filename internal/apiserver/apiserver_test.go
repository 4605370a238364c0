// Copyright (c) 2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package apiserver

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/internal/version"
	"github.com/decred/tradenet/wire"
	"github.com/gorilla/websocket"
)

// testBackend serves requests from an in-memory data store.
type testBackend struct {
	ds *datastore.DataStore

	mtx       sync.Mutex
	published []wire.Message
}

func (b *testBackend) numPublished() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	return len(b.published)
}

func (b *testBackend) Publish(msg wire.Message) error {
	b.mtx.Lock()
	b.published = append(b.published, msg)
	b.mtx.Unlock()
	switch m := msg.(type) {
	case *wire.MsgAddData:
		return b.ds.AddProtectedEntry(&m.Entry, nil, false)
	case *wire.MsgRemoveData:
		return b.ds.RemoveProtectedEntry(&m.Entry, nil, false)
	case *wire.MsgAddPayload:
		return b.ds.AddPersistablePayload(&m.Payload, nil, false)
	}
	return errors.New("unsupported message")
}

func (b *testBackend) Query(f *datastore.Filter) ([]*wire.ProtectedEntry, []*wire.PersistablePayload) {
	return b.ds.Entries(f), b.ds.Payloads(f)
}

func (b *testBackend) Subscribe() *datastore.Subscription {
	return b.ds.Subscribe()
}

// testClient is a websocket connection to a test server.
type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   int
}

func newTestServer(t *testing.T) (*testBackend, *testClient) {
	t.Helper()
	ds, err := datastore.New(&datastore.Config{})
	if err != nil {
		t.Fatal(err)
	}
	backend := &testBackend{ds: ds}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(&Config{Backend: backend})
	ts := httptest.NewServer(s.route(ctx).Handler)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unable to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return backend, &testClient{t: t, conn: conn}
}

// call sends a request and decodes the result of the response into result.
func (c *testClient) call(method string, params, result interface{}) *Error {
	c.t.Helper()
	c.id++
	req := map[string]interface{}{"id": c.id, "method": method}
	if params != nil {
		req["params"] = params
	}
	if err := c.conn.WriteJSON(req); err != nil {
		c.t.Fatalf("unable to send request: %v", err)
	}
	var resp struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.ReadJSON(&resp); err != nil {
		c.t.Fatalf("unable to read response: %v", err)
	}
	if resp.ID != c.id {
		c.t.Fatalf("unexpected response id: got %d, want %d", resp.ID, c.id)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			c.t.Fatalf("unable to decode result: %v", err)
		}
	}
	return nil
}

func signedEntry(t *testing.T, data string, seq uint32, op wire.SignatureOp) *wire.ProtectedEntry {
	t.Helper()
	var key [32]byte
	key[0], key[31] = 1, 9
	e := &wire.ProtectedEntry{
		Payload: wire.StoragePayload{
			Type: wire.PayloadOffer,
			TTL:  300,
			Data: []byte(data),
		},
		SequenceNumber: seq,
		CreationTime:   time.Now(),
	}
	if err := wire.SignEntry(e, op, secp256k1.PrivKeyFromBytes(key[:])); err != nil {
		t.Fatal(err)
	}
	return e
}

func hexBytes(t *testing.T, b interface{ Bytes() ([]byte, error) }) string {
	t.Helper()
	raw, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return hex.EncodeToString(raw)
}

// TestVersion ensures the version method reports the node version.
func TestVersion(t *testing.T) {
	_, c := newTestServer(t)
	var result VersionResult
	if err := c.call(MethodVersion, nil, &result); err != nil {
		t.Fatalf("version: %v", err)
	}
	if result.Version != version.String() || result.ProtocolVersion != wire.ProtocolVersion {
		t.Fatalf("unexpected version result: %v", spew.Sdump(result))
	}
}

// TestPublishQuery ensures published items are stored and returned by
// queries.
func TestPublishQuery(t *testing.T) {
	backend, c := newTestServer(t)

	e := signedEntry(t, "offer", 1, wire.SigOpStore)
	var pub PublishResult
	params := &PublishParams{Kind: PublishAdd, Data: hexBytes(t, e)}
	if err := c.call(MethodPublish, params, &pub); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if hash := e.PayloadHash(); pub.Hash != hash.String() {
		t.Fatalf("unexpected hash: got %s, want %s", pub.Hash, hash)
	}

	p := &wire.PersistablePayload{Type: wire.PayloadTradeStatistics, Data: []byte("stats")}
	params = &PublishParams{Kind: PublishPayload, Data: hexBytes(t, p)}
	if err := c.call(MethodPublish, params, nil); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Publishing the same version again is refused by the store.
	params = &PublishParams{Kind: PublishAdd, Data: hexBytes(t, e)}
	err := c.call(MethodPublish, params, nil)
	if err == nil || err.Code != ErrRejected {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := backend.numPublished(); n != 3 {
		t.Fatalf("unexpected number of published messages: %d", n)
	}

	var result QueryResult
	if err := c.call(MethodQuery, &QueryParams{Types: []string{"offer"}}, &result); err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Entries) != 1 || len(result.Payloads) != 0 {
		t.Fatalf("unexpected query result: %v", spew.Sdump(result))
	}
	got := result.Entries[0]
	if got.SequenceNumber != 1 || got.Data != hex.EncodeToString([]byte("offer")) ||
		got.Raw != hexBytes(t, e) {
		t.Fatalf("unexpected entry: %v", spew.Sdump(got))
	}

	result = QueryResult{}
	if err := c.call(MethodQuery, nil, &result); err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(result.Entries) != 1 || len(result.Payloads) != 1 {
		t.Fatalf("unexpected query result: %v", spew.Sdump(result))
	}
}

// TestInvalidRequests ensures malformed requests are answered with errors
// and do not end the session.
func TestInvalidRequests(t *testing.T) {
	_, c := newTestServer(t)
	tests := []struct {
		method string
		params interface{}
		code   ErrorCode
	}{
		{"nosuchmethod", nil, ErrMethodNotFound},
		{MethodPublish, &PublishParams{Kind: "bogus", Data: ""}, ErrInvalidParams},
		{MethodPublish, &PublishParams{Kind: PublishAdd, Data: "zz"}, ErrInvalidParams},
		{MethodPublish, &PublishParams{Kind: PublishAdd, Data: "0102"}, ErrInvalidParams},
		{MethodQuery, &QueryParams{Types: []string{"bogus"}}, ErrInvalidParams},
		{MethodQuery, &QueryParams{Owner: "0102"}, ErrInvalidParams},
	}
	for _, test := range tests {
		err := c.call(test.method, test.params, nil)
		if err == nil || err.Code != test.code {
			t.Fatalf("%s %v: unexpected error: got %v, want code %d",
				test.method, spew.Sdump(test.params), err, test.code)
		}
	}
	if err := c.call(MethodVersion, nil, nil); err != nil {
		t.Fatalf("version after errors: %v", err)
	}
}

// TestSubscribe ensures subscribed clients receive update notifications.
func TestSubscribe(t *testing.T) {
	backend, c := newTestServer(t)
	if err := c.call(MethodSubscribe, nil, nil); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := c.call(MethodSubscribe, nil, nil); err == nil || err.Code != ErrAlreadyActive {
		t.Fatalf("unexpected error on second subscribe: %v", err)
	}

	e := signedEntry(t, "offer", 1, wire.SigOpStore)
	if err := backend.ds.AddProtectedEntry(e, nil, false); err != nil {
		t.Fatal(err)
	}
	tombstone := signedEntry(t, "offer", 2, wire.SigOpRemove)
	if err := backend.ds.RemoveProtectedEntry(tombstone, nil, false); err != nil {
		t.Fatal(err)
	}

	hash := e.PayloadHash()
	for _, kind := range []string{"added", "removed"} {
		var ntfn struct {
			Method string     `json:"method"`
			Params UpdateNtfn `json:"params"`
		}
		c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.ReadJSON(&ntfn); err != nil {
			t.Fatalf("unable to read notification: %v", err)
		}
		if ntfn.Method != NtfnUpdate || ntfn.Params.Kind != kind ||
			ntfn.Params.Hash != hash.String() || ntfn.Params.Entry == nil {
			t.Fatalf("unexpected notification: %v", spew.Sdump(ntfn))
		}
	}
}

// TestCheckOrigin ensures cross origin requests from other hosts are refused.
func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "127.0.0.1:9998", true},
		{"file://", "127.0.0.1:9998", true},
		{"http://127.0.0.1:8080", "127.0.0.1:9998", true},
		{"http://LOCALHOST", "localhost:9998", true},
		{"http://evil.example", "127.0.0.1:9998", false},
	}
	for _, test := range tests {
		r := &http.Request{Header: make(http.Header), Host: test.host}
		if test.origin != "" {
			r.Header.Set("Origin", test.origin)
		}
		if got := checkOrigin(r); got != test.want {
			t.Errorf("origin %q host %q: got %v, want %v", test.origin,
				test.host, got, test.want)
		}
	}
}
