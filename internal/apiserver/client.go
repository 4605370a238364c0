// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/decred/tradenet/internal/datastore"
	"github.com/gorilla/websocket"
)

// sendBufferSize is the number of outgoing messages buffered per client.
const sendBufferSize = 256

// wsClient provides an abstraction for handling a websocket client.  The
// overall data flow is split into 3 main goroutines.  The inHandler reads and
// answers requests, the ntfnHandler forwards data store events once the
// client subscribed and the outHandler writes everything to the connection.
type wsClient struct {
	disconnected atomic.Bool

	server *Server
	conn   *websocket.Conn
	addr   string

	subMtx sync.Mutex
	sub    *datastore.Subscription

	sendChan chan []byte
	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

func newWebsocketClient(s *Server, conn *websocket.Conn, addr string) *wsClient {
	return &wsClient{
		server:   s,
		conn:     conn,
		addr:     addr,
		sendChan: make(chan []byte, sendBufferSize),
		quit:     make(chan struct{}),
	}
}

// shouldLogReadError returns whether or not the passed error, which is expected
// to have come from reading from the websocket client in the inHandler, should
// be logged.
func (c *wsClient) shouldLogReadError(err error) bool {
	if c.disconnected.Load() {
		return false
	}
	if errors.Is(err, io.EOF) || websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {

		return false
	}
	return true
}

// handleRequest parses and answers a single request.
func (c *wsClient) handleRequest(raw []byte) *Response {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return &Response{
			ID:    json.RawMessage("null"),
			Error: &Error{Code: ErrParse, Message: "malformed request: " + err.Error()},
		}
	}
	resp := &Response{ID: req.ID}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("null")
	}
	handler, ok := handlers[req.Method]
	if !ok {
		resp.Error = &Error{Code: ErrMethodNotFound,
			Message: "unknown method " + req.Method}
		return resp
	}
	log.Debugf("Received %s request from %s", req.Method, c.addr)
	resp.Result, resp.Error = handler(c, req.Params)
	return resp
}

// inHandler handles all incoming messages for the websocket connection.  It
// must be run as a goroutine.
func (c *wsClient) inHandler() {
	defer c.wg.Done()
	for !c.disconnected.Load() {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if c.shouldLogReadError(err) {
				log.Errorf("Websocket receive error from %s: %v", c.addr, err)
			}
			break
		}
		reply, err := json.Marshal(c.handleRequest(msg))
		if err != nil {
			log.Errorf("Failed to marshal reply for %s: %v", c.addr, err)
			continue
		}
		if !c.send(reply) {
			break
		}
	}
	c.Disconnect()
	log.Tracef("Websocket client input handler done for %s", c.addr)
}

// send queues a message for the outHandler.  It returns false when the client
// disconnected.
func (c *wsClient) send(msg []byte) bool {
	select {
	case c.sendChan <- msg:
		return true
	case <-c.quit:
		return false
	}
}

// outHandler handles all outgoing messages for the websocket connection.  It
// must be run as a goroutine.
func (c *wsClient) outHandler() {
	defer c.wg.Done()
out:
	for {
		select {
		case msg := <-c.sendChan:
			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				c.Disconnect()
				break out
			}

		case <-c.quit:
			break out
		}
	}
	log.Tracef("Websocket client output handler done for %s", c.addr)
}

// subscribe starts forwarding data store events.  It returns false when the
// client is already subscribed.
func (c *wsClient) subscribe() bool {
	c.subMtx.Lock()
	defer c.subMtx.Unlock()
	if c.sub != nil || c.disconnected.Load() {
		return false
	}
	c.sub = c.server.cfg.Backend.Subscribe()
	c.wg.Add(1)
	go c.ntfnHandler(c.sub)
	return true
}

// ntfnHandler forwards data store events as update notifications until the
// subscription or the client is closed.  It must be run as a goroutine.
func (c *wsClient) ntfnHandler(sub *datastore.Subscription) {
	defer c.wg.Done()
	for ev := range sub.Events() {
		ntfn := &Notification{Method: NtfnUpdate, Params: updateNtfn(&ev)}
		msg, err := json.Marshal(ntfn)
		if err != nil {
			log.Errorf("Failed to marshal notification: %v", err)
			continue
		}
		if !c.send(msg) {
			return
		}
	}
}

// Disconnect disconnects the websocket client.  It is safe to call more than
// once.
func (c *wsClient) Disconnect() {
	c.quitOnce.Do(func() {
		c.disconnected.Store(true)
		close(c.quit)
		c.subMtx.Lock()
		if c.sub != nil {
			c.sub.Close()
		}
		c.subMtx.Unlock()
		c.conn.Close()
	})
}

// Run starts the handlers of the client and blocks until it disconnected or
// the context is cancelled.
func (c *wsClient) Run(ctx context.Context) {
	c.wg.Add(2)
	go c.inHandler()
	go c.outHandler()

	select {
	case <-c.quit:
	case <-ctx.Done():
		c.Disconnect()
	}
	c.wg.Wait()
}
