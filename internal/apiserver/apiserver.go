// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package apiserver exposes the data store of a node to local applications
// over a websocket connection.
//
// Requests and responses are JSON objects.  A request names a method and its
// parameters and carries an id that is echoed in the response:
//
//	{"id":1,"method":"query","params":{"types":["offer"]}}
//
// The supported methods are publish, query, subscribe and version.  After a
// successful subscribe request the client receives an update notification for
// every item added to or removed from the data store.
package apiserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/decred/tradenet/internal/datastore"
	"github.com/decred/tradenet/wire"
	"github.com/gorilla/websocket"
)

const (
	// DefaultMaxClients is the default maximum number of concurrent
	// websocket clients.
	DefaultMaxClients = 25

	// websocketReadLimit is the maximum size of a request.
	websocketReadLimit = 4 * wire.MaxPayloadDataSize

	// websocketPongTimeout is the time allowed for writing a pong.
	websocketPongTimeout = 10 * time.Second
)

// Backend is the node the API server operates on.
type Backend interface {
	// Publish adds locally created data to the data store and broadcasts it.
	// The message is one of *wire.MsgAddData, *wire.MsgRemoveData or
	// *wire.MsgAddPayload.
	Publish(msg wire.Message) error

	// Query returns the stored items matching the filter.
	Query(f *datastore.Filter) ([]*wire.ProtectedEntry, []*wire.PersistablePayload)

	// Subscribe returns a subscription to data store changes.
	Subscribe() *datastore.Subscription
}

// Config is a descriptor containing the API server configuration.
type Config struct {
	// Listeners defines the listeners the server takes ownership of and
	// accepts connections on.
	Listeners []net.Listener

	// Backend is the node serving the requests.
	Backend Backend

	// MaxClients is the maximum number of concurrent websocket clients.
	MaxClients int
}

// Server serves the websocket API.
type Server struct {
	cfg        Config
	numClients atomic.Int32
	wg         sync.WaitGroup
}

// New returns an API server with the passed configuration.
func New(cfg *Config) *Server {
	s := &Server{cfg: *cfg}
	if s.cfg.MaxClients <= 0 {
		s.cfg.MaxClients = DefaultMaxClients
	}
	return s
}

// equalASCIIFold returns true if s is equal to t with ASCII case folding as
// defined in RFC 4790.
func equalASCIIFold(s, t string) bool {
	for s != "" && t != "" {
		sr, size := utf8.DecodeRuneInString(s)
		s = s[size:]
		tr, size := utf8.DecodeRuneInString(t)
		t = t[size:]
		if sr == tr {
			continue
		}
		if 'A' <= sr && sr <= 'Z' {
			sr = sr + 'a' - 'A'
		}
		if 'A' <= tr && tr <= 'Z' {
			tr = tr + 'a' - 'A'
		}
		if sr != tr {
			return false
		}
	}
	return s == t
}

// checkOrigin allows requests without an origin, from local resources and
// from pages served by the same host.
func checkOrigin(r *http.Request) bool {
	origin := r.Header["Origin"]
	if len(origin) == 0 {
		return true
	}
	originURL, err := url.Parse(origin[0])
	if err != nil {
		return false
	}
	if originURL.Scheme == "file" || originURL.Path == "null" {
		return true
	}
	originHost, requestHost := originURL.Host, r.Host
	if host, _, err := net.SplitHostPort(originHost); err == nil {
		originHost = host
	}
	if host, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = host
	}
	return equalASCIIFold(originHost, requestHost)
}

// websocketHandler serves a new websocket client and blocks until it
// disconnects.
func (s *Server) websocketHandler(ctx context.Context, conn *websocket.Conn, remoteAddr string) {
	if int(s.numClients.Add(1)) > s.cfg.MaxClients {
		s.numClients.Add(-1)
		log.Infof("Max websocket clients exceeded [%d] - disconnecting "+
			"client %s", s.cfg.MaxClients, remoteAddr)
		conn.Close()
		return
	}
	defer s.numClients.Add(-1)
	s.wg.Add(1)
	defer s.wg.Done()

	log.Infof("New websocket client %s", remoteAddr)
	client := newWebsocketClient(s, conn, remoteAddr)
	client.Run(ctx)
	log.Infof("Disconnected websocket client %s", remoteAddr)
}

// route sets up the endpoints of the server.
func (s *Server) route(ctx context.Context) *http.Server {
	mux := http.NewServeMux()
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			var herr websocket.HandshakeError
			if !errors.As(err, &herr) {
				log.Errorf("Unexpected websocket error: %v", err)
			}
			return
		}
		ws.SetPingHandler(func(payload string) error {
			var netErr net.Error
			err := ws.WriteControl(websocket.PongMessage, []byte(payload),
				time.Now().Add(websocketPongTimeout))
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) &&
				!(errors.As(err, &netErr) && netErr.Timeout()) {

				log.Errorf("Failed to send pong: %v", err)
				return err
			}
			return nil
		})
		ws.SetReadLimit(websocketReadLimit)
		s.websocketHandler(ctx, ws, r.RemoteAddr)
	})
	return httpServer
}

// Run starts the server and its listeners.  It blocks until the provided
// context is cancelled and all clients disconnected.
func (s *Server) Run(ctx context.Context) {
	log.Trace("Starting API server")
	server := s.route(ctx)
	for _, listener := range s.cfg.Listeners {
		s.wg.Add(1)
		go func(listener net.Listener) {
			defer s.wg.Done()
			log.Infof("API server listening on %s", listener.Addr())
			err := server.Serve(listener)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("API listener %s: %v", listener.Addr(), err)
			}
			log.Tracef("API listener done for %s", listener.Addr())
		}(listener)
	}

	<-ctx.Done()
	if err := server.Close(); err != nil {
		log.Errorf("Unable to close API server: %v", err)
	}
	s.wg.Wait()
	log.Trace("API server stopped")
}

// NumClients returns the number of connected websocket clients.
func (s *Server) NumClients() int {
	return int(s.numClients.Load())
}
