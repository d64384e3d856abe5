// Copyright 2015 Matthew Holt and The Caddy Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package connlifecycle binds the listening socket, wraps it with the
// shared TLS configuration, and runs the accept loop that hands each
// connection to the HTTP/1.1-or-2 framing layer. Every suspension point
// (accept, handshake, read, write) runs on its own goroutine; nothing here
// blocks the acceptor.
package connlifecycle

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Server owns the listening socket and the shared, immutable TLS and HTTP
// configuration. No per-connection or per-request state is shared between
// goroutines beyond these read-only references (spec §5).
type Server struct {
	Addr      string
	TLSConfig *tls.Config
	Handler   http.Handler
	Logger    *zap.Logger

	connCounter atomic.Uint64
}

// Bind opens the listening socket at s.Addr. This must happen before
// privilege.Drop so that privileged ports are reachable (spec §4.5 step 3).
func (s *Server) Bind() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("listening", zap.String("addr", s.Addr))
	return ln, nil
}

// Serve runs the accept loop against ln until it is closed. Each accepted
// connection is tagged with a fresh connection id and handed to its own
// goroutine for the TLS handshake and subsequent request serving; a
// handshake failure or connection error terminates only that connection.
func (s *Server) Serve(ln net.Listener) error {
	h2srv := &http2.Server{}
	httpSrv := &http.Server{
		Handler: s.Handler,
	}
	if err := http2.ConfigureServer(httpSrv, h2srv); err != nil {
		return err
	}

	tlsLn := tls.NewListener(ln, s.TLSConfig)
	for {
		conn, err := tlsLn.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Logger.Warn("error accepting", zap.Error(err))
			continue
		}

		cid := s.connCounter.Add(1)
		go s.serveConn(conn, httpSrv, h2srv, cid)
	}
}

func (s *Server) serveConn(conn net.Conn, httpSrv *http.Server, h2srv *http2.Server, cid uint64) {
	log := s.Logger.With(zap.Uint64("cid", cid), zap.String("peer", conn.RemoteAddr().String()))

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		// Should not happen: Serve always wraps with tls.NewListener.
		log.Warn("non-TLS connection reached accept loop")
		conn.Close()
		return
	}
	if err := tlsConn.Handshake(); err != nil {
		log.Warn("error in TLS handshake", zap.Error(err))
		conn.Close()
		return
	}

	log.Debug("ALPN result", zap.String("proto", tlsConn.ConnectionState().NegotiatedProtocol))

	if tlsConn.ConnectionState().NegotiatedProtocol == "h2" {
		h2srv.ServeConn(tlsConn, &http2.ServeConnOpts{
			Handler:    s.Handler,
			BaseConfig: httpSrv,
		})
		log.Info("connection closed")
		return
	}

	// HTTP/1.1: net/http normally owns the listener/accept lifecycle, so
	// a single already-handshaked connection is served by handing it a
	// one-shot listener that yields exactly this conn and then reports
	// errSingleConnServed.
	if err := httpSrv.Serve(newSingleConnListener(tlsConn)); err != nil && !errors.Is(err, errSingleConnServed) {
		log.Debug("error in connection", zap.Error(err))
	}
	log.Info("connection closed")
}
