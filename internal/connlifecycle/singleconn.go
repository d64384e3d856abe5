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

package connlifecycle

import (
	"errors"
	"net"
	"sync"
)

// errSingleConnServed is returned by singleConnListener's second Accept
// call, once the one connection it holds has been handed out.
var errSingleConnServed = errors.New("connlifecycle: connection already served")

// singleConnListener adapts one already-accepted, already-handshaked
// net.Conn into the net.Listener shape http.Server.Serve expects, so an
// HTTP/1.1 connection that was accepted and TLS-handshaked by our own
// accept loop can still be served by the standard library's HTTP/1.1
// state machine.
type singleConnListener struct {
	conn net.Conn

	once sync.Once
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	return &singleConnListener{conn: conn}
}

// Accept yields l.conn exactly once. net/http's Serve loop spawns a
// goroutine per Accept and immediately calls Accept again; returning
// errSingleConnServed on that second call makes Serve return right away,
// while the already-spawned goroutine keeps serving l.conn independently
// until it closes. No busy-looping and no leaked blocked goroutine.
func (l *singleConnListener) Accept() (net.Conn, error) {
	var (
		c   net.Conn
		err error = errSingleConnServed
	)
	l.once.Do(func() {
		c, err = l.conn, nil
	})
	return c, err
}

// Close is deliberately a no-op. http.Server.Serve defers l.Close() and
// returns as soon as the second Accept yields errSingleConnServed, but by
// then the first Accept's connection is already being served on its own
// goroutine (spawned by Serve right after the first Accept). Closing
// l.conn here would race that goroutine's own reads/writes and cut the
// connection out from under it, breaking HTTP/1.1 keep-alive. The
// connection closes itself when its own serve loop is done with it.
func (l *singleConnListener) Close() error {
	return nil
}

func (l *singleConnListener) Addr() net.Addr {
	return l.conn.LocalAddr()
}
