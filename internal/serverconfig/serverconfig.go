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

// Package serverconfig holds the server's immutable startup configuration
// and builds the shared TLS configuration from it. Nothing here mutates
// after startup; the resulting *tls.Config is shared by reference across
// every connection-handling goroutine.
package serverconfig

// Config is the server's full immutable configuration, assembled once
// from parsed CLI flags (spec §3, §6.1).
type Config struct {
	Root     string
	Addr     string
	KeyPath  string
	CertPath string
	Chroot   bool
	UID      *uint32
	GID      *uint32
}

// Default bind values (spec §6.1).
const (
	DefaultAddr     = "[::]:8000"
	DefaultKeyPath  = "localhost.key"
	DefaultCertPath = "localhost.crt"
)
