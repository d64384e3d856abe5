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

package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jedahan/httpd2go/internal/connlifecycle"
	"github.com/jedahan/httpd2go/internal/privilege"
	"github.com/jedahan/httpd2go/internal/servehttp"
	"github.com/jedahan/httpd2go/internal/serverconfig"
)

// run performs the full startup sequence from spec §4.5: load the TLS
// key/cert, bind the listening socket, drop privileges, build the TLS
// acceptor, and enter the accept loop. Every step before the privilege
// drop is ordered to happen while still privileged.
func run(cfg serverconfig.Config, logger *zap.Logger) error {
	instanceID := uuid.New()
	logger = logger.With(zap.String("instance", instanceID.String()))

	cert, err := serverconfig.LoadKeyPair(cfg.KeyPath, cfg.CertPath)
	if err != nil {
		return fmt.Errorf("httpd2: loading TLS key/cert: %w", err)
	}

	// Opened once, before any chdir/chroot during privilege drop: root
	// stays a valid handle into the content directory by file descriptor
	// regardless of what happens to the process's working directory or
	// filesystem namespace afterward.
	root, err := os.OpenRoot(cfg.Root)
	if err != nil {
		return fmt.Errorf("httpd2: opening content root %s: %w", cfg.Root, err)
	}

	srv := &connlifecycle.Server{
		Addr:      cfg.Addr,
		TLSConfig: serverconfig.NewTLSConfig(cert),
		Handler:   servehttp.NewHandler(root, logger),
		Logger:    logger,
	}

	ln, err := srv.Bind()
	if err != nil {
		return fmt.Errorf("httpd2: binding %s: %w", cfg.Addr, err)
	}

	if err := privilege.Drop(privilege.Config{
		Root:   cfg.Root,
		Chroot: cfg.Chroot,
		UID:    cfg.UID,
		GID:    cfg.GID,
	}); err != nil {
		return fmt.Errorf("httpd2: dropping privileges: %w", err)
	}

	return srv.Serve(ln)
}
