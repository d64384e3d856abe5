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

// Command httpd2 is a hardened static-content HTTPS server: it serves
// files from a confined root directory and applies a defensive
// URL-normalization and filesystem-access policy so that only files the
// operator has explicitly marked world-readable can ever be served.
package main

import (
	"fmt"
	"os"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/jedahan/httpd2go/internal/serverconfig"
)

func main() {
	logger := newLogger()
	defer logger.Sync() //nolint:errcheck

	// Match GOMAXPROCS and the Go memory limit to the container's cgroup
	// quota, if any, the way a long-running server in this corpus always
	// does at startup.
	undoMaxProcs, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof))
	defer undoMaxProcs()
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	_, _ = memlimit.SetGoMemLimitWithOpts(
		memlimit.WithProvider(
			memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem),
		),
	)

	if err := newRootCommand(logger).Execute(); err != nil {
		os.Exit(1)
	}
}

var flags struct {
	chroot   bool
	addr     string
	uid      int64
	gid      int64
	hasUID   bool
	hasGID   bool
	keyPath  string
	certPath string
}

func newRootCommand(logger *zap.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "httpd2 DIR",
		Short: "Serve DIR over HTTPS under a publicfile-style access policy",
		Long: `httpd2 terminates TLS and serves files from DIR, applying a defensive
URL-normalization and filesystem-access policy: every request path is
reshaped before any filesystem call, and a file is only ever served if its
mode bits mark it world-readable. There is no dynamic content, no request
body handling, and no authentication; the only responses a client ever
sees are 200, 404, or a TLS/transport failure.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromFlags(args[0])
			if err != nil {
				return err
			}
			return run(cfg, logger)
		},
	}

	fs := cmd.Flags()
	fs.BoolVarP(&flags.chroot, "chroot", "c", false, "chroot into DIR after binding")
	fs.StringVarP(&flags.addr, "addr", "A", serverconfig.DefaultAddr, "bind address ADDR:PORT")
	fs.Int64VarP(&flags.uid, "uid", "U", 0, "numeric UID to setuid to")
	fs.Int64VarP(&flags.gid, "gid", "G", 0, "numeric GID to setgid to")
	fs.StringVarP(&flags.keyPath, "key-path", "k", serverconfig.DefaultKeyPath, "PEM private key path")
	fs.StringVarP(&flags.certPath, "cert-path", "r", serverconfig.DefaultCertPath, "PEM certificate chain path")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		flags.hasUID = fs.Changed("uid")
		flags.hasGID = fs.Changed("gid")
	}

	return cmd
}

func configFromFlags(root string) (serverconfig.Config, error) {
	cfg := serverconfig.Config{
		Root:     root,
		Addr:     flags.addr,
		KeyPath:  flags.keyPath,
		CertPath: flags.certPath,
		Chroot:   flags.chroot,
	}

	if flags.hasUID {
		if flags.uid < 0 || flags.uid > int64(^uint32(0)) {
			return cfg, fmt.Errorf("uid %d out of range", flags.uid)
		}
		uid := uint32(flags.uid)
		cfg.UID = &uid
	}
	if flags.hasGID {
		if flags.gid < 0 || flags.gid > int64(^uint32(0)) {
			return cfg, fmt.Errorf("gid %d out of range", flags.gid)
		}
		gid := uint32(flags.gid)
		cfg.GID = &gid
	}

	return cfg, nil
}

func newLogger() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}
