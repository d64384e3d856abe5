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

// The build constraint limits this package to unix systems, where the
// chroot, setgid, setgroups and setuid calls below exist.
//go:build unix

// Package privilege performs the server's one irreversible, process-wide
// operation: chdir into the content root, optionally chroot into it, and
// drop group and user privileges. The steps must run in exactly this
// order — chdir before chroot so relative opens target the confined tree,
// and setgid/setgroups before setuid because only the privileged UID may
// still alter group membership once it has called setuid.
package privilege

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Config describes the privilege-drop sequence to perform. UID and GID
// are pointers so "not provided" is distinguishable from UID/GID zero.
type Config struct {
	Root   string
	Chroot bool
	UID    *uint32
	GID    *uint32
}

// Drop performs chdir -> chroot -> setgid+setgroups -> setuid, in that
// order, per cfg. It is meant to be called exactly once, between binding
// the listening socket and entering the TLS accept loop (spec §4.5).
func Drop(cfg Config) error {
	if err := unix.Chdir(cfg.Root); err != nil {
		return fmt.Errorf("privilege: chdir %q: %w", cfg.Root, err)
	}

	if cfg.Chroot {
		if err := unix.Chroot(cfg.Root); err != nil {
			return fmt.Errorf("privilege: chroot %q: %w", cfg.Root, err)
		}
	}

	if cfg.GID != nil {
		gid := int(*cfg.GID)
		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf("privilege: setgid %d: %w", gid, err)
		}
		if err := unix.Setgroups([]int{gid}); err != nil {
			return fmt.Errorf("privilege: setgroups [%d]: %w", gid, err)
		}
	}

	if cfg.UID != nil {
		uid := int(*cfg.UID)
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("privilege: setuid %d: %w", uid, err)
		}
	}

	return nil
}
