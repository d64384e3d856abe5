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

// Package fileaccess implements the "picky open" filesystem access policy:
// a path is only ever acknowledged to exist if it is a regular file or
// directory that is readable by user, group, and other, and is not
// world-executable without also being user-executable. Every other
// condition — missing file, wrong permissions, wrong type, I/O error — is
// collapsed to the single ErrNotFound sentinel so that probing the
// filesystem from the network can never distinguish *why* access failed.
package fileaccess

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ErrNotFound is returned for every access-denied or missing-path outcome.
var ErrNotFound = errors.New("fileaccess: not found")

// requiredReadBits is user+group+other read (0o444).
const requiredReadBits = 0o444

// worldXNotUserX is the bit pattern for "world-executable, not user-executable".
const worldXNotUserX = 0o101

// Kind distinguishes the two successful outcomes of a picky open.
type Kind int

const (
	// KindFile is a readable regular file.
	KindFile Kind = iota
	// KindDir is a readable directory.
	KindDir
)

// Result is the sum type produced by Open and its layered extensions. For
// KindDir, only Kind is meaningful; callers must close File when Kind is
// KindFile and File is non-nil.
type Result struct {
	Kind        Kind
	File        *os.File
	ContentType string
	Length      int64
	Modified    time.Time
}

// Close releases the underlying file handle, if any. Safe to call on a
// zero Result or a Result for a directory.
func (r Result) Close() error {
	if r.File == nil {
		return nil
	}
	return r.File.Close()
}

// Open performs the picky-open algorithm against relPath, resolved inside
// root: it opens the path through root (an *os.Root confined to the
// server's content directory, so ".." and absolute-path escapes are
// rejected at the syscall boundary regardless of what the normalizer
// already removed), stats the opened handle — never the path, which
// defeats TOCTOU swaps between check and use — and only returns success
// if the mode bits satisfy the world-readable-but-sane-executable policy.
func Open(log *zap.Logger, root *os.Root, relPath string) (Result, error) {
	log = log.With(zap.String("path", relPath))
	log.Debug("picky_open")

	f, err := root.Open(relPath)
	if err != nil {
		log.Debug("can't open", zap.Error(err))
		return Result{}, ErrNotFound
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Result{}, ErrNotFound
	}

	mode := info.Mode()
	perm := mode.Perm()
	if perm&requiredReadBits != requiredReadBits || perm&worldXNotUserX == 0o001 {
		log.Debug("mode not ok", zap.Stringer("mode", mode))
		f.Close()
		return Result{}, ErrNotFound
	}

	switch {
	case mode.IsRegular():
		log.Debug("opened", zap.String("size", humanize.Bytes(uint64(info.Size()))))
		return Result{
			Kind:        KindFile,
			File:        f,
			ContentType: ContentType(relPath),
			Length:      info.Size(),
			Modified:    info.ModTime(),
		}, nil
	case mode.IsDir():
		f.Close()
		return Result{Kind: KindDir}, nil
	default:
		log.Debug("neither file nor dir")
		f.Close()
		return Result{}, ErrNotFound
	}
}

// IsNotFound reports whether err is the picky-open not-found sentinel,
// including wrapped instances and the plain fs.ErrNotExist the standard
// library itself returns from a failed os.Open.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}
