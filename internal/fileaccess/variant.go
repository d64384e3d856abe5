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

package fileaccess

import (
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

// gzipEncoding is the only Content-Encoding value this server ever emits.
const gzipEncoding = "gzip"

// OpenWithIndexRedirect extends Open with directory-index redirection: if
// path names a directory, it retries the picky open against
// path+"/index.html". There is no second level of redirection — if that
// also names a directory, the caller sees KindDir and must treat it as
// not found.
func OpenWithIndexRedirect(log *zap.Logger, root *os.Root, relPath string) (Result, error) {
	r, err := Open(log, root, relPath)
	if err != nil {
		return Result{}, err
	}
	if r.Kind != KindDir {
		return r, nil
	}
	log.Debug("--> index.html", zap.String("path", relPath))
	return Open(log, root, relPath+"/index.html")
}

// OpenWithGzip extends OpenWithIndexRedirect with precompressed-alternate
// selection. When the index-redirected open yields a KindFile, it probes
// for a sibling of the file actually opened (path+".gz", or
// path+"/index.html.gz" after a redirect); if that sibling exists, passes the picky
// predicate, and is at least as fresh as the original (Modified >=
// original Modified), the sibling's handle and length are substituted
// while the original ContentType and Modified are preserved. Returns the
// Result plus "gzip" if the alternate was selected, or "" otherwise.
func OpenWithGzip(log *zap.Logger, root *os.Root, relPath string) (Result, string, error) {
	r, err := Open(log, root, relPath)
	if err != nil {
		return Result{}, "", err
	}
	if r.Kind == KindDir {
		log.Debug("--> index.html", zap.String("path", relPath))
		relPath += "/index.html"
		r, err = Open(log, root, relPath)
		if err != nil {
			return Result{}, "", err
		}
	}
	if r.Kind != KindFile {
		return r, "", nil
	}

	log.Debug("checking for precompressed alternate", zap.String("path", relPath))
	gz, gzErr := Open(log, root, relPath+".gz")
	if gzErr != nil || gz.Kind != KindFile || gz.Modified.Before(r.Modified) {
		if gzErr == nil {
			gz.Close()
		}
		log.Debug("serving uncompressed")
		return r, "", nil
	}

	if !sniffGzipMember(log, gz.File) {
		log.Warn("precompressed alternate is not valid gzip, serving uncompressed", zap.String("path", relPath))
		gz.Close()
		return r, "", nil
	}

	// Preserve the original file's Content-Type and Modified; only the
	// handle and length come from the compressed sibling.
	r.Close()
	log.Debug("serving gzip")
	return Result{
		Kind:        KindFile,
		File:        gz.File,
		ContentType: r.ContentType,
		Length:      gz.Length,
		Modified:    r.Modified,
	}, gzipEncoding, nil
}

// sniffGzipMember reads just the gzip member header off f to confirm the
// ".gz" sibling is actually gzip-encoded before it is substituted for the
// original file, then rewinds f so the handler streams from the start.
// It never decompresses the body.
func sniffGzipMember(log *zap.Logger, f *os.File) bool {
	zr, err := gzip.NewReader(f)
	if err != nil {
		log.Debug("gzip header sniff failed", zap.Error(err))
		return false
	}
	zr.Close()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		log.Debug("rewind after gzip sniff failed", zap.Error(err))
		return false
	}
	return true
}
