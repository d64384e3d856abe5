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

// Package servehttp maps a parsed HTTP request to a response using
// pathsafe and fileaccess: it is the only place that reads requests and
// writes response headers and bodies.
package servehttp

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/jedahan/httpd2go/internal/fileaccess"
	"github.com/jedahan/httpd2go/internal/pathsafe"
)

// Handler serves static files from Root according to the picky-open
// policy. It implements http.Handler and is safe for concurrent use; it
// holds no mutable state of its own beyond the request-id counter. Root
// is an *os.Root rather than a path string so that lookups stay confined
// to the content directory by file descriptor even after the process has
// chdir'd or chroot'd elsewhere during privilege drop.
type Handler struct {
	Root   *os.Root
	Logger *zap.Logger

	requestCounter atomic.Uint64
}

// NewHandler constructs a Handler rooted at root, logging through log.
func NewHandler(root *os.Root, log *zap.Logger) *Handler {
	return &Handler{Root: root, Logger: log}
}

// ServeHTTP implements the Request Handler pipeline (spec §4.4): method
// dispatch, Accept-Encoding scan, path normalization, variant selection,
// and header/body emission.
func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rid := h.requestCounter.Add(1)
	log := h.Logger.With(zap.Uint64("rid", rid))

	switch req.Method {
	case http.MethodGet, http.MethodHead:
	default:
		// Deliberately indistinguishable from any other 404: the server
		// never reports 405, to avoid giving a method-probing client any
		// signal (spec §4.4).
		w.WriteHeader(http.StatusNotFound)
		return
	}

	acceptGzip := acceptsGzip(req.Header.Values("Accept-Encoding"))
	// req.URL.Path is already percent-decoded once by net/http; normalizing
	// that would decode escapes a second time. EscapedPath returns the raw,
	// still-encoded path so pathsafe's own decoder is the only one that
	// ever runs, matching the original's raw uri().path() (spec §8).
	relPath := pathsafe.Normalize(req.URL.EscapedPath())
	log.Info("request", zap.String("method", req.Method), zap.String("path", relPath))

	var (
		result fileaccess.Result
		enc    string
		err    error
	)
	if acceptGzip {
		result, enc, err = fileaccess.OpenWithGzip(log, h.Root, relPath)
	} else {
		result, err = fileaccess.OpenWithIndexRedirect(log, h.Root, relPath)
	}
	if err == nil {
		defer result.Close()
	}

	switch {
	case err != nil:
		log.Info("failed", zap.Error(err))
		w.WriteHeader(http.StatusNotFound)
	case result.Kind != fileaccess.KindFile:
		log.Info("failed: would serve directory")
		w.WriteHeader(http.StatusNotFound)
	default:
		writeFile(w, req, log, result, enc)
	}
}

func writeFile(w http.ResponseWriter, req *http.Request, log *zap.Logger, r fileaccess.Result, enc string) {
	header := w.Header()
	header.Set("Content-Length", strconv.FormatInt(r.Length, 10))
	header.Set("Content-Type", r.ContentType)
	header.Set("Last-Modified", r.Modified.UTC().Format(http.TimeFormat))
	if enc != "" {
		header.Set("Content-Encoding", enc)
	}
	w.WriteHeader(http.StatusOK)

	if req.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, r.File)
	if err != nil {
		log.Debug("error streaming body", zap.Error(err))
		return
	}
	log.Info("OK", zap.Int64("len", n), zap.String("encoding", enc))
}

// acceptsGzip reports whether any Accept-Encoding header value, split on
// commas and trimmed, contains the exact token "gzip".
func acceptsGzip(values []string) bool {
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if strings.TrimSpace(item) == "gzip" {
				return true
			}
		}
	}
	return false
}

