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
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, root, rel string, mode os.FileMode, contents string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(contents), mode))
}

// writeGzipFile writes a real gzip member so sniffGzipMember accepts it, and
// returns the compressed byte length for length assertions.
func writeGzipFile(t *testing.T, root, rel string, mode os.FileMode, plaintext string) int {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(plaintext))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	writeFile(t, root, rel, mode, buf.String())
	return buf.Len()
}

func openRoot(t *testing.T, dir string) *os.Root {
	t.Helper()
	r, err := os.OpenRoot(dir)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpenWorldReadableFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", 0o644, "hello world")
	root := openRoot(t, dir)

	r, err := Open(zap.NewNop(), root, "index.html")
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, KindFile, r.Kind)
	require.Equal(t, "text/html", r.ContentType)
	require.EqualValues(t, len("hello world"), r.Length)
}

func TestOpenRejectsNonWorldReadable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "secret.txt", 0o640, "nope")
	root := openRoot(t, dir)

	_, err := Open(zap.NewNop(), root, "secret.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRejectsWorldExecNotUserExec(t *testing.T) {
	dir := t.TempDir()
	// 0o447: user r, group r, other rwx — world-executable without
	// being user-executable must be rejected (spec §4.2 step 3).
	writeFile(t, dir, "odd.bin", 0o446|0o001, "x")
	root := openRoot(t, dir)

	_, err := Open(zap.NewNop(), root, "odd.bin")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenMissingFile(t *testing.T) {
	dir := t.TempDir()
	root := openRoot(t, dir)
	_, err := Open(zap.NewNop(), root, "nope.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	root := openRoot(t, dir)

	r, err := Open(zap.NewNop(), root, "sub")
	require.NoError(t, err)
	require.Equal(t, KindDir, r.Kind)
}

func TestOpenWithIndexRedirect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "index.html", 0o644, "home page")
	root := openRoot(t, dir)

	r, err := OpenWithIndexRedirect(zap.NewNop(), root, ".")
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, KindFile, r.Kind)
	require.Equal(t, "text/html", r.ContentType)
}

func TestOpenWithIndexRedirectNoDoubleRedirect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub", "index.html"), 0o755))
	root := openRoot(t, dir)

	// index.html is itself a directory: the one-level redirect finds it,
	// but it must not be redirected again.
	r, err := OpenWithIndexRedirect(zap.NewNop(), root, "sub")
	require.NoError(t, err)
	require.Equal(t, KindDir, r.Kind)
}

func TestOpenWithGzipPrefersFreshVariant(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "style.css", 0o644, "body{}")
	gzLen := writeGzipFile(t, dir, "style.css.gz", 0o644, "body{}")

	base := filepath.Join(dir, "style.css")
	gz := filepath.Join(dir, "style.css.gz")
	now := time.Now()
	require.NoError(t, os.Chtimes(base, now, now))
	require.NoError(t, os.Chtimes(gz, now.Add(time.Second), now.Add(time.Second)))
	root := openRoot(t, dir)

	r, enc, err := OpenWithGzip(zap.NewNop(), root, "style.css")
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, "gzip", enc)
	require.Equal(t, "text/css", r.ContentType, "content-type stays the original file's")
	require.EqualValues(t, gzLen, r.Length, "length comes from the compressed sibling")
	require.WithinDuration(t, now, r.Modified, time.Second, "modified stays the original file's")
}

func TestOpenWithGzipRejectsStaleVariant(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "style.css", 0o644, "body{}")
	writeGzipFile(t, dir, "style.css.gz", 0o644, "body{}")

	base := filepath.Join(dir, "style.css")
	gz := filepath.Join(dir, "style.css.gz")
	now := time.Now()
	require.NoError(t, os.Chtimes(gz, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(base, now, now))
	root := openRoot(t, dir)

	r, enc, err := OpenWithGzip(zap.NewNop(), root, "style.css")
	require.NoError(t, err)
	defer r.Close()

	require.Empty(t, enc)
	require.EqualValues(t, len("body{}"), r.Length)
}

func TestOpenWithGzipRejectsInvalidGzipMember(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "style.css", 0o644, "body{}")
	writeFile(t, dir, "style.css.gz", 0o644, "not actually gzip")

	base := filepath.Join(dir, "style.css")
	gz := filepath.Join(dir, "style.css.gz")
	now := time.Now()
	require.NoError(t, os.Chtimes(base, now, now))
	require.NoError(t, os.Chtimes(gz, now.Add(time.Second), now.Add(time.Second)))
	root := openRoot(t, dir)

	r, enc, err := OpenWithGzip(zap.NewNop(), root, "style.css")
	require.NoError(t, err)
	defer r.Close()

	require.Empty(t, enc, "falls back to uncompressed when the sibling isn't valid gzip")
	require.EqualValues(t, len("body{}"), r.Length)
}

func TestOpenWithGzipMissingVariant(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain.txt", 0o644, "hi")
	root := openRoot(t, dir)

	r, enc, err := OpenWithGzip(zap.NewNop(), root, "plain.txt")
	require.NoError(t, err)
	defer r.Close()
	require.Empty(t, enc)
}

func TestContentTypeTable(t *testing.T) {
	cases := map[string]string{
		"/a.html":    "text/html",
		"/a.css":     "text/css",
		"/a.js":      "text/javascript",
		"/a.woff2":   "font/woff2",
		"/a.png":     "image/png",
		"/a.unknown": "text/plain",
		"/noext":     "text/plain",
	}
	for p, want := range cases {
		require.Equal(t, want, ContentType(p), "path %q", p)
	}
}
