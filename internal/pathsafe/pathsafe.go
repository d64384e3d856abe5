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

// Package pathsafe turns an untrusted HTTP request path into a path that is
// always safe to hand to the filesystem: relative, free of NUL bytes, free
// of doubled slashes, and free of "." or ".." segments.
//
// Normalize composes two passes: a tolerant percent-decoder and a sanitizer.
// Each is a single left-to-right scan over a byte buffer, run one after
// the other; no filesystem access occurs here.
package pathsafe

import "strings"

// Normalize sanitizes raw, the path component of a request URI, into a
// string that begins with "./", contains no embedded NUL, no run of two or
// more consecutive '/', and no segment equal to "." or "..".
func Normalize(raw string) string {
	return sanitize(percentDecode(raw))
}

// percentDecode tolerantly decodes %HH escapes in s. A malformed escape
// (fewer than two trailing characters, or non-hex characters) is preserved
// literally, lookahead bytes included, rather than rejected; those lookahead
// bytes are consumed and never rescanned as the start of a new escape, so
// "%%41" decodes to "%%41", never "%A". A well-formed escape decodes to a
// single byte and is not re-scanned either, so "%2525" decodes to "%25",
// never "%".
func percentDecode(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	i := 0
	for i < len(s) {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			i++
			continue
		}
		// c == '%'; look ahead (without consuming yet) at up to two
		// following bytes.
		hasLA1 := i+1 < len(s)
		hasLA2 := i+2 < len(s)
		if hasLA1 && hasLA2 {
			x, okX := hexit(s[i+1])
			y, okY := hexit(s[i+2])
			if okX && okY {
				b.WriteByte(x<<4 | y)
				i += 3
				continue
			}
			// Malformed: not hex. Emit '%' and both examined lookahead
			// bytes literally, and consume all three so neither lookahead
			// byte is rescanned as the start of another escape.
			b.WriteByte('%')
			b.WriteByte(s[i+1])
			b.WriteByte(s[i+2])
			i += 3
			continue
		}
		// Truncated: fewer than two bytes remain after '%'. Emit '%' plus
		// whatever single lookahead byte exists, consuming it too.
		b.WriteByte('%')
		if hasLA1 {
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		i++
	}
	return b.String()
}

func hexit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

type sanitizerState int

const (
	stateSlash sanitizerState = iota // just emitted (or about to emit) a '/'
	stateNormal
)

// sanitize consumes the percent-decoded stream and emits the "./"-rooted,
// slash-collapsed, dot-neutralized, NUL-free path. See spec §4.1 for the
// state table this implements.
func sanitize(decoded string) string {
	var b strings.Builder
	b.Grow(len(decoded) + 2)
	b.WriteString("./")

	state := stateSlash
	for i := 0; i < len(decoded); i++ {
		c := decoded[i]
		switch {
		case c == 0:
			b.WriteByte('_')
			state = stateNormal
		case state == stateSlash && c == '/':
			// collapse runs of '/'
		case state == stateSlash && c == '.':
			b.WriteByte(':')
			state = stateNormal
		case state == stateNormal && c == '/':
			b.WriteByte('/')
			state = stateSlash
		default:
			b.WriteByte(c)
			state = stateNormal
		}
	}
	return b.String()
}
