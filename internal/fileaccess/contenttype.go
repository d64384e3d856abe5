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

import "strings"

// contentTypes maps a file extension (without the leading dot) to the
// fixed Content-Type string the server emits for it. Anything not in this
// table, including extensionless files, serves as text/plain.
var contentTypes = map[string]string{
	"html":  "text/html",
	"css":   "text/css",
	"js":    "text/javascript",
	"woff2": "font/woff2",
	"png":   "image/png",
}

// ContentType guesses the Content-Type of a file from its path, based on
// the fixed extension table above. It is hardcoded, like we're Windows.
func ContentType(p string) string {
	ext := extension(p)
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "text/plain"
}

// extension returns the final path segment's extension, lowercase and
// without the leading dot, or "" if there is none.
func extension(p string) string {
	slash := strings.LastIndexByte(p, '/')
	name := p[slash+1:]
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || dot == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[dot+1:])
}
