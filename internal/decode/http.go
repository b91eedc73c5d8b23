// Copyright 2024 The Vigil Authors
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

package decode

import (
	"bytes"
	"strings"
)

// httpPrefixes are the literal startswith checks run against the first
// bytes of a payload.
var httpPrefixes = []string{
	"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "HTTP/",
}

// HTTPRequest is the shallow-decoded request line plus headers.
type HTTPRequest struct {
	Method, Path, Version string
	Headers               map[string]string
}

// LooksLikeHTTP reports whether payload's first bytes match one of the
// recognized HTTP startswith prefixes.
func LooksLikeHTTP(payload []byte) bool {
	head := payload
	if len(head) > 16 {
		head = head[:16]
	}
	for _, p := range httpPrefixes {
		if bytes.HasPrefix(head, []byte(p)) {
			return true
		}
	}
	return false
}

// DecodeHTTPRequest parses a request line plus CRLF-delimited headers.
// Malformed traffic is never fatal: ok is false and the caller should
// fall back to raw-payload inspection
func DecodeHTTPRequest(payload []byte) (HTTPRequest, bool) {
	if !LooksLikeHTTP(payload) {
		return HTTPRequest{}, false
	}
	text := string(payload)
	lines := strings.Split(text, "\r\n")
	if len(lines) == 0 {
		return HTTPRequest{}, false
	}
	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) != 3 {
		return HTTPRequest{}, false
	}
	req := HTTPRequest{
		Method:  parts[0],
		Path:    parts[1],
		Version: parts[2],
		Headers: map[string]string{},
	}
	for _, line := range lines[1:] {
		if line == "" {
			break // end of header block
		}
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			continue
		}
		req.Headers[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	return req, true
}
