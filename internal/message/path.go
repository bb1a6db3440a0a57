// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package message

import (
	"strconv"
	"strings"
)

// folderPrefix marks encoded mailbox path components inside a message
// identity so they cannot collide with the account id or the trailing
// sequence number.
const folderPrefix = "folder"

// pathSegment renders a mailbox path component into a path safe token.
// Alphanumeric bytes pass through; everything else is hex escaped as
// "=XX".  The mapping is reversible and collision free.
func pathSegment(s string) string {
	hexCount := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i]) {
			hexCount++
		}
	}
	if hexCount == 0 {
		return s
	}

	t := make([]byte, len(s)+2*hexCount)
	j := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case shouldEscape(c):
			t[j] = '='
			t[j+1] = "0123456789ABCDEF"[c>>4]
			t[j+2] = "0123456789ABCDEF"[c&15]
			j += 3
		default:
			t[j] = s[i]
			j++
		}
	}
	return string(t)
}

// shouldEscape reports whether the byte must be escaped in a path
// segment.  Only unreserved alphanumeric characters pass through; this
// keeps segments safe for both URL paths and filesystems.
func shouldEscape(c byte) bool {
	if 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' {
		return false
	}
	return true
}

// absolutePath builds the hierarchical identity of the message:
//
//	accountID/folder<seg1>/folder<seg2>/.../<uid or draft id>
//
// With asDraft the draft id is used as the trailing component when one
// is set; without one the uid is used (the draft has not been persisted
// yet, or the identity is requested post send).
//
// Pure function of the message and mailbox state at call time.
// Callers must hold m.mu.
func (m *Message) absolutePath(asDraft bool) string {
	mbxPath := m.mbox.Path()
	parts := make([]string, 0, len(mbxPath)+2)
	parts = append(parts, m.accountID)
	for _, component := range mbxPath {
		parts = append(parts, folderPrefix+pathSegment(component))
	}
	last := strconv.FormatInt(m.uid, 10)
	if asDraft && m.draftID != "" {
		last = m.draftID
	}
	parts = append(parts, last)
	return strings.Join(parts, "/")
}

// refreshID recomputes the cached identity.  Must be called after any
// mutation of uid or draftID.  Callers must hold m.mu.
func (m *Message) refreshID() {
	m.id = m.absolutePath(false)
}
