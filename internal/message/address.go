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

import "strings"

// Address is a single entry of a recipient or sender list.
//
// Name and Email come from the server.  Full is the derived display
// string ("name <email>").  Text is the flattened transmission string
// used when a draft is submitted back to the server; it round-trips
// unchanged.
type Address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
	Full  string `json:"full,omitempty"`
	Text  string `json:"text,omitempty"`
}

// AddressList is an ordered sequence of addresses.
type AddressList []Address

// transmission returns the wire form of a single address.
func (a Address) transmission() string {
	if a.Text != "" {
		return a.Text
	}
	if a.Full != "" {
		return a.Full
	}
	return a.display()
}

// display returns "name <email>" when a display name distinct from the
// email address exists, "<email>" otherwise.
func (a Address) display() string {
	if a.Name != "" && a.Name != a.Email {
		return a.Name + " <" + a.Email + ">"
	}
	return "<" + a.Email + ">"
}

// formatFull recomputes the Full display string of every entry.
// Idempotent; safe to call after any merge.
func (l AddressList) formatFull() {
	for i := range l {
		l[i].Full = l[i].display()
	}
}

// Flatten converts the list to its transmission strings, preserving
// order.
func (l AddressList) Flatten() []string {
	if len(l) == 0 {
		return nil
	}
	out := make([]string, len(l))
	for i, a := range l {
		out[i] = a.transmission()
	}
	return out
}

// Join renders the list as a single comma joined string with each
// component trimmed, the inverse of splitting an address header on
// commas.
func (l AddressList) Join() string {
	parts := make([]string, len(l))
	for i, a := range l {
		parts[i] = strings.TrimSpace(a.transmission())
	}
	return strings.Join(parts, ", ")
}

// clone returns an independent copy of the list.
func (l AddressList) clone() AddressList {
	if l == nil {
		return nil
	}
	out := make(AddressList, len(l))
	copy(out, l)
	return out
}

// Address field names accepted by ShortAddress.
const (
	FieldFrom    = "from"
	FieldTo      = "to"
	FieldCc      = "cc"
	FieldBcc     = "bcc"
	FieldReplyTo = "reply-to"
)

// addressField maps a field name to the corresponding list of the
// document, or nil for an unknown name.
func (d *Document) addressField(field string) AddressList {
	switch field {
	case FieldFrom:
		return d.From
	case FieldTo:
		return d.To
	case FieldCc:
		return d.Cc
	case FieldBcc:
		return d.Bcc
	case FieldReplyTo:
		return d.ReplyTo
	}
	return nil
}
