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

// This file declares the collaborator contracts the message entity
// depends on.  The interfaces are defined here, on the consumer side;
// the store package provides the HTTP implementation.

import (
	"context"
	"fmt"
)

// FetchMode selects the representation returned by a fetch.
type FetchMode string

const (
	// ModeView is the display representation of a message.
	ModeView FetchMode = "view"
	// ModeEdit is the editable representation used for composition.
	ModeEdit FetchMode = "edit"
)

// Patch is a partial remote representation of a message.  Pointer
// fields distinguish "absent" from "zero"; only fields present in the
// patch are merged onto the entity.
type Patch struct {
	UID     *int64  `json:"uid,omitempty"`
	DraftID *string `json:"draftId,omitempty"`
	Subject *string `json:"subject,omitempty"`
	Date    *string `json:"date,omitempty"`

	From    AddressList `json:"from,omitempty"`
	To      AddressList `json:"to,omitempty"`
	Cc      AddressList `json:"cc,omitempty"`
	Bcc     AddressList `json:"bcc,omitempty"`
	ReplyTo AddressList `json:"reply-to,omitempty"`

	// Content is the HTML body of the view representation.  The
	// transport is responsible for sanitizing it before it reaches
	// the entity.
	Content *string `json:"content,omitempty"`

	// Text is the plain editable body of the edit representation.
	Text *string `json:"text,omitempty"`

	Flags []string `json:"flags,omitempty"`
}

// DraftData is the flattened transmission form of an editable
// snapshot, as submitted on save and send.  Recipient lists are the
// per record transmission strings, in original order.
type DraftData struct {
	Subject string   `json:"subject,omitempty"`
	Text    string   `json:"text,omitempty"`
	To      []string `json:"to,omitempty"`
	Cc      []string `json:"cc,omitempty"`
	Bcc     []string `json:"bcc,omitempty"`
	ReplyTo []string `json:"reply-to,omitempty"`
}

// StatusSuccess is the only Outcome status that counts as a completed
// send.  The backend contract names no other statuses; anything else
// is carried verbatim in the Outcome and treated as a rejection.
const StatusSuccess = "success"

// Outcome is the result payload of a posted action.
type Outcome struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	UID    *int64 `json:"uid,omitempty"`
}

// SendError reports a send whose transport round trip succeeded but
// whose status was not "success".  The message itself remains valid
// and editable.
type SendError struct {
	Outcome Outcome
}

func (e *SendError) Error() string {
	if e.Outcome.Reason != "" {
		return fmt.Sprintf("send rejected: status %q, reason %q", e.Outcome.Status, e.Outcome.Reason)
	}
	return fmt.Sprintf("send rejected: status %q", e.Outcome.Status)
}

// Fetcher retrieves a representation of a message from the remote
// store.
type Fetcher interface {
	Fetch(ctx context.Context, id string, mode FetchMode) (*Patch, error)
}

// Saver persists a draft at the given identity.  A successful result
// includes at least the assigned uid.
type Saver interface {
	Save(ctx context.Context, id string, draft DraftData) (*Patch, error)
}

// Poster submits a named action (such as "send") at the given
// identity.  The resulting Outcome includes a status field.
type Poster interface {
	Post(ctx context.Context, id string, action string, draft DraftData) (*Outcome, error)
}

// Store provides all remote operations the message entity performs.
type Store interface {
	Fetcher
	Saver
	Poster
}

// Mailbox is the containing folder of a message.  The message does not
// own it; it reads the hierarchical path and moves its uid slot on
// renumbering.
type Mailbox interface {
	// Path returns the ordered mailbox path components.
	Path() []string

	// RenumberUID moves the mailbox local slot registered under
	// oldUID to newUID and clears the old key.
	RenumberUID(oldUID, newUID int64)
}
