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

// Package message models a single mail message as a client side entity
// synchronized with a remote mailbox store.  A message owns its
// hierarchical identity (account, encoded mailbox path, sequence
// number), hydrates itself from data in hand or from a pending fetch,
// renumbers itself when a draft becomes persisted, and runs the
// read/edit/save/send protocol against the store.
package message

import (
	"context"
	"html/template"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// UnsetUID is the uid of a message the server has not numbered yet.
const UnsetUID int64 = -1

// Document holds the persisted, wire visible fields of a message.
// Everything in it is safe to serialize; runtime state lives on
// Message itself.
type Document struct {
	Subject string
	Date    string

	From    AddressList
	To      AddressList
	Cc      AddressList
	Bcc     AddressList
	ReplyTo AddressList

	// Content arrives pre-sanitized from the transport; the entity
	// only marks it safe for rendering.
	Content template.HTML

	Flags []string
}

// Editable is the composition snapshot of a message, fetched on demand
// and distinct from the display Document.
type Editable struct {
	Subject string
	Text    string
	To      AddressList
	Cc      AddressList
	Bcc     AddressList
	ReplyTo AddressList
}

// clone returns an independent deep copy of the snapshot.
func (e *Editable) clone() *Editable {
	if e == nil {
		return nil
	}
	out := *e
	out.To = e.To.clone()
	out.Cc = e.Cc.clone()
	out.Bcc = e.Bcc.clone()
	out.ReplyTo = e.ReplyTo.clone()
	return &out
}

// flatten converts the snapshot to its transmission form.
func (e *Editable) flatten() DraftData {
	return DraftData{
		Subject: e.Subject,
		Text:    e.Text,
		To:      e.To.Flatten(),
		Cc:      e.Cc.Flatten(),
		Bcc:     e.Bcc.Flatten(),
		ReplyTo: e.ReplyTo.Flatten(),
	}
}

// Deps are the collaborators a message operates against.  They are
// injected at construction; the entity holds no globals.
type Deps struct {
	Store Store
	Log   *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Message is the central entity.  Exported methods are safe for
// concurrent readers and waiters; overlapping hydration of the same
// instance is the caller's responsibility to avoid.
type Message struct {
	accountID string
	mbox      Mailbox
	store     Store
	log       *slog.Logger

	done chan struct{}

	mu       sync.Mutex
	doc      Document
	uid      int64
	draftID  string
	id       string
	editable *Editable
	isError  bool
	err      error
}

// FetchFunc produces the initial remote representation of a pending
// message.  It runs on its own goroutine.
type FetchFunc func(ctx context.Context) (*Patch, error)

func newMessage(deps Deps, accountID string, mbox Mailbox) *Message {
	return &Message{
		accountID: accountID,
		mbox:      mbox,
		store:     deps.Store,
		log:       deps.logger(),
		uid:       UnsetUID,
	}
}

// New constructs a message from already resolved data.  Fields, the
// cached identity and the full address strings are populated
// synchronously; the returned message is immediately hydrated.
func New(deps Deps, accountID string, mbox Mailbox, data *Patch) *Message {
	m := newMessage(deps, accountID, mbox)
	done := make(chan struct{})
	close(done)
	m.done = done

	m.mu.Lock()
	defer m.mu.Unlock()
	if data != nil {
		m.mergeRemote(data)
	} else {
		m.refreshID()
	}
	return m
}

// NewPending constructs a message whose fields arrive from an
// outstanding fetch.  The fetch runs on its own goroutine; Wait blocks
// until it settles.  A waiter never observes a partially merged
// entity: the merge completes under the entity lock before the
// completion signal fires.
func NewPending(ctx context.Context, deps Deps, accountID string, mbox Mailbox, fetch FetchFunc) *Message {
	m := newMessage(deps, accountID, mbox)
	m.done = make(chan struct{})

	m.mu.Lock()
	m.refreshID()
	m.mu.Unlock()

	go m.hydrate(ctx, fetch)
	return m
}

func (m *Message) hydrate(ctx context.Context, fetch FetchFunc) {
	patch, err := fetch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	defer close(m.done)

	if err != nil {
		// Merge whatever the error payload supplied; no retry.
		if patch != nil {
			m.mergeRemote(patch)
		}
		m.isError = true
		m.err = err
		m.log.Error("message hydration failed", "id", m.id, "error", err)
		return
	}
	m.mergeRemote(patch)
}

// Wait blocks until hydration settles and returns its terminal error,
// if any.
func (m *Message) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.isError {
		return m.err
	}
	return nil
}

// ID returns the cached identity of the message.  It always equals
// AbsolutePath(false) for the current uid and mailbox path.
func (m *Message) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// AbsolutePath computes the hierarchical identity.  With asDraft the
// trailing component is the draft id when one is set.
func (m *Message) AbsolutePath(asDraft bool) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.absolutePath(asDraft)
}

// UID returns the message's sequence number, UnsetUID until the server
// assigns one.
func (m *Message) UID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uid
}

// DraftID returns the temporary draft identifier, empty unless the
// message is an unsent draft.
func (m *Message) DraftID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draftID
}

// IsError reports whether a store operation terminally failed.
func (m *Message) IsError() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isError
}

// Err returns the recorded terminal error, if any.
func (m *Message) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Document returns a copy of the display snapshot.
func (m *Message) Document() Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.doc
	doc.From = m.doc.From.clone()
	doc.To = m.doc.To.clone()
	doc.Cc = m.doc.Cc.clone()
	doc.Bcc = m.doc.Bcc.clone()
	doc.ReplyTo = m.doc.ReplyTo.clone()
	return doc
}

// Editable returns the live composition snapshot, nil until
// EditableContent or SetEditable has populated it.
func (m *Message) Editable() *Editable {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editable
}

// SetEditable replaces the composition snapshot, for callers that
// build a draft locally instead of fetching the edit representation.
func (m *Message) SetEditable(e *Editable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.editable = e
}

// SetUID adopts a server assigned uid.  A no-op when the uid is
// unchanged.  Otherwise the identity is recomputed and, when an old
// uid existed, the mailbox slot moves from the old key to the new one
// before any follow-up fetch can use the new identity.
func (m *Message) SetUID(uid int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setUID(uid)
}

// setUID is SetUID with m.mu held.
func (m *Message) setUID(uid int64) {
	if m.uid == uid {
		return
	}
	old := m.uid
	m.uid = uid
	m.refreshID()
	if old != UnsetUID {
		m.mbox.RenumberUID(old, uid)
	}
}

// Update fetches the view representation at the current identity and
// merges it into the entity.
func (m *Message) Update(ctx context.Context) error {
	m.mu.Lock()
	id := m.id
	m.mu.Unlock()

	patch, err := m.store.Fetch(ctx, id, ModeView)
	if err != nil {
		m.fail(patch, err)
		return errors.Wrapf(err, "fetching message %s", id)
	}
	m.mu.Lock()
	m.mergeRemote(patch)
	m.mu.Unlock()
	return nil
}

// EditableContent fetches the edit representation at the current
// identity, merges it, then fetches the edit representation at the
// draft identity to populate the composition snapshot.  The second
// fetch is issued only after the first resolves.  On any failure the
// snapshot is left untouched.
func (m *Message) EditableContent(ctx context.Context) (string, error) {
	m.mu.Lock()
	id := m.id
	m.mu.Unlock()

	patch, err := m.store.Fetch(ctx, id, ModeEdit)
	if err != nil {
		m.fail(patch, err)
		return "", errors.Wrapf(err, "fetching editable message %s", id)
	}

	m.mu.Lock()
	m.mergeRemote(patch)
	draftPath := m.absolutePath(true)
	m.mu.Unlock()

	draftPatch, err := m.store.Fetch(ctx, draftPath, ModeEdit)
	if err != nil {
		m.fail(nil, err)
		return "", errors.Wrapf(err, "fetching draft content %s", draftPath)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.editable = editableFromPatch(draftPatch)
	return m.editable.Text, nil
}

// Save flattens the live editable snapshot, submits it at the draft
// identity, adopts the uid the store assigned, and refreshes the
// display snapshot from the newly persisted identity.  It returns only
// after both the save and the follow-up refresh settle.
func (m *Message) Save(ctx context.Context) error {
	m.mu.Lock()
	if m.editable == nil {
		m.mu.Unlock()
		return errors.New("message has no editable content to save")
	}
	draft := m.editable.flatten()
	target := m.absolutePath(true)
	m.mu.Unlock()

	patch, err := m.store.Save(ctx, target, draft)
	if err != nil {
		m.fail(patch, err)
		return errors.Wrapf(err, "saving draft %s", target)
	}

	if patch != nil && patch.UID != nil {
		m.SetUID(*patch.UID)
	}
	return m.Update(ctx)
}

// Send posts the draft for delivery.  It operates on an independent
// copy of the editable snapshot, never the live one, since the message
// may still be edited while the send is in flight.  A transport
// successful response with a status other than "success" is a failed
// send, reported as a *SendError carrying the outcome; the message
// itself stays valid and editable.
func (m *Message) Send(ctx context.Context) (*Outcome, error) {
	m.mu.Lock()
	if m.editable == nil {
		m.mu.Unlock()
		return nil, errors.New("message has no editable content to send")
	}
	draft := m.editable.clone().flatten()
	target := m.absolutePath(true)
	m.mu.Unlock()

	outcome, err := m.store.Post(ctx, target, "send", draft)
	if err != nil {
		m.fail(nil, err)
		return nil, errors.Wrapf(err, "sending draft %s", target)
	}
	if outcome.Status != StatusSuccess {
		return outcome, &SendError{Outcome: *outcome}
	}
	return outcome, nil
}

// fail records a terminal transport failure, merging whatever error
// payload was supplied.
func (m *Message) fail(patch *Patch, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch != nil {
		m.mergeRemote(patch)
	}
	m.isError = true
	m.err = err
	m.log.Error("message store operation failed", "id", m.id, "error", err)
}

// FormatFullAddresses recomputes the Full display string of every
// record in every address field.
func (m *Message) FormatFullAddresses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formatFullAddresses()
}

func (m *Message) formatFullAddresses() {
	m.doc.From.formatFull()
	m.doc.To.formatFull()
	m.doc.Cc.formatFull()
	m.doc.Bcc.formatFull()
	m.doc.ReplyTo.formatFull()
}

// ShortAddress returns the name (preferred) or email of the first
// record of the named address field, or "" when the field is empty.
func (m *Message) ShortAddress(field string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.doc.addressField(field)
	if len(list) == 0 {
		return ""
	}
	if list[0].Name != "" {
		return list[0].Name
	}
	return list[0].Email
}

// Snapshot is the transmission ready plain projection of a message:
// every persisted field, with each address list re-flattened to a
// single comma joined string.
type Snapshot struct {
	Subject string `json:"subject,omitempty"`
	Date    string `json:"date,omitempty"`

	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Cc      string `json:"cc,omitempty"`
	Bcc     string `json:"bcc,omitempty"`
	ReplyTo string `json:"reply-to,omitempty"`

	Content string   `json:"content,omitempty"`
	Flags   []string `json:"flags,omitempty"`
}

// Omit projects the persisted fields of the message into a Snapshot,
// dropping identity and runtime state.  This is the inverse direction
// of the editable flattening: where a draft submits lists of
// transmission strings, Omit produces one trimmed, comma joined string
// per address field.
func (m *Message) Omit() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Subject: m.doc.Subject,
		Date:    m.doc.Date,
		From:    m.doc.From.Join(),
		To:      m.doc.To.Join(),
		Cc:      m.doc.Cc.Join(),
		Bcc:     m.doc.Bcc.Join(),
		ReplyTo: m.doc.ReplyTo.Join(),
		Content: string(m.doc.Content),
		Flags:   m.doc.Flags,
	}
}
