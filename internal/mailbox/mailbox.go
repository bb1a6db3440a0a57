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

// Package mailbox implements the containing folder of messages: a
// hierarchical path plus a uid indexed slot map over the listed
// messages.
package mailbox

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Acidburn0zzz/sogo/internal/message"
)

// Mailbox lists messages and indexes them by uid.  It satisfies the
// message package's Mailbox contract: messages read the path and move
// their own slot on renumbering.
type Mailbox struct {
	path []string

	// mu guards slots and msgs.  RenumberUID may be called from
	// two messages settling concurrently; moves of disjoint uids
	// are safe.
	mu    sync.Mutex
	slots map[int64]int
	msgs  []*message.Message
}

// New returns an empty mailbox with the given path components.
func New(path ...string) *Mailbox {
	return &Mailbox{
		path:  path,
		slots: make(map[int64]int),
	}
}

// Path returns the ordered mailbox path components.
func (b *Mailbox) Path() []string {
	return b.path
}

// Append adds a message to the listing and, when it already carries a
// uid, registers its slot.
func (b *Mailbox) Append(m *message.Message) {
	// Read the uid before taking b.mu: the message holds its own
	// lock while renumbering through us, so the lock order is
	// always message first, mailbox second.
	uid := m.UID()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
	if uid != message.UnsetUID {
		b.slots[uid] = len(b.msgs) - 1
	}
}

// ByUID returns the message registered under uid, or nil.
func (b *Mailbox) ByUID(uid int64) *message.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.slots[uid]
	if !ok {
		return nil
	}
	return b.msgs[slot]
}

// Len returns the number of listed messages.
func (b *Mailbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs)
}

// HasUID reports whether a slot is registered under uid.
func (b *Mailbox) HasUID(uid int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.slots[uid]
	return ok
}

// RenumberUID moves the slot registered under oldUID to newUID and
// clears the old key.  The move is atomic: the old uid never points at
// a live record once the new one does.
func (b *Mailbox) RenumberUID(oldUID, newUID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slot, ok := b.slots[oldUID]
	if !ok {
		return
	}
	b.slots[newUID] = slot
	delete(b.slots, oldUID)
}

// HydrateAll refreshes every listed message from the store with at
// most concurrency fetches in flight.  The first failure cancels the
// remaining fetches and is returned.
func (b *Mailbox) HydrateAll(ctx context.Context, concurrency int) error {
	if concurrency < 1 {
		concurrency = 1
	}

	b.mu.Lock()
	msgs := make([]*message.Message, len(b.msgs))
	copy(msgs, b.msgs)
	b.mu.Unlock()

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(concurrency)
	for _, m := range msgs {
		m := m
		grp.Go(func() error {
			return m.Update(ctx)
		})
	}
	return grp.Wait()
}
