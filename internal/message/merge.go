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

import "html/template"

// mergeRemote reconciles a remote patch onto the entity.  Only the
// whitelisted fields below cross the wire; a field absent from the
// patch leaves the entity untouched.  The merge finishes by
// recomputing the cached identity and the full address strings, so a
// caller that sees the merge complete also sees consistent derived
// state.  Callers must hold m.mu.
func (m *Message) mergeRemote(p *Patch) {
	if p.Subject != nil {
		m.doc.Subject = *p.Subject
	}
	if p.Date != nil {
		m.doc.Date = *p.Date
	}
	if p.From != nil {
		m.doc.From = p.From.clone()
	}
	if p.To != nil {
		m.doc.To = p.To.clone()
	}
	if p.Cc != nil {
		m.doc.Cc = p.Cc.clone()
	}
	if p.Bcc != nil {
		m.doc.Bcc = p.Bcc.clone()
	}
	if p.ReplyTo != nil {
		m.doc.ReplyTo = p.ReplyTo.clone()
	}
	if p.Content != nil {
		m.doc.Content = template.HTML(*p.Content)
	}
	if p.Flags != nil {
		m.doc.Flags = append([]string(nil), p.Flags...)
	}
	if p.UID != nil {
		m.setUID(*p.UID)
	}
	if p.DraftID != nil {
		m.draftID = *p.DraftID
	}

	m.refreshID()
	m.formatFullAddresses()
}

// editableFromPatch builds the composition snapshot from the edit
// representation of the draft identity.
func editableFromPatch(p *Patch) *Editable {
	e := &Editable{
		To:      p.To.clone(),
		Cc:      p.Cc.clone(),
		Bcc:     p.Bcc.clone(),
		ReplyTo: p.ReplyTo.clone(),
	}
	if p.Subject != nil {
		e.Subject = *p.Subject
	}
	switch {
	case p.Text != nil:
		e.Text = *p.Text
	case p.Content != nil:
		e.Text = *p.Content
	}
	return e
}
