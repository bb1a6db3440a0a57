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
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func testDeps(s Store) Deps {
	return Deps{
		Store: s,
		Log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

type fakeMailbox struct {
	path      []string
	renumbers [][2]int64
}

func (f *fakeMailbox) Path() []string { return f.path }

func (f *fakeMailbox) RenumberUID(oldUID, newUID int64) {
	f.renumbers = append(f.renumbers, [2]int64{oldUID, newUID})
}

type fetchReply struct {
	patch *Patch
	err   error
}

type fakeStore struct {
	fetchIDs   []string
	fetchModes []FetchMode
	fetchQueue []fetchReply

	saveIDs   []string
	saveData  []DraftData
	savePatch *Patch
	saveErr   error

	postIDs     []string
	postActions []string
	postData    []DraftData
	outcome     *Outcome
	postErr     error
}

func (f *fakeStore) Fetch(ctx context.Context, id string, mode FetchMode) (*Patch, error) {
	_ = ctx
	f.fetchIDs = append(f.fetchIDs, id)
	f.fetchModes = append(f.fetchModes, mode)
	if len(f.fetchQueue) == 0 {
		return &Patch{}, nil
	}
	reply := f.fetchQueue[0]
	f.fetchQueue = f.fetchQueue[1:]
	return reply.patch, reply.err
}

func (f *fakeStore) Save(ctx context.Context, id string, draft DraftData) (*Patch, error) {
	_ = ctx
	f.saveIDs = append(f.saveIDs, id)
	f.saveData = append(f.saveData, draft)
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return f.savePatch, nil
}

func (f *fakeStore) Post(ctx context.Context, id, action string, draft DraftData) (*Outcome, error) {
	_ = ctx
	f.postIDs = append(f.postIDs, id)
	f.postActions = append(f.postActions, action)
	f.postData = append(f.postData, draft)
	if f.postErr != nil {
		return nil, f.postErr
	}
	return f.outcome, nil
}

func i64(v int64) *int64   { return &v }
func str(v string) *string { return &v }

func TestNewSynchronous(t *testing.T) {
	mbx := &fakeMailbox{path: []string{"INBOX"}}
	m := New(testDeps(&fakeStore{}), "acct1", mbx, &Patch{
		UID:  i64(7),
		From: AddressList{{Email: "a@b.c"}},
	})

	if got, want := m.ID(), "acct1/folderINBOX/7"; got != want {
		t.Errorf("ID() = %#v, want %#v", got, want)
	}
	if got, want := m.UID(), int64(7); got != want {
		t.Errorf("UID() = %d, want %d", got, want)
	}
	doc := m.Document()
	if got, want := doc.From[0].Full, "<a@b.c>"; got != want {
		t.Errorf("From[0].Full = %#v, want %#v", got, want)
	}
	if err := m.Wait(context.Background()); err != nil {
		t.Errorf("Wait() = %v, want nil", err)
	}
}

func TestNewPendingWaiterSeesFullMerge(t *testing.T) {
	mbx := &fakeMailbox{path: []string{"INBOX"}}
	release := make(chan struct{})
	m := NewPending(context.Background(), testDeps(&fakeStore{}), "acct1", mbx,
		func(ctx context.Context) (*Patch, error) {
			<-release
			return &Patch{UID: i64(3), Subject: str("hello")}, nil
		})

	if got := m.UID(); got != UnsetUID {
		t.Errorf("UID() before hydration = %d, want %d", got, UnsetUID)
	}

	type state struct {
		uid     int64
		id      string
		subject string
	}
	observed := make(chan state, 1)
	go func() {
		if err := m.Wait(context.Background()); err != nil {
			t.Errorf("Wait() = %v, want nil", err)
		}
		observed <- state{uid: m.UID(), id: m.ID(), subject: m.Document().Subject}
	}()

	close(release)
	got := <-observed
	want := state{uid: 3, id: "acct1/folderINBOX/3", subject: "hello"}
	if got != want {
		t.Errorf("waiter observed %#v, want %#v", got, want)
	}
}

func TestNewPendingError(t *testing.T) {
	mbx := &fakeMailbox{path: []string{"INBOX"}}
	boom := errors.New("boom")
	m := NewPending(context.Background(), testDeps(&fakeStore{}), "acct1", mbx,
		func(ctx context.Context) (*Patch, error) {
			return &Patch{Subject: str("partial")}, boom
		})

	if err := m.Wait(context.Background()); err == nil {
		t.Fatal("Wait() = nil, want error")
	}
	if !m.IsError() {
		t.Error("IsError() = false, want true")
	}
	// The error payload is still merged.
	if got, want := m.Document().Subject, "partial"; got != want {
		t.Errorf("Subject = %#v, want %#v", got, want)
	}
}

func TestSetUID(t *testing.T) {
	t.Run("no-op on equal uid", func(t *testing.T) {
		mbx := &fakeMailbox{path: []string{"INBOX"}}
		m := New(testDeps(&fakeStore{}), "acct1", mbx, &Patch{UID: i64(7)})
		before := m.ID()

		m.SetUID(7)
		if got := m.ID(); got != before {
			t.Errorf("ID() changed on no-op: %#v, was %#v", got, before)
		}
		if len(mbx.renumbers) != 0 {
			t.Errorf("renumbers = %v, want none", mbx.renumbers)
		}
	})

	t.Run("first assignment moves no slot", func(t *testing.T) {
		mbx := &fakeMailbox{path: []string{"INBOX"}}
		m := New(testDeps(&fakeStore{}), "acct1", mbx, nil)

		m.SetUID(5)
		if got, want := m.UID(), int64(5); got != want {
			t.Errorf("UID() = %d, want %d", got, want)
		}
		if got, want := m.ID(), "acct1/folderINBOX/5"; got != want {
			t.Errorf("ID() = %#v, want %#v", got, want)
		}
		if len(mbx.renumbers) != 0 {
			t.Errorf("renumbers = %v, want none", mbx.renumbers)
		}
	})

	t.Run("reassignment moves the slot", func(t *testing.T) {
		mbx := &fakeMailbox{path: []string{"INBOX"}}
		m := New(testDeps(&fakeStore{}), "acct1", mbx, &Patch{UID: i64(7)})

		m.SetUID(9)
		if got, want := m.ID(), "acct1/folderINBOX/9"; got != want {
			t.Errorf("ID() = %#v, want %#v", got, want)
		}
		want := [][2]int64{{7, 9}}
		if diff := cmp.Diff(want, mbx.renumbers); diff != "" {
			t.Errorf("renumbers mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestUpdate(t *testing.T) {
	st := &fakeStore{fetchQueue: []fetchReply{{patch: &Patch{
		Subject: str("updated"),
		From:    AddressList{{Name: "Alice", Email: "a@x"}},
	}}}}
	mbx := &fakeMailbox{path: []string{"INBOX"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{UID: i64(4)})

	if err := m.Update(context.Background()); err != nil {
		t.Fatalf("Update() = %v, want nil", err)
	}
	if got, want := st.fetchIDs[0], "acct1/folderINBOX/4"; got != want {
		t.Errorf("fetched id = %#v, want %#v", got, want)
	}
	if got, want := st.fetchModes[0], ModeView; got != want {
		t.Errorf("fetch mode = %#v, want %#v", got, want)
	}
	doc := m.Document()
	if got, want := doc.Subject, "updated"; got != want {
		t.Errorf("Subject = %#v, want %#v", got, want)
	}
	if got, want := doc.From[0].Full, "Alice <a@x>"; got != want {
		t.Errorf("From[0].Full = %#v, want %#v", got, want)
	}
}

func TestUpdateTransportFailure(t *testing.T) {
	boom := errors.New("connection refused")
	st := &fakeStore{fetchQueue: []fetchReply{{err: boom}}}
	mbx := &fakeMailbox{path: []string{"INBOX"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{UID: i64(4)})

	if err := m.Update(context.Background()); errors.Cause(err) != boom {
		t.Errorf("Update() cause = %v, want %v", err, boom)
	}
	if !m.IsError() {
		t.Error("IsError() = false, want true")
	}
}

func TestEditableContent(t *testing.T) {
	st := &fakeStore{fetchQueue: []fetchReply{
		{patch: &Patch{Subject: str("merged subject")}},
		{patch: &Patch{
			Text:    str("draft body"),
			To:      AddressList{{Text: "a@x"}},
			Subject: str("draft subject"),
		}},
	}}
	mbx := &fakeMailbox{path: []string{"Drafts"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{UID: i64(12), DraftID: str("tmp7")})

	text, err := m.EditableContent(context.Background())
	if err != nil {
		t.Fatalf("EditableContent() = %v, want nil", err)
	}
	if got, want := text, "draft body"; got != want {
		t.Errorf("text = %#v, want %#v", got, want)
	}

	// First fetch at the cached identity, second at the draft
	// identity, both for the edit representation.
	wantIDs := []string{"acct1/folderDrafts/12", "acct1/folderDrafts/tmp7"}
	if diff := cmp.Diff(wantIDs, st.fetchIDs); diff != "" {
		t.Errorf("fetch ids mismatch (-want +got):\n%s", diff)
	}
	wantModes := []FetchMode{ModeEdit, ModeEdit}
	if diff := cmp.Diff(wantModes, st.fetchModes); diff != "" {
		t.Errorf("fetch modes mismatch (-want +got):\n%s", diff)
	}

	if got, want := m.Document().Subject, "merged subject"; got != want {
		t.Errorf("merged Subject = %#v, want %#v", got, want)
	}
	ed := m.Editable()
	if ed == nil {
		t.Fatal("Editable() = nil, want populated snapshot")
	}
	if got, want := ed.Subject, "draft subject"; got != want {
		t.Errorf("Editable().Subject = %#v, want %#v", got, want)
	}
}

func TestEditableContentSecondFetchFails(t *testing.T) {
	st := &fakeStore{fetchQueue: []fetchReply{
		{patch: &Patch{}},
		{err: errors.New("boom")},
	}}
	mbx := &fakeMailbox{path: []string{"Drafts"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{UID: i64(12), DraftID: str("tmp7")})

	if _, err := m.EditableContent(context.Background()); err == nil {
		t.Fatal("EditableContent() = nil, want error")
	}
	if m.Editable() != nil {
		t.Error("Editable() populated after failure, want nil")
	}
}

func TestSave(t *testing.T) {
	st := &fakeStore{
		savePatch:  &Patch{UID: i64(9)},
		fetchQueue: []fetchReply{{patch: &Patch{Subject: str("persisted")}}},
	}
	mbx := &fakeMailbox{path: []string{"Drafts"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{DraftID: str("tmp1")})
	m.SetEditable(&Editable{
		Subject: "hi",
		Text:    "body",
		To:      AddressList{{Text: "a@x"}, {Text: "b@x"}},
	})

	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save() = %v, want nil", err)
	}

	// Submitted at the draft identity, flattened.
	if got, want := st.saveIDs[0], "acct1/folderDrafts/tmp1"; got != want {
		t.Errorf("save id = %#v, want %#v", got, want)
	}
	wantDraft := DraftData{Subject: "hi", Text: "body", To: []string{"a@x", "b@x"}}
	if diff := cmp.Diff(wantDraft, st.saveData[0]); diff != "" {
		t.Errorf("save data mismatch (-want +got):\n%s", diff)
	}

	// Renumbered to the assigned uid and refreshed from the new
	// identity.
	if got, want := m.UID(), int64(9); got != want {
		t.Errorf("UID() = %d, want %d", got, want)
	}
	if got := m.ID(); strings.Contains(got, "tmp1") {
		t.Errorf("ID() = %#v, still contains the draft id", got)
	}
	wantFetch := []string{"acct1/folderDrafts/9"}
	if diff := cmp.Diff(wantFetch, st.fetchIDs); diff != "" {
		t.Errorf("refresh fetch mismatch (-want +got):\n%s", diff)
	}
	if got, want := m.Document().Subject, "persisted"; got != want {
		t.Errorf("Subject = %#v, want %#v", got, want)
	}
}

func TestSendSuccess(t *testing.T) {
	st := &fakeStore{outcome: &Outcome{Status: StatusSuccess}}
	mbx := &fakeMailbox{path: []string{"Drafts"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{DraftID: str("tmp1")})
	m.SetEditable(&Editable{Text: "body", To: AddressList{{Text: "a@x"}}})

	outcome, err := m.Send(context.Background())
	if err != nil {
		t.Fatalf("Send() = %v, want nil", err)
	}
	if got, want := outcome.Status, StatusSuccess; got != want {
		t.Errorf("Status = %#v, want %#v", got, want)
	}
	if got, want := st.postIDs[0], "acct1/folderDrafts/tmp1"; got != want {
		t.Errorf("post id = %#v, want %#v", got, want)
	}
	if got, want := st.postActions[0], "send"; got != want {
		t.Errorf("action = %#v, want %#v", got, want)
	}
}

func TestSendRejected(t *testing.T) {
	st := &fakeStore{outcome: &Outcome{Status: "failure", Reason: "quota"}}
	mbx := &fakeMailbox{path: []string{"Drafts"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{DraftID: str("tmp1")})
	editable := &Editable{Text: "body", To: AddressList{{Text: "a@x"}}}
	m.SetEditable(editable)
	before := editable.clone()

	_, err := m.Send(context.Background())
	var rejected *SendError
	if !errors.As(err, &rejected) {
		t.Fatalf("Send() = %v, want *SendError", err)
	}
	if got, want := rejected.Outcome.Reason, "quota"; got != want {
		t.Errorf("Reason = %#v, want %#v", got, want)
	}

	// A rejected send is not a terminal failure; the live editable
	// snapshot is untouched.
	if m.IsError() {
		t.Error("IsError() = true, want false")
	}
	if diff := cmp.Diff(before, m.Editable()); diff != "" {
		t.Errorf("editable changed during send (-before +after):\n%s", diff)
	}
}

func TestSendTransportFailure(t *testing.T) {
	boom := errors.New("boom")
	st := &fakeStore{postErr: boom}
	mbx := &fakeMailbox{path: []string{"Drafts"}}
	m := New(testDeps(st), "acct1", mbx, &Patch{DraftID: str("tmp1")})
	m.SetEditable(&Editable{Text: "body"})

	if _, err := m.Send(context.Background()); errors.Cause(err) != boom {
		t.Errorf("Send() cause = %v, want %v", err, boom)
	}
	if !m.IsError() {
		t.Error("IsError() = false, want true")
	}
}

func TestShortAddress(t *testing.T) {
	mbx := &fakeMailbox{path: []string{"INBOX"}}
	m := New(testDeps(&fakeStore{}), "acct1", mbx, &Patch{
		From: AddressList{{Name: "Alice", Email: "a@x"}},
		To:   AddressList{{Email: "b@x"}, {Name: "Carol", Email: "c@x"}},
	})

	cases := []struct {
		field string
		want  string
	}{
		{FieldFrom, "Alice"},
		{FieldTo, "b@x"},
		{FieldCc, ""},
		{"bogus", ""},
	}
	for _, tc := range cases {
		if got := m.ShortAddress(tc.field); got != tc.want {
			t.Errorf("ShortAddress(%#v) = %#v, want %#v", tc.field, got, tc.want)
		}
	}
}

func TestOmit(t *testing.T) {
	mbx := &fakeMailbox{path: []string{"INBOX"}}
	m := New(testDeps(&fakeStore{}), "acct1", mbx, &Patch{
		UID:     i64(7),
		Subject: str("hello"),
		To:      AddressList{{Name: "A", Email: "a@x", Text: "A"}, {Name: "B", Email: "b@x", Text: " B"}},
		From:    AddressList{{Email: "me@x", Text: "me@x"}},
		Content: str("<p>hi</p>"),
	})

	got := m.Omit()
	want := Snapshot{
		Subject: "hello",
		From:    "me@x",
		To:      "A, B",
		Content: "<p>hi</p>",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Omit() mismatch (-want +got):\n%s", diff)
	}
}
