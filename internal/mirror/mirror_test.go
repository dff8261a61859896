package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/records"
)

type updateCall struct {
	relation string
	id       string
	patch    map[string]any
}

type deleteCall struct {
	relation string
	id       string
}

type stubPlatform struct {
	mu      sync.Mutex
	rows    map[string]any
	errs    map[string]error
	selects map[string]int
	updates []updateCall
	deletes []deleteCall
	changes chan platform.Change

	// selectHook runs before each Select resolves, outside the lock.
	selectHook func(relation string, call int) (any, bool)
}

func newStubPlatform() *stubPlatform {
	return &stubPlatform{
		rows:    map[string]any{},
		errs:    map[string]error{},
		selects: map[string]int{},
		changes: make(chan platform.Change),
	}
}

func (p *stubPlatform) Select(_ context.Context, _, relation string, opts platform.SelectOptions, dest any) error {
	p.mu.Lock()
	p.selects[relation]++
	call := p.selects[relation]
	hook := p.selectHook
	rows, err := p.rows[relation], p.errs[relation]
	p.mu.Unlock()

	if hook != nil {
		if hooked, ok := hook(relation, call); ok {
			rows = hooked
		}
	}
	if err != nil {
		return err
	}
	if rows == nil {
		return nil
	}
	if filter, ok := opts.Filters["user_id"]; ok {
		if profiles, ok := rows.([]records.ProfileRow); ok {
			var matched []records.ProfileRow
			for _, row := range profiles {
				if row.UserID == filter {
					matched = append(matched, row)
				}
			}
			rows = matched
		}
	}
	return assign(dest, rows)
}

func (p *stubPlatform) Update(_ context.Context, _, relation, id string, patch map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, updateCall{relation: relation, id: id, patch: patch})
	return nil
}

func (p *stubPlatform) Delete(_ context.Context, _, relation, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes = append(p.deletes, deleteCall{relation: relation, id: id})
	return nil
}

func (p *stubPlatform) SubscribeChanges(context.Context, string, string) (<-chan platform.Change, error) {
	return p.changes, nil
}

func assign(dest, src any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func staticToken(context.Context) (string, error) { return "token", nil }

func fixedClock() time.Time {
	return time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)
}

func newTestViews(p *stubPlatform) *Views {
	return NewViews(p, staticToken, nil, fixedClock)
}

func TestLoadReplacesSnapshotWholesale(t *testing.T) {
	t.Parallel()

	p := newStubPlatform()
	p.rows[records.RelationContactMessages] = []records.ContactMessage{
		{ID: "m1", Subject: "first"},
		{ID: "m2", Subject: "second"},
	}
	m := newTestViews(p).Messages()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Rows(); len(got) != 2 || got[0].ID != "m1" {
		t.Fatalf("rows = %+v", got)
	}

	p.mu.Lock()
	p.rows[records.RelationContactMessages] = []records.ContactMessage{{ID: "m3", Subject: "third"}}
	p.mu.Unlock()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Rows()
	if len(got) != 1 || got[0].ID != "m3" {
		t.Errorf("rows after reload = %+v, want only m3", got)
	}
	if m.Loading() {
		t.Error("loading flag stuck after Load")
	}
}

func TestLoadFailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	p := newStubPlatform()
	p.rows[records.RelationDonations] = []records.Donation{{ID: "d1", Amount: 25}}
	m := newTestViews(p).Donations()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	p.mu.Lock()
	p.errs[records.RelationDonations] = platform.ErrUnavailable
	p.mu.Unlock()

	if err := m.Load(context.Background()); !errors.Is(err, platform.ErrUnavailable) {
		t.Fatalf("Load err = %v, want %v", err, platform.ErrUnavailable)
	}
	if got := m.Rows(); len(got) != 1 || got[0].ID != "d1" {
		t.Errorf("failed reload altered snapshot: %+v", got)
	}
	if m.Loading() {
		t.Error("loading flag stuck after failed Load")
	}
}

func TestOverlappingLoadsLastStartedWins(t *testing.T) {
	t.Parallel()

	p := newStubPlatform()
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	p.selectHook = func(relation string, call int) (any, bool) {
		if relation != records.RelationContactMessages {
			return nil, false
		}
		if call == 1 {
			close(firstStarted)
			<-releaseFirst
			return []records.ContactMessage{{ID: "stale"}}, true
		}
		return []records.ContactMessage{{ID: "fresh"}}, true
	}
	m := newTestViews(p).Messages()

	done := make(chan error, 1)
	go func() { done <- m.Load(context.Background()) }()
	<-firstStarted

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	close(releaseFirst)
	if err := <-done; err != nil {
		t.Fatalf("first Load: %v", err)
	}

	got := m.Rows()
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Errorf("rows = %+v, want the later load's result", got)
	}
}

func TestRunReloadsOnEveryChange(t *testing.T) {
	t.Parallel()

	p := newStubPlatform()
	p.rows[records.RelationContactMessages] = []records.ContactMessage{{ID: "m1"}}
	m := newTestViews(p).Messages()

	snapshots := make(chan []records.ContactMessage, 4)
	done := make(chan error, 1)
	go func() {
		done <- m.Run(context.Background(), func(rows []records.ContactMessage) {
			snapshots <- rows
		})
	}()

	first := <-snapshots
	if len(first) != 1 || first[0].ID != "m1" {
		t.Fatalf("initial snapshot = %+v", first)
	}

	p.mu.Lock()
	p.rows[records.RelationContactMessages] = []records.ContactMessage{{ID: "m1"}, {ID: "m2"}}
	p.mu.Unlock()
	p.changes <- platform.Change{Relation: records.RelationContactMessages, Type: "INSERT"}

	second := <-snapshots
	if len(second) != 2 {
		t.Fatalf("snapshot after change = %+v, want 2 rows", second)
	}

	close(p.changes)
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestBorrowsEnrichmentToleratesMissingProfile(t *testing.T) {
	t.Parallel()

	dept := "Physics"
	p := newStubPlatform()
	p.rows[records.RelationBookBorrows] = []records.BookBorrow{
		{ID: "b1", UserID: "u1", BookTitle: "Algebra"},
		{ID: "b2", UserID: "u2", BookTitle: "Optics"},
	}
	p.rows[records.RelationProfiles] = []records.ProfileRow{
		{UserID: "u1", FullName: "Chris Doe", Department: &dept},
	}
	m := newTestViews(p).Borrows()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	rows := m.Rows()
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].FullName != "Chris Doe" || rows[0].Department == nil {
		t.Errorf("enriched row = %+v", rows[0])
	}
	if rows[1].FullName != "" {
		t.Errorf("row without profile must stay bare: %+v", rows[1])
	}
}

func TestRowActionsPatchUpstreamOnly(t *testing.T) {
	t.Parallel()

	p := newStubPlatform()
	v := newTestViews(p)

	if err := v.ToggleMessageSeen(context.Background(), "m1", true); err != nil {
		t.Fatalf("ToggleMessageSeen: %v", err)
	}
	if err := v.MarkBorrowReturned(context.Background(), "b1"); err != nil {
		t.Fatalf("MarkBorrowReturned: %v", err)
	}
	if err := v.UpdateCardStatus(context.Background(), "c1", records.CardStatusApproved); err != nil {
		t.Fatalf("UpdateCardStatus: %v", err)
	}
	if err := v.DeleteDonation(context.Background(), "d1"); err != nil {
		t.Fatalf("DeleteDonation: %v", err)
	}

	if len(p.updates) != 3 {
		t.Fatalf("updates = %+v", p.updates)
	}
	seen := p.updates[0]
	if seen.relation != records.RelationContactMessages || seen.patch["is_seen"] != true {
		t.Errorf("toggle patch = %+v", seen)
	}
	returned := p.updates[1]
	if returned.patch["status"] != records.BorrowStatusReturned {
		t.Errorf("return patch = %+v", returned)
	}
	if returned.patch["return_date"] != "2026-03-10T09:30:00Z" {
		t.Errorf("return date = %v", returned.patch["return_date"])
	}
	status := p.updates[2]
	if status.relation != records.RelationCardApplications || status.patch["status"] != records.CardStatusApproved {
		t.Errorf("status patch = %+v", status)
	}
	if len(p.deletes) != 1 || p.deletes[0].relation != records.RelationDonations {
		t.Errorf("deletes = %+v", p.deletes)
	}
}

func TestUpdateCardStatusRejectsUnknownValue(t *testing.T) {
	t.Parallel()

	v := newTestViews(newStubPlatform())
	err := v.UpdateCardStatus(context.Background(), "c1", "archived")
	if !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("err = %v, want %v", err, ErrUnknownStatus)
	}
}
