package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/records"
)

// BorrowWithProfile is a borrow row enriched with the borrower's profile
// attributes. Enrichment is per row and tolerant: a missing or unreadable
// profile leaves the extra fields empty.
type BorrowWithProfile struct {
	records.BookBorrow
	FullName   string  `json:"full_name,omitempty"`
	Department *string `json:"department,omitempty"`
	RollNumber *string `json:"roll_number,omitempty"`
	Phone      *string `json:"phone,omitempty"`
}

// Views builds the admin mirrors and carries the row actions behind them.
type Views struct {
	platform Platform
	token    TokenFunc
	logger   *slog.Logger
	now      func() time.Time
}

// NewViews binds the mirrors and actions to one signed-in session's token
// source.
func NewViews(p Platform, token TokenFunc, logger *slog.Logger, now func() time.Time) *Views {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Views{platform: p, token: token, logger: logger, now: now}
}

func newMirror[T any](v *Views, relation string, load func(ctx context.Context, token string) ([]T, error)) *Mirror[T] {
	return &Mirror[T]{
		relation: relation,
		logger:   v.logger,
		load: func(ctx context.Context) ([]T, error) {
			token, err := v.token(ctx)
			if err != nil {
				return nil, err
			}
			return load(ctx, token)
		},
		subscribe: func(ctx context.Context) (<-chan platform.Change, error) {
			token, err := v.token(ctx)
			if err != nil {
				return nil, err
			}
			return v.platform.SubscribeChanges(ctx, token, relation)
		},
	}
}

func listMirror[T any](v *Views, relation string) *Mirror[T] {
	return newMirror(v, relation, func(ctx context.Context, token string) ([]T, error) {
		var rows []T
		err := v.platform.Select(ctx, token, relation, platform.SelectOptions{
			OrderBy:    "created_at",
			Descending: true,
		}, &rows)
		return rows, err
	})
}

// Messages mirrors the contact inbox, newest first.
func (v *Views) Messages() *Mirror[records.ContactMessage] {
	return listMirror[records.ContactMessage](v, records.RelationContactMessages)
}

// Borrows mirrors the borrow ledger with per-row profile enrichment.
func (v *Views) Borrows() *Mirror[BorrowWithProfile] {
	return newMirror(v, records.RelationBookBorrows, func(ctx context.Context, token string) ([]BorrowWithProfile, error) {
		var borrows []records.BookBorrow
		err := v.platform.Select(ctx, token, records.RelationBookBorrows, platform.SelectOptions{
			OrderBy:    "created_at",
			Descending: true,
		}, &borrows)
		if err != nil {
			return nil, err
		}

		rows := make([]BorrowWithProfile, 0, len(borrows))
		for _, b := range borrows {
			row := BorrowWithProfile{BookBorrow: b}
			var profiles []records.ProfileRow
			err := v.platform.Select(ctx, token, records.RelationProfiles, platform.SelectOptions{
				Filters: map[string]string{"user_id": b.UserID},
				Limit:   1,
			}, &profiles)
			switch {
			case err != nil:
				v.logger.WarnContext(ctx, "borrower profile lookup failed",
					"borrow_id", b.ID, "error", err)
			case len(profiles) > 0:
				row.FullName = profiles[0].FullName
				row.Department = profiles[0].Department
				row.RollNumber = profiles[0].RollNumber
				row.Phone = profiles[0].Phone
			}
			rows = append(rows, row)
		}
		return rows, nil
	})
}

// Cards mirrors the library card applications.
func (v *Views) Cards() *Mirror[records.CardApplication] {
	return listMirror[records.CardApplication](v, records.RelationCardApplications)
}

// Donations mirrors the donation ledger.
func (v *Views) Donations() *Mirror[records.Donation] {
	return listMirror[records.Donation](v, records.RelationDonations)
}

// Students mirrors the registered student members.
func (v *Views) Students() *Mirror[records.Student] {
	return listMirror[records.Student](v, records.RelationStudents)
}

// NonStudents mirrors the registered non-student members.
func (v *Views) NonStudents() *Mirror[records.NonStudent] {
	return listMirror[records.NonStudent](v, records.RelationNonStudents)
}

// Row actions. None of them touch a mirror's snapshot: the platform's change
// notification drives the reload that makes the edit visible.

// ToggleMessageSeen flips the read marker on a contact message.
func (v *Views) ToggleMessageSeen(ctx context.Context, id string, seen bool) error {
	return v.update(ctx, records.RelationContactMessages, id, map[string]any{"is_seen": seen})
}

// DeleteMessage removes a contact message.
func (v *Views) DeleteMessage(ctx context.Context, id string) error {
	return v.delete(ctx, records.RelationContactMessages, id)
}

// MarkBorrowReturned closes out a borrow with the current time.
func (v *Views) MarkBorrowReturned(ctx context.Context, id string) error {
	return v.update(ctx, records.RelationBookBorrows, id, map[string]any{
		"status":      records.BorrowStatusReturned,
		"return_date": v.now().UTC().Format(time.RFC3339),
	})
}

// DeleteBorrow removes a borrow row.
func (v *Views) DeleteBorrow(ctx context.Context, id string) error {
	return v.delete(ctx, records.RelationBookBorrows, id)
}

// ErrUnknownStatus rejects card status values outside the review workflow.
var ErrUnknownStatus = errors.New("unknown card application status")

// UpdateCardStatus moves a card application through its review states.
func (v *Views) UpdateCardStatus(ctx context.Context, id, status string) error {
	switch status {
	case records.CardStatusPending, records.CardStatusApproved, records.CardStatusRejected:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return v.update(ctx, records.RelationCardApplications, id, map[string]any{"status": status})
}

// DeleteCard removes a card application.
func (v *Views) DeleteCard(ctx context.Context, id string) error {
	return v.delete(ctx, records.RelationCardApplications, id)
}

// DeleteDonation removes a donation entry.
func (v *Views) DeleteDonation(ctx context.Context, id string) error {
	return v.delete(ctx, records.RelationDonations, id)
}

// DeleteStudent removes a student member.
func (v *Views) DeleteStudent(ctx context.Context, id string) error {
	return v.delete(ctx, records.RelationStudents, id)
}

// DeleteNonStudent removes a non-student member.
func (v *Views) DeleteNonStudent(ctx context.Context, id string) error {
	return v.delete(ctx, records.RelationNonStudents, id)
}

func (v *Views) update(ctx context.Context, relation, id string, patch map[string]any) error {
	token, err := v.token(ctx)
	if err != nil {
		return err
	}
	return v.platform.Update(ctx, token, relation, id, patch)
}

func (v *Views) delete(ctx context.Context, relation, id string) error {
	token, err := v.token(ctx)
	if err != nil {
		return err
	}
	return v.platform.Delete(ctx, token, relation, id)
}
