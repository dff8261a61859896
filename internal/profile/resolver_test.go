package profile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/records"
)

type stubDataAPI struct {
	roles    []records.RoleAssignment
	rolesErr error
	rows     []records.ProfileRow
	rowsErr  error
}

func (s *stubDataAPI) Select(_ context.Context, _, relation string, _ platform.SelectOptions, dest any) error {
	switch relation {
	case records.RelationUserRoles:
		if s.rolesErr != nil {
			return s.rolesErr
		}
		return assign(dest, s.roles)
	case records.RelationProfiles:
		if s.rowsErr != nil {
			return s.rowsErr
		}
		return assign(dest, s.rows)
	default:
		return errors.New("unexpected relation: " + relation)
	}
}

func assign(dest, src any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func strPtr(s string) *string { return &s }

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		email        string
		data         *stubDataAPI
		wantRole     string
		wantFullName string
		wantAdmin    bool
	}{
		{
			name:  "role and attributes present",
			email: "chris@example.edu",
			data: &stubDataAPI{
				roles: []records.RoleAssignment{{UserID: "id-1", Role: "admin"}},
				rows:  []records.ProfileRow{{UserID: "id-1", FullName: "Chris Doe"}},
			},
			wantRole:     "admin",
			wantFullName: "Chris Doe",
			wantAdmin:    true,
		},
		{
			name:         "no rows anywhere falls back to defaults",
			email:        "newcomer@example.edu",
			data:         &stubDataAPI{},
			wantRole:     RoleUser,
			wantFullName: "newcomer",
		},
		{
			name:  "role lookup failure defaults role but keeps attributes",
			email: "pat@example.edu",
			data: &stubDataAPI{
				rolesErr: platform.ErrUnavailable,
				rows:     []records.ProfileRow{{UserID: "id-2", FullName: "Pat Smith"}},
			},
			wantRole:     RoleUser,
			wantFullName: "Pat Smith",
		},
		{
			name:  "attribute lookup failure defaults name but keeps role",
			email: "dana@example.edu",
			data: &stubDataAPI{
				roles:   []records.RoleAssignment{{UserID: "id-3", Role: "admin"}},
				rowsErr: platform.ErrNotFound,
			},
			wantRole:     "admin",
			wantFullName: "dana",
			wantAdmin:    true,
		},
		{
			name:  "blank stored name falls back to email local part",
			email: "sam@example.edu",
			data: &stubDataAPI{
				rows: []records.ProfileRow{{UserID: "id-4", FullName: "  "}},
			},
			wantRole:     RoleUser,
			wantFullName: "sam",
		},
		{
			name:         "email without at sign used verbatim",
			email:        "localonly",
			data:         &stubDataAPI{},
			wantRole:     RoleUser,
			wantFullName: "localonly",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			resolver := NewResolver(tc.data, nil)
			got := resolver.Resolve(context.Background(), "token", "identity-1", tc.email)

			if got.IdentityID != "identity-1" {
				t.Errorf("identity id = %q, want %q", got.IdentityID, "identity-1")
			}
			if got.Email != tc.email {
				t.Errorf("email = %q, want %q", got.Email, tc.email)
			}
			if got.Role != tc.wantRole {
				t.Errorf("role = %q, want %q", got.Role, tc.wantRole)
			}
			if got.FullName != tc.wantFullName {
				t.Errorf("full name = %q, want %q", got.FullName, tc.wantFullName)
			}
			if got.IsAdmin() != tc.wantAdmin {
				t.Errorf("IsAdmin() = %v, want %v", got.IsAdmin(), tc.wantAdmin)
			}
		})
	}
}

func TestResolveCopiesOptionalAttributes(t *testing.T) {
	t.Parallel()

	data := &stubDataAPI{
		rows: []records.ProfileRow{{
			UserID:       "id-5",
			FullName:     "Lee Park",
			Department:   strPtr("Physics"),
			Phone:        strPtr("555-0101"),
			RollNumber:   strPtr("PHY-42"),
			StudentClass: strPtr("BSc 2"),
		}},
	}

	got := NewResolver(data, nil).Resolve(context.Background(), "token", "id-5", "lee@example.edu")

	if got.Department == nil || *got.Department != "Physics" {
		t.Errorf("department not carried over: %v", got.Department)
	}
	if got.Phone == nil || *got.Phone != "555-0101" {
		t.Errorf("phone not carried over: %v", got.Phone)
	}
	if got.RollNumber == nil || *got.RollNumber != "PHY-42" {
		t.Errorf("roll number not carried over: %v", got.RollNumber)
	}
	if got.StudentClass == nil || *got.StudentClass != "BSc 2" {
		t.Errorf("student class not carried over: %v", got.StudentClass)
	}
}

func TestIsAdminNilReceiver(t *testing.T) {
	t.Parallel()

	var p *Profile
	if p.IsAdmin() {
		t.Error("nil profile must not be admin")
	}
}
