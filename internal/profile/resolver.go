// Package profile reconstructs display and role metadata for an identity
// from the platform's role-assignment and profile-attribute relations, and
// derives the admin capability from the result.
package profile

import (
	"context"
	"log/slog"
	"strings"

	"github.com/example/library-portal/internal/platform"
	"github.com/example/library-portal/internal/records"
)

// Application roles. Anything other than admin carries no extra capability.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Profile is derived, never authoritative: it is rebuilt in full on every
// identity transition and discarded with the identity it belongs to.
type Profile struct {
	IdentityID   string  `json:"identity_id"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	Role         string  `json:"role"`
	Department   *string `json:"department,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	RollNumber   *string `json:"roll_number,omitempty"`
	StudentClass *string `json:"student_class,omitempty"`
}

// IsAdmin is the capability gate: only a resolved profile with the admin role
// grants access. A nil profile is non-admin, never "unknown".
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// DataAPI is the slice of the platform client the resolver reads through.
type DataAPI interface {
	Select(ctx context.Context, accessToken, relation string, opts platform.SelectOptions, dest any) error
}

// Resolver composes the two lookups behind Resolve.
type Resolver struct {
	data   DataAPI
	logger *slog.Logger
}

// NewResolver constructs a Resolver. A nil logger selects slog.Default.
func NewResolver(data DataAPI, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{data: data, logger: logger}
}

// Resolve turns an identity into a Profile. The role and attribute lookups
// run independently; either may fail or return nothing without affecting the
// other, and every failure degrades to a default instead of an error. The
// caller always receives a usable Profile.
func (r *Resolver) Resolve(ctx context.Context, accessToken, identityID, email string) Profile {
	p := Profile{
		IdentityID: identityID,
		Email:      email,
		FullName:   emailLocalPart(email),
		Role:       RoleUser,
	}

	var roles []records.RoleAssignment
	err := r.data.Select(ctx, accessToken, records.RelationUserRoles, platform.SelectOptions{
		Filters: map[string]string{"user_id": identityID},
	}, &roles)
	switch {
	case err != nil:
		r.logger.ErrorContext(ctx, "role lookup failed, defaulting to user",
			"identity_id", identityID, "error", err, "error_kind", platform.ErrorKind(err))
	case len(roles) > 0:
		if role := strings.TrimSpace(roles[0].Role); role != "" {
			p.Role = role
		}
	}

	var rows []records.ProfileRow
	err = r.data.Select(ctx, accessToken, records.RelationProfiles, platform.SelectOptions{
		Filters: map[string]string{"user_id": identityID},
		Limit:   1,
	}, &rows)
	switch {
	case err != nil:
		r.logger.ErrorContext(ctx, "profile lookup failed, using defaults",
			"identity_id", identityID, "error", err, "error_kind", platform.ErrorKind(err))
	case len(rows) > 0:
		row := rows[0]
		if name := strings.TrimSpace(row.FullName); name != "" {
			p.FullName = name
		}
		p.Department = row.Department
		p.Phone = row.Phone
		p.RollNumber = row.RollNumber
		p.StudentClass = row.StudentClass
	}

	return p
}

func emailLocalPart(email string) string {
	local, _, found := strings.Cut(email, "@")
	if found && local != "" {
		return local
	}
	return email
}
