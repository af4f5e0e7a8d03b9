// Package access decides what slice of a salon's ledger a caller may see or change.
package access

import (
	"context"
	"errors"

	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/store"
)

type Kind int

const (
	kindNone Kind = iota
	KindOwner
	KindStaff
)

func (k Kind) String() string {
	switch k {
	case KindOwner:
		return "owner"
	case KindStaff:
		return "staff"
	default:
		return "none"
	}
}

// Scope is the resolved visibility of one caller on one salon. Only Guard.Resolve builds
// a usable Scope; the zero value grants nothing.
type Scope struct {
	kind    Kind
	salonID string
	userID  string
	staffID string
	role    domain.StaffRole
	deleted bool
}

func (s Scope) Valid() bool     { return s.kind != kindNone && s.salonID != "" }
func (s Scope) Kind() Kind      { return s.kind }
func (s Scope) SalonID() string { return s.salonID }
func (s Scope) UserID() string  { return s.userID }

// StaffID is empty for owner scope.
func (s Scope) StaffID() string { return s.staffID }

func (s Scope) IsOwner() bool { return s.kind == KindOwner }

// Check rejects the zero Scope and scopes minted for another salon.
func (s Scope) Check(salonID string) error {
	if !s.Valid() {
		return domain.Unauthorizedf("visibility scope is missing")
	}
	if salonID != "" && s.salonID != salonID {
		return domain.Unauthorizedf("scope belongs to salon %s", s.salonID)
	}
	return nil
}

// Allows reports whether the caller holds a write capability. Deleted staff keep read
// access to their own history but lose every write capability.
func (s Scope) Allows(c domain.Capability) bool {
	switch s.kind {
	case KindOwner:
		return true
	case KindStaff:
		return !s.deleted && s.role.Can(c)
	default:
		return false
	}
}

func (s Scope) Require(c domain.Capability) error {
	if err := s.Check(""); err != nil {
		return err
	}
	if !s.Allows(c) {
		return domain.Unauthorizedf("missing capability %s", c)
	}
	return nil
}

// NarrowStaff applies an optional staff filter. Owners may filter by any staff member;
// staff callers are always pinned to themselves and may only name their own id.
func (s Scope) NarrowStaff(requested string) (string, error) {
	if err := s.Check(""); err != nil {
		return "", err
	}
	if s.kind == KindOwner {
		return requested, nil
	}
	if requested != "" && requested != s.staffID {
		return "", domain.Unauthorizedf("staff callers may only view their own entries")
	}
	return s.staffID, nil
}

// Key identifies the scope for cache partitioning.
func (s Scope) Key() string {
	if s.kind == KindOwner {
		return "owner"
	}
	return "staff:" + s.staffID
}

type Directory interface {
	GetSalon(ctx context.Context, salonID string) (*domain.Salon, error)
	FindStaffByUser(ctx context.Context, salonID string, userID string, includeDeleted bool) (*domain.StaffMember, error)
}

type Guard struct {
	dir Directory
}

func NewGuard(dir Directory) *Guard {
	return &Guard{dir: dir}
}

// Resolve computes the caller's scope once per request. Ownership wins over a staff
// link on the same salon. Staff lookup includes soft-deleted records.
func (g *Guard) Resolve(ctx context.Context, salonID string, actor domain.Actor) (Scope, error) {
	if actor.UserID == "" {
		return Scope{}, domain.Unauthorizedf("authentication required")
	}
	salon, err := g.dir.GetSalon(ctx, salonID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Scope{}, domain.NotFoundf("salon %s", salonID)
		}
		return Scope{}, err
	}
	if salon.OwnerID == actor.UserID {
		return Scope{kind: KindOwner, salonID: salon.ID, userID: actor.UserID}, nil
	}

	member, err := g.dir.FindStaffByUser(ctx, salon.ID, actor.UserID, true)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Scope{}, domain.Unauthorizedf("user is neither owner nor staff of salon %s", salon.ID)
		}
		return Scope{}, err
	}
	// An unset role grants no capabilities; defaults are resolved when staff are added.
	return Scope{
		kind:    KindStaff,
		salonID: salon.ID,
		userID:  actor.UserID,
		staffID: member.ID,
		role:    member.Role,
		deleted: member.Deleted,
	}, nil
}
