package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"salonledger/backend/internal/access"
	"salonledger/backend/internal/aggregate"
	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/notify"
	"salonledger/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	guard      *access.Guard
	reports    *aggregate.Engine
	dispatcher *notify.Dispatcher
	now        func() time.Time
}

func New(repo store.Repository, reports *aggregate.Engine, dispatcher *notify.Dispatcher) *Service {
	if reports == nil {
		reports = aggregate.NewEngine(repo, nil, 0, time.UTC)
	}
	return &Service{
		repo:       repo,
		guard:      access.NewGuard(repo),
		reports:    reports,
		dispatcher: dispatcher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the write timestamp source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) actor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, domain.Unauthorizedf("authentication required")
	}
	return actor, nil
}

// Scope resolves the caller's visibility on a salon.
func (s *Service) Scope(ctx context.Context, salonID string) (access.Scope, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return access.Scope{}, err
	}
	return s.guard.Resolve(ctx, salonID, actor)
}

func (s *Service) ownerScope(ctx context.Context, salonID string) (access.Scope, error) {
	scope, err := s.Scope(ctx, salonID)
	if err != nil {
		return access.Scope{}, err
	}
	if !scope.IsOwner() {
		return access.Scope{}, domain.Unauthorizedf("only the salon owner may do this")
	}
	return scope, nil
}

func (s *Service) CreateSalon(ctx context.Context, req domain.SalonCreateRequest) (domain.Salon, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.Salon{}, err
	}
	v := &domain.ValidationError{}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		v.Add("name", "is required")
	}
	if err := v.Err(); err != nil {
		return domain.Salon{}, err
	}

	now := s.now()
	created, err := s.repo.CreateSalon(ctx, domain.Salon{
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Address:   strings.TrimSpace(req.Address),
		OwnerID:   actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Salon{}, err
	}
	return *created, nil
}

// ListMySalons returns salons the caller owns or works at.
func (s *Service) ListMySalons(ctx context.Context) ([]domain.Salon, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSalonsForUser(ctx, actor.UserID)
}

func (s *Service) ListStaff(ctx context.Context, salonID string, includeDeleted bool) ([]domain.StaffMember, error) {
	scope, err := s.Scope(ctx, salonID)
	if err != nil {
		return nil, err
	}
	if includeDeleted && !scope.IsOwner() {
		return nil, domain.Unauthorizedf("only the salon owner may list deleted staff")
	}
	return s.repo.ListStaff(ctx, salonID, includeDeleted)
}

// AddStaff resolves the role default here rather than in persistence.
func (s *Service) AddStaff(ctx context.Context, salonID string, req domain.StaffCreateRequest) (domain.StaffMember, error) {
	if _, err := s.ownerScope(ctx, salonID); err != nil {
		return domain.StaffMember{}, err
	}

	v := &domain.ValidationError{}
	member := domain.StaffMember{
		SalonID:        salonID,
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		Email:          strings.TrimSpace(req.Email),
		Phone:          strings.TrimSpace(req.Phone),
		Address:        strings.TrimSpace(req.Address),
		Gender:         req.Gender,
		CommissionRate: req.CommissionRate,
		Role:           req.Role,
		Active:         true,
	}
	if member.FirstName == "" {
		v.Add("first_name", "is required")
	}
	if member.Gender == "" {
		member.Gender = domain.GenderOther
	}
	if !member.Gender.Valid() {
		v.Add("gender", "must be M, F or O")
	}
	if member.Role == "" {
		member.Role = domain.DefaultStaffRole
	}
	if !member.Role.Valid() {
		v.Add("role", "unknown role %q", req.Role)
	}
	checkCommissionRate(v, member.CommissionRate)
	member.DateOfBirth = parseOptionalDate(v, "date_of_birth", req.DateOfBirth)
	now := s.now()
	member.HireDate = now
	if hire := parseOptionalDate(v, "hire_date", req.HireDate); hire != nil {
		member.HireDate = *hire
	}
	if err := v.Err(); err != nil {
		return domain.StaffMember{}, err
	}

	member.CreatedAt = now
	member.UpdatedAt = now
	created, err := s.repo.CreateStaff(ctx, member)
	if err != nil {
		return domain.StaffMember{}, err
	}
	return *created, nil
}

func (s *Service) UpdateStaff(ctx context.Context, salonID string, staffID string, req domain.StaffUpdateRequest) (domain.StaffMember, error) {
	if _, err := s.ownerScope(ctx, salonID); err != nil {
		return domain.StaffMember{}, err
	}
	existing, err := s.repo.GetStaff(ctx, salonID, staffID, false)
	if err != nil {
		return domain.StaffMember{}, mapNotFound(err, "staff member %s", staffID)
	}

	v := &domain.ValidationError{}
	updated := *existing
	if req.FirstName != nil {
		updated.FirstName = strings.TrimSpace(*req.FirstName)
		if updated.FirstName == "" {
			v.Add("first_name", "must not be empty")
		}
	}
	if req.LastName != nil {
		updated.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.CommissionRate != nil {
		updated.CommissionRate = *req.CommissionRate
		checkCommissionRate(v, updated.CommissionRate)
	}
	if req.Role != nil {
		updated.Role = *req.Role
		if !updated.Role.Valid() {
			v.Add("role", "unknown role %q", *req.Role)
		}
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if err := v.Err(); err != nil {
		return domain.StaffMember{}, err
	}

	updated.UpdatedAt = s.now()
	saved, err := s.repo.UpdateStaff(ctx, updated)
	if err != nil {
		return domain.StaffMember{}, mapNotFound(err, "staff member %s", staffID)
	}
	return *saved, nil
}

// DeleteStaff is a soft delete. Historical line items keep pointing at the record.
func (s *Service) DeleteStaff(ctx context.Context, salonID string, staffID string) error {
	if _, err := s.ownerScope(ctx, salonID); err != nil {
		return err
	}
	if err := s.repo.SoftDeleteStaff(ctx, salonID, staffID, s.now()); err != nil {
		return mapNotFound(err, "staff member %s", staffID)
	}
	return nil
}

// ProvisionStaffAccount creates a login for a staff member and links it. It is the only
// path that creates a user for staff.
func (s *Service) ProvisionStaffAccount(ctx context.Context, salonID string, staffID string, req domain.StaffAccountRequest) (domain.UserAccount, error) {
	if _, err := s.ownerScope(ctx, salonID); err != nil {
		return domain.UserAccount{}, err
	}
	member, err := s.repo.GetStaff(ctx, salonID, staffID, false)
	if err != nil {
		return domain.UserAccount{}, mapNotFound(err, "staff member %s", staffID)
	}

	v := &domain.ValidationError{}
	if member.UserID != "" {
		v.Add("staff", "already has a linked account")
	}
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if len(username) < 3 || len(username) > 64 {
		v.Add("username", "must be between 3 and 64 characters")
	} else if strings.ContainsAny(username, " \t\r\n") {
		v.Add("username", "must not contain spaces")
	}
	if len(req.Password) < 8 {
		v.Add("password", "must be at least 8 characters")
	}
	if err := v.Err(); err != nil {
		return domain.UserAccount{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, err
	}
	created, err := s.repo.CreateStaffAccount(ctx, salonID, staffID, domain.UserAccount{
		Username:     username,
		PasswordHash: string(hash),
		FirstName:    member.FirstName,
		LastName:     member.LastName,
		Email:        strings.TrimSpace(req.Email),
		CreatedAt:    s.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			dup := &domain.ValidationError{}
			dup.Add("username", "is already taken")
			return domain.UserAccount{}, dup
		}
		return domain.UserAccount{}, mapNotFound(err, "staff member %s", staffID)
	}
	return *created, nil
}

func (s *Service) RegisterDevice(ctx context.Context, req domain.DeviceRegisterRequest) (domain.UserDevice, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return domain.UserDevice{}, err
	}
	v := &domain.ValidationError{}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		v.Add("device_id", "is required")
	}
	if err := v.Err(); err != nil {
		return domain.UserDevice{}, err
	}

	device, err := s.repo.RegisterDevice(ctx, domain.UserDevice{
		UserID:    actor.UserID,
		DeviceID:  deviceID,
		Platform:  strings.ToLower(strings.TrimSpace(req.Platform)),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.UserDevice{}, err
	}
	return *device, nil
}

func (s *Service) UnregisterDevice(ctx context.Context, deviceID string) error {
	actor, err := s.actor(ctx)
	if err != nil {
		return err
	}
	if err := s.repo.UnregisterDevice(ctx, actor.UserID, strings.TrimSpace(deviceID)); err != nil {
		return mapNotFound(err, "device %s", deviceID)
	}
	return nil
}

// mapNotFound names the missing entity in store not-found errors.
func mapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.NotFoundf(format, args...)
	}
	return err
}
