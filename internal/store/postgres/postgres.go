package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/store"
	"salonledger/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *Store) CreateSalon(ctx context.Context, salon domain.Salon) (*domain.Salon, error) {
	if salon.ID == "" {
		salon.ID = xid.New("salon")
	}
	if salon.CreatedAt.IsZero() {
		salon.CreatedAt = time.Now().UTC()
	}
	if salon.UpdatedAt.IsZero() {
		salon.UpdatedAt = salon.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO salons (id, name, phone, email, address, owner_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, salon.ID, salon.Name, salon.Phone, salon.Email, salon.Address, salon.OwnerID, salon.CreatedAt, salon.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &salon, nil
}

const salonColumns = `id, name, phone, email, address, owner_id, created_at, updated_at`

func scanSalon(row interface{ Scan(dest ...any) error }) (domain.Salon, error) {
	var salon domain.Salon
	err := row.Scan(&salon.ID, &salon.Name, &salon.Phone, &salon.Email, &salon.Address, &salon.OwnerID, &salon.CreatedAt, &salon.UpdatedAt)
	return salon, err
}

func (s *Store) GetSalon(ctx context.Context, salonID string) (*domain.Salon, error) {
	salon, err := scanSalon(s.db.QueryRowContext(ctx, `SELECT `+salonColumns+` FROM salons WHERE id = $1`, salonID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &salon, nil
}

func (s *Store) ListSalonsForUser(ctx context.Context, userID string) ([]domain.Salon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+salonColumns+`
		FROM salons
		WHERE owner_id = $1
			OR id IN (SELECT salon_id FROM staff_members WHERE user_id = $1 AND deleted = false)
		ORDER BY name, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	salons := make([]domain.Salon, 0, 4)
	for rows.Next() {
		salon, err := scanSalon(rows)
		if err != nil {
			return nil, err
		}
		salons = append(salons, salon)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return salons, nil
}

const staffColumns = `id, salon_id, COALESCE(user_id, ''), first_name, last_name, email, phone, address,
	gender, date_of_birth, hire_date, commission_rate, role, active, deleted, deleted_at, created_at, updated_at`

func scanStaff(row interface{ Scan(dest ...any) error }) (domain.StaffMember, error) {
	var (
		member    domain.StaffMember
		dob       sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&member.ID, &member.SalonID, &member.UserID, &member.FirstName, &member.LastName, &member.Email,
		&member.Phone, &member.Address, &member.Gender, &dob, &member.HireDate, &member.CommissionRate,
		&member.Role, &member.Active, &member.Deleted, &deletedAt, &member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		return member, err
	}
	if dob.Valid {
		member.DateOfBirth = &dob.Time
	}
	if deletedAt.Valid {
		member.DeletedAt = &deletedAt.Time
	}
	return member, nil
}

func (s *Store) CreateStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if member.ID == "" {
		member.ID = xid.New("staff")
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	if member.UpdatedAt.IsZero() {
		member.UpdatedAt = member.CreatedAt
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO staff_members (
			id, salon_id, user_id, first_name, last_name, email, phone, address, gender,
			date_of_birth, hire_date, commission_rate, role, active, deleted, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,false,$15,$16)
	`, member.ID, member.SalonID, nullIfEmpty(member.UserID), member.FirstName, member.LastName, member.Email,
		member.Phone, member.Address, member.Gender, nullDate(member.DateOfBirth), nowDateUTC(member.HireDate),
		member.CommissionRate, member.Role, member.Active, member.CreatedAt, member.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := bumpRevision(ctx, pgTx, member.SalonID); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetStaff(ctx, member.SalonID, member.ID, true)
}

func (s *Store) GetStaff(ctx context.Context, salonID string, staffID string, includeDeleted bool) (*domain.StaffMember, error) {
	member, err := scanStaff(s.db.QueryRowContext(ctx, `
		SELECT `+staffColumns+`
		FROM staff_members
		WHERE id = $1 AND salon_id = $2 AND ($3 OR deleted = false)
	`, staffID, salonID, includeDeleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (s *Store) ListStaff(ctx context.Context, salonID string, includeDeleted bool) ([]domain.StaffMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+staffColumns+`
		FROM staff_members
		WHERE salon_id = $1 AND ($2 OR deleted = false)
		ORDER BY first_name, id
	`, salonID, includeDeleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.StaffMember, 0, 16)
	for rows.Next() {
		member, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) UpdateStaff(ctx context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	if member.UpdatedAt.IsZero() {
		member.UpdatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE staff_members
		SET first_name = $3, last_name = $4, email = $5, phone = $6, address = $7,
			commission_rate = $8, role = $9, active = $10, updated_at = $11
		WHERE id = $1 AND salon_id = $2 AND deleted = false
	`, member.ID, member.SalonID, member.FirstName, member.LastName, member.Email, member.Phone, member.Address,
		member.CommissionRate, member.Role, member.Active, member.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	if err := bumpRevision(ctx, pgTx, member.SalonID); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetStaff(ctx, member.SalonID, member.ID, false)
}

func (s *Store) SoftDeleteStaff(ctx context.Context, salonID string, staffID string, at time.Time) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		UPDATE staff_members
		SET deleted = true, active = false, deleted_at = $3, updated_at = $3
		WHERE id = $1 AND salon_id = $2 AND deleted = false
	`, staffID, salonID, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if err := bumpRevision(ctx, pgTx, salonID); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) FindStaffByUser(ctx context.Context, salonID string, userID string, includeDeleted bool) (*domain.StaffMember, error) {
	if userID == "" {
		return nil, store.ErrNotFound
	}
	member, err := scanStaff(s.db.QueryRowContext(ctx, `
		SELECT `+staffColumns+`
		FROM staff_members
		WHERE salon_id = $1 AND user_id = $2 AND ($3 OR deleted = false)
		ORDER BY deleted ASC, created_at DESC
		LIMIT 1
	`, salonID, userID, includeDeleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

func (s *Store) CreateStaffAccount(ctx context.Context, salonID string, staffID string, user domain.UserAccount) (*domain.UserAccount, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var linked sql.NullString
	err = pgTx.QueryRowContext(ctx, `
		SELECT user_id
		FROM staff_members
		WHERE id = $1 AND salon_id = $2 AND deleted = false
		FOR UPDATE
	`, staffID, salonID).Scan(&linked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if linked.Valid && linked.String != "" {
		return nil, store.ErrDuplicate
	}

	created, err := insertUser(ctx, pgTx, user)
	if err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE staff_members SET user_id = $2, updated_at = now() WHERE id = $1
	`, staffID, created.ID); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	return insertUser(ctx, s.db, user)
}

func insertUser(ctx context.Context, q queryer, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, fmt.Errorf("username and password hash are required")
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true

	_, err := q.ExecContext(ctx, `
		INSERT INTO app_users (id, username, password_hash, first_name, last_name, email, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, user.ID, user.Username, user.PasswordHash, user.FirstName, user.LastName, user.Email, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &user, nil
}

const userColumns = `id, username, password_hash, first_name, last_name, email, active, created_at`

func (s *Store) getUser(ctx context.Context, where string, arg string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM app_users WHERE `+where+` = $1`, arg).Scan(
		&user.ID, &user.Username, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Email, &user.Active, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return s.getUser(ctx, "username", strings.ToLower(strings.TrimSpace(username)))
}

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.UserAccount, error) {
	return s.getUser(ctx, "id", userID)
}

func (s *Store) RegisterDevice(ctx context.Context, device domain.UserDevice) (*domain.UserDevice, error) {
	if device.ID == "" {
		device.ID = xid.New("dev")
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO user_devices (id, user_id, device_id, platform, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (device_id)
		DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform
		RETURNING id, created_at
	`, device.ID, device.UserID, device.DeviceID, device.Platform, device.CreatedAt).Scan(&device.ID, &device.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &device, nil
}

func (s *Store) UnregisterDevice(ctx context.Context, userID string, deviceID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_devices WHERE device_id = $1 AND user_id = $2`, deviceID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ResolveDeviceIDs(ctx context.Context, userIDs []string) ([]string, error) {
	ids := make([]string, 0, len(userIDs))
	if len(userIDs) == 0 {
		return ids, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id
		FROM user_devices
		WHERE user_id = ANY($1)
		ORDER BY device_id
	`, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func bumpRevision(ctx context.Context, q queryer, salonID string) error {
	_, err := q.ExecContext(ctx, `UPDATE salons SET ledger_revision = ledger_revision + 1 WHERE id = $1`, salonID)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}

func nullInstant(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
