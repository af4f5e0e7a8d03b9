package store

import (
	"context"
	"errors"
	"time"

	"salonledger/backend/internal/domain"
)

var (
	ErrNotFound               = domain.ErrNotFound
	ErrReconciliationConflict = domain.ErrReconciliationConflict
	ErrDuplicate              = errors.New("duplicate record")
)

// ItemWrite is one line item change inside a reconcile call. New items carry a
// pre-assigned ID; existing items are patched with Input.
type ItemWrite struct {
	ID    string
	New   bool
	Input domain.LineItemInput
}

type Repository interface {
	CreateSalon(ctx context.Context, salon domain.Salon) (*domain.Salon, error)
	GetSalon(ctx context.Context, salonID string) (*domain.Salon, error)
	ListSalonsForUser(ctx context.Context, userID string) ([]domain.Salon, error)

	CreateStaff(ctx context.Context, staff domain.StaffMember) (*domain.StaffMember, error)
	GetStaff(ctx context.Context, salonID string, staffID string, includeDeleted bool) (*domain.StaffMember, error)
	ListStaff(ctx context.Context, salonID string, includeDeleted bool) ([]domain.StaffMember, error)
	UpdateStaff(ctx context.Context, staff domain.StaffMember) (*domain.StaffMember, error)
	SoftDeleteStaff(ctx context.Context, salonID string, staffID string, at time.Time) error
	FindStaffByUser(ctx context.Context, salonID string, userID string, includeDeleted bool) (*domain.StaffMember, error)
	CreateStaffAccount(ctx context.Context, salonID string, staffID string, user domain.UserAccount) (*domain.UserAccount, error)

	CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error)
	ReconcileReceipt(ctx context.Context, receiptID string, fields domain.ReceiptFields, items []ItemWrite, at time.Time) (*domain.Receipt, error)
	GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error)
	ListReceipts(ctx context.Context, query domain.ReceiptQuery) ([]domain.Receipt, error)
	DeleteReceipt(ctx context.Context, receiptID string) error
	GetLineItem(ctx context.Context, lineItemID string) (*domain.LineItem, error)
	DeleteLineItem(ctx context.Context, lineItemID string) error

	LedgerReader

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	GetUser(ctx context.Context, userID string) (*domain.UserAccount, error)

	RegisterDevice(ctx context.Context, device domain.UserDevice) (*domain.UserDevice, error)
	UnregisterDevice(ctx context.Context, userID string, deviceID string) error
	ResolveDeviceIDs(ctx context.Context, userIDs []string) ([]string, error)
}

// LedgerReader is the read side the aggregation engine depends on.
type LedgerReader interface {
	ListLedgerEntries(ctx context.Context, query domain.LedgerQuery) ([]domain.LedgerEntry, error)
	// LedgerRevision increases on every committed write that touches a salon's ledger.
	LedgerRevision(ctx context.Context, salonID string) (int64, error)
}
