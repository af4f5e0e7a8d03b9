package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

func (p PaymentStatus) Valid() bool {
	return p == PaymentPending || p == PaymentPaid
}

type PaymentMethod string

const (
	PaymentCash                 PaymentMethod = "cash"
	PaymentDebit                PaymentMethod = "debit"
	PaymentDisc5PercentCash     PaymentMethod = "disc_5_percent_cash"
	PaymentDisc5PercentDebit    PaymentMethod = "disc_5_percent_debit"
	PaymentLoyalty              PaymentMethod = "loyalty"
	PaymentHappyHour            PaymentMethod = "happy_hour"
	PaymentCombinationCashDebit PaymentMethod = "combination_cash_debit"
	PaymentGiftCard             PaymentMethod = "gift_card"
	PaymentGiftCardCash         PaymentMethod = "gift_card_cash"
	PaymentGiftCardDebit        PaymentMethod = "gift_card_debit"
)

// Valid accepts the empty method; a receipt may be recorded before payment is chosen.
func (m PaymentMethod) Valid() bool {
	switch m {
	case "", PaymentCash, PaymentDebit, PaymentDisc5PercentCash, PaymentDisc5PercentDebit,
		PaymentLoyalty, PaymentHappyHour, PaymentCombinationCashDebit, PaymentGiftCard,
		PaymentGiftCardCash, PaymentGiftCardDebit:
		return true
	}
	return false
}

type StaffRole string

const (
	RoleStylist      StaffRole = "stylist"
	RoleReceptionist StaffRole = "receptionist"
	RoleManager      StaffRole = "manager"

	DefaultStaffRole = RoleStylist
)

func (r StaffRole) Valid() bool {
	return r == RoleStylist || r == RoleReceptionist || r == RoleManager
}

type Capability string

const (
	CapCreateReceipts Capability = "receipts:create"
	CapEditReceipts   Capability = "receipts:edit"
)

var roleCapabilities = map[StaffRole][]Capability{
	RoleStylist:      nil,
	RoleReceptionist: {CapCreateReceipts},
	RoleManager:      {CapCreateReceipts, CapEditReceipts},
}

func (r StaffRole) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

type Salon struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StaffMember struct {
	ID             string     `json:"id"`
	SalonID        string     `json:"salon_id"`
	UserID         string     `json:"user_id,omitempty"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone"`
	Address        string     `json:"address,omitempty"`
	Gender         Gender     `json:"gender"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	HireDate       time.Time  `json:"hire_date"`
	CommissionRate float64    `json:"commission_rate"`
	Role           StaffRole  `json:"role"`
	Active         bool       `json:"active"`
	Deleted        bool       `json:"deleted"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s StaffMember) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

func (s StaffMember) Ref() *StaffRef {
	return &StaffRef{ID: s.ID, UserID: s.UserID, FirstName: s.FirstName, LastName: s.LastName}
}

// StaffRef is the staff identity attached to a line item view.
type StaffRef struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id,omitempty"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Receipt struct {
	ID                 string          `json:"id"`
	SalonID            string          `json:"salon_id"`
	PaymentStatus      PaymentStatus   `json:"payment_status"`
	SubTotalAmount     decimal.Decimal `json:"sub_total_amount"`
	ReturnAmount       decimal.Decimal `json:"return_amount"`
	TipTotalAmount     decimal.Decimal `json:"tip_total_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	CustomDiscount     float64         `json:"custom_discount"`
	BonusAmount        decimal.Decimal `json:"bonus_amount"`
	PaymentMethod      PaymentMethod   `json:"payment_method"`
	PaymentMethodPrice decimal.Decimal `json:"payment_method_price"`
	Items              []LineItem      `json:"line_items"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type LineItem struct {
	ID              string          `json:"id"`
	ReceiptID       string          `json:"receipt_id"`
	StaffID         string          `json:"staff_id"`
	Staff           *StaffRef       `json:"staff,omitempty"`
	ServiceName     string          `json:"service_name"`
	ServiceAmount   decimal.Decimal `json:"service_amount"`
	TipAmount       decimal.Decimal `json:"tip_amount"`
	DiscountPrice   decimal.Decimal `json:"discount_price"`
	DiscountPercent float64         `json:"discount_percent"`
	Status          bool            `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type UserAccount struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserDevice struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	DeviceID  string    `json:"device_id"`
	Platform  string    `json:"platform,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID   string
	Username string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	ExpiresAt   string `json:"expires_at"`
}

type SalonCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type StaffCreateRequest struct {
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Address        string    `json:"address"`
	Gender         Gender    `json:"gender"`
	DateOfBirth    string    `json:"date_of_birth"`
	HireDate       string    `json:"hire_date"`
	CommissionRate float64   `json:"commission_rate"`
	Role           StaffRole `json:"role"`
}

type StaffUpdateRequest struct {
	FirstName      *string    `json:"first_name,omitempty"`
	LastName       *string    `json:"last_name,omitempty"`
	Email          *string    `json:"email,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	Address        *string    `json:"address,omitempty"`
	CommissionRate *float64   `json:"commission_rate,omitempty"`
	Role           *StaffRole `json:"role,omitempty"`
	Active         *bool      `json:"active,omitempty"`
}

type StaffAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// LineItemInput is one submitted line item. An empty ID means "insert"; otherwise only
// the provided fields of the existing item change.
type LineItemInput struct {
	ID              string           `json:"id,omitempty"`
	StaffID         *string          `json:"staff,omitempty"`
	ServiceName     *string          `json:"service_name,omitempty"`
	ServiceAmount   *decimal.Decimal `json:"service_amount,omitempty"`
	TipAmount       *decimal.Decimal `json:"tip_amount,omitempty"`
	DiscountPrice   *decimal.Decimal `json:"discount_price,omitempty"`
	DiscountPercent *float64         `json:"discount_percent,omitempty"`
	Status          *bool            `json:"status,omitempty"`
}

// ReceiptFields are the receipt-level values of a write. Nil fields keep their current
// value on reconcile and take the zero default on create.
type ReceiptFields struct {
	PaymentStatus      *PaymentStatus   `json:"payment_status,omitempty"`
	SubTotalAmount     *decimal.Decimal `json:"sub_total_amount,omitempty"`
	ReturnAmount       *decimal.Decimal `json:"return_amount,omitempty"`
	TipTotalAmount     *decimal.Decimal `json:"tip_total_amount,omitempty"`
	TotalAmount        *decimal.Decimal `json:"total_amount,omitempty"`
	CustomDiscount     *float64         `json:"custom_discount,omitempty"`
	BonusAmount        *decimal.Decimal `json:"bonus_amount,omitempty"`
	PaymentMethod      *PaymentMethod   `json:"payment_method,omitempty"`
	PaymentMethodPrice *decimal.Decimal `json:"payment_method_price,omitempty"`
}

// Apply copies the provided fields onto r.
func (f ReceiptFields) Apply(r *Receipt) {
	if f.PaymentStatus != nil {
		r.PaymentStatus = *f.PaymentStatus
	}
	if f.SubTotalAmount != nil {
		r.SubTotalAmount = *f.SubTotalAmount
	}
	if f.ReturnAmount != nil {
		r.ReturnAmount = *f.ReturnAmount
	}
	if f.TipTotalAmount != nil {
		r.TipTotalAmount = *f.TipTotalAmount
	}
	if f.TotalAmount != nil {
		r.TotalAmount = *f.TotalAmount
	}
	if f.CustomDiscount != nil {
		r.CustomDiscount = *f.CustomDiscount
	}
	if f.BonusAmount != nil {
		r.BonusAmount = *f.BonusAmount
	}
	if f.PaymentMethod != nil {
		r.PaymentMethod = *f.PaymentMethod
	}
	if f.PaymentMethodPrice != nil {
		r.PaymentMethodPrice = *f.PaymentMethodPrice
	}
}

func (f ReceiptFields) Empty() bool {
	return f == ReceiptFields{}
}

type ReceiptCreateRequest struct {
	ReceiptFields
	Items []LineItemInput `json:"line_items"`
}

type ReceiptReconcileRequest struct {
	ReceiptFields
	Items []LineItemInput `json:"line_items"`
}

// ApplyTo copies the provided fields onto an existing line item.
func (in LineItemInput) ApplyTo(item *LineItem) {
	if in.StaffID != nil {
		item.StaffID = strings.TrimSpace(*in.StaffID)
	}
	if in.ServiceName != nil {
		item.ServiceName = strings.TrimSpace(*in.ServiceName)
	}
	if in.ServiceAmount != nil {
		item.ServiceAmount = *in.ServiceAmount
	}
	if in.TipAmount != nil {
		item.TipAmount = *in.TipAmount
	}
	if in.DiscountPrice != nil {
		item.DiscountPrice = *in.DiscountPrice
	}
	if in.DiscountPercent != nil {
		item.DiscountPercent = *in.DiscountPercent
	}
	if in.Status != nil {
		item.Status = *in.Status
	}
}

// ReportFilter is the caller-facing date/staff filter vocabulary. Dates are YYYY-MM-DD.
type ReportFilter struct {
	Date    string `json:"date,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	StaffID string `json:"staff_id,omitempty"`
}

type ReceiptFilter struct {
	ReportFilter
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
}

// LedgerQuery selects line items for aggregation. From is inclusive, To exclusive; zero
// bounds are open.
type LedgerQuery struct {
	SalonID       string
	StaffID       string
	PaymentStatus PaymentStatus
	From          time.Time
	To            time.Time
}

// ReceiptQuery selects receipts. A non-empty StaffID keeps receipts holding at least one
// of that staff member's items.
type ReceiptQuery struct {
	SalonID       string
	StaffID       string
	PaymentStatus PaymentStatus
	From          time.Time
	To            time.Time
}

// LedgerEntry is a line item joined with its staff commission data.
type LedgerEntry struct {
	LineItemID      string          `json:"line_item_id"`
	ReceiptID       string          `json:"receipt_id"`
	StaffID         string          `json:"staff_id"`
	StaffName       string          `json:"staff_name"`
	CommissionRate  float64         `json:"commission_rate"`
	ServiceName     string          `json:"service_name"`
	ServiceAmount   decimal.Decimal `json:"service_amount"`
	TipAmount       decimal.Decimal `json:"tip_amount"`
	DiscountPrice   decimal.Decimal `json:"discount_price"`
	DiscountPercent float64         `json:"discount_percent"`
	CreatedAt       time.Time       `json:"created_at"`
}

type StatisticsGroup struct {
	Date               string          `json:"date"`
	TotalServiceAmount decimal.Decimal `json:"total_service_amount"`
	TotalTipAmount     decimal.Decimal `json:"total_tip_amount"`
	TotalDiscount      decimal.Decimal `json:"total_discount"`
	LineItemCount      int             `json:"line_item_count"`
}

type StatisticsSummary struct {
	TotalServiceAmount decimal.Decimal `json:"total_service_amount"`
	TotalTipAmount     decimal.Decimal `json:"total_tip_amount"`
	TotalDiscount      decimal.Decimal `json:"total_discount"`
	LineItemCount      int             `json:"line_item_count"`
}

type StatisticsResult struct {
	Groups  []StatisticsGroup `json:"groups"`
	Summary StatisticsSummary `json:"summary"`
}

type RevenueGroup struct {
	StaffID            string          `json:"staff_id"`
	StaffName          string          `json:"staff_name"`
	CommissionRate     float64         `json:"commission_rate"`
	Date               string          `json:"date"`
	TotalServiceAmount decimal.Decimal `json:"total_service_amount"`
	TotalTipAmount     decimal.Decimal `json:"total_tip_amount"`
	LineItemCount      int             `json:"line_item_count"`
	CommissionRevenue  decimal.Decimal `json:"commission_revenue"`
}

type RevenueSummary struct {
	TotalServiceAmount     decimal.Decimal `json:"total_service_amount"`
	TotalTipAmount         decimal.Decimal `json:"total_tip_amount"`
	LineItemCount          int             `json:"line_item_count"`
	TotalCommissionRevenue decimal.Decimal `json:"total_commission_revenue"`
}

type RevenueResult struct {
	Groups  []RevenueGroup `json:"groups"`
	Summary RevenueSummary `json:"summary"`
}

type LineItemListResult struct {
	Items       []LedgerEntry   `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalTip    decimal.Decimal `json:"total_tip"`
	TotalTurn   int             `json:"total_turn"`
}

type DeviceRegisterRequest struct {
	DeviceID string `json:"device_id"`
	Platform string `json:"platform"`
}

// Participant is one staff contribution in a receipt notification.
type Participant struct {
	UserID        string
	FirstName     string
	ServiceAmount decimal.Decimal
	TipAmount     decimal.Decimal
}

// ReceiptNotice is what the write path hands to the notification side channel.
type ReceiptNotice struct {
	ReceiptID     string
	SalonID       string
	PaymentStatus PaymentStatus
	OwnerUserID   string
	Participants  []Participant
}
