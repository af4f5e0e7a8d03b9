package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salonledger/backend/internal/domain"
)

func checkMoney(v *domain.ValidationError, field string, d *decimal.Decimal) {
	if d == nil {
		return
	}
	if d.IsNegative() {
		v.Add(field, "must not be negative")
		return
	}
	if !domain.HasAtMostTwoPlaces(*d) {
		v.Add(field, "must have at most %d decimal places", domain.MoneyPlaces)
	}
}

func checkPercent(v *domain.ValidationError, field string, p *float64) {
	if p == nil {
		return
	}
	if *p < 0 || *p > 100 {
		v.Add(field, "must be between 0 and 100")
	}
}

func validateReceiptFields(v *domain.ValidationError, f domain.ReceiptFields) {
	if f.PaymentStatus != nil && !f.PaymentStatus.Valid() {
		v.Add("payment_status", "must be PENDING or PAID")
	}
	if f.PaymentMethod != nil && !f.PaymentMethod.Valid() {
		v.Add("payment_method", "unknown payment method %q", *f.PaymentMethod)
	}
	checkMoney(v, "sub_total_amount", f.SubTotalAmount)
	checkMoney(v, "return_amount", f.ReturnAmount)
	checkMoney(v, "tip_total_amount", f.TipTotalAmount)
	checkMoney(v, "total_amount", f.TotalAmount)
	checkMoney(v, "bonus_amount", f.BonusAmount)
	checkMoney(v, "payment_method_price", f.PaymentMethodPrice)
	checkPercent(v, "custom_discount", f.CustomDiscount)
}

// validateLineItem checks one submitted item. New items must name their staff member;
// patches only check the fields they carry.
func validateLineItem(v *domain.ValidationError, index int, in domain.LineItemInput, isNew bool) {
	prefix := fmt.Sprintf("line_items[%d].", index)
	if in.StaffID != nil && strings.TrimSpace(*in.StaffID) == "" {
		v.Add(prefix+"staff", "must not be empty")
	}
	if isNew && in.StaffID == nil {
		v.Add(prefix+"staff", "is required")
	}
	checkMoney(v, prefix+"service_amount", in.ServiceAmount)
	checkMoney(v, prefix+"tip_amount", in.TipAmount)
	checkMoney(v, prefix+"discount_price", in.DiscountPrice)
	checkPercent(v, prefix+"discount_percent", in.DiscountPercent)
}

func parseOptionalDate(v *domain.ValidationError, field string, value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		v.Add(field, "must be YYYY-MM-DD")
		return nil
	}
	return &t
}

func checkCommissionRate(v *domain.ValidationError, rate float64) {
	if rate < 0 || rate > 1 {
		v.Add("commission_rate", "must be a fraction between 0 and 1")
	}
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
