package domain

import "encoding/json"

// The encoders below render every amount through Money so "100.00" never becomes "100".
// Decoding keeps the default decimal parsing.

func (r Receipt) MarshalJSON() ([]byte, error) {
	type plain Receipt
	return json.Marshal(struct {
		plain
		SubTotalAmount     Money `json:"sub_total_amount"`
		ReturnAmount       Money `json:"return_amount"`
		TipTotalAmount     Money `json:"tip_total_amount"`
		TotalAmount        Money `json:"total_amount"`
		BonusAmount        Money `json:"bonus_amount"`
		PaymentMethodPrice Money `json:"payment_method_price"`
	}{
		plain(r),
		Money(r.SubTotalAmount),
		Money(r.ReturnAmount),
		Money(r.TipTotalAmount),
		Money(r.TotalAmount),
		Money(r.BonusAmount),
		Money(r.PaymentMethodPrice),
	})
}

func (l LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	return json.Marshal(struct {
		plain
		ServiceAmount Money `json:"service_amount"`
		TipAmount     Money `json:"tip_amount"`
		DiscountPrice Money `json:"discount_price"`
	}{plain(l), Money(l.ServiceAmount), Money(l.TipAmount), Money(l.DiscountPrice)})
}

func (e LedgerEntry) MarshalJSON() ([]byte, error) {
	type plain LedgerEntry
	return json.Marshal(struct {
		plain
		ServiceAmount Money `json:"service_amount"`
		TipAmount     Money `json:"tip_amount"`
		DiscountPrice Money `json:"discount_price"`
	}{plain(e), Money(e.ServiceAmount), Money(e.TipAmount), Money(e.DiscountPrice)})
}

func (g StatisticsGroup) MarshalJSON() ([]byte, error) {
	type plain StatisticsGroup
	return json.Marshal(struct {
		plain
		TotalServiceAmount Money `json:"total_service_amount"`
		TotalTipAmount     Money `json:"total_tip_amount"`
		TotalDiscount      Money `json:"total_discount"`
	}{plain(g), Money(g.TotalServiceAmount), Money(g.TotalTipAmount), Money(g.TotalDiscount)})
}

func (s StatisticsSummary) MarshalJSON() ([]byte, error) {
	type plain StatisticsSummary
	return json.Marshal(struct {
		plain
		TotalServiceAmount Money `json:"total_service_amount"`
		TotalTipAmount     Money `json:"total_tip_amount"`
		TotalDiscount      Money `json:"total_discount"`
	}{plain(s), Money(s.TotalServiceAmount), Money(s.TotalTipAmount), Money(s.TotalDiscount)})
}

func (g RevenueGroup) MarshalJSON() ([]byte, error) {
	type plain RevenueGroup
	return json.Marshal(struct {
		plain
		TotalServiceAmount Money `json:"total_service_amount"`
		TotalTipAmount     Money `json:"total_tip_amount"`
		CommissionRevenue  Money `json:"commission_revenue"`
	}{plain(g), Money(g.TotalServiceAmount), Money(g.TotalTipAmount), Money(g.CommissionRevenue)})
}

func (s RevenueSummary) MarshalJSON() ([]byte, error) {
	type plain RevenueSummary
	return json.Marshal(struct {
		plain
		TotalServiceAmount     Money `json:"total_service_amount"`
		TotalTipAmount         Money `json:"total_tip_amount"`
		TotalCommissionRevenue Money `json:"total_commission_revenue"`
	}{plain(s), Money(s.TotalServiceAmount), Money(s.TotalTipAmount), Money(s.TotalCommissionRevenue)})
}

func (r LineItemListResult) MarshalJSON() ([]byte, error) {
	type plain LineItemListResult
	return json.Marshal(struct {
		plain
		TotalAmount Money `json:"total_amount"`
		TotalTip    Money `json:"total_tip"`
	}{plain(r), Money(r.TotalAmount), Money(r.TotalTip)})
}
