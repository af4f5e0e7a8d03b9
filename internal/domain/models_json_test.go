package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRevenueEncodesTwoDecimalPlaces(t *testing.T) {
	result := RevenueResult{
		Groups: []RevenueGroup{
			{StaffID: "S1", Date: "2024-03-10", TotalServiceAmount: decimal.RequireFromString("100"), CommissionRevenue: decimal.RequireFromString("50")},
			{StaffID: "S2", Date: "2024-03-10", TotalServiceAmount: decimal.RequireFromString("50.00"), CommissionRevenue: Commission(decimal.RequireFromString("50.00"), 0.3)},
		},
		Summary: RevenueSummary{TotalCommissionRevenue: decimal.RequireFromString("65")},
	}
	raw, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal revenue: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		`"total_service_amount":"100.00"`,
		`"commission_revenue":"50.00"`,
		`"commission_revenue":"15.00"`,
		`"total_commission_revenue":"65.00"`,
		`"total_tip_amount":"0.00"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}

	var decoded RevenueResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal revenue: %v", err)
	}
	if !decoded.Groups[1].CommissionRevenue.Equal(decimal.RequireFromString("15")) || decoded.Groups[0].StaffID != "S1" {
		t.Fatalf("unexpected decoded revenue %+v", decoded)
	}
}

func TestReceiptEncodesNestedItemAmounts(t *testing.T) {
	receipt := Receipt{
		ID:          "rcp_1",
		TotalAmount: decimal.RequireFromString("120.5"),
		Items: []LineItem{{
			ID:            "li_1",
			StaffID:       "S1",
			ServiceAmount: decimal.RequireFromString("100"),
			TipAmount:     decimal.RequireFromString("20.5"),
		}},
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		t.Fatalf("marshal receipt: %v", err)
	}
	body := string(raw)
	for _, want := range []string{
		`"id":"rcp_1"`,
		`"total_amount":"120.50"`,
		`"sub_total_amount":"0.00"`,
		`"service_amount":"100.00"`,
		`"tip_amount":"20.50"`,
		`"staff_id":"S1"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	if strings.Count(body, `"total_amount"`) != 1 {
		t.Fatalf("amount fields must not be emitted twice: %s", body)
	}
}
