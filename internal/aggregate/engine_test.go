package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"salonledger/backend/internal/access"
	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/store/memory"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func newMapCache() *mapCache {
	return &mapCache{data: map[string][]byte{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, payload []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = payload
	return nil
}

type fixture struct {
	repo  *memory.Store
	guard *access.Guard
	day   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	for _, u := range []string{"owner", "s1", "s2"} {
		if _, err := repo.CreateUser(ctx, domain.UserAccount{ID: "usr_" + u, Username: u, PasswordHash: "hash"}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	if _, err := repo.CreateSalon(ctx, domain.Salon{ID: "salon_a", Name: "A", OwnerID: "usr_owner"}); err != nil {
		t.Fatalf("create salon: %v", err)
	}
	for _, m := range []domain.StaffMember{
		{ID: "S1", UserID: "usr_s1", FirstName: "Sara", CommissionRate: 0.5, Role: domain.RoleStylist},
		{ID: "S2", UserID: "usr_s2", FirstName: "Tom", CommissionRate: 0.3, Role: domain.RoleStylist},
	} {
		m.SalonID = "salon_a"
		m.Active = true
		if _, err := repo.CreateStaff(ctx, m); err != nil {
			t.Fatalf("create staff: %v", err)
		}
	}
	return &fixture{
		repo:  repo,
		guard: access.NewGuard(repo),
		day:   time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) scope(t *testing.T, userID string) access.Scope {
	t.Helper()
	scope, err := f.guard.Resolve(context.Background(), "salon_a", domain.Actor{UserID: userID})
	if err != nil {
		t.Fatalf("resolve scope: %v", err)
	}
	return scope
}

type line struct {
	staff  string
	amount string
	tip    string
}

func (f *fixture) receipt(t *testing.T, status domain.PaymentStatus, at time.Time, lines ...line) *domain.Receipt {
	t.Helper()
	items := make([]domain.LineItem, 0, len(lines))
	for _, l := range lines {
		tip := decimal.Zero
		if l.tip != "" {
			tip = decimal.RequireFromString(l.tip)
		}
		items = append(items, domain.LineItem{
			StaffID:       l.staff,
			ServiceName:   "Manicure",
			ServiceAmount: decimal.RequireFromString(l.amount),
			TipAmount:     tip,
			DiscountPrice: decimal.Zero,
			Status:        true,
		})
	}
	r, err := f.repo.CreateReceipt(context.Background(), domain.Receipt{
		SalonID:       "salon_a",
		PaymentStatus: status,
		CreatedAt:     at,
		Items:         items,
	})
	if err != nil {
		t.Fatalf("create receipt: %v", err)
	}
	return r
}

func mustEqual(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("%s: expected %s, got %s", label, want, got)
	}
}

func TestRevenueCommissionPerStaffGroup(t *testing.T) {
	f := newFixture(t)
	f.receipt(t, domain.PaymentPaid, f.day, line{"S1", "100.00", ""}, line{"S2", "50.00", ""})
	engine := NewEngine(f.repo, nil, 0, time.UTC)

	result, err := engine.Revenue(context.Background(), f.scope(t, "usr_owner"), domain.ReportFilter{Date: "2026-03-10"})
	if err != nil {
		t.Fatalf("revenue failed: %v", err)
	}
	if len(result.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(result.Groups))
	}
	s1, s2 := result.Groups[0], result.Groups[1]
	if s1.StaffID != "S1" || s2.StaffID != "S2" {
		t.Fatalf("expected S1 then S2, got %s then %s", s1.StaffID, s2.StaffID)
	}
	mustEqual(t, "S1 total", s1.TotalServiceAmount, "100.00")
	mustEqual(t, "S1 commission", s1.CommissionRevenue, "50.00")
	mustEqual(t, "S2 total", s2.TotalServiceAmount, "50.00")
	mustEqual(t, "S2 commission", s2.CommissionRevenue, "15.00")
	mustEqual(t, "summary commission", result.Summary.TotalCommissionRevenue, "65.00")
	if result.Summary.LineItemCount != 2 {
		t.Fatalf("expected summary count 2, got %d", result.Summary.LineItemCount)
	}
}

func TestRevenueRoundsHalfUpAfterSummation(t *testing.T) {
	f := newFixture(t)
	f.receipt(t, domain.PaymentPaid, f.day, line{"S1", "10.05", ""})
	f.receipt(t, domain.PaymentPaid, f.day.AddDate(0, 0, -1), line{"S1", "0.01", ""}, line{"S1", "0.01", ""})
	engine := NewEngine(f.repo, nil, 0, time.UTC)

	result, err := engine.Revenue(context.Background(), f.scope(t, "usr_owner"), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("revenue failed: %v", err)
	}
	if len(result.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(result.Groups))
	}
	mustEqual(t, "half-up commission", result.Groups[0].CommissionRevenue, "5.03")
	// 0.02 * 0.5 = 0.01; rounding each item first would give 0.02.
	mustEqual(t, "summed-then-rounded commission", result.Groups[1].CommissionRevenue, "0.01")
}

func TestRevenueOrdersByDateDescThenStaff(t *testing.T) {
	f := newFixture(t)
	f.receipt(t, domain.PaymentPaid, f.day.AddDate(0, 0, -2), line{"S2", "10.00", ""}, line{"S1", "10.00", ""})
	f.receipt(t, domain.PaymentPaid, f.day, line{"S2", "20.00", ""}, line{"S1", "20.00", ""})
	engine := NewEngine(f.repo, nil, 0, time.UTC)

	result, err := engine.Revenue(context.Background(), f.scope(t, "usr_owner"), domain.ReportFilter{})
	if err != nil {
		t.Fatalf("revenue failed: %v", err)
	}
	want := []struct{ date, staff string }{
		{"2026-03-10", "S1"}, {"2026-03-10", "S2"}, {"2026-03-08", "S1"}, {"2026-03-08", "S2"},
	}
	if len(result.Groups) != len(want) {
		t.Fatalf("expected %d groups, got %d", len(want), len(result.Groups))
	}
	for i, w := range want {
		if result.Groups[i].Date != w.date || result.Groups[i].StaffID != w.staff {
			t.Fatalf("group %d: expected %s/%s, got %s/%s", i, w.date, w.staff, result.Groups[i].Date, result.Groups[i].StaffID)
		}
	}
}

func TestStatisticsSumsMatchPaidLineItems(t *testing.T) {
	f := newFixture(t)
	f.receipt(t, domain.PaymentPaid, f.day, line{"S1", "40.00", "5.00"}, line{"S2", "25.50", "2.25"})
	f.receipt(t, domain.PaymentPaid, f.day.AddDate(0, 0, -1), line{"S1", "30.00", "1.00"})
	engine := NewEngine(f.repo, nil, 0, time.UTC)

	result, err := engine.Statistics(context.Background(), f.scope(t, "usr_owner"), domain.ReportFilter{From: "2026-03-09", To: "2026-03-10"})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if len(result.Groups) != 2 {
		t.Fatalf("expected 2 date groups, got %d", len(result.Groups))
	}
	if result.Groups[0].Date != "2026-03-10" || result.Groups[1].Date != "2026-03-09" {
		t.Fatalf("expected date desc, got %s then %s", result.Groups[0].Date, result.Groups[1].Date)
	}
	mustEqual(t, "day total", result.Groups[0].TotalServiceAmount, "65.50")
	mustEqual(t, "day tip", result.Groups[0].TotalTipAmount, "7.25")
	mustEqual(t, "summary total", result.Summary.TotalServiceAmount, "95.50")
	if result.Summary.LineItemCount != 3 {
		t.Fatalf("expected 3 line items, got %d", result.Summary.LineItemCount)
	}
}

func TestPendingReceiptExcludedUntilPaid(t *testing.T) {
	f := newFixture(t)
	r := f.receipt(t, domain.PaymentPending, f.day, line{"S1", "80.00", ""})
	engine := NewEngine(f.repo, newMapCache(), time.Minute, time.UTC)
	scope := f.scope(t, "usr_owner")

	before, err := engine.Statistics(context.Background(), scope, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if before.Summary.LineItemCount != 0 || len(before.Groups) != 0 {
		t.Fatalf("expected pending items excluded, got %+v", before.Summary)
	}

	paid := domain.PaymentPaid
	if _, err := f.repo.ReconcileReceipt(context.Background(), r.ID, domain.ReceiptFields{PaymentStatus: &paid}, nil, f.day); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	after, err := engine.Statistics(context.Background(), scope, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if after.Summary.LineItemCount != 1 {
		t.Fatalf("expected paid item counted after status change, got %d", after.Summary.LineItemCount)
	}
	mustEqual(t, "paid total", after.Summary.TotalServiceAmount, "80.00")
}

func TestCacheServesRepeatReadsUntilLedgerChanges(t *testing.T) {
	f := newFixture(t)
	f.receipt(t, domain.PaymentPaid, f.day, line{"S1", "10.00", ""})
	c := newMapCache()
	engine := NewEngine(f.repo, c, time.Minute, time.UTC)
	scope := f.scope(t, "usr_owner")

	for i := 0; i < 2; i++ {
		if _, err := engine.Revenue(context.Background(), scope, domain.ReportFilter{}); err != nil {
			t.Fatalf("revenue failed: %v", err)
		}
	}
	if c.hits != 1 {
		t.Fatalf("expected second read served from cache, got %d hits", c.hits)
	}

	f.receipt(t, domain.PaymentPaid, f.day, line{"S1", "5.00", ""})
	result, err := engine.Revenue(context.Background(), scope, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("revenue failed: %v", err)
	}
	mustEqual(t, "post-write total", result.Summary.TotalServiceAmount, "15.00")
	mustEqual(t, "post-write commission", result.Groups[0].CommissionRevenue, "7.50")
}

func TestStaffScopeSeesOnlyOwnItems(t *testing.T) {
	f := newFixture(t)
	f.receipt(t, domain.PaymentPaid, f.day, line{"S1", "100.00", ""}, line{"S2", "50.00", ""})
	engine := NewEngine(f.repo, nil, 0, time.UTC)
	scope := f.scope(t, "usr_s2")

	stats, err := engine.Statistics(context.Background(), scope, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	mustEqual(t, "staff total", stats.Summary.TotalServiceAmount, "50.00")

	revenue, err := engine.Revenue(context.Background(), scope, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("revenue failed: %v", err)
	}
	for _, g := range revenue.Groups {
		if g.StaffID != "S2" {
			t.Fatalf("staff scope leaked group for %s", g.StaffID)
		}
	}

	items, err := engine.LineItems(context.Background(), scope, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("line items failed: %v", err)
	}
	if items.TotalTurn != 1 || items.Items[0].StaffID != "S2" {
		t.Fatalf("expected only own line item, got %+v", items)
	}

	if _, err := engine.Revenue(context.Background(), scope, domain.ReportFilter{StaffID: "S1"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for foreign staff id, got %v", err)
	}
}

func TestOwnerStaffFilterNarrowsResults(t *testing.T) {
	f := newFixture(t)
	f.receipt(t, domain.PaymentPaid, f.day, line{"S1", "100.00", "3.00"}, line{"S2", "50.00", "1.00"})
	engine := NewEngine(f.repo, nil, 0, time.UTC)

	items, err := engine.LineItems(context.Background(), f.scope(t, "usr_owner"), domain.ReportFilter{StaffID: "S1"})
	if err != nil {
		t.Fatalf("line items failed: %v", err)
	}
	if items.TotalTurn != 1 {
		t.Fatalf("expected 1 turn, got %d", items.TotalTurn)
	}
	mustEqual(t, "total amount", items.TotalAmount, "100.00")
	mustEqual(t, "total tip", items.TotalTip, "3.00")
}

func TestGroupingUsesConfiguredZone(t *testing.T) {
	f := newFixture(t)
	zone := time.FixedZone("UTC-5", -5*60*60)
	// 02:00 UTC on the 10th is 21:00 on the 9th in UTC-5.
	f.receipt(t, domain.PaymentPaid, time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC), line{"S1", "30.00", ""})
	engine := NewEngine(f.repo, nil, 0, zone)

	stats, err := engine.Statistics(context.Background(), f.scope(t, "usr_owner"), domain.ReportFilter{Date: "2026-03-09"})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if len(stats.Groups) != 1 || stats.Groups[0].Date != "2026-03-09" {
		t.Fatalf("expected one group on 2026-03-09, got %+v", stats.Groups)
	}

	none, err := engine.Statistics(context.Background(), f.scope(t, "usr_owner"), domain.ReportFilter{Date: "2026-03-10"})
	if err != nil {
		t.Fatalf("statistics failed: %v", err)
	}
	if none.Summary.LineItemCount != 0 {
		t.Fatalf("expected no items on 2026-03-10 in UTC-5, got %d", none.Summary.LineItemCount)
	}
}

func TestInconsistentFiltersFail(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.repo, nil, 0, time.UTC)
	scope := f.scope(t, "usr_owner")

	for _, filter := range []domain.ReportFilter{
		{From: "2026-03-11", To: "2026-03-10"},
		{Date: "2026-03-10", From: "2026-03-01"},
		{Date: "10/03/2026"},
	} {
		if _, err := engine.Statistics(context.Background(), scope, filter); !errors.Is(err, domain.ErrAggregation) {
			t.Fatalf("expected aggregation error for %+v, got %v", filter, err)
		}
	}
}

func TestEngineRejectsZeroScope(t *testing.T) {
	f := newFixture(t)
	engine := NewEngine(f.repo, nil, 0, time.UTC)
	if _, err := engine.Revenue(context.Background(), access.Scope{}, domain.ReportFilter{}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for zero scope, got %v", err)
	}
}
