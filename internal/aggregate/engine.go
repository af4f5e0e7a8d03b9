// Package aggregate computes the PAID-only ledger reports: daily statistics, per-staff
// commission revenue and the scoped line-item listing.
package aggregate

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"salonledger/backend/internal/access"
	"salonledger/backend/internal/cache"
	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/metrics"
	"salonledger/backend/internal/store"
)

type reportKind string

const (
	kindStatistics reportKind = "statistics"
	kindRevenue    reportKind = "revenue"
	kindLineItems  reportKind = "line_items"
)

type Engine struct {
	ledger   store.LedgerReader
	cache    cache.ReportCache
	cacheTTL time.Duration
	loc      *time.Location
}

func NewEngine(ledger store.LedgerReader, cacheStore cache.ReportCache, cacheTTL time.Duration, loc *time.Location) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		ledger:   ledger,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		loc:      loc,
	}
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

func (e *Engine) Statistics(ctx context.Context, scope access.Scope, filter domain.ReportFilter) (domain.StatisticsResult, error) {
	var result domain.StatisticsResult
	err := e.run(ctx, scope, filter, kindStatistics, &result, func(entries []domain.LedgerEntry) any {
		result = e.statistics(entries)
		return result
	})
	return result, err
}

func (e *Engine) Revenue(ctx context.Context, scope access.Scope, filter domain.ReportFilter) (domain.RevenueResult, error) {
	var result domain.RevenueResult
	err := e.run(ctx, scope, filter, kindRevenue, &result, func(entries []domain.LedgerEntry) any {
		result = e.revenue(entries)
		return result
	})
	return result, err
}

func (e *Engine) LineItems(ctx context.Context, scope access.Scope, filter domain.ReportFilter) (domain.LineItemListResult, error) {
	var result domain.LineItemListResult
	err := e.run(ctx, scope, filter, kindLineItems, &result, func(entries []domain.LedgerEntry) any {
		result = lineItems(entries)
		return result
	})
	return result, err
}

// run resolves the scoped query, serves it from cache when the salon's ledger revision
// has not moved, and otherwise computes and stores it. dst receives the cached payload.
func (e *Engine) run(
	ctx context.Context,
	scope access.Scope,
	filter domain.ReportFilter,
	kind reportKind,
	dst any,
	compute func([]domain.LedgerEntry) any,
) error {
	if err := scope.Check(""); err != nil {
		return err
	}
	staffID, err := scope.NarrowStaff(filter.StaffID)
	if err != nil {
		return err
	}
	rng, err := ParseDateFilter(filter, e.loc)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	defer func() {
		metrics.AggregationLatency.WithLabelValues(string(kind)).Observe(float64(time.Since(startedAt).Milliseconds()))
	}()

	revision, err := e.ledger.LedgerRevision(ctx, scope.SalonID())
	if err != nil {
		return err
	}
	key := buildCacheKey(scope, revision, kind, staffID, rng)
	if payload, ok, err := e.cache.Get(ctx, key); err != nil {
		metrics.ReportCacheLookups.WithLabelValues("error").Inc()
		log.Printf("[aggregate] WARN: cache get %s failed: %v", kind, err)
	} else if ok {
		if err := json.Unmarshal(payload, dst); err == nil {
			metrics.ReportCacheLookups.WithLabelValues("hit").Inc()
			return nil
		}
		log.Printf("[aggregate] WARN: discarding undecodable cached %s", kind)
	} else {
		metrics.ReportCacheLookups.WithLabelValues("miss").Inc()
	}

	entries, err := e.ledger.ListLedgerEntries(ctx, domain.LedgerQuery{
		SalonID:       scope.SalonID(),
		StaffID:       staffID,
		PaymentStatus: domain.PaymentPaid,
		From:          rng.From,
		To:            rng.To,
	})
	if err != nil {
		return err
	}
	value := compute(entries)

	if payload, err := json.Marshal(value); err == nil {
		if err := e.cache.Set(ctx, key, payload, e.cacheTTL); err != nil {
			log.Printf("[aggregate] WARN: cache set %s failed: %v", kind, err)
		}
	}
	return nil
}

func (e *Engine) statistics(entries []domain.LedgerEntry) domain.StatisticsResult {
	result := domain.StatisticsResult{
		Groups: make([]domain.StatisticsGroup, 0, 8),
		Summary: domain.StatisticsSummary{
			TotalServiceAmount: decimal.Zero,
			TotalTipAmount:     decimal.Zero,
			TotalDiscount:      decimal.Zero,
		},
	}
	byDate := map[string]*domain.StatisticsGroup{}

	for _, entry := range entries {
		date := DayKey(entry.CreatedAt, e.loc)
		group := byDate[date]
		if group == nil {
			group = &domain.StatisticsGroup{
				Date:               date,
				TotalServiceAmount: decimal.Zero,
				TotalTipAmount:     decimal.Zero,
				TotalDiscount:      decimal.Zero,
			}
			byDate[date] = group
		}
		group.TotalServiceAmount = group.TotalServiceAmount.Add(entry.ServiceAmount)
		group.TotalTipAmount = group.TotalTipAmount.Add(entry.TipAmount)
		group.TotalDiscount = group.TotalDiscount.Add(entry.DiscountPrice)
		group.LineItemCount++

		result.Summary.TotalServiceAmount = result.Summary.TotalServiceAmount.Add(entry.ServiceAmount)
		result.Summary.TotalTipAmount = result.Summary.TotalTipAmount.Add(entry.TipAmount)
		result.Summary.TotalDiscount = result.Summary.TotalDiscount.Add(entry.DiscountPrice)
		result.Summary.LineItemCount++
	}

	for _, group := range byDate {
		result.Groups = append(result.Groups, *group)
	}
	slices.SortFunc(result.Groups, func(a, b domain.StatisticsGroup) int {
		return strings.Compare(b.Date, a.Date)
	})
	return result
}

// revenue applies the commission rate once per staff/date group, after summation.
func (e *Engine) revenue(entries []domain.LedgerEntry) domain.RevenueResult {
	result := domain.RevenueResult{
		Groups: make([]domain.RevenueGroup, 0, 8),
		Summary: domain.RevenueSummary{
			TotalServiceAmount:     decimal.Zero,
			TotalTipAmount:         decimal.Zero,
			TotalCommissionRevenue: decimal.Zero,
		},
	}
	byKey := map[string]*domain.RevenueGroup{}

	for _, entry := range entries {
		date := DayKey(entry.CreatedAt, e.loc)
		key := entry.StaffID + "|" + date
		group := byKey[key]
		if group == nil {
			group = &domain.RevenueGroup{
				StaffID:            entry.StaffID,
				StaffName:          entry.StaffName,
				CommissionRate:     entry.CommissionRate,
				Date:               date,
				TotalServiceAmount: decimal.Zero,
				TotalTipAmount:     decimal.Zero,
			}
			byKey[key] = group
		}
		group.TotalServiceAmount = group.TotalServiceAmount.Add(entry.ServiceAmount)
		group.TotalTipAmount = group.TotalTipAmount.Add(entry.TipAmount)
		group.LineItemCount++

		result.Summary.TotalServiceAmount = result.Summary.TotalServiceAmount.Add(entry.ServiceAmount)
		result.Summary.TotalTipAmount = result.Summary.TotalTipAmount.Add(entry.TipAmount)
		result.Summary.LineItemCount++
	}

	for _, group := range byKey {
		group.CommissionRevenue = domain.Commission(group.TotalServiceAmount, group.CommissionRate)
		result.Summary.TotalCommissionRevenue = result.Summary.TotalCommissionRevenue.Add(group.CommissionRevenue)
		result.Groups = append(result.Groups, *group)
	}
	slices.SortFunc(result.Groups, func(a, b domain.RevenueGroup) int {
		if c := strings.Compare(b.Date, a.Date); c != 0 {
			return c
		}
		return strings.Compare(a.StaffID, b.StaffID)
	})
	return result
}

func lineItems(entries []domain.LedgerEntry) domain.LineItemListResult {
	result := domain.LineItemListResult{
		Items:       make([]domain.LedgerEntry, 0, len(entries)),
		TotalAmount: decimal.Zero,
		TotalTip:    decimal.Zero,
	}
	for _, entry := range entries {
		result.Items = append(result.Items, entry)
		result.TotalAmount = result.TotalAmount.Add(entry.ServiceAmount)
		result.TotalTip = result.TotalTip.Add(entry.TipAmount)
		result.TotalTurn++
	}
	return result
}

func buildCacheKey(scope access.Scope, revision int64, kind reportKind, staffID string, rng DateRange) string {
	raw := fmt.Sprintf("%s|%s|%s|%d|%d", scope.Key(), kind, staffID, unixOrZero(rng.From), unixOrZero(rng.To))
	sum := sha1.Sum([]byte(raw))
	return fmt.Sprintf("%s:%d:%s", scope.SalonID(), revision, hex.EncodeToString(sum[:]))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
