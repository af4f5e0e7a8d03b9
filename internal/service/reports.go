package service

import (
	"context"

	"salonledger/backend/internal/domain"
)

func (s *Service) Statistics(ctx context.Context, salonID string, filter domain.ReportFilter) (domain.StatisticsResult, error) {
	scope, err := s.Scope(ctx, salonID)
	if err != nil {
		return domain.StatisticsResult{}, err
	}
	return s.reports.Statistics(ctx, scope, filter)
}

func (s *Service) Revenue(ctx context.Context, salonID string, filter domain.ReportFilter) (domain.RevenueResult, error) {
	scope, err := s.Scope(ctx, salonID)
	if err != nil {
		return domain.RevenueResult{}, err
	}
	return s.reports.Revenue(ctx, scope, filter)
}

// LineItems lists the caller's PAID line items with turnover totals.
func (s *Service) LineItems(ctx context.Context, salonID string, filter domain.ReportFilter) (domain.LineItemListResult, error) {
	scope, err := s.Scope(ctx, salonID)
	if err != nil {
		return domain.LineItemListResult{}, err
	}
	return s.reports.LineItems(ctx, scope, filter)
}
