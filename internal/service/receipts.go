package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"salonledger/backend/internal/access"
	"salonledger/backend/internal/aggregate"
	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/metrics"
	"salonledger/backend/internal/store"
	"salonledger/backend/internal/xid"
)

// CreateReceipt persists a receipt and all of its line items in one transaction and
// notifies the participants once it has committed.
func (s *Service) CreateReceipt(ctx context.Context, salonID string, req domain.ReceiptCreateRequest) (domain.Receipt, error) {
	scope, err := s.Scope(ctx, salonID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if err := scope.Require(domain.CapCreateReceipts); err != nil {
		return domain.Receipt{}, err
	}

	v := &domain.ValidationError{}
	validateReceiptFields(v, req.ReceiptFields)
	for i, in := range req.Items {
		if strings.TrimSpace(in.ID) != "" {
			v.Add(fmt.Sprintf("line_items[%d].id", i), "must be empty on create")
		}
		validateLineItem(v, i, in, true)
	}
	if err := v.Err(); err != nil {
		return domain.Receipt{}, err
	}

	now := s.now()
	receipt := domain.Receipt{
		ID:                 xid.New("rcp"),
		SalonID:            scope.SalonID(),
		PaymentStatus:      domain.PaymentPending,
		SubTotalAmount:     decimalOrZero(req.SubTotalAmount),
		ReturnAmount:       decimalOrZero(req.ReturnAmount),
		TipTotalAmount:     decimalOrZero(req.TipTotalAmount),
		TotalAmount:        decimalOrZero(req.TotalAmount),
		BonusAmount:        decimalOrZero(req.BonusAmount),
		PaymentMethodPrice: decimalOrZero(req.PaymentMethodPrice),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	req.ReceiptFields.Apply(&receipt)

	receipt.Items = make([]domain.LineItem, 0, len(req.Items))
	for _, in := range req.Items {
		item := domain.LineItem{
			ID:            xid.New("li"),
			ReceiptID:     receipt.ID,
			ServiceAmount: decimal.Zero,
			TipAmount:     decimal.Zero,
			DiscountPrice: decimal.Zero,
			Status:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		in.ApplyTo(&item)
		receipt.Items = append(receipt.Items, item)
	}

	created, err := s.repo.CreateReceipt(ctx, receipt)
	if err != nil {
		return domain.Receipt{}, err
	}
	metrics.ReceiptsCreated.Inc()
	s.notify(ctx, created)
	return *created, nil
}

// ReconcileReceipt merges submitted line items into an existing receipt. Items with an id
// are patched, items without one are inserted, and omitted items are left alone.
func (s *Service) ReconcileReceipt(ctx context.Context, receiptID string, req domain.ReceiptReconcileRequest) (domain.Receipt, error) {
	existing, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return domain.Receipt{}, mapNotFound(err, "receipt %s", receiptID)
	}
	scope, err := s.Scope(ctx, existing.SalonID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if err := scope.Require(domain.CapEditReceipts); err != nil {
		return domain.Receipt{}, err
	}

	v := &domain.ValidationError{}
	validateReceiptFields(v, req.ReceiptFields)
	writes := make([]store.ItemWrite, 0, len(req.Items))
	for i, in := range req.Items {
		id := strings.TrimSpace(in.ID)
		isNew := id == ""
		validateLineItem(v, i, in, isNew)
		if isNew {
			id = xid.New("li")
		}
		writes = append(writes, store.ItemWrite{ID: id, New: isNew, Input: in})
	}
	if err := v.Err(); err != nil {
		return domain.Receipt{}, err
	}

	updated, err := s.repo.ReconcileReceipt(ctx, receiptID, req.ReceiptFields, writes, s.now())
	if err != nil {
		if errors.Is(err, store.ErrReconciliationConflict) {
			metrics.Reconciliations.WithLabelValues("conflict").Inc()
		} else {
			metrics.Reconciliations.WithLabelValues("error").Inc()
		}
		return domain.Receipt{}, err
	}
	metrics.Reconciliations.WithLabelValues("ok").Inc()
	s.notify(ctx, updated)
	return *updated, nil
}

// GetReceipt returns the receipt as the caller may see it. Staff callers only see their
// own line items and only receipts holding at least one of them.
func (s *Service) GetReceipt(ctx context.Context, receiptID string) (domain.Receipt, error) {
	receipt, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return domain.Receipt{}, mapNotFound(err, "receipt %s", receiptID)
	}
	scope, err := s.Scope(ctx, receipt.SalonID)
	if err != nil {
		return domain.Receipt{}, err
	}
	view, ok := visibleReceipt(scope, *receipt)
	if !ok {
		return domain.Receipt{}, domain.Unauthorizedf("receipt %s has no line items for this caller", receiptID)
	}
	return view, nil
}

func (s *Service) ListReceipts(ctx context.Context, salonID string, filter domain.ReceiptFilter) ([]domain.Receipt, error) {
	scope, err := s.Scope(ctx, salonID)
	if err != nil {
		return nil, err
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, domain.Aggregationf("payment_status must be PENDING or PAID")
	}
	staffID, err := scope.NarrowStaff(filter.StaffID)
	if err != nil {
		return nil, err
	}
	rng, err := aggregate.ParseDateFilter(filter.ReportFilter, s.reports.Location())
	if err != nil {
		return nil, err
	}

	receipts, err := s.repo.ListReceipts(ctx, domain.ReceiptQuery{
		SalonID:       scope.SalonID(),
		StaffID:       staffID,
		PaymentStatus: filter.PaymentStatus,
		From:          rng.From,
		To:            rng.To,
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Receipt, 0, len(receipts))
	for _, receipt := range receipts {
		if view, ok := visibleReceipt(scope, receipt); ok {
			out = append(out, view)
		}
	}
	return out, nil
}

func (s *Service) DeleteReceipt(ctx context.Context, receiptID string) error {
	receipt, err := s.repo.GetReceipt(ctx, receiptID)
	if err != nil {
		return mapNotFound(err, "receipt %s", receiptID)
	}
	if _, err := s.ownerScope(ctx, receipt.SalonID); err != nil {
		return err
	}
	if err := s.repo.DeleteReceipt(ctx, receiptID); err != nil {
		return mapNotFound(err, "receipt %s", receiptID)
	}
	return nil
}

// DeleteLineItem is the only way a line item leaves a receipt; reconcile never removes.
func (s *Service) DeleteLineItem(ctx context.Context, lineItemID string) error {
	item, err := s.repo.GetLineItem(ctx, lineItemID)
	if err != nil {
		return mapNotFound(err, "line item %s", lineItemID)
	}
	receipt, err := s.repo.GetReceipt(ctx, item.ReceiptID)
	if err != nil {
		return mapNotFound(err, "receipt %s", item.ReceiptID)
	}
	if _, err := s.ownerScope(ctx, receipt.SalonID); err != nil {
		return err
	}
	if err := s.repo.DeleteLineItem(ctx, lineItemID); err != nil {
		return mapNotFound(err, "line item %s", lineItemID)
	}
	return nil
}

func visibleReceipt(scope access.Scope, receipt domain.Receipt) (domain.Receipt, bool) {
	if scope.IsOwner() {
		return receipt, true
	}
	own := make([]domain.LineItem, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		if item.StaffID == scope.StaffID() {
			own = append(own, item)
		}
	}
	if len(own) == 0 {
		return domain.Receipt{}, false
	}
	receipt.Items = own
	return receipt, true
}

// notify hands the committed receipt to the dispatcher. Owner lookup failures are logged;
// participants still get their message.
func (s *Service) notify(ctx context.Context, receipt *domain.Receipt) {
	if s.dispatcher == nil || receipt == nil {
		return
	}
	notice := domain.ReceiptNotice{
		ReceiptID:     receipt.ID,
		SalonID:       receipt.SalonID,
		PaymentStatus: receipt.PaymentStatus,
		Participants:  make([]domain.Participant, 0, len(receipt.Items)),
	}
	if salon, err := s.repo.GetSalon(ctx, receipt.SalonID); err != nil {
		log.Printf("[service] WARN: resolve owner for receipt %s notification: %v", receipt.ID, err)
	} else {
		notice.OwnerUserID = salon.OwnerID
	}
	for _, item := range receipt.Items {
		p := domain.Participant{
			ServiceAmount: item.ServiceAmount,
			TipAmount:     item.TipAmount,
		}
		if item.Staff != nil {
			p.UserID = item.Staff.UserID
			p.FirstName = item.Staff.FirstName
		}
		notice.Participants = append(notice.Participants, p)
	}
	s.dispatcher.Dispatch(notice)
}
