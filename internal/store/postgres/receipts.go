package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/store"
	"salonledger/backend/internal/xid"
)

const receiptColumns = `id, salon_id, payment_status, sub_total_amount, return_amount, tip_total_amount,
	total_amount, custom_discount, bonus_amount, payment_method, payment_method_price, created_at, updated_at`

func scanReceipt(row interface{ Scan(dest ...any) error }) (domain.Receipt, error) {
	var r domain.Receipt
	err := row.Scan(
		&r.ID, &r.SalonID, &r.PaymentStatus, &r.SubTotalAmount, &r.ReturnAmount, &r.TipTotalAmount,
		&r.TotalAmount, &r.CustomDiscount, &r.BonusAmount, &r.PaymentMethod, &r.PaymentMethodPrice,
		&r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.Receipt) (*domain.Receipt, error) {
	if receipt.ID == "" {
		receipt.ID = xid.New("rcp")
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	if receipt.UpdatedAt.IsZero() {
		receipt.UpdatedAt = receipt.CreatedAt
	}

	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO receipts (
			id, salon_id, payment_status, sub_total_amount, return_amount, tip_total_amount,
			total_amount, custom_discount, bonus_amount, payment_method, payment_method_price,
			created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, receipt.ID, receipt.SalonID, receipt.PaymentStatus, receipt.SubTotalAmount, receipt.ReturnAmount,
		receipt.TipTotalAmount, receipt.TotalAmount, receipt.CustomDiscount, receipt.BonusAmount,
		receipt.PaymentMethod, receipt.PaymentMethodPrice, receipt.CreatedAt, receipt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, item := range receipt.Items {
		if err := checkStaff(ctx, pgTx, receipt.SalonID, item.StaffID); err != nil {
			return nil, err
		}
		if item.ID == "" {
			item.ID = xid.New("li")
		}
		item.ReceiptID = receipt.ID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = receipt.CreatedAt
		}
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = item.CreatedAt
		}
		if err := insertLineItem(ctx, pgTx, item); err != nil {
			return nil, err
		}
	}

	if err := bumpRevision(ctx, pgTx, receipt.SalonID); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetReceipt(ctx, receipt.ID)
}

// ReconcileReceipt locks the receipt row first, then each referenced line item, so two
// concurrent reconciles of one receipt serialize and never interleave.
func (s *Store) ReconcileReceipt(ctx context.Context, receiptID string, fields domain.ReceiptFields, writes []store.ItemWrite, at time.Time) (*domain.Receipt, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	receipt, err := scanReceipt(pgTx.QueryRowContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE id = $1
		FOR UPDATE
	`, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	for _, w := range writes {
		if w.New {
			item := domain.LineItem{
				ID:            w.ID,
				ReceiptID:     receiptID,
				ServiceAmount: decimal.Zero,
				TipAmount:     decimal.Zero,
				DiscountPrice: decimal.Zero,
				Status:        true,
				CreatedAt:     at,
				UpdatedAt:     at,
			}
			w.Input.ApplyTo(&item)
			if err := checkStaff(ctx, pgTx, receipt.SalonID, item.StaffID); err != nil {
				return nil, err
			}
			if err := insertLineItem(ctx, pgTx, item); err != nil {
				return nil, err
			}
			continue
		}

		item, err := scanLineItem(pgTx.QueryRowContext(ctx, `
			SELECT `+lineItemColumns+`
			FROM line_items
			WHERE id = $1
			FOR UPDATE
		`, w.ID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%w: line item %s does not exist", store.ErrReconciliationConflict, w.ID)
			}
			return nil, err
		}
		if item.ReceiptID != receiptID {
			return nil, fmt.Errorf("%w: line item %s belongs to another receipt", store.ErrReconciliationConflict, w.ID)
		}
		w.Input.ApplyTo(&item)
		if w.Input.StaffID != nil {
			if err := checkStaff(ctx, pgTx, receipt.SalonID, item.StaffID); err != nil {
				return nil, err
			}
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE line_items
			SET staff_id = $2, service_name = $3, service_amount = $4, tip_amount = $5,
				discount_price = $6, discount_percent = $7, status = $8, updated_at = $9
			WHERE id = $1
		`, item.ID, item.StaffID, item.ServiceName, item.ServiceAmount, item.TipAmount,
			item.DiscountPrice, item.DiscountPercent, item.Status, at)
		if err != nil {
			return nil, err
		}
	}

	fields.Apply(&receipt)
	_, err = pgTx.ExecContext(ctx, `
		UPDATE receipts
		SET payment_status = $2, sub_total_amount = $3, return_amount = $4, tip_total_amount = $5,
			total_amount = $6, custom_discount = $7, bonus_amount = $8, payment_method = $9,
			payment_method_price = $10, updated_at = $11
		WHERE id = $1
	`, receipt.ID, receipt.PaymentStatus, receipt.SubTotalAmount, receipt.ReturnAmount, receipt.TipTotalAmount,
		receipt.TotalAmount, receipt.CustomDiscount, receipt.BonusAmount, receipt.PaymentMethod,
		receipt.PaymentMethodPrice, at)
	if err != nil {
		return nil, err
	}

	if err := bumpRevision(ctx, pgTx, receipt.SalonID); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return s.GetReceipt(ctx, receiptID)
}

func (s *Store) GetReceipt(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	receipt, err := scanReceipt(s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, receiptID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	byReceipt, err := s.loadItems(ctx, []string{receipt.ID})
	if err != nil {
		return nil, err
	}
	receipt.Items = byReceipt[receipt.ID]
	if receipt.Items == nil {
		receipt.Items = []domain.LineItem{}
	}
	return &receipt, nil
}

func (s *Store) ListReceipts(ctx context.Context, query domain.ReceiptQuery) ([]domain.Receipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts r
		WHERE r.salon_id = $1
			AND ($2 = '' OR r.payment_status = $2)
			AND ($3::timestamptz IS NULL OR r.created_at >= $3)
			AND ($4::timestamptz IS NULL OR r.created_at < $4)
			AND ($5 = '' OR EXISTS (
				SELECT 1 FROM line_items li WHERE li.receipt_id = r.id AND li.staff_id = $5
			))
		ORDER BY r.created_at DESC, r.id DESC
	`, query.SalonID, string(query.PaymentStatus), nullInstant(query.From), nullInstant(query.To), query.StaffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0, 32)
	ids := make([]string, 0, 32)
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, receipt)
		ids = append(ids, receipt.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byReceipt, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range receipts {
		receipts[i].Items = byReceipt[receipts[i].ID]
		if receipts[i].Items == nil {
			receipts[i].Items = []domain.LineItem{}
		}
	}
	return receipts, nil
}

func (s *Store) DeleteReceipt(ctx context.Context, receiptID string) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var salonID string
	err = pgTx.QueryRowContext(ctx, `DELETE FROM receipts WHERE id = $1 RETURNING salon_id`, receiptID).Scan(&salonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if err := bumpRevision(ctx, pgTx, salonID); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) GetLineItem(ctx context.Context, lineItemID string) (*domain.LineItem, error) {
	item, err := scanLineItem(s.db.QueryRowContext(ctx, `SELECT `+lineItemColumns+` FROM line_items WHERE id = $1`, lineItemID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteLineItem(ctx context.Context, lineItemID string) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var salonID string
	err = pgTx.QueryRowContext(ctx, `
		DELETE FROM line_items li
		USING receipts r
		WHERE li.id = $1 AND r.id = li.receipt_id
		RETURNING r.salon_id
	`, lineItemID).Scan(&salonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if err := bumpRevision(ctx, pgTx, salonID); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) ListLedgerEntries(ctx context.Context, query domain.LedgerQuery) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT li.id, li.receipt_id, li.staff_id, sm.first_name, sm.last_name, sm.commission_rate,
			li.service_name, li.service_amount, li.tip_amount, li.discount_price, li.discount_percent, li.created_at
		FROM line_items li
		JOIN receipts r ON r.id = li.receipt_id
		JOIN staff_members sm ON sm.id = li.staff_id
		WHERE r.salon_id = $1
			AND ($2 = '' OR r.payment_status = $2)
			AND ($3 = '' OR li.staff_id = $3)
			AND ($4::timestamptz IS NULL OR li.created_at >= $4)
			AND ($5::timestamptz IS NULL OR li.created_at < $5)
		ORDER BY li.created_at DESC, li.seq DESC
	`, query.SalonID, string(query.PaymentStatus), query.StaffID, nullInstant(query.From), nullInstant(query.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 128)
	for rows.Next() {
		var (
			e         domain.LedgerEntry
			firstName string
			lastName  string
		)
		if err := rows.Scan(
			&e.LineItemID, &e.ReceiptID, &e.StaffID, &firstName, &lastName, &e.CommissionRate,
			&e.ServiceName, &e.ServiceAmount, &e.TipAmount, &e.DiscountPrice, &e.DiscountPercent, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		e.StaffName = domain.StaffMember{FirstName: firstName, LastName: lastName}.FullName()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) LedgerRevision(ctx context.Context, salonID string) (int64, error) {
	var revision int64
	err := s.db.QueryRowContext(ctx, `SELECT ledger_revision FROM salons WHERE id = $1`, salonID).Scan(&revision)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return revision, nil
}

const lineItemColumns = `id, receipt_id, staff_id, service_name, service_amount, tip_amount, discount_price,
	discount_percent, status, created_at, updated_at`

func scanLineItem(row interface{ Scan(dest ...any) error }) (domain.LineItem, error) {
	var item domain.LineItem
	err := row.Scan(
		&item.ID, &item.ReceiptID, &item.StaffID, &item.ServiceName, &item.ServiceAmount, &item.TipAmount,
		&item.DiscountPrice, &item.DiscountPercent, &item.Status, &item.CreatedAt, &item.UpdatedAt,
	)
	return item, err
}

func insertLineItem(ctx context.Context, q queryer, item domain.LineItem) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO line_items (
			id, receipt_id, staff_id, service_name, service_amount, tip_amount,
			discount_price, discount_percent, status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, item.ID, item.ReceiptID, item.StaffID, item.ServiceName, item.ServiceAmount, item.TipAmount,
		item.DiscountPrice, item.DiscountPercent, item.Status, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

// checkStaff takes a share lock so a concurrent soft delete cannot slip in before commit.
func checkStaff(ctx context.Context, q queryer, salonID string, staffID string) error {
	var deleted bool
	err := q.QueryRowContext(ctx, `
		SELECT deleted
		FROM staff_members
		WHERE id = $1 AND salon_id = $2
		FOR SHARE
	`, staffID, salonID).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && deleted) {
		return fmt.Errorf("%w: staff member %q", store.ErrNotFound, staffID)
	}
	return err
}

func (s *Store) loadItems(ctx context.Context, receiptIDs []string) (map[string][]domain.LineItem, error) {
	result := make(map[string][]domain.LineItem, len(receiptIDs))
	if len(receiptIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT li.id, li.receipt_id, li.staff_id, li.service_name, li.service_amount, li.tip_amount,
			li.discount_price, li.discount_percent, li.status, li.created_at, li.updated_at,
			COALESCE(sm.user_id, ''), sm.first_name, sm.last_name
		FROM line_items li
		JOIN staff_members sm ON sm.id = li.staff_id
		WHERE li.receipt_id = ANY($1)
		ORDER BY li.receipt_id, li.seq
	`, receiptIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item domain.LineItem
			ref  domain.StaffRef
		)
		if err := rows.Scan(
			&item.ID, &item.ReceiptID, &item.StaffID, &item.ServiceName, &item.ServiceAmount, &item.TipAmount,
			&item.DiscountPrice, &item.DiscountPercent, &item.Status, &item.CreatedAt, &item.UpdatedAt,
			&ref.UserID, &ref.FirstName, &ref.LastName,
		); err != nil {
			return nil, err
		}
		ref.ID = item.StaffID
		item.Staff = &ref
		result[item.ReceiptID] = append(result[item.ReceiptID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
