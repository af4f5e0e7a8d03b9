package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/store"
	"salonledger/backend/internal/xid"
)

type itemRecord struct {
	item domain.LineItem
	seq  int64
}

type Store struct {
	mu              sync.RWMutex
	salons          map[string]domain.Salon
	staff           map[string]domain.StaffMember
	receipts        map[string]domain.Receipt
	items           map[string]itemRecord
	usersByID       map[string]domain.UserAccount
	usersByUsername map[string]string
	devices         map[string]domain.UserDevice
	revisions       map[string]int64
	seq             int64
}

func New() *Store {
	return &Store{
		salons:          make(map[string]domain.Salon),
		staff:           make(map[string]domain.StaffMember),
		receipts:        make(map[string]domain.Receipt),
		items:           make(map[string]itemRecord),
		usersByID:       make(map[string]domain.UserAccount),
		usersByUsername: make(map[string]string),
		devices:         make(map[string]domain.UserDevice),
		revisions:       make(map[string]int64),
	}
}

// NewSeeded builds a demo salon with an owner account, a manager account and two
// stylists. Passwords come from SEED_OWNER_PASSWORD and SEED_MANAGER_PASSWORD; dev
// defaults are used with a warning when they are unset. Production uses PostgreSQL.
func NewSeeded() *Store {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD and SEED_MANAGER_PASSWORD to override.")
	}

	s := New()
	now := time.Now().UTC()
	ctx := context.Background()

	owner := mustSeedUser(s, "owner", ownerPwd, "Olivia", "Tran", now)
	manager := mustSeedUser(s, "manager", managerPwd, "Minh", "Le", now)

	salon, _ := s.CreateSalon(ctx, domain.Salon{
		ID:        "salon_main",
		Name:      "Main Street Nails",
		Phone:     "555-0100",
		OwnerID:   owner.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})

	for _, member := range []domain.StaffMember{
		{ID: "staff_manager", UserID: manager.ID, FirstName: "Minh", LastName: "Le", Phone: "555-0101", Gender: domain.GenderMale, CommissionRate: 0.6, Role: domain.RoleManager},
		{ID: "staff_anna", FirstName: "Anna", LastName: "Pham", Phone: "555-0102", Gender: domain.GenderFemale, CommissionRate: 0.5, Role: domain.RoleStylist},
		{ID: "staff_kim", FirstName: "Kim", LastName: "Nguyen", Phone: "555-0103", Gender: domain.GenderFemale, CommissionRate: 0.55, Role: domain.RoleStylist},
	} {
		member.SalonID = salon.ID
		member.HireDate = now
		member.Active = true
		member.CreatedAt = now
		member.UpdatedAt = now
		if _, err := s.CreateStaff(ctx, member); err != nil {
			log.Fatalf("[memory-store] failed to seed staff %s: %v", member.ID, err)
		}
	}
	return s
}

func mustSeedUser(s *Store, username string, password string, firstName string, lastName string, at time.Time) *domain.UserAccount {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password for %s: %v", username, err)
	}
	user, err := s.CreateUser(context.Background(), domain.UserAccount{
		Username:     username,
		PasswordHash: string(hash),
		FirstName:    firstName,
		LastName:     lastName,
		CreatedAt:    at,
	})
	if err != nil {
		log.Fatalf("[memory-store] failed to seed user %s: %v", username, err)
	}
	return user
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateSalon(_ context.Context, salon domain.Salon) (*domain.Salon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if salon.ID == "" {
		salon.ID = xid.New("salon")
	}
	if _, exists := s.salons[salon.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if salon.CreatedAt.IsZero() {
		salon.CreatedAt = time.Now().UTC()
	}
	if salon.UpdatedAt.IsZero() {
		salon.UpdatedAt = salon.CreatedAt
	}
	s.salons[salon.ID] = salon
	return &salon, nil
}

func (s *Store) GetSalon(_ context.Context, salonID string) (*domain.Salon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	salon, ok := s.salons[salonID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &salon, nil
}

func (s *Store) ListSalonsForUser(_ context.Context, userID string) ([]domain.Salon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member := map[string]bool{}
	for _, st := range s.staff {
		if st.UserID == userID && !st.Deleted {
			member[st.SalonID] = true
		}
	}
	salons := make([]domain.Salon, 0, 4)
	for _, salon := range s.salons {
		if salon.OwnerID == userID || member[salon.ID] {
			salons = append(salons, salon)
		}
	}
	slices.SortFunc(salons, func(a, b domain.Salon) int {
		return cmpString(a.Name+a.ID, b.Name+b.ID)
	})
	return salons, nil
}

func (s *Store) CreateStaff(_ context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salons[member.SalonID]; !ok {
		return nil, store.ErrNotFound
	}
	if member.ID == "" {
		member.ID = xid.New("staff")
	}
	if _, exists := s.staff[member.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if member.UserID != "" && s.userLinkedLocked(member.SalonID, member.UserID, "") {
		return nil, store.ErrDuplicate
	}
	if member.CreatedAt.IsZero() {
		member.CreatedAt = time.Now().UTC()
	}
	if member.UpdatedAt.IsZero() {
		member.UpdatedAt = member.CreatedAt
	}
	s.staff[member.ID] = member
	s.revisions[member.SalonID]++
	return cloneStaff(member), nil
}

func (s *Store) GetStaff(_ context.Context, salonID string, staffID string, includeDeleted bool) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, ok := s.staff[staffID]
	if !ok || member.SalonID != salonID || (member.Deleted && !includeDeleted) {
		return nil, store.ErrNotFound
	}
	return cloneStaff(member), nil
}

func (s *Store) ListStaff(_ context.Context, salonID string, includeDeleted bool) ([]domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]domain.StaffMember, 0, 16)
	for _, member := range s.staff {
		if member.SalonID != salonID || (member.Deleted && !includeDeleted) {
			continue
		}
		members = append(members, *cloneStaff(member))
	}
	slices.SortFunc(members, func(a, b domain.StaffMember) int {
		if c := cmpString(a.FirstName, b.FirstName); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	return members, nil
}

func (s *Store) UpdateStaff(_ context.Context, member domain.StaffMember) (*domain.StaffMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.staff[member.ID]
	if !ok || current.SalonID != member.SalonID || current.Deleted {
		return nil, store.ErrNotFound
	}
	member.UserID = current.UserID
	member.Deleted = current.Deleted
	member.DeletedAt = current.DeletedAt
	member.CreatedAt = current.CreatedAt
	if member.UpdatedAt.IsZero() {
		member.UpdatedAt = time.Now().UTC()
	}
	s.staff[member.ID] = member
	s.revisions[member.SalonID]++
	return cloneStaff(member), nil
}

func (s *Store) SoftDeleteStaff(_ context.Context, salonID string, staffID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.staff[staffID]
	if !ok || member.SalonID != salonID || member.Deleted {
		return store.ErrNotFound
	}
	member.Deleted = true
	member.Active = false
	member.DeletedAt = &at
	member.UpdatedAt = at
	s.staff[staffID] = member
	s.revisions[salonID]++
	return nil
}

func (s *Store) FindStaffByUser(_ context.Context, salonID string, userID string, includeDeleted bool) (*domain.StaffMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if userID == "" {
		return nil, store.ErrNotFound
	}
	for _, member := range s.staff {
		if member.SalonID != salonID || member.UserID != userID {
			continue
		}
		if member.Deleted && !includeDeleted {
			continue
		}
		return cloneStaff(member), nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) CreateStaffAccount(_ context.Context, salonID string, staffID string, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, ok := s.staff[staffID]
	if !ok || member.SalonID != salonID || member.Deleted {
		return nil, store.ErrNotFound
	}
	if member.UserID != "" {
		return nil, store.ErrDuplicate
	}
	created, err := s.createUserLocked(user)
	if err != nil {
		return nil, err
	}
	member.UserID = created.ID
	member.UpdatedAt = time.Now().UTC()
	s.staff[staffID] = member
	return created, nil
}

func (s *Store) CreateReceipt(_ context.Context, receipt domain.Receipt) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.salons[receipt.SalonID]; !ok {
		return nil, store.ErrNotFound
	}
	if receipt.ID == "" {
		receipt.ID = xid.New("rcp")
	}
	if _, exists := s.receipts[receipt.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	if receipt.UpdatedAt.IsZero() {
		receipt.UpdatedAt = receipt.CreatedAt
	}

	records := make([]itemRecord, 0, len(receipt.Items))
	for _, item := range receipt.Items {
		if err := s.checkStaffLocked(receipt.SalonID, item.StaffID); err != nil {
			return nil, err
		}
		if item.ID == "" {
			item.ID = xid.New("li")
		}
		if _, exists := s.items[item.ID]; exists {
			return nil, store.ErrDuplicate
		}
		item.ReceiptID = receipt.ID
		item.Staff = nil
		if item.CreatedAt.IsZero() {
			item.CreatedAt = receipt.CreatedAt
		}
		if item.UpdatedAt.IsZero() {
			item.UpdatedAt = item.CreatedAt
		}
		s.seq++
		records = append(records, itemRecord{item: item, seq: s.seq})
	}

	for _, rec := range records {
		s.items[rec.item.ID] = rec
	}
	receipt.Items = nil
	s.receipts[receipt.ID] = receipt
	s.revisions[receipt.SalonID]++

	return s.assembleLocked(receipt), nil
}

// ReconcileReceipt applies every change to a scratch copy first so a failure part way
// through leaves the stored receipt untouched.
func (s *Store) ReconcileReceipt(_ context.Context, receiptID string, fields domain.ReceiptFields, writes []store.ItemWrite, at time.Time) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.receipts[receiptID]
	if !ok {
		return nil, store.ErrNotFound
	}

	pending := make(map[string]itemRecord, len(writes))
	order := make([]string, 0, len(writes))
	for _, w := range writes {
		var rec itemRecord
		if w.New {
			if _, exists := s.items[w.ID]; exists {
				return nil, store.ErrDuplicate
			}
			if _, exists := pending[w.ID]; exists {
				return nil, store.ErrDuplicate
			}
			s.seq++
			rec = itemRecord{
				item: domain.LineItem{
					ID:            w.ID,
					ReceiptID:     receiptID,
					ServiceAmount: decimal.Zero,
					TipAmount:     decimal.Zero,
					DiscountPrice: decimal.Zero,
					Status:        true,
					CreatedAt:     at,
				},
				seq: s.seq,
			}
		} else {
			current, seen := pending[w.ID]
			if !seen {
				current, seen = s.items[w.ID]
			}
			if !seen {
				return nil, fmt.Errorf("%w: line item %s does not exist", store.ErrReconciliationConflict, w.ID)
			}
			if current.item.ReceiptID != receiptID {
				return nil, fmt.Errorf("%w: line item %s belongs to another receipt", store.ErrReconciliationConflict, w.ID)
			}
			rec = current
		}
		w.Input.ApplyTo(&rec.item)
		if w.New || w.Input.StaffID != nil {
			if err := s.checkStaffLocked(receipt.SalonID, rec.item.StaffID); err != nil {
				return nil, err
			}
		}
		rec.item.UpdatedAt = at
		if _, seen := pending[w.ID]; !seen {
			order = append(order, w.ID)
		}
		pending[w.ID] = rec
	}

	fields.Apply(&receipt)
	receipt.UpdatedAt = at

	for _, id := range order {
		s.items[id] = pending[id]
	}
	s.receipts[receiptID] = receipt
	s.revisions[receipt.SalonID]++

	return s.assembleLocked(receipt), nil
}

func (s *Store) GetReceipt(_ context.Context, receiptID string) (*domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipt, ok := s.receipts[receiptID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.assembleLocked(receipt), nil
}

func (s *Store) ListReceipts(_ context.Context, query domain.ReceiptQuery) ([]domain.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	receipts := make([]domain.Receipt, 0, 32)
	for _, receipt := range s.receipts {
		if receipt.SalonID != query.SalonID {
			continue
		}
		if query.PaymentStatus != "" && receipt.PaymentStatus != query.PaymentStatus {
			continue
		}
		if !inRange(receipt.CreatedAt, query.From, query.To) {
			continue
		}
		full := s.assembleLocked(receipt)
		if query.StaffID != "" && !slices.ContainsFunc(full.Items, func(item domain.LineItem) bool {
			return item.StaffID == query.StaffID
		}) {
			continue
		}
		receipts = append(receipts, *full)
	}
	slices.SortFunc(receipts, func(a, b domain.Receipt) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmpString(b.ID, a.ID)
	})
	return receipts, nil
}

func (s *Store) DeleteReceipt(_ context.Context, receiptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, ok := s.receipts[receiptID]
	if !ok {
		return store.ErrNotFound
	}
	for id, rec := range s.items {
		if rec.item.ReceiptID == receiptID {
			delete(s.items, id)
		}
	}
	delete(s.receipts, receiptID)
	s.revisions[receipt.SalonID]++
	return nil
}

func (s *Store) GetLineItem(_ context.Context, lineItemID string) (*domain.LineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[lineItemID]
	if !ok {
		return nil, store.ErrNotFound
	}
	item := s.enrichLocked(rec.item)
	return &item, nil
}

func (s *Store) DeleteLineItem(_ context.Context, lineItemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[lineItemID]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.items, lineItemID)
	if receipt, ok := s.receipts[rec.item.ReceiptID]; ok {
		s.revisions[receipt.SalonID]++
	}
	return nil
}

func (s *Store) ListLedgerEntries(_ context.Context, query domain.LedgerQuery) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.LedgerEntry, 0, 64)
	seqs := make(map[string]int64)
	for _, rec := range s.items {
		item := rec.item
		receipt, ok := s.receipts[item.ReceiptID]
		if !ok || receipt.SalonID != query.SalonID {
			continue
		}
		if query.PaymentStatus != "" && receipt.PaymentStatus != query.PaymentStatus {
			continue
		}
		if query.StaffID != "" && item.StaffID != query.StaffID {
			continue
		}
		if !inRange(item.CreatedAt, query.From, query.To) {
			continue
		}
		member := s.staff[item.StaffID]
		entries = append(entries, domain.LedgerEntry{
			LineItemID:      item.ID,
			ReceiptID:       item.ReceiptID,
			StaffID:         item.StaffID,
			StaffName:       member.FullName(),
			CommissionRate:  member.CommissionRate,
			ServiceName:     item.ServiceName,
			ServiceAmount:   item.ServiceAmount,
			TipAmount:       item.TipAmount,
			DiscountPrice:   item.DiscountPrice,
			DiscountPercent: item.DiscountPercent,
			CreatedAt:       item.CreatedAt,
		})
		seqs[item.ID] = rec.seq
	}
	slices.SortFunc(entries, func(a, b domain.LedgerEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(seqs[b.LineItemID] - seqs[a.LineItemID])
	})
	return entries, nil
}

func (s *Store) LedgerRevision(_ context.Context, salonID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.revisions[salonID], nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createUserLocked(user)
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByUsername[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUser(_ context.Context, userID string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

// RegisterDevice moves an already known device id to the new owner, matching how a
// shared tablet changes hands.
func (s *Store) RegisterDevice(_ context.Context, device domain.UserDevice) (*domain.UserDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByID[device.UserID]; !ok {
		return nil, store.ErrNotFound
	}
	if existing, ok := s.devices[device.DeviceID]; ok {
		device.ID = existing.ID
	}
	if device.ID == "" {
		device.ID = xid.New("dev")
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	s.devices[device.DeviceID] = device
	return &device, nil
}

func (s *Store) UnregisterDevice(_ context.Context, userID string, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	device, ok := s.devices[deviceID]
	if !ok || device.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.devices, deviceID)
	return nil
}

func (s *Store) ResolveDeviceIDs(_ context.Context, userIDs []string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	ids := make([]string, 0, len(userIDs))
	for deviceID, device := range s.devices {
		if wanted[device.UserID] {
			ids = append(ids, deviceID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *Store) createUserLocked(user domain.UserAccount) (*domain.UserAccount, error) {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, fmt.Errorf("username and password hash are required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return nil, store.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Username = username
	user.Active = true
	s.usersByID[user.ID] = user
	s.usersByUsername[username] = user.ID
	return &user, nil
}

func (s *Store) userLinkedLocked(salonID string, userID string, exceptStaffID string) bool {
	for _, member := range s.staff {
		if member.SalonID == salonID && member.UserID == userID && member.ID != exceptStaffID {
			return true
		}
	}
	return false
}

func (s *Store) checkStaffLocked(salonID string, staffID string) error {
	member, ok := s.staff[staffID]
	if staffID == "" || !ok || member.SalonID != salonID || member.Deleted {
		return fmt.Errorf("%w: staff member %q", store.ErrNotFound, staffID)
	}
	return nil
}

func (s *Store) assembleLocked(receipt domain.Receipt) *domain.Receipt {
	records := make([]itemRecord, 0, 4)
	for _, rec := range s.items {
		if rec.item.ReceiptID == receipt.ID {
			records = append(records, rec)
		}
	}
	slices.SortFunc(records, func(a, b itemRecord) int {
		return int(a.seq - b.seq)
	})
	receipt.Items = make([]domain.LineItem, 0, len(records))
	for _, rec := range records {
		receipt.Items = append(receipt.Items, s.enrichLocked(rec.item))
	}
	return &receipt
}

func (s *Store) enrichLocked(item domain.LineItem) domain.LineItem {
	if member, ok := s.staff[item.StaffID]; ok {
		item.Staff = member.Ref()
	}
	return item
}

func inRange(at time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneStaff(src domain.StaffMember) *domain.StaffMember {
	dst := src
	if src.DateOfBirth != nil {
		dob := *src.DateOfBirth
		dst.DateOfBirth = &dob
	}
	if src.DeletedAt != nil {
		at := *src.DeletedAt
		dst.DeletedAt = &at
	}
	return &dst
}
