package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasbonku/backend/internal/domain"
	"kasbonku/backend/internal/ledger"
	"kasbonku/backend/internal/store"
	"kasbonku/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	creditsByID      map[string]domain.CreditRecord
	creditOrder      []string
	paymentsByCredit map[string][]domain.PaymentEvent
	shopsByID        map[string]domain.Shop
	transactionsByID map[string]domain.TransactionDetail
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		creditsByID:      make(map[string]domain.CreditRecord),
		creditOrder:      make([]string, 0, 64),
		paymentsByCredit: make(map[string][]domain.PaymentEvent),
		shopsByID:        make(map[string]domain.Shop),
		transactionsByID: make(map[string]domain.TransactionDetail),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	shops := []domain.Shop{
		{ID: "shop-warung-sari", Name: "Warung Bu Sari", Type: "warung", Location: "Pasar Minggu", CreatedAt: now.Add(-90 * 24 * time.Hour)},
		{ID: "shop-kelontong-budi", Name: "Toko Kelontong Pak Budi", Type: "kelontong", Location: "Depok", CreatedAt: now.Add(-60 * 24 * time.Hour)},
		{ID: "shop-sembako-ratna", Name: "Sembako Ibu Ratna", Type: "sembako", Location: "Ciputat", CreatedAt: now.Add(-30 * 24 * time.Hour)},
	}
	for _, shop := range shops {
		s.shopsByID[shop.ID] = shop
	}

	transactions := []domain.TransactionDetail{
		{ID: "tx-1001", ShopID: "shop-warung-sari", CashierName: "rina", TotalCents: 125000, ItemsSummary: "beras 5kg, minyak 2L", CreatedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "tx-1002", ShopID: "shop-kelontong-budi", CashierName: "agus", TotalCents: 86000, ItemsSummary: "gula, kopi, telur", CreatedAt: now.Add(-6 * 24 * time.Hour)},
		{ID: "tx-1003", ShopID: "shop-warung-sari", CashierName: "rina", TotalCents: 45000, ItemsSummary: "mie instan 1 dus", CreatedAt: now.Add(-3 * 24 * time.Hour)},
		{ID: "tx-1004", ShopID: "shop-sembako-ratna", CashierName: "dewi", TotalCents: 230000, ItemsSummary: "sembako bulanan", CreatedAt: now.Add(-24 * time.Hour)},
	}
	for _, tx := range transactions {
		s.transactionsByID[tx.ID] = tx
	}

	overdueDue := now.Add(-4 * 24 * time.Hour)
	dueSoon := now.Add(36 * time.Hour)
	nextWeek := now.Add(7 * 24 * time.Hour)

	credits := []domain.CreditRecord{
		{
			ID: "credit-1", TransactionID: "tx-1001", CustomerName: "Pak Hendra", CustomerPhone: "0812-7711-2034",
			ShopID: "shop-warung-sari", ShopName: "Warung Bu Sari", ShopType: "warung", ShopLocation: "Pasar Minggu",
			TotalCents: 125000, PaidCents: 50000, DueDate: &nextWeek, CashierName: "rina", RecordedBy: "admin",
			CreatedAt: now.Add(-10 * 24 * time.Hour), UpdatedAt: now.Add(-2 * 24 * time.Hour),
		},
		{
			ID: "credit-2", TransactionID: "tx-1002", CustomerName: "Ibu Marni", CustomerPhone: "0856-2210-8871",
			ShopID: "shop-kelontong-budi", ShopName: "Toko Kelontong Pak Budi", ShopType: "kelontong", ShopLocation: "Depok",
			TotalCents: 86000, PaidCents: 0, DueDate: &overdueDue, CashierName: "agus", RecordedBy: "admin",
			CreatedAt: now.Add(-6 * 24 * time.Hour), UpdatedAt: now.Add(-6 * 24 * time.Hour),
		},
		{
			ID: "credit-3", TransactionID: "tx-1003", CustomerName: "Pak Joko", CustomerPhone: "0813-9921-4452",
			ShopID: "shop-warung-sari", ShopName: "Warung Bu Sari", ShopType: "warung", ShopLocation: "Pasar Minggu",
			TotalCents: 45000, PaidCents: 45000, CashierName: "rina", RecordedBy: "cashier",
			CreatedAt: now.Add(-3 * 24 * time.Hour), UpdatedAt: now.Add(-24 * time.Hour),
		},
		{
			// Shop deleted from the catalog; only the denormalized name remains.
			ID: "credit-4", TransactionID: "tx-0907", CustomerName: "Ibu Sulastri", CustomerPhone: "0821-5530-7719",
			ShopID: "shop-removed", ShopName: "Kios Mang Ujang", ShopType: "kios", ShopLocation: "Bogor",
			TotalCents: 67000, PaidCents: 20000, DueDate: &dueSoon, CashierName: "dewi", RecordedBy: "admin",
			CreatedAt: now.Add(-12 * 24 * time.Hour), UpdatedAt: now.Add(-5 * 24 * time.Hour),
		},
		{
			ID: "credit-5", TransactionID: "tx-1004", CustomerName: "Pak Darto", CustomerPhone: "0812-4456-9001",
			ShopID: "shop-sembako-ratna", ShopName: "Sembako Ibu Ratna", ShopType: "sembako", ShopLocation: "Ciputat",
			TotalCents: 230000, PaidCents: 0, DueDate: &dueSoon, CashierName: "dewi", RecordedBy: "admin",
			CreatedAt: now.Add(-24 * time.Hour), UpdatedAt: now.Add(-24 * time.Hour),
		},
		{
			// Legacy import with no shop reference at all.
			ID: "credit-6", TransactionID: "", CustomerName: "Ibu Wati", CustomerPhone: "",
			TotalCents: 18000, PaidCents: 0,
			CreatedAt: now.Add(-20 * 24 * time.Hour), UpdatedAt: now.Add(-20 * 24 * time.Hour),
		},
	}
	for _, credit := range credits {
		credit.Status = ledger.Status(credit.TotalCents, credit.PaidCents, credit.DueDate, now)
		s.creditsByID[credit.ID] = credit
		s.creditOrder = append(s.creditOrder, credit.ID)
	}

	s.paymentsByCredit["credit-1"] = []domain.PaymentEvent{
		{ID: "pay-1", CreditID: "credit-1", AmountCents: 50000, PaymentMethod: "cash", PaidAt: now.Add(-2 * 24 * time.Hour), RecordedBy: "rina"},
	}
	s.paymentsByCredit["credit-3"] = []domain.PaymentEvent{
		{ID: "pay-2", CreditID: "credit-3", AmountCents: 45000, PaymentMethod: "qris", PaidAt: now.Add(-24 * time.Hour), RecordedBy: "rina"},
	}
	s.paymentsByCredit["credit-4"] = []domain.PaymentEvent{
		{ID: "pay-3", CreditID: "credit-4", AmountCents: 20000, PaymentMethod: "transfer", PaidAt: now.Add(-5 * 24 * time.Hour), RecordedBy: "dewi"},
	}

	return s
}

func (s *Store) ListCredits(_ context.Context) ([]domain.CreditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credits := make([]domain.CreditRecord, 0, len(s.creditOrder))
	for _, id := range s.creditOrder {
		if credit, ok := s.creditsByID[id]; ok {
			credits = append(credits, credit)
		}
	}
	return credits, nil
}

func (s *Store) GetCreditByID(_ context.Context, id string) (*domain.CreditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credit, exists := s.creditsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCredit := credit
	return &copyCredit, nil
}

func (s *Store) CreateCredit(_ context.Context, record domain.CreditRecord) (*domain.CreditRecord, error) {
	if record.CustomerName == "" || record.TotalCents < 1 || record.PaidCents < 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = xid.New("credit")
	}
	if _, exists := s.creditsByID[record.ID]; exists {
		return nil, store.ErrInvalidRecord
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt

	s.creditsByID[record.ID] = record
	s.creditOrder = append(s.creditOrder, record.ID)
	created := record
	return &created, nil
}

func (s *Store) UpdateCredit(_ context.Context, record domain.CreditRecord) (*domain.CreditRecord, error) {
	if record.ID == "" || record.CustomerName == "" || record.TotalCents < 1 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.creditsByID[record.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	record.CreatedAt = existing.CreatedAt
	record.UpdatedAt = time.Now().UTC()

	s.creditsByID[record.ID] = record
	updated := record
	return &updated, nil
}

func (s *Store) DeleteCredit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.creditsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.creditsByID, id)
	delete(s.paymentsByCredit, id)
	s.creditOrder = slices.DeleteFunc(s.creditOrder, func(existing string) bool {
		return existing == id
	})
	return nil
}

func (s *Store) AppendPayment(_ context.Context, event domain.PaymentEvent, newPaidCents int64, newStatus string) (*domain.CreditRecord, error) {
	if event.CreditID == "" || event.AmountCents < 1 || newPaidCents < 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	credit, exists := s.creditsByID[event.CreditID]
	if !exists {
		return nil, store.ErrNotFound
	}

	if event.ID == "" {
		event.ID = xid.New("pay")
	}
	if event.PaidAt.IsZero() {
		event.PaidAt = time.Now().UTC()
	}

	credit.PaidCents = newPaidCents
	credit.Status = newStatus
	credit.UpdatedAt = event.PaidAt

	s.paymentsByCredit[event.CreditID] = append(s.paymentsByCredit[event.CreditID], event)
	s.creditsByID[event.CreditID] = credit
	updated := credit
	return &updated, nil
}

func (s *Store) ListPayments(_ context.Context, creditID string) ([]domain.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.creditsByID[creditID]; !exists {
		return nil, store.ErrNotFound
	}

	history := s.paymentsByCredit[creditID]
	result := make([]domain.PaymentEvent, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.PaymentEvent) int {
		if a.PaidAt.Equal(b.PaidAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.PaidAt.Before(b.PaidAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ListPaymentsBetween(_ context.Context, from time.Time, to time.Time) ([]domain.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PaymentEvent, 0, 32)
	for _, history := range s.paymentsByCredit {
		for _, event := range history {
			if event.PaidAt.Before(from) || !event.PaidAt.Before(to) {
				continue
			}
			result = append(result, event)
		}
	}
	slices.SortFunc(result, func(a, b domain.PaymentEvent) int {
		if a.PaidAt.Equal(b.PaidAt) {
			return strings.Compare(a.ID, b.ID)
		}
		if a.PaidAt.Before(b.PaidAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ListShops(_ context.Context) ([]domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shops := make([]domain.Shop, 0, len(s.shopsByID))
	for _, shop := range s.shopsByID {
		shops = append(shops, shop)
	}
	slices.SortFunc(shops, func(a, b domain.Shop) int {
		return strings.Compare(a.Name, b.Name)
	})
	return shops, nil
}

func (s *Store) GetShopByID(_ context.Context, id string) (*domain.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shop, exists := s.shopsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyShop := shop
	return &copyShop, nil
}

func (s *Store) CreateShop(_ context.Context, shop domain.Shop) (*domain.Shop, error) {
	if shop.Name == "" {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if _, exists := s.shopsByID[shop.ID]; exists {
		return nil, store.ErrInvalidRecord
	}
	for _, existing := range s.shopsByID {
		if strings.EqualFold(existing.Name, shop.Name) {
			return nil, store.ErrInvalidRecord
		}
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}

	s.shopsByID[shop.ID] = shop
	created := shop
	return &created, nil
}

func (s *Store) GetTransactionByID(_ context.Context, id string) (*domain.TransactionDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTx := tx
	return &copyTx, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx domain.TransactionDetail) (*domain.TransactionDetail, error) {
	if tx.TotalCents < 0 {
		return nil, store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if _, exists := s.transactionsByID[tx.ID]; exists {
		return nil, store.ErrInvalidRecord
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	s.transactionsByID[tx.ID] = tx
	created := tx
	return &created, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}

	result := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidRecord
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
