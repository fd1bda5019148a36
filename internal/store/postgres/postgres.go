package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasbonku/backend/internal/domain"
	"kasbonku/backend/internal/store"
	"kasbonku/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const creditColumns = `
	id, transaction_id, customer_name, customer_phone,
	shop_id, shop_name, shop_type, shop_location,
	total_cents, paid_cents, due_date, cashier_name, recorded_by,
	status, created_at, updated_at
`

func (s *Store) ListCredits(ctx context.Context) ([]domain.CreditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+creditColumns+`
		FROM credits
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	credits := make([]domain.CreditRecord, 0, 128)
	for rows.Next() {
		credit, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		credits = append(credits, credit)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return credits, nil
}

func (s *Store) GetCreditByID(ctx context.Context, id string) (*domain.CreditRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+creditColumns+`
		FROM credits
		WHERE id = $1
	`, id)

	credit, err := scanCredit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &credit, nil
}

func (s *Store) CreateCredit(ctx context.Context, record domain.CreditRecord) (*domain.CreditRecord, error) {
	if record.CustomerName == "" || record.TotalCents < 1 || record.PaidCents < 0 {
		return nil, store.ErrInvalidRecord
	}
	if record.ID == "" {
		record.ID = xid.New("credit")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credits (
			id, transaction_id, customer_name, customer_phone,
			shop_id, shop_name, shop_type, shop_location,
			total_cents, paid_cents, due_date, cashier_name, recorded_by,
			status, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		record.ID, nullIfEmpty(record.TransactionID), record.CustomerName, nullIfEmpty(record.CustomerPhone),
		nullIfEmpty(record.ShopID), nullIfEmpty(record.ShopName), nullIfEmpty(record.ShopType), nullIfEmpty(record.ShopLocation),
		record.TotalCents, record.PaidCents, nullDate(record.DueDate), nullIfEmpty(record.CashierName), nullIfEmpty(record.RecordedBy),
		record.Status, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}

	created := record
	return &created, nil
}

func (s *Store) UpdateCredit(ctx context.Context, record domain.CreditRecord) (*domain.CreditRecord, error) {
	if record.ID == "" || record.CustomerName == "" || record.TotalCents < 1 {
		return nil, store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE credits
		SET customer_name = $2, customer_phone = $3,
			shop_id = $4, shop_name = $5, shop_type = $6, shop_location = $7,
			total_cents = $8, paid_cents = $9, due_date = $10,
			status = $11, updated_at = now()
		WHERE id = $1
	`,
		record.ID, record.CustomerName, nullIfEmpty(record.CustomerPhone),
		nullIfEmpty(record.ShopID), nullIfEmpty(record.ShopName), nullIfEmpty(record.ShopType), nullIfEmpty(record.ShopLocation),
		record.TotalCents, record.PaidCents, nullDate(record.DueDate),
		record.Status,
	)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetCreditByID(ctx, record.ID)
}

func (s *Store) DeleteCredit(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrInvalidRecord
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credit_payments WHERE credit_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM credits WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

// AppendPayment inserts the payment event and moves the credit to its new
// paid amount and status in one serializable transaction, so two concurrent
// payments cannot both settle against the same outstanding balance.
func (s *Store) AppendPayment(ctx context.Context, event domain.PaymentEvent, newPaidCents int64, newStatus string) (*domain.CreditRecord, error) {
	if event.CreditID == "" || event.AmountCents < 1 || newPaidCents < 0 {
		return nil, store.ErrInvalidRecord
	}
	if event.ID == "" {
		event.ID = xid.New("pay")
	}
	if event.PaidAt.IsZero() {
		event.PaidAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO credit_payments (id, credit_id, amount_cents, payment_method, note, paid_at, recorded_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, event.ID, event.CreditID, event.AmountCents, event.PaymentMethod, nullIfEmpty(event.Note), event.PaidAt, nullIfEmpty(event.RecordedBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE credits
		SET paid_cents = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, event.CreditID, newPaidCents, newStatus, event.PaidAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	row := tx.QueryRowContext(ctx, `
		SELECT `+creditColumns+`
		FROM credits
		WHERE id = $1
	`, event.CreditID)
	credit, err := scanCredit(row)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &credit, nil
}

func (s *Store) ListPayments(ctx context.Context, creditID string) ([]domain.PaymentEvent, error) {
	if _, err := s.GetCreditByID(ctx, creditID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, credit_id, amount_cents, payment_method, note, paid_at, recorded_by
		FROM credit_payments
		WHERE credit_id = $1
		ORDER BY paid_at ASC, id ASC
	`, creditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (s *Store) ListPaymentsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.PaymentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, credit_id, amount_cents, payment_method, note, paid_at, recorded_by
		FROM credit_payments
		WHERE paid_at >= $1 AND paid_at < $2
		ORDER BY paid_at ASC, id ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPayments(rows)
}

func (s *Store) ListShops(ctx context.Context) ([]domain.Shop, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, location, created_at
		FROM shops
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shops := make([]domain.Shop, 0, 32)
	for rows.Next() {
		var shop domain.Shop
		var shopType, location sql.NullString
		if err := rows.Scan(&shop.ID, &shop.Name, &shopType, &location, &shop.CreatedAt); err != nil {
			return nil, err
		}
		shop.Type = shopType.String
		shop.Location = location.String
		shop.CreatedAt = shop.CreatedAt.UTC()
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return shops, nil
}

func (s *Store) GetShopByID(ctx context.Context, id string) (*domain.Shop, error) {
	var shop domain.Shop
	var shopType, location sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, location, created_at
		FROM shops
		WHERE id = $1
	`, id).Scan(&shop.ID, &shop.Name, &shopType, &location, &shop.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	shop.Type = shopType.String
	shop.Location = location.String
	shop.CreatedAt = shop.CreatedAt.UTC()
	return &shop, nil
}

func (s *Store) CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error) {
	if shop.Name == "" {
		return nil, store.ErrInvalidRecord
	}
	if shop.ID == "" {
		shop.ID = xid.New("shop")
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shops (id, name, type, location, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, shop.ID, shop.Name, nullIfEmpty(shop.Type), nullIfEmpty(shop.Location), shop.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}

	created := shop
	return &created, nil
}

func (s *Store) GetTransactionByID(ctx context.Context, id string) (*domain.TransactionDetail, error) {
	var tx domain.TransactionDetail
	var shopID, cashier, summary sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, shop_id, cashier_name, total_cents, items_summary, created_at
		FROM sale_transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &shopID, &cashier, &tx.TotalCents, &summary, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	tx.ShopID = shopID.String
	tx.CashierName = cashier.String
	tx.ItemsSummary = summary.String
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx domain.TransactionDetail) (*domain.TransactionDetail, error) {
	if tx.TotalCents < 0 {
		return nil, store.ErrInvalidRecord
	}
	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sale_transactions (id, shop_id, cashier_name, total_cents, items_summary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, tx.ID, nullIfEmpty(tx.ShopID), nullIfEmpty(tx.CashierName), tx.TotalCents, nullIfEmpty(tx.ItemsSummary), tx.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidRecord
		}
		return nil, err
	}

	created := tx
	return &created, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.ErrInvalidRecord
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidRecord
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredit(row rowScanner) (domain.CreditRecord, error) {
	var credit domain.CreditRecord
	var transactionID, phone, shopID, shopName, shopType, shopLocation, cashier, recordedBy sql.NullString
	var dueDate sql.NullTime

	err := row.Scan(
		&credit.ID, &transactionID, &credit.CustomerName, &phone,
		&shopID, &shopName, &shopType, &shopLocation,
		&credit.TotalCents, &credit.PaidCents, &dueDate, &cashier, &recordedBy,
		&credit.Status, &credit.CreatedAt, &credit.UpdatedAt,
	)
	if err != nil {
		return domain.CreditRecord{}, err
	}

	credit.TransactionID = transactionID.String
	credit.CustomerPhone = phone.String
	credit.ShopID = shopID.String
	credit.ShopName = shopName.String
	credit.ShopType = shopType.String
	credit.ShopLocation = shopLocation.String
	credit.CashierName = cashier.String
	credit.RecordedBy = recordedBy.String
	if dueDate.Valid {
		due := dueDate.Time.UTC()
		credit.DueDate = &due
	}
	credit.CreatedAt = credit.CreatedAt.UTC()
	credit.UpdatedAt = credit.UpdatedAt.UTC()
	return credit, nil
}

func collectPayments(rows *sql.Rows) ([]domain.PaymentEvent, error) {
	payments := make([]domain.PaymentEvent, 0, 32)
	for rows.Next() {
		var event domain.PaymentEvent
		var note, recordedBy sql.NullString
		if err := rows.Scan(&event.ID, &event.CreditID, &event.AmountCents, &event.PaymentMethod, &note, &event.PaidAt, &recordedBy); err != nil {
			return nil, err
		}
		event.Note = note.String
		event.RecordedBy = recordedBy.String
		event.PaidAt = event.PaidAt.UTC()
		payments = append(payments, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payments, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

// nullDate keeps the full timestamp. Due dates are stored as 23:59:59 of the
// due day, so truncating here would flip credits overdue a day early.
func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return val.UTC()
}
