package store

import (
	"context"
	"errors"
	"time"

	"kasbonku/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

type Repository interface {
	ListCredits(ctx context.Context) ([]domain.CreditRecord, error)
	GetCreditByID(ctx context.Context, id string) (*domain.CreditRecord, error)
	CreateCredit(ctx context.Context, record domain.CreditRecord) (*domain.CreditRecord, error)
	UpdateCredit(ctx context.Context, record domain.CreditRecord) (*domain.CreditRecord, error)
	DeleteCredit(ctx context.Context, id string) error
	AppendPayment(ctx context.Context, event domain.PaymentEvent, newPaidCents int64, newStatus string) (*domain.CreditRecord, error)
	ListPayments(ctx context.Context, creditID string) ([]domain.PaymentEvent, error)
	ListPaymentsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.PaymentEvent, error)
	ListShops(ctx context.Context) ([]domain.Shop, error)
	GetShopByID(ctx context.Context, id string) (*domain.Shop, error)
	CreateShop(ctx context.Context, shop domain.Shop) (*domain.Shop, error)
	GetTransactionByID(ctx context.Context, id string) (*domain.TransactionDetail, error)
	CreateTransaction(ctx context.Context, tx domain.TransactionDetail) (*domain.TransactionDetail, error)
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
