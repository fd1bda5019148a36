package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"kasbonku/backend/internal/domain"
	"kasbonku/backend/internal/store"
)

func TestNullDatePreservesEndOfDayDueTime(t *testing.T) {
	if nullDate(nil) != nil {
		t.Fatalf("expected nil for nil due date")
	}

	due := time.Date(2026, time.September, 14, 23, 59, 59, 0, time.UTC)
	got, ok := nullDate(&due).(time.Time)
	if !ok {
		t.Fatalf("expected time.Time from nullDate, got %T", nullDate(&due))
	}
	if !got.Equal(due) {
		t.Fatalf("due date changed across nullDate: want %v, got %v", due, got)
	}
	if got.Hour() != 23 || got.Minute() != 59 || got.Second() != 59 {
		t.Fatalf("end-of-day component lost: got %v", got)
	}
}

func TestAppendPaymentSettlesCredit(t *testing.T) {
	databaseURL := os.Getenv("KASBONKU_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set KASBONKU_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	creditID := fmt.Sprintf("credit-pay-it-%d", stamp)
	txID := fmt.Sprintf("tx-pay-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM credit_payments WHERE credit_id = $1`, creditID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM credits WHERE id = $1`, creditID)
	})

	soon := time.Now().UTC().Add(72 * time.Hour)
	due := time.Date(soon.Year(), soon.Month(), soon.Day(), 23, 59, 59, 0, time.UTC)
	created, err := s.CreateCredit(ctx, domain.CreditRecord{
		ID:            creditID,
		TransactionID: txID,
		CustomerName:  "Integration Pelanggan",
		TotalCents:    80000,
		PaidCents:     0,
		DueDate:       &due,
		Status:        domain.CreditStatusPending,
	})
	if err != nil {
		t.Fatalf("create credit: %v", err)
	}
	if created.Status != domain.CreditStatusPending {
		t.Fatalf("expected pending credit, got %q", created.Status)
	}

	fetched, err := s.GetCreditByID(ctx, creditID)
	if err != nil {
		t.Fatalf("get credit: %v", err)
	}
	if fetched.DueDate == nil || !fetched.DueDate.Equal(due) {
		t.Fatalf("due date did not survive the round trip: want %v, got %v", due, fetched.DueDate)
	}

	updated, err := s.AppendPayment(ctx, domain.PaymentEvent{
		CreditID:      creditID,
		AmountCents:   30000,
		PaymentMethod: "cash",
		RecordedBy:    "it-test",
	}, 30000, domain.CreditStatusPartiallyPaid)
	if err != nil {
		t.Fatalf("append payment: %v", err)
	}
	if updated.PaidCents != 30000 || updated.Status != domain.CreditStatusPartiallyPaid {
		t.Fatalf("unexpected credit after payment: %+v", updated)
	}

	payments, err := s.ListPayments(ctx, creditID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || payments[0].AmountCents != 30000 {
		t.Fatalf("unexpected payment history: %+v", payments)
	}

	if err := s.DeleteCredit(ctx, creditID); err != nil {
		t.Fatalf("delete credit: %v", err)
	}
	if _, err := s.GetCreditByID(ctx, creditID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
