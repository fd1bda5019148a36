package ledger

import (
	"errors"
	"fmt"
	"time"

	"kasbonku/backend/internal/domain"
)

// ErrInvalidPayment rejects payment amounts that are non-positive or exceed
// the outstanding balance.
var ErrInvalidPayment = errors.New("invalid payment")

// DefaultDueSoonWindow is how far ahead of the due date a credit is flagged
// as due_soon.
const DefaultDueSoonWindow = 48 * time.Hour

// Balance returns the outstanding amount, never negative. Negative inputs
// (corrupt imports, unvalidated legacy rows) are treated as zero.
func Balance(totalCents int64, paidCents int64) int64 {
	total := clampCents(totalCents)
	paid := clampCents(paidCents)
	if paid >= total {
		return 0
	}
	return total - paid
}

// Status derives the lifecycle status from amounts and due date. Precedence:
// paid, then partially_paid, then overdue, then pending. Overdue therefore
// only applies while nothing has been paid; a late credit with a partial
// payment stays partially_paid (the urgency tag still reports it overdue).
func Status(totalCents int64, paidCents int64, dueDate *time.Time, now time.Time) string {
	switch {
	case Balance(totalCents, paidCents) == 0:
		return domain.CreditStatusPaid
	case clampCents(paidCents) > 0:
		return domain.CreditStatusPartiallyPaid
	case dueDate != nil && dueDate.Before(now):
		return domain.CreditStatusOverdue
	default:
		return domain.CreditStatusPending
	}
}

// Urgency derives the due-date tag. Fully paid credits are always "paid".
// A missing due date means on_time. dueSoonWindow <= 0 falls back to the
// default 48h window.
func Urgency(totalCents int64, paidCents int64, dueDate *time.Time, now time.Time, dueSoonWindow time.Duration) string {
	if Balance(totalCents, paidCents) == 0 {
		return domain.UrgencyPaid
	}
	if dueDate == nil {
		return domain.UrgencyOnTime
	}
	if dueSoonWindow <= 0 {
		dueSoonWindow = DefaultDueSoonWindow
	}
	switch {
	case dueDate.Before(now):
		return domain.UrgencyOverdue
	case !dueDate.After(now.Add(dueSoonWindow)):
		return domain.UrgencyDueSoon
	default:
		return domain.UrgencyOnTime
	}
}

// PreviewPayment validates a payment against the record and projects the
// resulting paid amount, balance, status and urgency without persisting
// anything.
func PreviewPayment(record domain.CreditRecord, amountCents int64, now time.Time) (domain.PaymentPreview, error) {
	balance := Balance(record.TotalCents, record.PaidCents)
	if amountCents <= 0 {
		return domain.PaymentPreview{}, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if amountCents > balance {
		return domain.PaymentPreview{}, fmt.Errorf("%w: amount %d exceeds outstanding balance %d", ErrInvalidPayment, amountCents, balance)
	}

	newPaid := clampCents(record.PaidCents) + amountCents
	return domain.PaymentPreview{
		CreditID:        record.ID,
		AmountCents:     amountCents,
		NewPaidCents:    newPaid,
		NewBalanceCents: Balance(record.TotalCents, newPaid),
		NewStatus:       Status(record.TotalCents, newPaid, record.DueDate, now),
		NewUrgency:      Urgency(record.TotalCents, newPaid, record.DueDate, now, DefaultDueSoonWindow),
	}, nil
}

func clampCents(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
