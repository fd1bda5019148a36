package collections

import (
	"math"
	"sort"
	"time"

	"kasbonku/backend/internal/domain"
	"kasbonku/backend/internal/ledger"
	"kasbonku/backend/internal/shops"
)

// Engine ranks outstanding credits into a collection worklist: who to chase
// first, and why. Scoring is deterministic given the records and "now".
type Engine struct {
	dueSoonWindow time.Duration
	maxTasks      int
	minPriority   float64
}

func NewEngine(dueSoonWindow time.Duration, maxTasks int) *Engine {
	if dueSoonWindow <= 0 {
		dueSoonWindow = ledger.DefaultDueSoonWindow
	}
	if maxTasks < 1 {
		maxTasks = 20
	}

	return &Engine{
		dueSoonWindow: dueSoonWindow,
		maxTasks:      maxTasks,
		minPriority:   0.15,
	}
}

func (e *Engine) Worklist(now time.Time, records []domain.CreditRecord, catalog []domain.Shop) []domain.CollectionTask {
	deduped := shops.Deduplicate(records)

	maxBalance := int64(0)
	for _, record := range deduped {
		if balance := ledger.Balance(record.TotalCents, record.PaidCents); balance > maxBalance {
			maxBalance = balance
		}
	}

	tasks := make([]domain.CollectionTask, 0, len(deduped))
	for _, record := range deduped {
		balance := ledger.Balance(record.TotalCents, record.PaidCents)
		if balance == 0 {
			continue
		}

		urgency := ledger.Urgency(record.TotalCents, record.PaidCents, record.DueDate, now, e.dueSoonWindow)

		daysOverdue := 0
		if record.DueDate != nil && record.DueDate.Before(now) {
			daysOverdue = int(now.Sub(*record.DueDate).Hours() / 24)
		}

		ageScore := 0.0
		if urgency == domain.UrgencyOverdue {
			// Overdue gets a floor so even a freshly late credit outranks
			// anything merely approaching its due date.
			ageScore = clamp(0.3+float64(daysOverdue)/30.0, 0, 1)
		}

		balanceScore := 0.0
		if maxBalance > 0 {
			balanceScore = clamp(float64(balance)/float64(maxBalance), 0, 1)
		}

		dueSoonScore := 0.0
		if urgency == domain.UrgencyDueSoon {
			dueSoonScore = 1.0
		}

		staleScore := 0.0
		if total := record.TotalCents; total > 0 {
			staleScore = clamp(1.0-float64(record.PaidCents)/float64(total), 0, 1)
		}

		priority :=
			0.45*ageScore +
				0.25*balanceScore +
				0.20*dueSoonScore +
				0.10*staleScore

		if priority < e.minPriority {
			continue
		}

		shopName := ""
		if resolved := shops.Resolve(record, catalog); resolved != nil {
			shopName = resolved.Name
		}

		tasks = append(tasks, domain.CollectionTask{
			CreditID:     record.ID,
			CustomerName: record.CustomerName,
			ShopName:     shopName,
			BalanceCents: balance,
			DaysOverdue:  daysOverdue,
			Urgency:      urgency,
			ReasonCode:   deriveReason(ageScore, balanceScore, dueSoonScore, staleScore),
			Priority:     round2(priority),
		})
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority != tasks[j].Priority {
			return tasks[i].Priority > tasks[j].Priority
		}
		if tasks[i].BalanceCents != tasks[j].BalanceCents {
			return tasks[i].BalanceCents > tasks[j].BalanceCents
		}
		return tasks[i].CreditID < tasks[j].CreditID
	})

	if len(tasks) > e.maxTasks {
		tasks = tasks[:e.maxTasks]
	}
	return tasks
}

func deriveReason(ageScore float64, balanceScore float64, dueSoonScore float64, staleScore float64) string {
	type reasonWeight struct {
		code  string
		value float64
	}

	reasons := []reasonWeight{
		{code: "long_overdue", value: ageScore},
		{code: "large_balance", value: balanceScore},
		{code: "due_soon", value: dueSoonScore},
		{code: "no_payment_yet", value: staleScore},
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		return reasons[i].value > reasons[j].value
	})
	return reasons[0].code
}

func clamp(val float64, minVal float64, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
