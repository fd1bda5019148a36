package collections

import (
	"testing"
	"time"

	"kasbonku/backend/internal/domain"
)

func TestWorklistSkipsSettledCredits(t *testing.T) {
	engine := NewEngine(0, 0)
	now := time.Now().UTC()

	tasks := engine.Worklist(now, []domain.CreditRecord{
		{ID: "c1", TransactionID: "tx-1", TotalCents: 10000, PaidCents: 10000},
	}, nil)

	if len(tasks) != 0 {
		t.Fatalf("expected no tasks for settled credit, got %d", len(tasks))
	}
}

func TestWorklistRanksOverdueFirst(t *testing.T) {
	engine := NewEngine(0, 0)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	longOverdue := now.Add(-40 * 24 * time.Hour)
	dueSoon := now.Add(24 * time.Hour)
	farFuture := now.Add(30 * 24 * time.Hour)

	tasks := engine.Worklist(now, []domain.CreditRecord{
		{ID: "fresh", TransactionID: "tx-1", CustomerName: "Agus", TotalCents: 50000, DueDate: &farFuture},
		{ID: "late", TransactionID: "tx-2", CustomerName: "Dewi", TotalCents: 50000, DueDate: &longOverdue},
		{ID: "soon", TransactionID: "tx-3", CustomerName: "Rina", TotalCents: 30000, DueDate: &dueSoon},
	}, nil)

	if len(tasks) < 2 {
		t.Fatalf("expected at least 2 tasks, got %d", len(tasks))
	}
	if tasks[0].CreditID != "late" {
		t.Fatalf("expected overdue credit ranked first, got %q", tasks[0].CreditID)
	}
	if tasks[0].ReasonCode != "long_overdue" {
		t.Fatalf("expected reason long_overdue, got %q", tasks[0].ReasonCode)
	}
	if tasks[0].DaysOverdue != 40 {
		t.Fatalf("expected 40 days overdue, got %d", tasks[0].DaysOverdue)
	}
	if tasks[1].CreditID != "soon" || tasks[1].ReasonCode != "due_soon" {
		t.Fatalf("expected due-soon credit second, got %+v", tasks[1])
	}
}

func TestWorklistTruncatesToMaxTasks(t *testing.T) {
	engine := NewEngine(0, 2)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	records := make([]domain.CreditRecord, 0, 5)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		records = append(records, domain.CreditRecord{
			ID: id, TransactionID: "tx-" + id, TotalCents: 10000, DueDate: &yesterday,
		})
	}

	tasks := engine.Worklist(now, records, nil)
	if len(tasks) != 2 {
		t.Fatalf("expected worklist truncated to 2, got %d", len(tasks))
	}
}

func TestWorklistResolvesShopName(t *testing.T) {
	engine := NewEngine(0, 0)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)
	catalog := []domain.Shop{{ID: "shop-1", Name: "Warung Bu Sari"}}

	tasks := engine.Worklist(now, []domain.CreditRecord{
		{ID: "c1", TransactionID: "tx-1", ShopID: "shop-1", TotalCents: 10000, DueDate: &yesterday},
	}, catalog)

	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].ShopName != "Warung Bu Sari" {
		t.Fatalf("expected resolved shop name, got %q", tasks[0].ShopName)
	}
}
