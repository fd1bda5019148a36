package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kasbonku/backend/internal/cache"
	"kasbonku/backend/internal/collections"
	"kasbonku/backend/internal/domain"
	"kasbonku/backend/internal/ledger"
	"kasbonku/backend/internal/store"
	"kasbonku/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	collector := collections.NewEngine(48*time.Hour, 20)
	return New(repo, collector, cache.NoopShopStatsCache{}, time.Minute)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "admin",
		Role:     "admin",
	})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "cashier",
		Role:     "cashier",
	})
}

func TestListCreditsDerivesBalanceAndStatus(t *testing.T) {
	svc := newTestService()

	resp, err := svc.ListCredits(context.Background(), domain.CreditFilter{})
	if err != nil {
		t.Fatalf("list credits failed: %v", err)
	}
	if resp.Total == 0 {
		t.Fatalf("expected seeded credits")
	}

	for _, credit := range resp.Credits {
		wantBalance := credit.TotalCents - credit.PaidCents
		if wantBalance < 0 {
			wantBalance = 0
		}
		if credit.BalanceCents != wantBalance {
			t.Fatalf("credit %s balance mismatch: got %d want %d", credit.ID, credit.BalanceCents, wantBalance)
		}
		if credit.PaidCents >= credit.TotalCents && credit.Status != domain.CreditStatusPaid {
			t.Fatalf("credit %s should be paid, got %s", credit.ID, credit.Status)
		}
	}
}

func TestListCreditsFilterByShop(t *testing.T) {
	svc := newTestService()

	resp, err := svc.ListCredits(context.Background(), domain.CreditFilter{ShopID: "shop-warung-sari"})
	if err != nil {
		t.Fatalf("list credits failed: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected 2 credits for shop-warung-sari, got %d", resp.Total)
	}
	for _, credit := range resp.Credits {
		if credit.Shop == nil || credit.Shop.ID != "shop-warung-sari" {
			t.Fatalf("credit %s resolved to wrong shop: %+v", credit.ID, credit.Shop)
		}
	}
}

func TestListCreditsSearchMatchesVirtualShopName(t *testing.T) {
	svc := newTestService()

	resp, err := svc.ListCredits(context.Background(), domain.CreditFilter{Search: "mang ujang"})
	if err != nil {
		t.Fatalf("list credits failed: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("expected 1 match for virtual shop name, got %d", resp.Total)
	}
	credit := resp.Credits[0]
	if credit.Shop == nil || !credit.Shop.Virtual {
		t.Fatalf("expected a virtual shop resolution, got %+v", credit.Shop)
	}
}

func TestListCreditsStatusFilter(t *testing.T) {
	svc := newTestService()

	resp, err := svc.ListCredits(context.Background(), domain.CreditFilter{Status: domain.CreditStatusOverdue})
	if err != nil {
		t.Fatalf("list credits failed: %v", err)
	}
	for _, credit := range resp.Credits {
		if credit.Status != domain.CreditStatusOverdue {
			t.Fatalf("expected only overdue credits, got %s for %s", credit.Status, credit.ID)
		}
	}
	if resp.Total == 0 {
		t.Fatalf("seed data contains an overdue credit, none returned")
	}
}

func TestCreateCreditRequiresActor(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateCredit(context.Background(), domain.CreditCreateRequest{
		CustomerName: "Pak Slamet",
		TotalCents:   50000,
	})
	if err == nil {
		t.Fatalf("expected create without actor to fail")
	}
}

func TestCreateCreditDenormalizesShop(t *testing.T) {
	svc := newTestService()

	created, err := svc.CreateCredit(cashierCtx(), domain.CreditCreateRequest{
		CustomerName: "Pak Slamet",
		ShopID:       "shop-sembako-ratna",
		TotalCents:   90000,
		PaidCents:    10000,
		DueDate:      time.Now().UTC().Add(5 * 24 * time.Hour).Format("2006-01-02"),
	})
	if err != nil {
		t.Fatalf("create credit failed: %v", err)
	}
	if created.Shop == nil || created.Shop.Name != "Sembako Ibu Ratna" {
		t.Fatalf("expected shop name denormalized from catalog, got %+v", created.Shop)
	}
	if created.Status != domain.CreditStatusPartiallyPaid {
		t.Fatalf("expected partially_paid, got %s", created.Status)
	}
	if created.RecordedBy != "cashier" {
		t.Fatalf("expected recorded_by cashier, got %s", created.RecordedBy)
	}
}

func TestCreateCreditBackfillsOriginTransaction(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	// An unknown transaction id gets a sale record so the lookup works.
	_, err := svc.CreateCredit(ctx, domain.CreditCreateRequest{
		CustomerName:  "Ibu Ratih",
		TransactionID: domain.TransactionRef("tx-7001"),
		ShopID:        "shop-warung-sari",
		TotalCents:    73000,
	})
	if err != nil {
		t.Fatalf("create credit failed: %v", err)
	}
	tx, err := svc.GetTransaction(context.Background(), "tx-7001")
	if err != nil {
		t.Fatalf("expected backfilled transaction, got %v", err)
	}
	if tx.TotalCents != 73000 || tx.ShopID != "shop-warung-sari" {
		t.Fatalf("unexpected backfilled transaction: %+v", tx)
	}

	// A known transaction id is left untouched.
	_, err = svc.CreateCredit(ctx, domain.CreditCreateRequest{
		CustomerName:  "Pak Hendra",
		TransactionID: domain.TransactionRef("tx-1001"),
		TotalCents:    99999,
	})
	if err != nil {
		t.Fatalf("create credit failed: %v", err)
	}
	existing, err := svc.GetTransaction(context.Background(), "tx-1001")
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if existing.TotalCents != 125000 {
		t.Fatalf("existing transaction was overwritten: %+v", existing)
	}
}

func TestCreateCreditRejectsBadAmountsAndDates(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	cases := []domain.CreditCreateRequest{
		{CustomerName: "X", TotalCents: 0},
		{CustomerName: "X", TotalCents: 1000, PaidCents: -1},
		{CustomerName: "X", TotalCents: 1000, PaidCents: 2000},
		{CustomerName: "", TotalCents: 1000},
		{CustomerName: "X", TotalCents: 1000, DueDate: "31-12-2026"},
	}
	for i, req := range cases {
		if _, err := svc.CreateCredit(ctx, req); !errors.Is(err, store.ErrInvalidRecord) {
			t.Fatalf("case %d: expected ErrInvalidRecord, got %v", i, err)
		}
	}
}

func TestRecordPaymentPartialThenSettle(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	// credit-2: 86000 total, nothing paid, overdue.
	first, err := svc.RecordPayment(ctx, "credit-2", domain.PaymentRequest{
		AmountCents:   36000,
		PaymentMethod: "qris",
	})
	if err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if first.Credit.PaidCents != 36000 || first.Credit.Status != domain.CreditStatusPartiallyPaid {
		t.Fatalf("unexpected credit after first payment: %+v", first.Credit)
	}
	if first.Credit.Urgency != domain.UrgencyOverdue {
		t.Fatalf("partially paid late credit should still be urgent, got %s", first.Credit.Urgency)
	}

	second, err := svc.RecordPayment(ctx, "credit-2", domain.PaymentRequest{
		AmountCents: 50000,
	})
	if err != nil {
		t.Fatalf("second payment failed: %v", err)
	}
	if second.Credit.Status != domain.CreditStatusPaid || second.Credit.BalanceCents != 0 {
		t.Fatalf("expected settled credit, got %+v", second.Credit)
	}
	if second.Payment.PaymentMethod != "cash" {
		t.Fatalf("expected default cash method, got %s", second.Payment.PaymentMethod)
	}

	list, err := svc.ListPayments(ctx, "credit-2")
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(list.Payments) != 2 {
		t.Fatalf("expected 2 payments, got %d", len(list.Payments))
	}
}

func TestRecordPaymentRejectsOverpaymentAndZero(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	_, err := svc.RecordPayment(ctx, "credit-2", domain.PaymentRequest{AmountCents: 86001})
	if !errors.Is(err, ledger.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment for overpayment, got %v", err)
	}

	_, err = svc.RecordPayment(ctx, "credit-2", domain.PaymentRequest{AmountCents: 0})
	if !errors.Is(err, ledger.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment for zero amount, got %v", err)
	}

	_, err = svc.RecordPayment(ctx, "credit-3", domain.PaymentRequest{AmountCents: 1})
	if !errors.Is(err, ledger.ErrInvalidPayment) {
		t.Fatalf("expected ErrInvalidPayment against settled credit, got %v", err)
	}
}

func TestRecordPaymentRejectsUnknownMethod(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordPayment(cashierCtx(), "credit-2", domain.PaymentRequest{
		AmountCents:   1000,
		PaymentMethod: "barter",
	})
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for unknown method, got %v", err)
	}
}

func TestPreviewPaymentDoesNotMutate(t *testing.T) {
	svc := newTestService()

	preview, err := svc.PreviewPayment(context.Background(), "credit-2", domain.PaymentRequest{AmountCents: 86000})
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if preview.NewStatus != domain.CreditStatusPaid || preview.NewBalanceCents != 0 {
		t.Fatalf("unexpected preview: %+v", preview)
	}

	credit, err := svc.GetCredit(context.Background(), "credit-2")
	if err != nil {
		t.Fatalf("get credit failed: %v", err)
	}
	if credit.PaidCents != 0 {
		t.Fatalf("preview must not mutate, paid=%d", credit.PaidCents)
	}
}

func TestUpdateCreditRequiresAdmin(t *testing.T) {
	svc := newTestService()

	newTotal := int64(99000)
	_, err := svc.UpdateCredit(cashierCtx(), "credit-2", domain.CreditUpdateRequest{TotalCents: &newTotal})
	if err == nil {
		t.Fatalf("expected non-admin update to fail")
	}
}

func TestUpdateCreditRecomputesStatus(t *testing.T) {
	svc := newTestService()

	// Clearing the overdue due date demotes the credit back to pending.
	empty := ""
	updated, err := svc.UpdateCredit(adminCtx(), "credit-2", domain.CreditUpdateRequest{DueDate: &empty})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status != domain.CreditStatusPending {
		t.Fatalf("expected pending after due date cleared, got %s", updated.Status)
	}
	if updated.DueDate != nil {
		t.Fatalf("expected due date cleared")
	}
}

func TestUpdateCreditRejectsTotalBelowPaid(t *testing.T) {
	svc := newTestService()

	// credit-1 has 50000 already paid.
	newTotal := int64(40000)
	_, err := svc.UpdateCredit(adminCtx(), "credit-1", domain.CreditUpdateRequest{TotalCents: &newTotal})
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestDeleteCreditAdminOnly(t *testing.T) {
	svc := newTestService()

	if err := svc.DeleteCredit(cashierCtx(), "credit-6", "mistake"); err == nil {
		t.Fatalf("expected non-admin delete to fail")
	}

	if err := svc.DeleteCredit(adminCtx(), "credit-6", "mistake"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := svc.GetCredit(context.Background(), "credit-6"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestShopStatsSummaryConservation(t *testing.T) {
	svc := newTestService()

	stats, err := svc.ShopStats(context.Background())
	if err != nil {
		t.Fatalf("shop stats failed: %v", err)
	}

	var count int
	var total, balance int64
	for _, shop := range stats.Shops {
		count += shop.Count
		total += shop.TotalCents
		balance += shop.BalanceCents
	}
	if count != stats.Summary.Count {
		t.Fatalf("summary count %d != sum of buckets %d", stats.Summary.Count, count)
	}
	if total != stats.Summary.TotalCents {
		t.Fatalf("summary total %d != sum of buckets %d", stats.Summary.TotalCents, total)
	}
	if balance != stats.Summary.BalanceCents {
		t.Fatalf("summary balance %d != sum of buckets %d", stats.Summary.BalanceCents, balance)
	}

	// Buckets come back sorted by outstanding balance.
	for i := 1; i < len(stats.Shops); i++ {
		if stats.Shops[i-1].BalanceCents < stats.Shops[i].BalanceCents {
			t.Fatalf("shops not sorted by balance desc at index %d", i)
		}
	}
}

func TestShopStatsIncludesUnclassifiedBucket(t *testing.T) {
	svc := newTestService()

	stats, err := svc.ShopStats(context.Background())
	if err != nil {
		t.Fatalf("shop stats failed: %v", err)
	}

	found := false
	for _, shop := range stats.Shops {
		if shop.ShopID == "unclassified" {
			found = true
			if shop.Count < 1 {
				t.Fatalf("unclassified bucket should hold the legacy credit")
			}
		}
	}
	if !found {
		t.Fatalf("expected unclassified bucket for credit without shop")
	}
}

func TestCollectionWorklistRanksOverdueFirst(t *testing.T) {
	svc := newTestService()

	worklist, err := svc.CollectionWorklist(context.Background())
	if err != nil {
		t.Fatalf("worklist failed: %v", err)
	}
	if len(worklist.Tasks) == 0 {
		t.Fatalf("expected collection tasks from seed data")
	}

	for i := 1; i < len(worklist.Tasks); i++ {
		if worklist.Tasks[i-1].Priority < worklist.Tasks[i].Priority {
			t.Fatalf("tasks not sorted by priority at index %d", i)
		}
	}
	for _, task := range worklist.Tasks {
		if task.CreditID == "credit-3" {
			t.Fatalf("settled credit must not appear in worklist")
		}
	}
}

func TestCollectionsReportAggregatesPayments(t *testing.T) {
	svc := newTestService()
	ctx := cashierCtx()

	_, err := svc.RecordPayment(ctx, "credit-2", domain.PaymentRequest{AmountCents: 10000, PaymentMethod: "cash"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	_, err = svc.RecordPayment(ctx, "credit-5", domain.PaymentRequest{AmountCents: 30000, PaymentMethod: "qris"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	report, err := svc.CollectionsReport(context.Background(), time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if report.Payments != 2 || report.CollectedCents != 40000 {
		t.Fatalf("unexpected report totals: %+v", report)
	}
	if len(report.ByMethod) != 2 {
		t.Fatalf("expected 2 payment methods, got %d", len(report.ByMethod))
	}
	if report.ByMethod[0].TotalCents < report.ByMethod[1].TotalCents {
		t.Fatalf("methods not sorted by total desc")
	}
	if len(report.ByShop) != 2 {
		t.Fatalf("expected 2 shops in report, got %d", len(report.ByShop))
	}
}

func TestCollectionsReportRejectsBadDate(t *testing.T) {
	svc := newTestService()

	_, err := svc.CollectionsReport(context.Background(), "20-08-2026")
	if !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for bad date, got %v", err)
	}
}

func TestCreateShopAdminOnly(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateShop(cashierCtx(), domain.ShopCreateRequest{Name: "Warung Baru"})
	if err == nil {
		t.Fatalf("expected non-admin create shop to fail")
	}

	shop, err := svc.CreateShop(adminCtx(), domain.ShopCreateRequest{
		Name:     "Warung Baru",
		Type:     "warung",
		Location: "Bekasi",
	})
	if err != nil {
		t.Fatalf("create shop failed: %v", err)
	}
	if shop.ID == "" || shop.Name != "Warung Baru" {
		t.Fatalf("unexpected shop: %+v", shop)
	}
}

func TestGetTransaction(t *testing.T) {
	svc := newTestService()

	tx, err := svc.GetTransaction(context.Background(), "tx-1001")
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if tx.TotalCents != 125000 {
		t.Fatalf("unexpected transaction total: %d", tx.TotalCents)
	}

	if _, err := svc.GetTransaction(context.Background(), "tx-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditTrailWrittenForMutations(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordPayment(adminCtx(), "credit-2", domain.PaymentRequest{AmountCents: 1000})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if err := svc.DeleteCredit(adminCtx(), "credit-6", "cleanup"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Now().UTC().Format("2006-01-02"), 50)
	if err != nil {
		t.Fatalf("list audit logs failed: %v", err)
	}

	actions := map[string]bool{}
	for _, entry := range logs {
		actions[entry.Action] = true
	}
	if !actions["credit_payment"] || !actions["credit_delete"] {
		t.Fatalf("expected payment and delete audit entries, got %v", actions)
	}
}
