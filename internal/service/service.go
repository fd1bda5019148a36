package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"kasbonku/backend/internal/cache"
	"kasbonku/backend/internal/collections"
	"kasbonku/backend/internal/domain"
	"kasbonku/backend/internal/ledger"
	"kasbonku/backend/internal/shops"
	"kasbonku/backend/internal/store"
	"kasbonku/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const shopStatsCacheKey = "kasbonku:shop-stats"

var paymentMethods = map[string]bool{
	"cash":     true,
	"card":     true,
	"qris":     true,
	"ewallet":  true,
	"transfer": true,
}

type Service struct {
	repo          store.Repository
	collector     *collections.Engine
	statsCache    cache.ShopStatsCache
	statsTTL      time.Duration
	dueSoonWindow time.Duration
}

func New(repo store.Repository, collector *collections.Engine, statsCache cache.ShopStatsCache, statsTTL time.Duration) *Service {
	if collector == nil {
		collector = collections.NewEngine(0, 0)
	}
	if statsCache == nil {
		statsCache = cache.NoopShopStatsCache{}
	}
	if statsTTL <= 0 {
		statsTTL = time.Minute
	}

	return &Service{
		repo:          repo,
		collector:     collector,
		statsCache:    statsCache,
		statsTTL:      statsTTL,
		dueSoonWindow: ledger.DefaultDueSoonWindow,
	}
}

func (s *Service) ListCredits(ctx context.Context, filter domain.CreditFilter) (domain.CreditListResponse, error) {
	records, err := s.repo.ListCredits(ctx)
	if err != nil {
		return domain.CreditListResponse{}, err
	}
	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.CreditListResponse{}, err
	}

	now := time.Now().UTC()
	records = shops.Deduplicate(records)
	records = shops.FilterByShop(records, filter.ShopID, catalog)
	records = shops.Search(records, filter.Search, catalog, now)

	status := strings.ToLower(strings.TrimSpace(filter.Status))
	views := make([]domain.CreditView, 0, len(records))
	for _, record := range records {
		view := s.toView(record, catalog, now)
		if status != "" && view.Status != status {
			continue
		}
		views = append(views, view)
	}

	return domain.CreditListResponse{Credits: views, Total: len(views)}, nil
}

func (s *Service) GetCredit(ctx context.Context, id string) (domain.CreditView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.CreditView{}, store.ErrInvalidRecord
	}

	record, err := s.repo.GetCreditByID(ctx, id)
	if err != nil {
		return domain.CreditView{}, err
	}
	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.CreditView{}, err
	}

	return s.toView(*record, catalog, time.Now().UTC()), nil
}

func (s *Service) CreateCredit(ctx context.Context, req domain.CreditCreateRequest) (domain.CreditView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CreditView{}, fmt.Errorf("authenticated actor required")
	}

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerName == "" {
		return domain.CreditView{}, store.ErrInvalidRecord
	}
	if req.TotalCents < 1 || req.PaidCents < 0 || req.PaidCents > req.TotalCents {
		return domain.CreditView{}, store.ErrInvalidRecord
	}

	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		return domain.CreditView{}, store.ErrInvalidRecord
	}

	now := time.Now().UTC()
	record := domain.CreditRecord{
		ID:            xid.New("credit"),
		TransactionID: req.TransactionID.String(),
		CustomerName:  req.CustomerName,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		ShopID:        strings.TrimSpace(req.ShopID),
		ShopName:      strings.TrimSpace(req.ShopName),
		ShopType:      strings.TrimSpace(req.ShopType),
		ShopLocation:  strings.TrimSpace(req.ShopLocation),
		TotalCents:    req.TotalCents,
		PaidCents:     req.PaidCents,
		DueDate:       dueDate,
		CashierName:   strings.TrimSpace(req.CashierName),
		RecordedBy:    actor.Username,
		CreatedAt:     now,
	}
	if record.CashierName == "" {
		record.CashierName = actor.Username
	}

	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.CreditView{}, err
	}
	// Denormalize the shop onto the record so it survives catalog edits.
	if record.ShopID != "" {
		for _, shop := range catalog {
			if shop.ID == record.ShopID {
				record.ShopName = shop.Name
				record.ShopType = shop.Type
				record.ShopLocation = shop.Location
				break
			}
		}
	}
	record.Status = ledger.Status(record.TotalCents, record.PaidCents, record.DueDate, now)

	created, err := s.repo.CreateCredit(ctx, record)
	if err != nil {
		return domain.CreditView{}, err
	}

	s.recordOriginTransaction(ctx, *created)
	s.logAudit(ctx, "credit_create", "credit", created.ID, fmt.Sprintf("customer=%s,total=%d,paid=%d", created.CustomerName, created.TotalCents, created.PaidCents))
	s.invalidateStats(ctx)

	return s.toView(*created, catalog, now), nil
}

func (s *Service) UpdateCredit(ctx context.Context, id string, req domain.CreditUpdateRequest) (domain.CreditView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.CreditView{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.CreditView{}, store.ErrInvalidRecord
	}

	existing, err := s.repo.GetCreditByID(ctx, id)
	if err != nil {
		return domain.CreditView{}, err
	}

	record := *existing
	if req.CustomerName != nil {
		record.CustomerName = strings.TrimSpace(*req.CustomerName)
	}
	if req.CustomerPhone != nil {
		record.CustomerPhone = strings.TrimSpace(*req.CustomerPhone)
	}
	if req.ShopID != nil {
		record.ShopID = strings.TrimSpace(*req.ShopID)
	}
	if req.ShopName != nil {
		record.ShopName = strings.TrimSpace(*req.ShopName)
	}
	if req.ShopType != nil {
		record.ShopType = strings.TrimSpace(*req.ShopType)
	}
	if req.ShopLocation != nil {
		record.ShopLocation = strings.TrimSpace(*req.ShopLocation)
	}
	if req.TotalCents != nil {
		record.TotalCents = *req.TotalCents
	}
	if req.DueDate != nil {
		if strings.TrimSpace(*req.DueDate) == "" {
			record.DueDate = nil
		} else {
			dueDate, err := parseDueDate(*req.DueDate)
			if err != nil {
				return domain.CreditView{}, store.ErrInvalidRecord
			}
			record.DueDate = dueDate
		}
	}

	if record.CustomerName == "" || record.TotalCents < 1 || record.TotalCents < record.PaidCents {
		return domain.CreditView{}, store.ErrInvalidRecord
	}

	now := time.Now().UTC()
	record.Status = ledger.Status(record.TotalCents, record.PaidCents, record.DueDate, now)

	updated, err := s.repo.UpdateCredit(ctx, record)
	if err != nil {
		return domain.CreditView{}, err
	}

	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.CreditView{}, err
	}

	s.logAudit(ctx, "credit_update", "credit", updated.ID, fmt.Sprintf("total=%d,due=%s", updated.TotalCents, formatDueDate(updated.DueDate)))
	s.invalidateStats(ctx)

	return s.toView(*updated, catalog, now), nil
}

func (s *Service) DeleteCredit(ctx context.Context, id string, reason string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return store.ErrInvalidRecord
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unspecified"
	}

	if err := s.repo.DeleteCredit(ctx, id); err != nil {
		return err
	}

	s.logAudit(ctx, "credit_delete", "credit", id, fmt.Sprintf("reason=%s", reason))
	s.invalidateStats(ctx)
	return nil
}

func (s *Service) PreviewPayment(ctx context.Context, creditID string, req domain.PaymentRequest) (domain.PaymentPreview, error) {
	creditID = strings.TrimSpace(creditID)
	if creditID == "" {
		return domain.PaymentPreview{}, store.ErrInvalidRecord
	}

	record, err := s.repo.GetCreditByID(ctx, creditID)
	if err != nil {
		return domain.PaymentPreview{}, err
	}
	return ledger.PreviewPayment(*record, req.AmountCents, time.Now().UTC())
}

func (s *Service) RecordPayment(ctx context.Context, creditID string, req domain.PaymentRequest) (domain.PaymentResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.PaymentResponse{}, fmt.Errorf("authenticated actor required")
	}

	creditID = strings.TrimSpace(creditID)
	if creditID == "" {
		return domain.PaymentResponse{}, store.ErrInvalidRecord
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = "cash"
	}
	if !paymentMethods[method] {
		return domain.PaymentResponse{}, store.ErrInvalidRecord
	}

	record, err := s.repo.GetCreditByID(ctx, creditID)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	now := time.Now().UTC()
	preview, err := ledger.PreviewPayment(*record, req.AmountCents, now)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	event := domain.PaymentEvent{
		ID:            xid.New("pay"),
		CreditID:      record.ID,
		AmountCents:   req.AmountCents,
		PaymentMethod: method,
		Note:          strings.TrimSpace(req.Note),
		PaidAt:        now,
		RecordedBy:    actor.Username,
	}

	updated, err := s.repo.AppendPayment(ctx, event, preview.NewPaidCents, preview.NewStatus)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.PaymentResponse{}, err
	}

	s.logAudit(ctx, "credit_payment", "credit", updated.ID, fmt.Sprintf("amount=%d,method=%s,status=%s", event.AmountCents, method, preview.NewStatus))
	s.invalidateStats(ctx)

	return domain.PaymentResponse{
		Payment: event,
		Credit:  s.toView(*updated, catalog, now),
	}, nil
}

func (s *Service) ListPayments(ctx context.Context, creditID string) (domain.PaymentListResponse, error) {
	creditID = strings.TrimSpace(creditID)
	if creditID == "" {
		return domain.PaymentListResponse{}, store.ErrInvalidRecord
	}

	if _, err := s.repo.GetCreditByID(ctx, creditID); err != nil {
		return domain.PaymentListResponse{}, err
	}

	payments, err := s.repo.ListPayments(ctx, creditID)
	if err != nil {
		return domain.PaymentListResponse{}, err
	}
	return domain.PaymentListResponse{Payments: payments}, nil
}

func (s *Service) ListShops(ctx context.Context) (domain.ShopListResponse, error) {
	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.ShopListResponse{}, err
	}
	return domain.ShopListResponse{Shops: catalog}, nil
}

func (s *Service) CreateShop(ctx context.Context, req domain.ShopCreateRequest) (domain.Shop, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Shop{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Shop{}, store.ErrInvalidRecord
	}

	created, err := s.repo.CreateShop(ctx, domain.Shop{
		ID:       xid.New("shop"),
		Name:     req.Name,
		Type:     strings.TrimSpace(req.Type),
		Location: strings.TrimSpace(req.Location),
	})
	if err != nil {
		return domain.Shop{}, err
	}

	s.logAudit(ctx, "shop_create", "shop", created.ID, fmt.Sprintf("name=%s", created.Name))
	s.invalidateStats(ctx)
	return *created, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.TransactionDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.TransactionDetail{}, store.ErrInvalidRecord
	}

	tx, err := s.repo.GetTransactionByID(ctx, id)
	if err != nil {
		return domain.TransactionDetail{}, err
	}
	return *tx, nil
}

// ShopStats aggregates all credits by resolved shop. The result is cached
// with a short TTL and mutations invalidate it eagerly, so the dashboard
// never shows a settled credit as outstanding for long.
func (s *Service) ShopStats(ctx context.Context) (domain.ShopStatsResponse, error) {
	cached, ok, err := s.statsCache.Get(ctx, shopStatsCacheKey)
	if err != nil {
		log.Printf("[service] WARN: shop stats cache read failed: %v", err)
	} else if ok {
		return *cached, nil
	}

	records, err := s.repo.ListCredits(ctx)
	if err != nil {
		return domain.ShopStatsResponse{}, err
	}
	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.ShopStatsResponse{}, err
	}

	now := time.Now().UTC()
	buckets := shops.AggregateByShop(records, catalog, now)

	summary := domain.ShopMetrics{ShopID: "all", ShopName: "All Shops"}
	perShop := make([]domain.ShopMetrics, 0, len(buckets))
	for _, bucket := range buckets {
		summary.Count += bucket.Count
		summary.TotalCents += bucket.TotalCents
		summary.PaidCents += bucket.PaidCents
		summary.BalanceCents += bucket.BalanceCents
		summary.PendingCount += bucket.PendingCount
		summary.PartiallyPaidCount += bucket.PartiallyPaidCount
		summary.PaidCount += bucket.PaidCount
		summary.OverdueCount += bucket.OverdueCount
		perShop = append(perShop, bucket)
	}
	summary.CollectionRate = shops.RatePercent(summary.PaidCents, summary.TotalCents)
	if summary.Count > 0 {
		summary.AverageCreditCents = summary.TotalCents / int64(summary.Count)
	}
	summary.OverdueRate = shops.RatePercent(int64(summary.OverdueCount), int64(summary.Count))
	summary.PaidRate = shops.RatePercent(int64(summary.PaidCount), int64(summary.Count))

	sort.Slice(perShop, func(i, j int) bool {
		if perShop[i].BalanceCents != perShop[j].BalanceCents {
			return perShop[i].BalanceCents > perShop[j].BalanceCents
		}
		return perShop[i].ShopName < perShop[j].ShopName
	})

	resp := domain.ShopStatsResponse{
		GeneratedAt: now.Format(time.RFC3339),
		Summary:     summary,
		Shops:       perShop,
	}

	if err := s.statsCache.Set(ctx, shopStatsCacheKey, &resp, s.statsTTL); err != nil {
		log.Printf("[service] WARN: failed to cache shop stats: %v", err)
	}
	return resp, nil
}

func (s *Service) CollectionWorklist(ctx context.Context) (domain.CollectionWorklistResponse, error) {
	records, err := s.repo.ListCredits(ctx)
	if err != nil {
		return domain.CollectionWorklistResponse{}, err
	}
	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.CollectionWorklistResponse{}, err
	}

	now := time.Now().UTC()
	return domain.CollectionWorklistResponse{
		GeneratedAt: now.Format(time.RFC3339),
		Tasks:       s.collector.Worklist(now, shops.Deduplicate(records), catalog),
	}, nil
}

// CollectionsReport summarizes one day of payments by method and by shop.
func (s *Service) CollectionsReport(ctx context.Context, date string) (domain.CollectionsReport, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		now := time.Now().UTC()
		day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return domain.CollectionsReport{}, store.ErrInvalidRecord
		}
		day = parsed.UTC()
	}
	from := day
	to := from.Add(24 * time.Hour)

	payments, err := s.repo.ListPaymentsBetween(ctx, from, to)
	if err != nil {
		return domain.CollectionsReport{}, err
	}

	records, err := s.repo.ListCredits(ctx)
	if err != nil {
		return domain.CollectionsReport{}, err
	}
	catalog, err := s.repo.ListShops(ctx)
	if err != nil {
		return domain.CollectionsReport{}, err
	}

	shopNameByCredit := make(map[string]string, len(records))
	for _, record := range records {
		if resolved := shops.Resolve(record, catalog); resolved != nil {
			shopNameByCredit[record.ID] = resolved.Name
		} else {
			shopNameByCredit[record.ID] = "Unclassified"
		}
	}

	report := domain.CollectionsReport{Date: from.Format("2006-01-02")}
	byMethod := make(map[string]*domain.CollectionsReportMethod)
	byShop := make(map[string]*domain.CollectionsReportShop)

	for _, payment := range payments {
		report.Payments++
		report.CollectedCents += payment.AmountCents

		method := byMethod[payment.PaymentMethod]
		if method == nil {
			method = &domain.CollectionsReportMethod{PaymentMethod: payment.PaymentMethod}
			byMethod[payment.PaymentMethod] = method
		}
		method.Payments++
		method.TotalCents += payment.AmountCents

		shopName := shopNameByCredit[payment.CreditID]
		if shopName == "" {
			shopName = "Unclassified"
		}
		shop := byShop[shopName]
		if shop == nil {
			shop = &domain.CollectionsReportShop{ShopName: shopName}
			byShop[shopName] = shop
		}
		shop.Payments++
		shop.TotalCents += payment.AmountCents
	}

	report.ByMethod = make([]domain.CollectionsReportMethod, 0, len(byMethod))
	for _, method := range byMethod {
		report.ByMethod = append(report.ByMethod, *method)
	}
	sort.Slice(report.ByMethod, func(i, j int) bool {
		if report.ByMethod[i].TotalCents != report.ByMethod[j].TotalCents {
			return report.ByMethod[i].TotalCents > report.ByMethod[j].TotalCents
		}
		return report.ByMethod[i].PaymentMethod < report.ByMethod[j].PaymentMethod
	})

	report.ByShop = make([]domain.CollectionsReportShop, 0, len(byShop))
	for _, shop := range byShop {
		report.ByShop = append(report.ByShop, *shop)
	}
	sort.Slice(report.ByShop, func(i, j int) bool {
		if report.ByShop[i].TotalCents != report.ByShop[j].TotalCents {
			return report.ByShop[i].TotalCents > report.ByShop[j].TotalCents
		}
		return report.ByShop[i].ShopName < report.ByShop[j].ShopName
	})

	return report, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidRecord
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) toView(record domain.CreditRecord, catalog []domain.Shop, now time.Time) domain.CreditView {
	resolved := shops.Resolve(record, catalog)
	return domain.CreditView{
		ID:            record.ID,
		TransactionID: record.TransactionID,
		CustomerName:  record.CustomerName,
		CustomerPhone: record.CustomerPhone,
		TotalCents:    record.TotalCents,
		PaidCents:     record.PaidCents,
		BalanceCents:  ledger.Balance(record.TotalCents, record.PaidCents),
		Status:        ledger.Status(record.TotalCents, record.PaidCents, record.DueDate, now),
		Urgency:       ledger.Urgency(record.TotalCents, record.PaidCents, record.DueDate, now, s.dueSoonWindow),
		DueDate:       record.DueDate,
		Shop:          resolved,
		Classified:    resolved != nil,
		CashierName:   record.CashierName,
		RecordedBy:    record.RecordedBy,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.UpdatedAt,
	}
}

// recordOriginTransaction backfills the originating sale when a credit
// references a transaction the store has never seen, so the transaction
// lookup keeps working for credits ingested from upstream exports. An
// existing transaction is never overwritten, and a backfill failure does
// not fail the credit.
func (s *Service) recordOriginTransaction(ctx context.Context, record domain.CreditRecord) {
	if record.TransactionID == "" {
		return
	}

	_, err := s.repo.GetTransactionByID(ctx, record.TransactionID)
	if err == nil {
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Printf("[service] WARN: transaction lookup for %s failed: %v", record.TransactionID, err)
		return
	}

	if _, err := s.repo.CreateTransaction(ctx, domain.TransactionDetail{
		ID:          record.TransactionID,
		ShopID:      record.ShopID,
		CashierName: record.CashierName,
		TotalCents:  record.TotalCents,
		CreatedAt:   record.CreatedAt,
	}); err != nil {
		log.Printf("[service] WARN: failed to record origin transaction %s: %v", record.TransactionID, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if err := s.statsCache.Invalidate(ctx, shopStatsCacheKey); err != nil {
		log.Printf("[service] WARN: failed to invalidate shop stats cache: %v", err)
	}
}

func parseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	// A credit stays collectible through the end of its due day.
	due := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 0, time.UTC)
	return &due, nil
}

func formatDueDate(due *time.Time) string {
	if due == nil {
		return "none"
	}
	return due.Format("2006-01-02")
}
