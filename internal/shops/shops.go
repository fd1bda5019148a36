package shops

import (
	"math"
	"strconv"
	"strings"
	"time"

	"kasbonku/backend/internal/domain"
	"kasbonku/backend/internal/ledger"
)

// UnclassifiedKey is the aggregation bucket for records that resolve to no
// shop at all (no catalog match and no denormalized name).
const UnclassifiedKey = "unclassified"

const unclassifiedName = "Unclassified"

// FilterAll short-circuits shop filtering.
const FilterAll = "all"

// Resolve attaches a shop to a credit record. Catalog id match wins; a
// record whose id no longer matches (deleted or renamed shop) but that still
// carries a denormalized name resolves to a virtual shop; otherwise nil.
func Resolve(record domain.CreditRecord, catalog []domain.Shop) *domain.ResolvedShop {
	if id := strings.TrimSpace(record.ShopID); id != "" {
		for _, shop := range catalog {
			if shop.ID == id {
				return &domain.ResolvedShop{
					ID:       shop.ID,
					Name:     shop.Name,
					Type:     shop.Type,
					Location: shop.Location,
				}
			}
		}
	}

	if name := strings.TrimSpace(record.ShopName); name != "" {
		return &domain.ResolvedShop{
			Name:     name,
			Type:     strings.TrimSpace(record.ShopType),
			Location: strings.TrimSpace(record.ShopLocation),
			Virtual:  true,
		}
	}

	return nil
}

// Classified reports whether the record resolves to any shop, real or virtual.
func Classified(record domain.CreditRecord, catalog []domain.Shop) bool {
	return Resolve(record, catalog) != nil
}

// FilterByShop keeps records belonging to the given shop. An empty filter or
// "all" returns the input unchanged. A record matches on resolved catalog id,
// or on case-insensitive denormalized-name equality with the catalog shop
// (covers records written before the shop id was backfilled).
func FilterByShop(records []domain.CreditRecord, shopID string, catalog []domain.Shop) []domain.CreditRecord {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" || strings.EqualFold(shopID, FilterAll) {
		return records
	}

	var target *domain.Shop
	for i := range catalog {
		if catalog[i].ID == shopID {
			target = &catalog[i]
			break
		}
	}

	filtered := make([]domain.CreditRecord, 0, len(records))
	for _, record := range records {
		resolved := Resolve(record, catalog)
		if resolved != nil && resolved.ID == shopID {
			filtered = append(filtered, record)
			continue
		}
		if target != nil && strings.EqualFold(strings.TrimSpace(record.ShopName), target.Name) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

// Search keeps records with a case-insensitive substring match in any
// searchable field: customer name/phone, transaction id, cashier, resolved
// shop name/type/location, stringified total and balance, and live status.
// An empty term returns the input unchanged.
func Search(records []domain.CreditRecord, term string, catalog []domain.Shop, now time.Time) []domain.CreditRecord {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return records
	}

	matched := make([]domain.CreditRecord, 0, len(records))
	for _, record := range records {
		if matchesTerm(record, term, catalog, now) {
			matched = append(matched, record)
		}
	}
	return matched
}

func matchesTerm(record domain.CreditRecord, term string, catalog []domain.Shop, now time.Time) bool {
	fields := []string{
		record.CustomerName,
		record.CustomerPhone,
		record.TransactionID,
		record.CashierName,
		strconv.FormatInt(record.TotalCents, 10),
		strconv.FormatInt(ledger.Balance(record.TotalCents, record.PaidCents), 10),
		ledger.Status(record.TotalCents, record.PaidCents, record.DueDate, now),
	}
	if resolved := Resolve(record, catalog); resolved != nil {
		fields = append(fields, resolved.Name, resolved.Type, resolved.Location)
	}

	for _, field := range fields {
		if field == "" {
			continue
		}
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Deduplicate drops repeated records, keeping the first occurrence per key.
// The key is the trimmed transaction id, falling back to the record id when
// the transaction id is empty. Records with neither are kept as-is. The
// operation is idempotent.
func Deduplicate(records []domain.CreditRecord) []domain.CreditRecord {
	seen := make(map[string]struct{}, len(records))
	result := make([]domain.CreditRecord, 0, len(records))
	for _, record := range records {
		key := strings.TrimSpace(record.TransactionID)
		if key == "" {
			key = strings.TrimSpace(record.ID)
		}
		if key == "" {
			result = append(result, record)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, record)
	}
	return result
}

// AggregateByShop buckets the deduplicated records by resolved shop and
// derives per-bucket totals, status counts and rates. Real shops bucket by
// catalog id, virtual shops by normalized name, everything else lands in the
// "unclassified" bucket. All rate divisions are zero-safe.
func AggregateByShop(records []domain.CreditRecord, catalog []domain.Shop, now time.Time) map[string]domain.ShopMetrics {
	buckets := make(map[string]domain.ShopMetrics)

	for _, record := range Deduplicate(records) {
		key := UnclassifiedKey
		name := unclassifiedName
		virtual := false

		if resolved := Resolve(record, catalog); resolved != nil {
			name = resolved.Name
			virtual = resolved.Virtual
			if resolved.ID != "" {
				key = resolved.ID
			} else {
				key = strings.ToLower(strings.TrimSpace(resolved.Name))
			}
		}

		bucket, ok := buckets[key]
		if !ok {
			bucket = domain.ShopMetrics{ShopID: key, ShopName: name, Virtual: virtual}
		}

		total := clampCents(record.TotalCents)
		paid := clampCents(record.PaidCents)
		if paid > total {
			paid = total
		}

		bucket.Count++
		bucket.TotalCents += total
		bucket.PaidCents += paid
		bucket.BalanceCents += ledger.Balance(record.TotalCents, record.PaidCents)

		switch ledger.Status(record.TotalCents, record.PaidCents, record.DueDate, now) {
		case domain.CreditStatusPaid:
			bucket.PaidCount++
		case domain.CreditStatusPartiallyPaid:
			bucket.PartiallyPaidCount++
		case domain.CreditStatusOverdue:
			bucket.OverdueCount++
		default:
			bucket.PendingCount++
		}

		buckets[key] = bucket
	}

	for key, bucket := range buckets {
		bucket.CollectionRate = RatePercent(bucket.PaidCents, bucket.TotalCents)
		if bucket.Count > 0 {
			bucket.AverageCreditCents = bucket.TotalCents / int64(bucket.Count)
		}
		bucket.OverdueRate = RatePercent(int64(bucket.OverdueCount), int64(bucket.Count))
		bucket.PaidRate = RatePercent(int64(bucket.PaidCount), int64(bucket.Count))
		buckets[key] = bucket
	}

	return buckets
}

// RatePercent returns part/whole as a percentage rounded to two decimals.
// A zero whole yields 0.
func RatePercent(part int64, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*10000) / 100
}

func clampCents(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
