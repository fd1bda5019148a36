package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type Shop struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"created_at"`
}

type ShopCreateRequest struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Location string `json:"location"`
}

// ResolvedShop is the shop attached to a credit view. A record whose shop_id
// no longer matches the catalog but still carries a denormalized shop name
// resolves to a virtual shop (Virtual=true, empty ID).
type ResolvedShop struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Location string `json:"location,omitempty"`
	Virtual  bool   `json:"virtual,omitempty"`
}

// TransactionRef normalizes the transaction reference on incoming credit
// payloads. Older clients send the originating sale as an embedded object
// ({"id": ...} or {"_id": ...}); newer ones send the scalar id. Either way
// the stored value is the scalar id.
type TransactionRef string

func (r *TransactionRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*r = ""
		return nil
	}

	switch trimmed[0] {
	case '"':
		var scalar string
		if err := json.Unmarshal(trimmed, &scalar); err != nil {
			return err
		}
		*r = TransactionRef(strings.TrimSpace(scalar))
	case '{':
		var embedded struct {
			ID            string `json:"id"`
			AltID         string `json:"_id"`
			TransactionID string `json:"transaction_id"`
		}
		if err := json.Unmarshal(trimmed, &embedded); err != nil {
			return err
		}
		*r = ""
		for _, candidate := range []string{embedded.ID, embedded.AltID, embedded.TransactionID} {
			if value := strings.TrimSpace(candidate); value != "" {
				*r = TransactionRef(value)
				break
			}
		}
	default:
		// Numeric ids from legacy exports; keep the raw text.
		*r = TransactionRef(string(trimmed))
	}
	return nil
}

func (r TransactionRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

func (r TransactionRef) String() string {
	return strings.TrimSpace(string(r))
}

type CreditRecord struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transaction_id,omitempty"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	ShopID        string     `json:"shop_id,omitempty"`
	ShopName      string     `json:"shop_name,omitempty"`
	ShopType      string     `json:"shop_type,omitempty"`
	ShopLocation  string     `json:"shop_location,omitempty"`
	TotalCents    int64      `json:"total_cents"`
	PaidCents     int64      `json:"paid_cents"`
	DueDate       *time.Time `json:"due_date,omitempty"`
	CashierName   string     `json:"cashier_name,omitempty"`
	RecordedBy    string     `json:"recorded_by,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type CreditCreateRequest struct {
	TransactionID TransactionRef `json:"transaction_id"`
	CustomerName  string         `json:"customer_name"`
	CustomerPhone string         `json:"customer_phone"`
	ShopID        string         `json:"shop_id"`
	ShopName      string         `json:"shop_name"`
	ShopType      string         `json:"shop_type"`
	ShopLocation  string         `json:"shop_location"`
	TotalCents    int64          `json:"total_cents"`
	PaidCents     int64          `json:"paid_cents"`
	DueDate       string         `json:"due_date,omitempty"`
	CashierName   string         `json:"cashier_name"`
}

type CreditUpdateRequest struct {
	CustomerName  *string `json:"customer_name,omitempty"`
	CustomerPhone *string `json:"customer_phone,omitempty"`
	ShopID        *string `json:"shop_id,omitempty"`
	ShopName      *string `json:"shop_name,omitempty"`
	ShopType      *string `json:"shop_type,omitempty"`
	ShopLocation  *string `json:"shop_location,omitempty"`
	TotalCents    *int64  `json:"total_cents,omitempty"`
	DueDate       *string `json:"due_date,omitempty"`
}

// CreditView is the derived read model. It is never stored: balance, status
// and urgency are recomputed from the record on every read.
type CreditView struct {
	ID            string        `json:"id"`
	TransactionID string        `json:"transaction_id,omitempty"`
	CustomerName  string        `json:"customer_name"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	TotalCents    int64         `json:"total_cents"`
	PaidCents     int64         `json:"paid_cents"`
	BalanceCents  int64         `json:"balance_cents"`
	Status        string        `json:"status"`
	Urgency       string        `json:"urgency"`
	DueDate       *time.Time    `json:"due_date,omitempty"`
	Shop          *ResolvedShop `json:"shop,omitempty"`
	Classified    bool          `json:"classified"`
	CashierName   string        `json:"cashier_name,omitempty"`
	RecordedBy    string        `json:"recorded_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

type CreditListResponse struct {
	Credits []CreditView `json:"credits"`
	Total   int          `json:"total"`
}

type CreditFilter struct {
	ShopID string
	Search string
	Status string
}

type PaymentRequest struct {
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method"`
	Note          string `json:"note,omitempty"`
}

type PaymentEvent struct {
	ID            string    `json:"id"`
	CreditID      string    `json:"credit_id"`
	AmountCents   int64     `json:"amount_cents"`
	PaymentMethod string    `json:"payment_method"`
	Note          string    `json:"note,omitempty"`
	PaidAt        time.Time `json:"paid_at"`
	RecordedBy    string    `json:"recorded_by,omitempty"`
}

type PaymentResponse struct {
	Payment PaymentEvent `json:"payment"`
	Credit  CreditView   `json:"credit"`
}

type PaymentListResponse struct {
	Payments []PaymentEvent `json:"payments"`
}

// PaymentPreview is the would-be state after applying a payment, used by
// clients to render a confirmation step before committing.
type PaymentPreview struct {
	CreditID        string `json:"credit_id"`
	AmountCents     int64  `json:"amount_cents"`
	NewPaidCents    int64  `json:"new_paid_cents"`
	NewBalanceCents int64  `json:"new_balance_cents"`
	NewStatus       string `json:"new_status"`
	NewUrgency      string `json:"new_urgency"`
}

type TransactionDetail struct {
	ID           string    `json:"id"`
	ShopID       string    `json:"shop_id,omitempty"`
	CashierName  string    `json:"cashier_name,omitempty"`
	TotalCents   int64     `json:"total_cents"`
	ItemsSummary string    `json:"items_summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type ShopMetrics struct {
	ShopID             string  `json:"shop_id"`
	ShopName           string  `json:"shop_name"`
	Virtual            bool    `json:"virtual,omitempty"`
	Count              int     `json:"count"`
	TotalCents         int64   `json:"total_cents"`
	PaidCents          int64   `json:"paid_cents"`
	BalanceCents       int64   `json:"balance_cents"`
	PendingCount       int     `json:"pending_count"`
	PartiallyPaidCount int     `json:"partially_paid_count"`
	PaidCount          int     `json:"paid_count"`
	OverdueCount       int     `json:"overdue_count"`
	CollectionRate     float64 `json:"collection_rate"`
	AverageCreditCents int64   `json:"average_credit_cents"`
	OverdueRate        float64 `json:"overdue_rate"`
	PaidRate           float64 `json:"paid_rate"`
}

type ShopStatsResponse struct {
	GeneratedAt string        `json:"generated_at"`
	Summary     ShopMetrics   `json:"summary"`
	Shops       []ShopMetrics `json:"shops"`
}

type ShopListResponse struct {
	Shops []Shop `json:"shops"`
}

type CollectionTask struct {
	CreditID     string  `json:"credit_id"`
	CustomerName string  `json:"customer_name"`
	ShopName     string  `json:"shop_name,omitempty"`
	BalanceCents int64   `json:"balance_cents"`
	DaysOverdue  int     `json:"days_overdue"`
	Urgency      string  `json:"urgency"`
	ReasonCode   string  `json:"reason_code"`
	Priority     float64 `json:"priority"`
}

type CollectionWorklistResponse struct {
	GeneratedAt string           `json:"generated_at"`
	Tasks       []CollectionTask `json:"tasks"`
}

type CollectionsReportMethod struct {
	PaymentMethod string `json:"payment_method"`
	Payments      int64  `json:"payments"`
	TotalCents    int64  `json:"total_cents"`
}

type CollectionsReportShop struct {
	ShopName   string `json:"shop_name"`
	Payments   int64  `json:"payments"`
	TotalCents int64  `json:"total_cents"`
}

type CollectionsReport struct {
	Date           string                    `json:"date"`
	Payments       int64                     `json:"payments"`
	CollectedCents int64                     `json:"collected_cents"`
	ByMethod       []CollectionsReportMethod `json:"by_method"`
	ByShop         []CollectionsReportShop   `json:"by_shop"`
}

type DeleteCreditRequest struct {
	Reason     string `json:"reason"`
	ManagerPIN string `json:"manager_pin"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	CreditStatusPending       = "pending"
	CreditStatusPartiallyPaid = "partially_paid"
	CreditStatusPaid          = "paid"
	CreditStatusOverdue       = "overdue"
)

const (
	UrgencyOnTime  = "on_time"
	UrgencyDueSoon = "due_soon"
	UrgencyOverdue = "overdue"
	UrgencyPaid    = "paid"
)
