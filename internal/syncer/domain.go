package syncer

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sync modules. Each module owns its cursor and its canonical tables.
const (
	ModuleOrders    = "orders"
	ModuleSales     = "sales"
	ModuleFinancial = "financial"
	ModuleMerchant  = "merchant"
)

// Cursor marks how far a module has synced for one store. CursorKey is an
// opaque provider token for event-based modules; date-windowed modules only
// use LastSyncedAt.
type Cursor struct {
	TenantID     int64
	StoreID      int64
	Module       string
	CursorKey    string
	LastSyncedAt time.Time
}

// AddOn is one add-on entry of an order item, stored as JSONB in
// provider-delivery order.
type AddOn struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
}

// Order is the canonical order record. Raw retains the full provider
// payload for audit and replay. The cost aggregate fields are written only
// by recalculation.
type Order struct {
	ID        int64
	TenantID  int64
	StoreID   int64
	OrderUUID uuid.UUID
	Code      string
	Status    string
	Total     float64
	Discounts float64
	Delivery  float64
	Tip       float64
	Raw       []byte

	TotalCosts        *float64
	TotalCommissions  *float64
	NetRevenue        *float64
	CostsCalculatedAt *time.Time

	PlacedAt  time.Time
	CreatedAt time.Time
}

// OrderItem is one line of an order. Items are fully replaced on every
// sync pass, so IDs do not survive across passes.
type OrderItem struct {
	ID        int64
	OrderID   int64
	SKU       string
	Name      string
	Qty       float64
	UnitPrice float64
	AddOns    []AddOn
}

// SaleRecord is a provider-side sale settlement, upserted by external id
// and back-linked to an order once the matching uuid is known.
type SaleRecord struct {
	ID              int64
	TenantID        int64
	StoreID         int64
	ExternalID      string
	OrderUUID       *uuid.UUID
	GrossAmount     float64
	NetAmount       float64
	PaymentMethodID string
	SaleDate        time.Time
}

// FinEvent is a provider-side financial settlement event.
type FinEvent struct {
	ID             int64
	TenantID       int64
	StoreID        int64
	ExternalID     string
	Type           string
	Description    string
	Amount         float64
	CompetenceDate time.Time
	OrderUUID      *uuid.UUID
}

// PassResult summarizes one bounded synchronization pass.
type PassResult struct {
	Module   string
	Fetched  int
	Upserted int
	Skipped  int
	Duration time.Duration
}

// IsCancellation reports whether a status belongs to the cancellation class.
func IsCancellation(status string) bool {
	return strings.Contains(strings.ToUpper(status), "CANCEL")
}
