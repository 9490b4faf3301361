package syncer

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CursorRepo persists sync cursors.
type CursorRepo interface {
	GetOrCreate(ctx context.Context, tenantID, storeID int64, module string) (Cursor, error)
	Advance(ctx context.Context, tenantID, storeID int64, module, cursorKey string, at time.Time) error
}

// OrderRepo persists canonical orders.
type OrderRepo interface {
	FindByUUID(ctx context.Context, tenantID int64, orderUUID uuid.UUID) (Order, error)
	UpsertWithItems(ctx context.Context, order Order, items []OrderItem) (int64, error)
}

// SaleRepo persists sale settlements.
type SaleRepo interface {
	Upsert(ctx context.Context, sale SaleRecord) error
}

// FinEventRepo persists financial settlement events.
type FinEventRepo interface {
	UpsertFinEvent(ctx context.Context, evt FinEvent) error
}
