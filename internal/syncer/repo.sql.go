package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comanda-hq/comanda-sync/internal/platform/db"
	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// Repository persists sync state and canonical entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetOrCreate resolves the cursor for a module, creating it on first sync.
func (r *Repository) GetOrCreate(ctx context.Context, tenantID, storeID int64, module string) (Cursor, error) {
	_, err := r.pool.Exec(ctx, `INSERT INTO sync_cursors (tenant_id, store_id, module, cursor_key, last_synced_at)
VALUES ($1,$2,$3,'', 'epoch')
ON CONFLICT (tenant_id, store_id, module) DO NOTHING`, tenantID, storeID, module)
	if err != nil {
		return Cursor{}, err
	}
	var c Cursor
	err = r.pool.QueryRow(ctx, `SELECT tenant_id, store_id, module, cursor_key, last_synced_at
FROM sync_cursors WHERE tenant_id=$1 AND store_id=$2 AND module=$3`, tenantID, storeID, module).
		Scan(&c.TenantID, &c.StoreID, &c.Module, &c.CursorKey, &c.LastSyncedAt)
	if err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// Advance moves the cursor forward. An empty cursorKey keeps the stored key.
func (r *Repository) Advance(ctx context.Context, tenantID, storeID int64, module, cursorKey string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sync_cursors
SET cursor_key=COALESCE(NULLIF($4,''), cursor_key), last_synced_at=GREATEST(last_synced_at, $5)
WHERE tenant_id=$1 AND store_id=$2 AND module=$3`, tenantID, storeID, module, cursorKey, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByUUID loads an order by its provider uuid.
func (r *Repository) FindByUUID(ctx context.Context, tenantID int64, orderUUID uuid.UUID) (Order, error) {
	var o Order
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, store_id, order_uuid, code, status, total, discounts, delivery_fee, tip, raw,
       total_costs, total_commissions, net_revenue, costs_calculated_at, placed_at, created_at
FROM orders WHERE tenant_id=$1 AND order_uuid=$2`, tenantID, orderUUID).
		Scan(&o.ID, &o.TenantID, &o.StoreID, &o.OrderUUID, &o.Code, &o.Status, &o.Total, &o.Discounts, &o.Delivery, &o.Tip, &o.Raw,
			&o.TotalCosts, &o.TotalCommissions, &o.NetRevenue, &o.CostsCalculatedAt, &o.PlacedAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, shared.ErrNotFound
		}
		return Order{}, err
	}
	return o, nil
}

// UpsertWithItems writes the order and fully replaces its item list in one
// transaction, so a partial item set is never visible. Cost aggregates are
// untouched here; recalculation owns them.
func (r *Repository) UpsertWithItems(ctx context.Context, order Order, items []OrderItem) (int64, error) {
	var orderID int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO orders (tenant_id, store_id, order_uuid, code, status, total, discounts, delivery_fee, tip, raw, placed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NOW(),NOW())
ON CONFLICT (tenant_id, order_uuid) DO UPDATE
SET store_id=EXCLUDED.store_id, code=EXCLUDED.code, status=EXCLUDED.status,
    total=EXCLUDED.total, discounts=EXCLUDED.discounts, delivery_fee=EXCLUDED.delivery_fee,
    tip=EXCLUDED.tip, raw=EXCLUDED.raw, placed_at=EXCLUDED.placed_at, updated_at=NOW()
RETURNING id`,
			order.TenantID, order.StoreID, order.OrderUUID, order.Code, order.Status,
			order.Total, order.Discounts, order.Delivery, order.Tip, order.Raw, order.PlacedAt).Scan(&orderID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id=$1`, orderID); err != nil {
			return err
		}
		for _, item := range items {
			addOns, err := json.Marshal(item.AddOns)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `INSERT INTO order_items (order_id, sku, name, qty, unit_price, add_ons)
VALUES ($1,$2,$3,$4,$5,$6)`, orderID, item.SKU, item.Name, item.Qty, item.UnitPrice, addOns); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return orderID, nil
}

// Upsert writes a sale settlement keyed by its external id.
func (r *Repository) Upsert(ctx context.Context, sale SaleRecord) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO sales (tenant_id, store_id, external_id, order_uuid, gross_amount, net_amount, payment_method_id, sale_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
ON CONFLICT (tenant_id, store_id, external_id) DO UPDATE
SET order_uuid=COALESCE(EXCLUDED.order_uuid, sales.order_uuid),
    gross_amount=EXCLUDED.gross_amount, net_amount=EXCLUDED.net_amount,
    payment_method_id=EXCLUDED.payment_method_id, sale_date=EXCLUDED.sale_date, updated_at=NOW()`,
		sale.TenantID, sale.StoreID, sale.ExternalID, sale.OrderUUID,
		sale.GrossAmount, sale.NetAmount, sale.PaymentMethodID, sale.SaleDate)
	return err
}

// UpsertFinEvent writes a financial settlement event keyed by its external id.
func (r *Repository) UpsertFinEvent(ctx context.Context, evt FinEvent) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO financial_events (tenant_id, store_id, external_id, event_type, description, amount, competence_date, order_uuid, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW())
ON CONFLICT (tenant_id, store_id, external_id) DO UPDATE
SET event_type=EXCLUDED.event_type, description=EXCLUDED.description,
    amount=EXCLUDED.amount, competence_date=EXCLUDED.competence_date,
    order_uuid=COALESCE(EXCLUDED.order_uuid, financial_events.order_uuid), updated_at=NOW()`,
		evt.TenantID, evt.StoreID, evt.ExternalID, evt.Type, evt.Description, evt.Amount, evt.CompetenceDate, evt.OrderUUID)
	return err
}
