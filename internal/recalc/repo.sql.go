package recalc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comanda-hq/comanda-sync/internal/costing"
	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// Repository streams orders and persists their cost aggregates.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListOrderIDs returns one keyset chunk of order ids matching the
// selection, in ascending id order.
func (r *Repository) ListOrderIDs(ctx context.Context, sel Selection, afterID int64, limit int) ([]int64, error) {
	if sel.PaymentMethodExternalID != "" {
		return r.listPaymentMethodOrderIDs(ctx, sel, afterID, limit)
	}

	q := `SELECT o.id FROM orders o WHERE o.tenant_id = $1 AND o.id > $2`
	args := []any{sel.TenantID, afterID}

	switch {
	case len(sel.OrderIDs) > 0:
		args = append(args, sel.OrderIDs)
		q += fmt.Sprintf(` AND o.id = ANY($%d)`, len(args))
	case sel.ProductID > 0:
		args = append(args, sel.ProductID)
		q += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM order_item_mappings m
			WHERE m.order_id = o.id AND m.internal_product_id = $%d)`, len(args))
	case sel.All:
	default:
		return nil, errors.New("empty recalculation selection")
	}

	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY o.id LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("select order ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// listPaymentMethodOrderIDs selects by payment method. The payment list
// lives only in the provider's raw payload, so a jsonb prefilter narrows
// the scan and the payload is re-checked in Go to cover the older nested
// payment shape the prefilter cannot express.
func (r *Repository) listPaymentMethodOrderIDs(ctx context.Context, sel Selection, afterID int64, limit int) ([]int64, error) {
	const q = `
		SELECT o.id, o.raw FROM orders o
		WHERE o.tenant_id = $1 AND o.id > $2
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(o.raw->'payments', '[]'::jsonb)) p
			WHERE p->>'methodId' = $3 OR p->'method'->>'id' = $3
		  )
		ORDER BY o.id LIMIT $4`

	rows, err := r.pool.Query(ctx, q, sel.TenantID, afterID, sel.PaymentMethodExternalID, limit)
	if err != nil {
		return nil, fmt.Errorf("select orders by payment method: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		if !rawReferencesMethod(raw, sel.PaymentMethodExternalID) {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadCostOrder assembles the cost projection of one order: its total, the
// store's provider and every item with its mapping lines.
func (r *Repository) LoadCostOrder(ctx context.Context, tenantID, orderID int64) (costing.CostOrder, error) {
	const headQ = `
		SELECT o.total, s.provider
		FROM orders o
		JOIN stores s ON s.id = o.store_id
		WHERE o.tenant_id = $1 AND o.id = $2`

	ord := costing.CostOrder{TenantID: tenantID}
	err := r.pool.QueryRow(ctx, headQ, tenantID, orderID).Scan(&ord.Total, &ord.Provider)
	if errors.Is(err, pgx.ErrNoRows) {
		return costing.CostOrder{}, shared.ErrNotFound
	}
	if err != nil {
		return costing.CostOrder{}, fmt.Errorf("select order head: %w", err)
	}

	const itemsQ = `
		SELECT oi.id, oi.qty,
		       COALESCE(m.mapping_type, ''), COALESCE(m.quantity, 0),
		       COALESCE(m.unit_cost, 0), COALESCE(m.auto_fraction, 0)
		FROM order_items oi
		LEFT JOIN order_item_mappings m ON m.order_item_id = oi.id
		WHERE oi.order_id = $1
		ORDER BY oi.id, m.id`

	rows, err := r.pool.Query(ctx, itemsQ, orderID)
	if err != nil {
		return costing.CostOrder{}, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var lastItemID int64
	for rows.Next() {
		var (
			itemID int64
			qty    float64
			line   costing.MappingLine
		)
		if err := rows.Scan(&itemID, &qty, &line.Type, &line.Quantity, &line.UnitCost, &line.AutoFraction); err != nil {
			return costing.CostOrder{}, fmt.Errorf("scan order item: %w", err)
		}
		if itemID != lastItemID {
			ord.Items = append(ord.Items, costing.CostItem{Qty: qty})
			lastItemID = itemID
		}
		if line.Type != "" {
			last := &ord.Items[len(ord.Items)-1]
			last.Mappings = append(last.Mappings, line)
		}
	}
	return ord, rows.Err()
}

// SaveCosts persists the derived triple and stamps the calculation time.
func (r *Repository) SaveCosts(ctx context.Context, tenantID, orderID int64, costs costing.OrderCosts, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders
SET total_costs = $3, total_commissions = $4, net_revenue = $5, costs_calculated_at = $6, updated_at = NOW()
WHERE tenant_id = $1 AND id = $2`,
		tenantID, orderID, costs.TotalCosts, costs.TotalCommissions, costs.NetRevenue, at)
	if err != nil {
		return fmt.Errorf("update order costs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
