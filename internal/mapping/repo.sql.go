package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comanda-hq/comanda-sync/internal/platform/db"
	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// Repository persists catalog links and item-level cost lines in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetProductMapping(ctx context.Context, tenantID int64, externalItemID string) (ProductMapping, error) {
	const q = `
		SELECT id, tenant_id, external_item_id, internal_product_id, COALESCE(item_type, ''),
		       linking_since, updated_at
		FROM product_mappings
		WHERE tenant_id = $1 AND external_item_id = $2`

	var pm ProductMapping
	err := r.pool.QueryRow(ctx, q, tenantID, externalItemID).Scan(
		&pm.ID, &pm.TenantID, &pm.ExternalItemID, &pm.InternalProductID,
		&pm.ItemType, &pm.LinkingSince, &pm.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductMapping{}, shared.ErrNotFound
	}
	if err != nil {
		return ProductMapping{}, fmt.Errorf("select product mapping: %w", err)
	}
	return pm, nil
}

func (r *Repository) SetLinkingSince(ctx context.Context, tenantID int64, externalItemID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE product_mappings SET linking_since = NOW()
WHERE tenant_id = $1 AND external_item_id = $2`, tenantID, externalItemID)
	return err
}

func (r *Repository) ClearLinkingSince(ctx context.Context, tenantID int64, externalItemID string) error {
	_, err := r.pool.Exec(ctx, `UPDATE product_mappings SET linking_since = NULL
WHERE tenant_id = $1 AND external_item_id = $2`, tenantID, externalItemID)
	return err
}

// ListItemsBySKU loads every stored item sold under an external SKU,
// together with its current main-mapped product when one exists.
func (r *Repository) ListItemsBySKU(ctx context.Context, tenantID int64, sku string) ([]ItemOccurrence, error) {
	const q = `
		SELECT o.id, o.code, oi.id, oi.name, oi.qty, COALESCE(oi.add_ons, '[]'::jsonb), m.internal_product_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN order_item_mappings m ON m.order_item_id = oi.id AND m.mapping_type = 'main'
		WHERE o.tenant_id = $1 AND oi.sku = $2
		ORDER BY oi.id`

	rows, err := r.pool.Query(ctx, q, tenantID, sku)
	if err != nil {
		return nil, fmt.Errorf("select items by sku: %w", err)
	}
	defer rows.Close()
	return scanOccurrences(rows)
}

// ListItemsWithAddon loads every stored item whose add-on payload contains
// an entry with the given name.
func (r *Repository) ListItemsWithAddon(ctx context.Context, tenantID int64, addonName string) ([]ItemOccurrence, error) {
	const q = `
		SELECT o.id, o.code, oi.id, oi.name, oi.qty, COALESCE(oi.add_ons, '[]'::jsonb), m.internal_product_id
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN order_item_mappings m ON m.order_item_id = oi.id AND m.mapping_type = 'main'
		WHERE o.tenant_id = $1
		  AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(COALESCE(oi.add_ons, '[]'::jsonb)) ao
			WHERE ao->>'name' = $2
		  )
		ORDER BY oi.id`

	rows, err := r.pool.Query(ctx, q, tenantID, addonName)
	if err != nil {
		return nil, fmt.Errorf("select items with addon: %w", err)
	}
	defer rows.Close()
	return scanOccurrences(rows)
}

func scanOccurrences(rows pgx.Rows) ([]ItemOccurrence, error) {
	var occs []ItemOccurrence
	for rows.Next() {
		var occ ItemOccurrence
		var addOns []byte
		if err := rows.Scan(&occ.OrderID, &occ.OrderCode, &occ.ItemID, &occ.ItemName, &occ.Qty, &addOns, &occ.MainProductID); err != nil {
			return nil, fmt.Errorf("scan item occurrence: %w", err)
		}
		if err := json.Unmarshal(addOns, &occ.AddOns); err != nil {
			return nil, fmt.Errorf("decode add_ons for item %d: %w", occ.ItemID, err)
		}
		occs = append(occs, occ)
	}
	return occs, rows.Err()
}

// ReplaceMainMapping removes the item's previous main line and writes the
// new one in a single transaction.
func (r *Repository) ReplaceMainMapping(ctx context.Context, m OrderItemMapping) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM order_item_mappings
WHERE order_item_id = $1 AND mapping_type = 'main'`, m.OrderItemID); err != nil {
			return fmt.Errorf("delete previous main mapping: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO order_item_mappings
(tenant_id, order_id, order_item_id, mapping_type, external_reference, external_name, internal_product_id, quantity, unit_cost, auto_fraction, created_at, updated_at)
VALUES ($1,$2,$3,'main',$4,$5,$6,$7,$8,$9,NOW(),NOW())`,
			m.TenantID, m.OrderID, m.OrderItemID, m.ExternalReference, m.ExternalName,
			m.InternalProductID, m.Quantity, m.UnitCost, m.AutoFraction); err != nil {
			return fmt.Errorf("insert main mapping: %w", err)
		}
		return nil
	})
}

// UpsertAddonMapping writes one add-on cost line keyed by item, positional
// index and add-on name, so the same add-on appearing twice under one item
// keeps two lines.
func (r *Repository) UpsertAddonMapping(ctx context.Context, m OrderItemMapping) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO order_item_mappings
(tenant_id, order_id, order_item_id, mapping_type, external_reference, external_name, internal_product_id, quantity, unit_cost, auto_fraction, created_at, updated_at)
VALUES ($1,$2,$3,'addon',$4,$5,$6,$7,$8,$9,NOW(),NOW())
ON CONFLICT (order_item_id, mapping_type, external_reference, external_name) DO UPDATE
SET internal_product_id = EXCLUDED.internal_product_id,
    quantity = EXCLUDED.quantity,
    unit_cost = EXCLUDED.unit_cost,
    auto_fraction = EXCLUDED.auto_fraction,
    updated_at = NOW()`,
		m.TenantID, m.OrderID, m.OrderItemID, m.ExternalReference, m.ExternalName,
		m.InternalProductID, m.Quantity, m.UnitCost, m.AutoFraction)
	return err
}

// DeleteMainMappingsBySKU removes every main line created from an external
// SKU and returns the distinct orders that lost cost lines.
func (r *Repository) DeleteMainMappingsBySKU(ctx context.Context, tenantID int64, sku string) ([]int64, error) {
	const q = `DELETE FROM order_item_mappings
WHERE tenant_id = $1 AND mapping_type = 'main' AND external_reference = $2
RETURNING order_id`
	return r.deleteReturningOrders(ctx, q, tenantID, sku)
}

// DeleteAddonMappingsByName removes add-on lines matching the exact add-on
// name. Name equality is deliberate: "Bacon" must not detach "Bacon Extra".
func (r *Repository) DeleteAddonMappingsByName(ctx context.Context, tenantID int64, addonName string) ([]int64, error) {
	const q = `DELETE FROM order_item_mappings
WHERE tenant_id = $1 AND mapping_type = 'addon' AND external_name = $2
RETURNING order_id`
	return r.deleteReturningOrders(ctx, q, tenantID, addonName)
}

func (r *Repository) deleteReturningOrders(ctx context.Context, q string, args ...any) ([]int64, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("delete mappings: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]struct{})
	var orderIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		orderIDs = append(orderIDs, id)
	}
	return orderIDs, rows.Err()
}

func (r *Repository) GetPaymentMethodMapping(ctx context.Context, tenantID, id int64) (PaymentMethodMapping, error) {
	const q = `
		SELECT id, tenant_id, external_method_id, method, recalculating_since
		FROM payment_method_mappings
		WHERE tenant_id = $1 AND id = $2`

	var pm PaymentMethodMapping
	err := r.pool.QueryRow(ctx, q, tenantID, id).Scan(
		&pm.ID, &pm.TenantID, &pm.ExternalMethodID, &pm.Method, &pm.RecalculatingSince,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentMethodMapping{}, shared.ErrNotFound
	}
	if err != nil {
		return PaymentMethodMapping{}, fmt.Errorf("select payment method mapping: %w", err)
	}
	return pm, nil
}

func (r *Repository) SetPaymentRecalculating(ctx context.Context, tenantID, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE payment_method_mappings SET recalculating_since = NOW()
WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return err
}

func (r *Repository) ClearPaymentRecalculating(ctx context.Context, tenantID, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE payment_method_mappings SET recalculating_since = NULL
WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return err
}
