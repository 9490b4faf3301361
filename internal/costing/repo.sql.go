package costing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// Repository is the pgx-backed catalog and commission store.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Product(ctx context.Context, tenantID, productID int64) (InternalProduct, error) {
	const q = `
		SELECT p.id, p.tenant_id, p.name, p.unit_cost, c.name, COALESCE(p.size, ''),
		       c.size_dependent, p.is_composite, p.updated_at
		FROM internal_products p
		JOIN product_categories c ON c.id = p.category_id
		WHERE p.tenant_id = $1 AND p.id = $2`

	var p InternalProduct
	err := r.pool.QueryRow(ctx, q, tenantID, productID).Scan(
		&p.ID, &p.TenantID, &p.Name, &p.UnitCost, &p.Category, &p.Size,
		&p.SizeDependent, &p.IsComposite, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return InternalProduct{}, shared.ErrNotFound
	}
	if err != nil {
		return InternalProduct{}, fmt.Errorf("select internal product: %w", err)
	}
	return p, nil
}

func (r *Repository) RecipeCost(ctx context.Context, tenantID, productID int64, size string) (float64, error) {
	const q = `
		SELECT COALESCE(SUM(ri.quantity * ing.unit_cost), 0)
		FROM recipe_items ri
		JOIN internal_products ing ON ing.id = ri.ingredient_id
		WHERE ri.tenant_id = $1 AND ri.product_id = $2 AND ri.size = $3`

	var cost float64
	if err := r.pool.QueryRow(ctx, q, tenantID, productID, size).Scan(&cost); err != nil {
		return 0, fmt.Errorf("sum recipe cost: %w", err)
	}
	return cost, nil
}

func (r *Repository) ListCommissions(ctx context.Context, tenantID int64, provider string) ([]CostCommission, error) {
	const q = `
		SELECT id, tenant_id, COALESCE(provider, ''), percent, fixed
		FROM cost_commissions
		WHERE tenant_id = $1 AND (provider IS NULL OR provider = '' OR provider = $2)
		ORDER BY id`

	rows, err := r.pool.Query(ctx, q, tenantID, provider)
	if err != nil {
		return nil, fmt.Errorf("select cost commissions: %w", err)
	}
	defer rows.Close()

	var rules []CostCommission
	for rows.Next() {
		var c CostCommission
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Provider, &c.Percent, &c.Fixed); err != nil {
			return nil, fmt.Errorf("scan cost commission: %w", err)
		}
		rules = append(rules, c)
	}
	return rules, rows.Err()
}
