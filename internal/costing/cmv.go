package costing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// Catalog resolves internal products and their recipe costs.
type Catalog interface {
	Product(ctx context.Context, tenantID, productID int64) (InternalProduct, error)
	// RecipeCost sums the sized bill of materials for a product. It returns
	// zero, not an error, when no recipe exists for that size.
	RecipeCost(ctx context.Context, tenantID, productID int64, size string) (float64, error)
}

// CommissionRepo lists the fee rules that apply to a tenant and provider.
type CommissionRepo interface {
	ListCommissions(ctx context.Context, tenantID int64, provider string) ([]CostCommission, error)
}

// Engine derives per-component costs and per-order financial totals.
type Engine struct {
	catalog     Catalog
	commissions CommissionRepo
	logger      *slog.Logger
}

func NewEngine(catalog Catalog, commissions CommissionRepo, logger *slog.Logger) *Engine {
	return &Engine{catalog: catalog, commissions: commissions, logger: logger}
}

// ComponentCMV computes the unit cost of one component served inside a
// parent item. Size resolution prefers the parent's mapped product over
// name detection, and a sized recipe cost is only trusted when positive.
func (e *Engine) ComponentCMV(ctx context.Context, product InternalProduct, parent Parent) (float64, error) {
	if !product.SizeDependent {
		return product.UnitCost, nil
	}

	size := ""
	if parent.Product != nil && parent.Product.Size != "" {
		size = parent.Product.Size
	} else if detected, ok := DetectSize(parent.ItemName); ok {
		size = detected
	}
	if size == "" {
		return product.UnitCost, nil
	}

	cost, err := e.catalog.RecipeCost(ctx, product.TenantID, product.ID, size)
	if err != nil {
		return 0, fmt.Errorf("recipe cost for product %d size %s: %w", product.ID, size, err)
	}
	if cost <= 0 {
		e.logger.Debug("no sized recipe cost, falling back to unit cost",
			slog.Int64("product_id", product.ID),
			slog.String("size", size))
		return product.UnitCost, nil
	}
	return cost, nil
}

// CalculateCosts folds an order's mapping lines and the tenant's fee rules
// into the persisted financial triple. Mapping lines carry the unit-cost
// snapshot taken when the mapping was created, so no catalog access is
// needed here.
func (e *Engine) CalculateCosts(ctx context.Context, ord CostOrder) (OrderCosts, error) {
	var costs float64
	for _, item := range ord.Items {
		qty := item.Qty
		if qty <= 0 {
			qty = 1
		}
		for _, m := range item.Mappings {
			costs += m.UnitCost * m.Quantity * qty
		}
	}

	rules, err := e.commissions.ListCommissions(ctx, ord.TenantID, ord.Provider)
	if err != nil {
		return OrderCosts{}, fmt.Errorf("list commissions: %w", err)
	}
	var commissions float64
	for _, rule := range rules {
		commissions += ord.Total*rule.Percent/100 + rule.Fixed
	}

	return OrderCosts{
		TotalCosts:       shared.Round2(costs),
		TotalCommissions: shared.Round2(commissions),
		NetRevenue:       shared.Round2(ord.Total - commissions),
	}, nil
}
