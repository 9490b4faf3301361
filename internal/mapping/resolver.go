package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/comanda-hq/comanda-sync/internal/costing"
	"github.com/comanda-hq/comanda-sync/internal/notify"
	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// RepositoryPort is the persistence surface the resolver works against.
type RepositoryPort interface {
	GetProductMapping(ctx context.Context, tenantID int64, externalItemID string) (ProductMapping, error)
	ClearLinkingSince(ctx context.Context, tenantID int64, externalItemID string) error
	ListItemsBySKU(ctx context.Context, tenantID int64, sku string) ([]ItemOccurrence, error)
	ListItemsWithAddon(ctx context.Context, tenantID int64, addonName string) ([]ItemOccurrence, error)
	ReplaceMainMapping(ctx context.Context, m OrderItemMapping) error
	UpsertAddonMapping(ctx context.Context, m OrderItemMapping) error
	DeleteMainMappingsBySKU(ctx context.Context, tenantID int64, sku string) ([]int64, error)
	DeleteAddonMappingsByName(ctx context.Context, tenantID int64, addonName string) ([]int64, error)
}

// RecalcTrigger re-derives cost aggregates for the orders a mapping
// operation touched.
type RecalcTrigger interface {
	RecalculateOrders(ctx context.Context, tenantID int64, orderIDs []int64) error
}

// ApplyInput describes one mapping operation against the historical data.
type ApplyInput struct {
	TenantID       int64  `json:"tenant_id" validate:"required"`
	ExternalItemID string `json:"external_item_id" validate:"required"`
	Action         string `json:"action" validate:"required,oneof=link detach"`
}

// Resolver applies catalog link and detach decisions retroactively to
// every stored order item the external item appears in.
type Resolver struct {
	repo     RepositoryPort
	catalog  costing.Catalog
	engine   *costing.Engine
	flavors  *FlavorMapper
	recalc   RecalcTrigger
	notifier notify.Notifier
	logger   *slog.Logger
}

func NewResolver(repo RepositoryPort, catalog costing.Catalog, engine *costing.Engine, flavors *FlavorMapper, recalc RecalcTrigger, notifier notify.Notifier, logger *slog.Logger) *Resolver {
	return &Resolver{
		repo:     repo,
		catalog:  catalog,
		engine:   engine,
		flavors:  flavors,
		recalc:   recalc,
		notifier: notifier,
		logger:   logger,
	}
}

// ApplyMapping executes one link or detach operation. The linking marker on
// the catalog row is cleared on every exit path, success or failure, so a
// crashed run never leaves the item stuck in a pending state.
func (r *Resolver) ApplyMapping(ctx context.Context, in ApplyInput) (err error) {
	pm, err := r.repo.GetProductMapping(ctx, in.TenantID, in.ExternalItemID)
	if errors.Is(err, shared.ErrNotFound) {
		r.logger.Warn("mapping operation for unknown catalog item",
			slog.Int64("tenant_id", in.TenantID),
			slog.String("external_item_id", in.ExternalItemID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load product mapping: %w", err)
	}

	defer func() {
		if cerr := r.repo.ClearLinkingSince(ctx, in.TenantID, in.ExternalItemID); cerr != nil {
			r.logger.Error("clear linking marker",
				slog.String("external_item_id", in.ExternalItemID),
				slog.String("error", cerr.Error()))
		}
	}()

	var (
		occs     []ItemOccurrence
		affected []int64
	)
	switch in.Action {
	case ActionDetach:
		occs, affected, err = r.detach(ctx, in)
	case ActionLink:
		occs, affected, err = r.link(ctx, pm, in)
	default:
		return fmt.Errorf("unknown mapping action %q", in.Action)
	}
	if err != nil {
		return err
	}

	if len(affected) > 0 {
		if rerr := r.recalc.RecalculateOrders(ctx, in.TenantID, affected); rerr != nil {
			return fmt.Errorf("recalculate %d orders: %w", len(affected), rerr)
		}
	}

	result := "classified"
	if pm.InternalProductID != nil && in.Action == ActionLink {
		result = "mapped"
	}
	// One event per stored occurrence, so each notification names the order
	// and item it touched. An item that was never sold still reports its
	// triage without order context.
	evt := notify.ItemTriaged{
		TenantID:          in.TenantID,
		ItemName:          AddonName(in.ExternalItemID),
		InternalProductID: pm.InternalProductID,
		ItemType:          pm.ItemType,
		Result:            result,
	}
	if len(occs) == 0 {
		if nerr := r.notifier.NotifyItemTriaged(ctx, evt); nerr != nil {
			r.logger.Warn("item triaged notification failed", slog.String("error", nerr.Error()))
		}
	}
	for _, occ := range occs {
		evt.OrderID = occ.OrderID
		evt.OrderCode = occ.OrderCode
		evt.ItemID = occ.ItemID
		if nerr := r.notifier.NotifyItemTriaged(ctx, evt); nerr != nil {
			r.logger.Warn("item triaged notification failed", slog.String("error", nerr.Error()))
		}
	}

	r.logger.Info("mapping applied",
		slog.Int64("tenant_id", in.TenantID),
		slog.String("external_item_id", in.ExternalItemID),
		slog.String("action", in.Action),
		slog.Int("orders_affected", len(affected)))
	return nil
}

// listOccurrences resolves the stored items an external item id addresses.
func (r *Resolver) listOccurrences(ctx context.Context, in ApplyInput) ([]ItemOccurrence, error) {
	if IsAddonKey(in.ExternalItemID) {
		return r.repo.ListItemsWithAddon(ctx, in.TenantID, AddonName(in.ExternalItemID))
	}
	return r.repo.ListItemsBySKU(ctx, in.TenantID, in.ExternalItemID)
}

func (r *Resolver) detach(ctx context.Context, in ApplyInput) ([]ItemOccurrence, []int64, error) {
	occs, err := r.listOccurrences(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	var affected []int64
	if IsAddonKey(in.ExternalItemID) {
		affected, err = r.repo.DeleteAddonMappingsByName(ctx, in.TenantID, AddonName(in.ExternalItemID))
	} else {
		affected, err = r.repo.DeleteMainMappingsBySKU(ctx, in.TenantID, in.ExternalItemID)
	}
	return occs, affected, err
}

func (r *Resolver) link(ctx context.Context, pm ProductMapping, in ApplyInput) ([]ItemOccurrence, []int64, error) {
	if pm.InternalProductID == nil {
		// A classification without a product carries no cost lines.
		occs, err := r.listOccurrences(ctx, in)
		return occs, nil, err
	}
	if IsAddonKey(in.ExternalItemID) {
		return r.linkAddon(ctx, pm, in)
	}
	return r.linkMain(ctx, pm, in)
}

func (r *Resolver) linkMain(ctx context.Context, pm ProductMapping, in ApplyInput) ([]ItemOccurrence, []int64, error) {
	product, err := r.catalog.Product(ctx, in.TenantID, *pm.InternalProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("load internal product %d: %w", *pm.InternalProductID, err)
	}

	occs, err := r.repo.ListItemsBySKU(ctx, in.TenantID, in.ExternalItemID)
	if err != nil {
		return nil, nil, err
	}

	var affected []int64
	for _, occ := range occs {
		cmv, err := r.engine.ComponentCMV(ctx, product, costing.Parent{Product: &product, ItemName: occ.ItemName})
		if err != nil {
			return occs, affected, err
		}
		m := OrderItemMapping{
			TenantID:          in.TenantID,
			OrderID:           occ.OrderID,
			OrderItemID:       occ.ItemID,
			MappingType:       MappingMain,
			ExternalReference: in.ExternalItemID,
			ExternalName:      occ.ItemName,
			InternalProductID: product.ID,
			Quantity:          1,
			UnitCost:          cmv,
		}
		if err := r.repo.ReplaceMainMapping(ctx, m); err != nil {
			return occs, affected, fmt.Errorf("replace main mapping for item %d: %w", occ.ItemID, err)
		}
		if product.IsComposite {
			occ.MainProductID = &product.ID
			if err := r.flavors.Remap(ctx, in.TenantID, occ); err != nil {
				return occs, affected, err
			}
		}
		affected = append(affected, occ.OrderID)
	}
	return occs, dedupe(affected), nil
}

func (r *Resolver) linkAddon(ctx context.Context, pm ProductMapping, in ApplyInput) ([]ItemOccurrence, []int64, error) {
	name := AddonName(in.ExternalItemID)
	occs, err := r.repo.ListItemsWithAddon(ctx, in.TenantID, name)
	if err != nil {
		return nil, nil, err
	}

	var affected []int64
	if pm.ItemType == ItemTypeFlavor {
		for _, occ := range occs {
			if err := r.flavors.Remap(ctx, in.TenantID, occ); err != nil {
				return occs, affected, err
			}
			affected = append(affected, occ.OrderID)
		}
		return occs, dedupe(affected), nil
	}

	product, err := r.catalog.Product(ctx, in.TenantID, *pm.InternalProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("load internal product %d: %w", *pm.InternalProductID, err)
	}
	for _, occ := range occs {
		parent, err := r.parentOf(ctx, in.TenantID, occ)
		if err != nil {
			return occs, affected, err
		}
		for idx, ao := range occ.AddOns {
			if ao.Name != name {
				continue
			}
			cmv, err := r.engine.ComponentCMV(ctx, product, parent)
			if err != nil {
				return occs, affected, err
			}
			m := OrderItemMapping{
				TenantID:          in.TenantID,
				OrderID:           occ.OrderID,
				OrderItemID:       occ.ItemID,
				MappingType:       MappingAddon,
				ExternalReference: strconv.Itoa(idx),
				ExternalName:      ao.Name,
				InternalProductID: product.ID,
				Quantity:          ao.Quantity,
				UnitCost:          cmv,
			}
			if err := r.repo.UpsertAddonMapping(ctx, m); err != nil {
				return occs, affected, fmt.Errorf("upsert addon mapping for item %d: %w", occ.ItemID, err)
			}
		}
		affected = append(affected, occ.OrderID)
	}
	return occs, dedupe(affected), nil
}

func (r *Resolver) parentOf(ctx context.Context, tenantID int64, occ ItemOccurrence) (costing.Parent, error) {
	parent := costing.Parent{ItemName: occ.ItemName}
	if occ.MainProductID == nil {
		return parent, nil
	}
	product, err := r.catalog.Product(ctx, tenantID, *occ.MainProductID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return parent, nil
		}
		return parent, err
	}
	parent.Product = &product
	return parent, nil
}

func dedupe(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
