package mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/comanda-hq/comanda-sync/internal/costing"
	"github.com/comanda-hq/comanda-sync/internal/shared"
)

// FlavorMapper allocates fractional cost shares to composite-item flavors.
// A half-and-half pizza carries each flavor at 1/2 of its sized CMV, a
// three-way split at 1/3, and so on.
type FlavorMapper struct {
	repo    RepositoryPort
	catalog costing.Catalog
	engine  *costing.Engine
	logger  *slog.Logger
}

func NewFlavorMapper(repo RepositoryPort, catalog costing.Catalog, engine *costing.Engine, logger *slog.Logger) *FlavorMapper {
	return &FlavorMapper{repo: repo, catalog: catalog, engine: engine, logger: logger}
}

type flavorEntry struct {
	index     int
	addOn     AddOn
	productID int64
}

// Remap rebuilds the flavor cost lines of one item occurrence. Add-ons
// whose catalog entry is not a mapped flavor are left alone.
func (f *FlavorMapper) Remap(ctx context.Context, tenantID int64, occ ItemOccurrence) error {
	var flavors []flavorEntry
	for idx, ao := range occ.AddOns {
		pm, err := f.repo.GetProductMapping(ctx, tenantID, AddonKey(ao.Name))
		if errors.Is(err, shared.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("product mapping for addon %q: %w", ao.Name, err)
		}
		if pm.ItemType != ItemTypeFlavor || pm.InternalProductID == nil {
			continue
		}
		flavors = append(flavors, flavorEntry{index: idx, addOn: ao, productID: *pm.InternalProductID})
	}
	if len(flavors) == 0 {
		return nil
	}

	parent, err := f.parentOf(ctx, tenantID, occ)
	if err != nil {
		return err
	}

	fraction := 1.0 / float64(len(flavors))
	for _, fl := range flavors {
		product, err := f.catalog.Product(ctx, tenantID, fl.productID)
		if err != nil {
			return fmt.Errorf("load flavor product %d: %w", fl.productID, err)
		}
		cmv, err := f.engine.ComponentCMV(ctx, product, parent)
		if err != nil {
			return err
		}
		m := OrderItemMapping{
			TenantID:          tenantID,
			OrderID:           occ.OrderID,
			OrderItemID:       occ.ItemID,
			MappingType:       MappingAddon,
			ExternalReference: strconv.Itoa(fl.index),
			ExternalName:      fl.addOn.Name,
			InternalProductID: fl.productID,
			Quantity:          fl.addOn.Quantity,
			UnitCost:          shared.Round2(cmv * fraction),
			AutoFraction:      fraction,
		}
		if err := f.repo.UpsertAddonMapping(ctx, m); err != nil {
			return fmt.Errorf("upsert flavor mapping: %w", err)
		}
	}
	f.logger.Debug("flavor shares remapped",
		slog.Int64("order_item_id", occ.ItemID),
		slog.Int("flavors", len(flavors)))
	return nil
}

func (f *FlavorMapper) parentOf(ctx context.Context, tenantID int64, occ ItemOccurrence) (costing.Parent, error) {
	parent := costing.Parent{ItemName: occ.ItemName}
	if occ.MainProductID == nil {
		return parent, nil
	}
	product, err := f.catalog.Product(ctx, tenantID, *occ.MainProductID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return parent, nil
		}
		return parent, fmt.Errorf("load parent product %d: %w", *occ.MainProductID, err)
	}
	parent.Product = &product
	return parent, nil
}
