package recalc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/comanda-hq/comanda-sync/internal/costing"
	"github.com/comanda-hq/comanda-sync/internal/mapping"
	"github.com/comanda-hq/comanda-sync/internal/notify"
)

const defaultChunkSize = 200

// Selection addresses the orders one recalculation run covers. Exactly one
// selector is set: explicit ids after a mapping change, a product after a
// catalog cost edit, an external payment method id after a payment link,
// or All after a commission rule change.
type Selection struct {
	TenantID                int64
	OrderIDs                []int64
	ProductID               int64
	PaymentMethodExternalID string
	All                     bool
}

// Summary reports one recalculation run.
type Summary struct {
	Scanned  int
	Updated  int
	Failed   int
	Duration time.Duration
}

// Repo streams order ids in keyset chunks and moves cost aggregates.
type Repo interface {
	ListOrderIDs(ctx context.Context, sel Selection, afterID int64, limit int) ([]int64, error)
	LoadCostOrder(ctx context.Context, tenantID, orderID int64) (costing.CostOrder, error)
	SaveCosts(ctx context.Context, tenantID, orderID int64, costs costing.OrderCosts, at time.Time) error
}

// Engine is the cost calculation the dispatcher drives.
type Engine interface {
	CalculateCosts(ctx context.Context, ord costing.CostOrder) (costing.OrderCosts, error)
}

// Markers manages the advisory recalculation marker on payment methods.
type Markers interface {
	GetPaymentMethodMapping(ctx context.Context, tenantID, id int64) (mapping.PaymentMethodMapping, error)
	SetPaymentRecalculating(ctx context.Context, tenantID, id int64) error
	ClearPaymentRecalculating(ctx context.Context, tenantID, id int64) error
}

// Dispatcher re-derives order cost aggregates in bounded chunks so a large
// tenant history never holds one transaction or one task run hostage.
type Dispatcher struct {
	repo      Repo
	engine    Engine
	markers   Markers
	notifier  notify.Notifier
	logger    *slog.Logger
	chunkSize int
	now       func() time.Time
}

func NewDispatcher(repo Repo, engine Engine, markers Markers, notifier notify.Notifier, logger *slog.Logger, chunkSize int) *Dispatcher {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &Dispatcher{
		repo:      repo,
		engine:    engine,
		markers:   markers,
		notifier:  notifier,
		logger:    logger,
		chunkSize: chunkSize,
		now:       time.Now,
	}
}

// Recalculate walks the selection in id order and recomputes every order.
// A failing order is logged and skipped; one poisoned row must not stall
// the rest of the tenant's history.
func (d *Dispatcher) Recalculate(ctx context.Context, sel Selection) (Summary, error) {
	started := d.now()
	var sum Summary

	afterID := int64(0)
	for {
		ids, err := d.repo.ListOrderIDs(ctx, sel, afterID, d.chunkSize)
		if err != nil {
			return sum, fmt.Errorf("list orders for recalculation: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, orderID := range ids {
			sum.Scanned++
			if err := d.recalcOne(ctx, sel.TenantID, orderID); err != nil {
				sum.Failed++
				d.logger.Error("order recalculation failed",
					slog.Int64("tenant_id", sel.TenantID),
					slog.Int64("order_id", orderID),
					slog.String("error", err.Error()))
				continue
			}
			sum.Updated++
		}
		// Loop until an empty chunk: repo-side filtering may return short
		// chunks while more rows remain.
		afterID = ids[len(ids)-1]
	}

	sum.Duration = d.now().Sub(started)
	d.logger.Info("recalculation pass finished",
		slog.Int64("tenant_id", sel.TenantID),
		slog.Int("scanned", sum.Scanned),
		slog.Int("updated", sum.Updated),
		slog.Int("failed", sum.Failed),
		slog.Duration("duration", sum.Duration))
	return sum, nil
}

func (d *Dispatcher) recalcOne(ctx context.Context, tenantID, orderID int64) error {
	ord, err := d.repo.LoadCostOrder(ctx, tenantID, orderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	costs, err := d.engine.CalculateCosts(ctx, ord)
	if err != nil {
		return fmt.Errorf("calculate costs: %w", err)
	}
	if err := d.repo.SaveCosts(ctx, tenantID, orderID, costs, d.now()); err != nil {
		return fmt.Errorf("save costs: %w", err)
	}
	return nil
}

// RecalculateOrders recomputes an explicit order set. It backs the mapping
// resolver's recalculation trigger.
func (d *Dispatcher) RecalculateOrders(ctx context.Context, tenantID int64, orderIDs []int64) error {
	if len(orderIDs) == 0 {
		return nil
	}
	_, err := d.Recalculate(ctx, Selection{TenantID: tenantID, OrderIDs: orderIDs})
	return err
}

// RecalculateForProduct recomputes every order carrying a mapping line for
// the product, after a catalog cost edit.
func (d *Dispatcher) RecalculateForProduct(ctx context.Context, tenantID, productID int64) (Summary, error) {
	return d.Recalculate(ctx, Selection{TenantID: tenantID, ProductID: productID})
}

// RecalculateAll recomputes the tenant's whole history, after a commission
// rule change.
func (d *Dispatcher) RecalculateAll(ctx context.Context, tenantID int64) (Summary, error) {
	return d.Recalculate(ctx, Selection{TenantID: tenantID, All: true})
}

// RecalculateForPaymentMethod recomputes the orders whose raw payload
// references the linked payment method. The advisory marker is cleared on
// every exit path, and the completion notification is best-effort.
func (d *Dispatcher) RecalculateForPaymentMethod(ctx context.Context, tenantID, mappingID int64) (Summary, error) {
	pm, err := d.markers.GetPaymentMethodMapping(ctx, tenantID, mappingID)
	if err != nil {
		return Summary{}, fmt.Errorf("load payment method mapping %d: %w", mappingID, err)
	}

	if err := d.markers.SetPaymentRecalculating(ctx, tenantID, mappingID); err != nil {
		return Summary{}, fmt.Errorf("set recalculation marker: %w", err)
	}
	defer func() {
		if cerr := d.markers.ClearPaymentRecalculating(ctx, tenantID, mappingID); cerr != nil {
			d.logger.Error("clear recalculation marker",
				slog.Int64("payment_method_id", mappingID),
				slog.String("error", cerr.Error()))
		}
	}()

	sum, runErr := d.Recalculate(ctx, Selection{TenantID: tenantID, PaymentMethodExternalID: pm.ExternalMethodID})

	evt := notify.PaymentMethodLinked{
		TenantID:          tenantID,
		PaymentMethodID:   mappingID,
		RecalculatedCount: sum.Updated,
		Success:           runErr == nil,
	}
	if runErr != nil {
		evt.ErrorMessage = runErr.Error()
	}
	if nerr := d.notifier.NotifyPaymentMethodLinked(ctx, evt); nerr != nil {
		d.logger.Warn("payment method notification failed", slog.String("error", nerr.Error()))
	}
	return sum, runErr
}
