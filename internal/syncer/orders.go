package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-hq/comanda-sync/internal/notify"
	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/shared"
	"github.com/comanda-hq/comanda-sync/internal/store"
)

// OrdersClient is the provider surface the orders pass consumes.
type OrdersClient interface {
	PollEvents(ctx context.Context, ref provider.StoreRef, merchantIDs []string) ([]provider.Event, error)
	AcknowledgeEvents(ctx context.Context, ref provider.StoreRef, eventIDs []string) error
	GetOrder(ctx context.Context, ref provider.StoreRef, orderID string) (*provider.OrderDetail, error)
}

// OrdersSyncer ingests order events for one store at a time.
//
// Events are committed locally before they are acknowledged upstream, so an
// acknowledgment failure can only cause redelivery, never data loss. The
// upsert keyed by (tenant, order uuid) absorbs duplicates.
type OrdersSyncer struct {
	client   OrdersClient
	cursors  CursorRepo
	orders   OrderRepo
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewOrdersSyncer builds an OrdersSyncer.
func NewOrdersSyncer(client OrdersClient, cursors CursorRepo, orders OrderRepo, notifier notify.Notifier, logger *slog.Logger) *OrdersSyncer {
	return &OrdersSyncer{client: client, cursors: cursors, orders: orders, notifier: notifier, logger: logger}
}

// Run performs one bounded orders synchronization pass.
func (s *OrdersSyncer) Run(ctx context.Context, st store.Store) (PassResult, error) {
	started := time.Now()
	ref := provider.StoreRef{TenantID: st.TenantID, StoreID: st.ID, ExternalID: st.ExternalStoreID}
	res := PassResult{Module: ModuleOrders}

	if _, err := s.cursors.GetOrCreate(ctx, st.TenantID, st.ID, ModuleOrders); err != nil {
		return res, fmt.Errorf("syncer: orders cursor: %w", err)
	}

	events, err := s.client.PollEvents(ctx, ref, []string{st.ExternalStoreID})
	if err != nil {
		return res, fmt.Errorf("syncer: poll events: %w", err)
	}
	res.Fetched = len(events)

	var acked []string
	var lastEventID string
	for _, evt := range events {
		if err := s.processEvent(ctx, ref, st, evt); err != nil {
			res.Skipped++
			s.logger.Error("order event skipped",
				slog.Int64("tenant_id", st.TenantID),
				slog.Int64("store_id", st.ID),
				slog.String("event_id", evt.ID),
				slog.String("order_id", evt.OrderID),
				slog.Any("error", err))
			continue
		}
		res.Upserted++
		if evt.ID != "" {
			acked = append(acked, evt.ID)
			lastEventID = evt.ID
		}
	}

	// The cursor moves only after the batch is durably committed, and only
	// when at least one event carried a token.
	if lastEventID != "" {
		if err := s.cursors.Advance(ctx, st.TenantID, st.ID, ModuleOrders, lastEventID, time.Now().UTC()); err != nil {
			return res, fmt.Errorf("syncer: advance orders cursor: %w", err)
		}
	}

	if len(acked) > 0 {
		if err := s.client.AcknowledgeEvents(ctx, ref, acked); err != nil {
			// Data is already persisted; redelivered events are absorbed by
			// the upsert.
			s.logger.Warn("event acknowledgment failed, events will be redelivered",
				slog.Int64("store_id", st.ID),
				slog.Int("events", len(acked)),
				slog.Any("error", err))
		}
	}

	res.Duration = time.Since(started)
	s.logger.Info("orders pass finished",
		slog.Int64("tenant_id", st.TenantID),
		slog.Int64("store_id", st.ID),
		slog.Int("fetched", res.Fetched),
		slog.Int("upserted", res.Upserted),
		slog.Int("skipped", res.Skipped),
		slog.Duration("took", res.Duration))
	return res, nil
}

// processEvent fetches the full order detail for one event envelope and
// upserts it. The envelope alone cannot reconstruct order state.
func (s *OrdersSyncer) processEvent(ctx context.Context, ref provider.StoreRef, st store.Store, evt provider.Event) error {
	detail, err := s.client.GetOrder(ctx, ref, evt.OrderID)
	if err != nil {
		return err
	}

	rawID := detail.ID
	if rawID == "" {
		rawID = evt.OrderID
	}
	orderUUID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid order uuid %q: %w", rawID, err)
	}

	fallback := evt.FullCode
	if fallback == "" {
		fallback = evt.Code
	}
	status := detail.Status(fallback)

	oldStatus := ""
	known := false
	existing, err := s.orders.FindByUUID(ctx, st.TenantID, orderUUID)
	if err == nil {
		known = true
		oldStatus = existing.Status
	} else if !errors.Is(err, shared.ErrNotFound) {
		return err
	}

	items := make([]OrderItem, 0, len(detail.Items))
	for _, it := range detail.Items {
		addOns := make([]AddOn, 0, len(it.Options))
		for _, opt := range it.Options {
			addOns = append(addOns, AddOn{Name: opt.Name, Quantity: opt.Quantity})
		}
		items = append(items, OrderItem{
			SKU:       it.ExternalCode,
			Name:      it.Name,
			Qty:       it.Quantity,
			UnitPrice: it.UnitPrice,
			AddOns:    addOns,
		})
	}

	orderID, err := s.orders.UpsertWithItems(ctx, Order{
		TenantID:  st.TenantID,
		StoreID:   st.ID,
		OrderUUID: orderUUID,
		Code:      detail.DisplayID,
		Status:    status,
		Total:     detail.Total.Price,
		Discounts: detail.Total.Discounts,
		Delivery:  detail.Total.DeliveryFee,
		Tip:       detail.Total.Tip,
		Raw:       detail.Raw,
		PlacedAt:  detail.CreatedAt,
	}, items)
	if err != nil {
		return err
	}

	if known && oldStatus != status {
		evt := notify.OrderStatusChanged{
			TenantID:       st.TenantID,
			OrderID:        orderID,
			OrderCode:      detail.DisplayID,
			OldStatus:      oldStatus,
			NewStatus:      status,
			IsCancellation: IsCancellation(status),
		}
		if err := s.notifier.NotifyOrderStatusChanged(ctx, evt); err != nil {
			s.logger.Warn("status change notification failed",
				slog.Int64("order_id", orderID),
				slog.Any("error", err))
		}
	}
	return nil
}
