package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/comanda-hq/comanda-sync/internal/shared"
	"github.com/comanda-hq/comanda-sync/internal/store"
	"github.com/comanda-hq/comanda-sync/internal/syncer"
)

// Pass runs one ingestion module for one store.
type Pass interface {
	Run(ctx context.Context, st store.Store) (syncer.PassResult, error)
}

// StoreSource resolves the stores sync tasks operate on.
type StoreSource interface {
	Get(ctx context.Context, tenantID, storeID int64) (store.Store, error)
	ListActive(ctx context.Context, provider string) ([]store.Store, error)
}

// SyncJobs binds the ingestion passes to their task types.
type SyncJobs struct {
	stores    StoreSource
	orders    Pass
	sales     Pass
	financial Pass
	merchant  Pass
	enqueuer  Enqueuer
	logger    *slog.Logger
}

func NewSyncJobs(stores StoreSource, orders, sales, financial, merchant Pass, enqueuer Enqueuer, logger *slog.Logger) *SyncJobs {
	return &SyncJobs{
		stores:    stores,
		orders:    orders,
		sales:     sales,
		financial: financial,
		merchant:  merchant,
		enqueuer:  enqueuer,
		logger:    logger,
	}
}

// Handlers returns the task registrations for the worker mux.
func (j *SyncJobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskSyncDispatch, Handler: j.HandleDispatch},
		{Type: TaskSyncOrders, Handler: j.passHandler(TaskSyncOrders, j.orders)},
		{Type: TaskSyncSales, Handler: j.passHandler(TaskSyncSales, j.sales)},
		{Type: TaskSyncFinancial, Handler: j.passHandler(TaskSyncFinancial, j.financial)},
		{Type: TaskSyncMerchant, Handler: j.passHandler(TaskSyncMerchant, j.merchant)},
	}
}

// HandleDispatch fans one sync round out to every active marketplace
// store: one task per store and module, so a slow store only delays its
// own passes.
func (j *SyncJobs) HandleDispatch(ctx context.Context, t *asynq.Task) error {
	taskTypes := []string{TaskSyncOrders, TaskSyncSales, TaskSyncFinancial, TaskSyncMerchant}
	if len(t.Payload()) > 0 {
		var dispatch DispatchPayload
		if err := json.Unmarshal(t.Payload(), &dispatch); err != nil {
			return asynq.SkipRetry
		}
		if len(dispatch.TaskTypes) > 0 {
			taskTypes = dispatch.TaskTypes
		}
	}

	stores, err := j.stores.ListActive(ctx, store.ProviderMarketplace)
	if err != nil {
		return fmt.Errorf("list active stores: %w", err)
	}

	scheduled := 0
	for _, st := range stores {
		payload := StorePayload{TenantID: st.TenantID, StoreID: st.ID}
		for _, taskType := range taskTypes {
			task, err := NewSyncTask(taskType, payload)
			if err != nil {
				return err
			}
			if _, err := j.enqueuer.EnqueueContext(ctx, task); err != nil {
				j.logger.Error("enqueue sync pass",
					slog.String("type", taskType),
					slog.Int64("store_id", st.ID),
					slog.Any("error", err))
				continue
			}
			scheduled++
		}
	}
	j.logger.Info("sync round dispatched",
		slog.Int("stores", len(stores)),
		slog.Int("tasks", scheduled))
	return nil
}

func (j *SyncJobs) passHandler(taskType string, pass Pass) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload StorePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}

		st, err := j.stores.Get(ctx, payload.TenantID, payload.StoreID)
		if errors.Is(err, shared.ErrNotFound) {
			j.logger.Warn("sync task for unknown store",
				slog.String("type", taskType),
				slog.Int64("store_id", payload.StoreID))
			return asynq.SkipRetry
		}
		if err != nil {
			return fmt.Errorf("load store %d: %w", payload.StoreID, err)
		}
		if !st.Active {
			j.logger.Info("skipping sync for inactive store",
				slog.String("type", taskType),
				slog.Int64("store_id", st.ID))
			return nil
		}

		res, err := pass.Run(ctx, st)
		if errors.Is(err, shared.ErrStoreInactive) {
			j.logger.Warn("store deactivated during sync pass, dropping task",
				slog.String("type", taskType),
				slog.Int64("store_id", st.ID),
				slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err != nil {
			return fmt.Errorf("%s store %d: %w", taskType, st.ID, err)
		}
		j.logger.Info("sync pass finished",
			slog.String("type", taskType),
			slog.Int64("store_id", st.ID),
			slog.Int("fetched", res.Fetched),
			slog.Int("upserted", res.Upserted),
			slog.Int("skipped", res.Skipped),
			slog.Duration("duration", res.Duration))
		return nil
	}
}
