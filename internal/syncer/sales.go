package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/shared"
	"github.com/comanda-hq/comanda-sync/internal/store"
)

// initialBackfill bounds the first pass of a freshly connected store.
const initialBackfill = 30 * 24 * time.Hour

// SalesClient is the provider surface the sales pass consumes.
type SalesClient interface {
	Sales(ctx context.Context, ref provider.StoreRef, merchantID string, begin, end time.Time, page, size int) ([]provider.Sale, error)
}

// StoreDeactivator demotes a store after an irrecoverable auth failure.
type StoreDeactivator interface {
	Deactivate(ctx context.Context, tenantID, storeID int64, reason string) error
}

// SalesSyncer ingests sale settlements over a sliding date window.
type SalesSyncer struct {
	client   SalesClient
	cursors  CursorRepo
	sales    SaleRepo
	stores   StoreDeactivator
	logger   *slog.Logger
	overlap  time.Duration
	pageSize int
}

// NewSalesSyncer builds a SalesSyncer.
func NewSalesSyncer(client SalesClient, cursors CursorRepo, sales SaleRepo, stores StoreDeactivator, logger *slog.Logger, overlap time.Duration, pageSize int) *SalesSyncer {
	if overlap <= 0 {
		overlap = 24 * time.Hour
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &SalesSyncer{client: client, cursors: cursors, sales: sales, stores: stores, logger: logger, overlap: overlap, pageSize: pageSize}
}

// Run performs one bounded sales synchronization pass.
func (s *SalesSyncer) Run(ctx context.Context, st store.Store) (PassResult, error) {
	started := time.Now()
	ref := provider.StoreRef{TenantID: st.TenantID, StoreID: st.ID, ExternalID: st.ExternalStoreID}
	res := PassResult{Module: ModuleSales}

	cursor, err := s.cursors.GetOrCreate(ctx, st.TenantID, st.ID, ModuleSales)
	if err != nil {
		return res, fmt.Errorf("syncer: sales cursor: %w", err)
	}

	end := time.Now().UTC()
	begin := cursor.LastSyncedAt.Add(-s.overlap)
	if cursor.LastSyncedAt.IsZero() || cursor.LastSyncedAt.Unix() <= 0 {
		begin = end.Add(-initialBackfill)
	}

	for page := 1; ; page++ {
		records, err := s.client.Sales(ctx, ref, st.ExternalStoreID, begin, end, page, s.pageSize)
		if err != nil {
			if errors.Is(err, provider.ErrAuth) {
				if derr := s.stores.Deactivate(ctx, st.TenantID, st.ID, "provider authentication failed during sales sync"); derr != nil {
					s.logger.Error("store deactivation failed",
						slog.Int64("store_id", st.ID),
						slog.Any("error", derr))
				}
				// Mark the error so the job layer stops retrying a store
				// that needs manual reconnection.
				return res, fmt.Errorf("syncer: fetch sales page %d: %w: %w", page, shared.ErrStoreInactive, err)
			}
			return res, fmt.Errorf("syncer: fetch sales page %d: %w", page, err)
		}
		if len(records) == 0 {
			break
		}
		res.Fetched += len(records)

		for _, rec := range records {
			if err := s.upsertOne(ctx, st, rec); err != nil {
				res.Skipped++
				s.logger.Error("sale skipped",
					slog.Int64("tenant_id", st.TenantID),
					slog.Int64("store_id", st.ID),
					slog.String("external_id", rec.ID),
					slog.Any("error", err))
				continue
			}
			res.Upserted++
		}

		if len(records) < s.pageSize {
			break
		}
	}

	if err := s.cursors.Advance(ctx, st.TenantID, st.ID, ModuleSales, "", end); err != nil {
		return res, fmt.Errorf("syncer: advance sales cursor: %w", err)
	}

	res.Duration = time.Since(started)
	s.logger.Info("sales pass finished",
		slog.Int64("tenant_id", st.TenantID),
		slog.Int64("store_id", st.ID),
		slog.Int("fetched", res.Fetched),
		slog.Int("upserted", res.Upserted),
		slog.Int("skipped", res.Skipped),
		slog.Duration("took", res.Duration))
	return res, nil
}

func (s *SalesSyncer) upsertOne(ctx context.Context, st store.Store, rec provider.Sale) error {
	if rec.ID == "" {
		return errors.New("sale without external id")
	}
	saleDate, err := parseProviderDate(rec.SaleDate)
	if err != nil {
		return fmt.Errorf("invalid sale date %q: %w", rec.SaleDate, err)
	}

	var orderUUID *uuid.UUID
	if rec.OrderID != "" {
		if parsed, err := uuid.Parse(rec.OrderID); err == nil {
			orderUUID = &parsed
		}
	}

	return s.sales.Upsert(ctx, SaleRecord{
		TenantID:        st.TenantID,
		StoreID:         st.ID,
		ExternalID:      rec.ID,
		OrderUUID:       orderUUID,
		GrossAmount:     rec.GrossAmount,
		NetAmount:       rec.NetAmount,
		PaymentMethodID: rec.PaymentMethodID,
		SaleDate:        saleDate,
	})
}

// parseProviderDate accepts both date-only and RFC3339 timestamps.
func parseProviderDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty date")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
