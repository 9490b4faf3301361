package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/store"
)

// MerchantClient is the provider surface the merchant pass consumes.
type MerchantClient interface {
	GetMerchant(ctx context.Context, ref provider.StoreRef, merchantID string) (*provider.Merchant, error)
}

// MetadataRepo updates store display metadata.
type MetadataRepo interface {
	UpdateMetadata(ctx context.Context, tenantID, storeID int64, name, status string) error
}

// MerchantSyncer refreshes store display metadata from the provider. A
// missing or empty provider response is a no-op, not a failure.
type MerchantSyncer struct {
	client  MerchantClient
	cursors CursorRepo
	stores  MetadataRepo
	logger  *slog.Logger
}

// NewMerchantSyncer builds a MerchantSyncer.
func NewMerchantSyncer(client MerchantClient, cursors CursorRepo, stores MetadataRepo, logger *slog.Logger) *MerchantSyncer {
	return &MerchantSyncer{client: client, cursors: cursors, stores: stores, logger: logger}
}

// Run performs one single-record merchant metadata refresh.
func (s *MerchantSyncer) Run(ctx context.Context, st store.Store) (PassResult, error) {
	started := time.Now()
	ref := provider.StoreRef{TenantID: st.TenantID, StoreID: st.ID, ExternalID: st.ExternalStoreID}
	res := PassResult{Module: ModuleMerchant}

	if _, err := s.cursors.GetOrCreate(ctx, st.TenantID, st.ID, ModuleMerchant); err != nil {
		return res, fmt.Errorf("syncer: merchant cursor: %w", err)
	}

	merchant, err := s.client.GetMerchant(ctx, ref, st.ExternalStoreID)
	if err != nil {
		return res, fmt.Errorf("syncer: fetch merchant: %w", err)
	}
	if merchant == nil {
		s.logger.Info("merchant metadata unavailable, skipping",
			slog.Int64("tenant_id", st.TenantID),
			slog.Int64("store_id", st.ID))
	} else {
		res.Fetched = 1
		name := merchant.Name
		if name == "" {
			name = st.Name
		}
		if err := s.stores.UpdateMetadata(ctx, st.TenantID, st.ID, name, merchant.Status); err != nil {
			return res, fmt.Errorf("syncer: update store metadata: %w", err)
		}
		res.Upserted = 1
	}

	if err := s.cursors.Advance(ctx, st.TenantID, st.ID, ModuleMerchant, "", time.Now().UTC()); err != nil {
		return res, fmt.Errorf("syncer: advance merchant cursor: %w", err)
	}

	res.Duration = time.Since(started)
	return res, nil
}
