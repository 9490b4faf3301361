package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/store"
)

// FinancialClient is the provider surface the financial pass consumes.
type FinancialClient interface {
	FinancialEvents(ctx context.Context, ref provider.StoreRef, merchantID string, begin, end time.Time, page, size int) (*provider.FinancialEventsPage, error)
}

// FinancialSyncer ingests settlement events. The fetch window overlaps the
// previous pass because settlement data arrives late.
type FinancialSyncer struct {
	client   FinancialClient
	cursors  CursorRepo
	events   FinEventRepo
	logger   *slog.Logger
	overlap  time.Duration
	pageSize int
}

// NewFinancialSyncer builds a FinancialSyncer.
func NewFinancialSyncer(client FinancialClient, cursors CursorRepo, events FinEventRepo, logger *slog.Logger, overlap time.Duration, pageSize int) *FinancialSyncer {
	if overlap <= 0 {
		overlap = 48 * time.Hour
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &FinancialSyncer{client: client, cursors: cursors, events: events, logger: logger, overlap: overlap, pageSize: pageSize}
}

// Run performs one bounded financial-events synchronization pass.
func (s *FinancialSyncer) Run(ctx context.Context, st store.Store) (PassResult, error) {
	started := time.Now()
	ref := provider.StoreRef{TenantID: st.TenantID, StoreID: st.ID, ExternalID: st.ExternalStoreID}
	res := PassResult{Module: ModuleFinancial}

	cursor, err := s.cursors.GetOrCreate(ctx, st.TenantID, st.ID, ModuleFinancial)
	if err != nil {
		return res, fmt.Errorf("syncer: financial cursor: %w", err)
	}

	end := time.Now().UTC()
	begin := cursor.LastSyncedAt.Add(-s.overlap)
	if cursor.LastSyncedAt.IsZero() || cursor.LastSyncedAt.Unix() <= 0 {
		begin = end.Add(-initialBackfill)
	}

	for page := 1; ; page++ {
		pageResult, err := s.client.FinancialEvents(ctx, ref, st.ExternalStoreID, begin, end, page, s.pageSize)
		if err != nil {
			return res, fmt.Errorf("syncer: fetch financial events page %d: %w", page, err)
		}
		res.Fetched += len(pageResult.FinancialEvents)

		for _, rec := range pageResult.FinancialEvents {
			if err := s.upsertOne(ctx, st, rec); err != nil {
				res.Skipped++
				s.logger.Error("financial event skipped",
					slog.Int64("tenant_id", st.TenantID),
					slog.Int64("store_id", st.ID),
					slog.String("external_id", rec.ID),
					slog.Any("error", err))
				continue
			}
			res.Upserted++
		}

		if !pageResult.HasNextPage {
			break
		}
	}

	if err := s.cursors.Advance(ctx, st.TenantID, st.ID, ModuleFinancial, "", end); err != nil {
		return res, fmt.Errorf("syncer: advance financial cursor: %w", err)
	}

	res.Duration = time.Since(started)
	s.logger.Info("financial pass finished",
		slog.Int64("tenant_id", st.TenantID),
		slog.Int64("store_id", st.ID),
		slog.Int("fetched", res.Fetched),
		slog.Int("upserted", res.Upserted),
		slog.Int("skipped", res.Skipped),
		slog.Duration("took", res.Duration))
	return res, nil
}

func (s *FinancialSyncer) upsertOne(ctx context.Context, st store.Store, rec provider.FinancialEvent) error {
	if rec.ID == "" {
		return errors.New("financial event without external id")
	}
	competence, err := parseProviderDate(rec.CompetenceDate)
	if err != nil {
		return fmt.Errorf("invalid competence date %q: %w", rec.CompetenceDate, err)
	}

	var orderUUID *uuid.UUID
	if rec.OrderID != "" {
		if parsed, err := uuid.Parse(rec.OrderID); err == nil {
			orderUUID = &parsed
		}
	}

	return s.events.UpsertFinEvent(ctx, FinEvent{
		TenantID:       st.TenantID,
		StoreID:        st.ID,
		ExternalID:     rec.ID,
		Type:           rec.Type,
		Description:    rec.Description,
		Amount:         rec.Amount,
		CompetenceDate: competence,
		OrderUUID:      orderUUID,
	})
}
