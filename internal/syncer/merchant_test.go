package syncer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comanda-hq/comanda-sync/internal/provider"
)

type fakeMerchantClient struct {
	merchant *provider.Merchant
	err      error
}

func (c *fakeMerchantClient) GetMerchant(ctx context.Context, ref provider.StoreRef, merchantID string) (*provider.Merchant, error) {
	return c.merchant, c.err
}

type recordingMetadata struct {
	updates []string
}

func (m *recordingMetadata) UpdateMetadata(ctx context.Context, tenantID, storeID int64, name, status string) error {
	m.updates = append(m.updates, fmt.Sprintf("%d:%d:%s:%s", tenantID, storeID, name, status))
	return nil
}

func TestMerchantPassUpdatesMetadata(t *testing.T) {
	client := &fakeMerchantClient{merchant: &provider.Merchant{ID: "ext-7", Name: "Pizzaria Bela Vista", Status: "AVAILABLE"}}
	meta := &recordingMetadata{}
	s := NewMerchantSyncer(client, newMemoryCursors(), meta, testLogger())

	res, err := s.Run(context.Background(), testStore())
	require.NoError(t, err)
	require.Equal(t, 1, res.Upserted)
	require.Equal(t, []string{"3:7:Pizzaria Bela Vista:AVAILABLE"}, meta.updates)
}

func TestMerchantPassMissingResponseIsNoop(t *testing.T) {
	client := &fakeMerchantClient{}
	meta := &recordingMetadata{}
	cursors := newMemoryCursors()
	s := NewMerchantSyncer(client, cursors, meta, testLogger())

	res, err := s.Run(context.Background(), testStore())
	require.NoError(t, err)
	require.Zero(t, res.Upserted)
	require.Empty(t, meta.updates)
	require.False(t, cursors.get(3, 7, ModuleMerchant).LastSyncedAt.IsZero())
}
