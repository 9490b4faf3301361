package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/shared"
)

type fakeSalesClient struct {
	pages   map[int][]provider.Sale
	err     error
	windows []struct{ begin, end time.Time }
}

func (c *fakeSalesClient) Sales(ctx context.Context, ref provider.StoreRef, merchantID string, begin, end time.Time, page, size int) ([]provider.Sale, error) {
	c.windows = append(c.windows, struct{ begin, end time.Time }{begin, end})
	if c.err != nil {
		return nil, c.err
	}
	return c.pages[page], nil
}

func TestSalesPassUpsertsPages(t *testing.T) {
	client := &fakeSalesClient{pages: map[int][]provider.Sale{
		1: {
			{ID: "s-1", GrossAmount: 100, NetAmount: 88, SaleDate: "2026-08-30"},
			{ID: "s-2", GrossAmount: 50, NetAmount: 44, SaleDate: "2026-08-30T12:00:00Z"},
		},
	}}
	cursors := newMemoryCursors()
	sales := newMemorySales()
	s := NewSalesSyncer(client, cursors, sales, &fakeDeactivator{}, testLogger(), 24*time.Hour, 100)

	res, err := s.Run(context.Background(), testStore())
	require.NoError(t, err)
	require.Equal(t, 2, res.Upserted)
	require.Len(t, sales.records, 2)
	require.False(t, cursors.get(3, 7, ModuleSales).LastSyncedAt.IsZero())
}

func TestSalesPassEmptyFirstPage(t *testing.T) {
	// The client maps a provider 404 to an empty page.
	client := &fakeSalesClient{pages: map[int][]provider.Sale{}}
	cursors := newMemoryCursors()
	sales := newMemorySales()
	s := NewSalesSyncer(client, cursors, sales, &fakeDeactivator{}, testLogger(), 24*time.Hour, 100)

	res, err := s.Run(context.Background(), testStore())
	require.NoError(t, err)
	require.Zero(t, res.Fetched)
	require.Empty(t, sales.records)
	// The cursor still advances: the window was fully inspected.
	require.False(t, cursors.get(3, 7, ModuleSales).LastSyncedAt.IsZero())
}

func TestSalesPassAuthErrorDeactivatesStore(t *testing.T) {
	client := &fakeSalesClient{err: fmt.Errorf("%w: token expired", provider.ErrAuth)}
	deactivator := &fakeDeactivator{}
	s := NewSalesSyncer(client, newMemoryCursors(), newMemorySales(), deactivator, testLogger(), 24*time.Hour, 100)

	_, err := s.Run(context.Background(), testStore())
	require.ErrorIs(t, err, provider.ErrAuth)
	// The error also marks the store inactive so the job layer stops retrying.
	require.ErrorIs(t, err, shared.ErrStoreInactive)
	require.Len(t, deactivator.calls, 1)
	require.Contains(t, deactivator.calls[0], "3:7:")
}

func TestSalesPassTransientErrorKeepsStoreActive(t *testing.T) {
	client := &fakeSalesClient{err: errors.New("upstream 503")}
	deactivator := &fakeDeactivator{}
	s := NewSalesSyncer(client, newMemoryCursors(), newMemorySales(), deactivator, testLogger(), 24*time.Hour, 100)

	_, err := s.Run(context.Background(), testStore())
	require.Error(t, err)
	require.Empty(t, deactivator.calls)
}

func TestSalesPassSkipsMalformedRecord(t *testing.T) {
	client := &fakeSalesClient{pages: map[int][]provider.Sale{
		1: {
			{ID: "s-1", SaleDate: "not-a-date"},
			{ID: "s-2", SaleDate: "2026-08-30"},
		},
	}}
	sales := newMemorySales()
	s := NewSalesSyncer(client, newMemoryCursors(), sales, &fakeDeactivator{}, testLogger(), 24*time.Hour, 100)

	res, err := s.Run(context.Background(), testStore())
	require.NoError(t, err)
	require.Equal(t, 1, res.Upserted)
	require.Equal(t, 1, res.Skipped)
	require.Len(t, sales.records, 1)
}

func TestSalesWindowOverlapsPreviousPass(t *testing.T) {
	client := &fakeSalesClient{pages: map[int][]provider.Sale{
		1: {{ID: "s-1", SaleDate: "2026-08-30"}},
	}}
	cursors := newMemoryCursors()
	s := NewSalesSyncer(client, cursors, newMemorySales(), &fakeDeactivator{}, testLogger(), 24*time.Hour, 100)

	_, err := s.Run(context.Background(), testStore())
	require.NoError(t, err)
	firstEnd := cursors.get(3, 7, ModuleSales).LastSyncedAt

	client.pages = map[int][]provider.Sale{}
	_, err = s.Run(context.Background(), testStore())
	require.NoError(t, err)

	secondWindow := client.windows[len(client.windows)-1]
	require.WithinDuration(t, firstEnd.Add(-24*time.Hour), secondWindow.begin, time.Second)
}
