package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/comanda-hq/comanda-sync/internal/shared"
	"github.com/comanda-hq/comanda-sync/internal/store"
	"github.com/comanda-hq/comanda-sync/internal/syncer"
)

type fakeStoreSource struct {
	stores map[int64]store.Store
	active []store.Store
}

func (s *fakeStoreSource) Get(ctx context.Context, tenantID, storeID int64) (store.Store, error) {
	st, ok := s.stores[storeID]
	if !ok {
		return store.Store{}, shared.ErrNotFound
	}
	return st, nil
}

func (s *fakeStoreSource) ListActive(ctx context.Context, provider string) ([]store.Store, error) {
	return s.active, nil
}

type fakePass struct {
	runs []int64
	err  error
}

func (p *fakePass) Run(ctx context.Context, st store.Store) (syncer.PassResult, error) {
	p.runs = append(p.runs, st.ID)
	return syncer.PassResult{Fetched: 1, Upserted: 1}, p.err
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: QueueSync}, nil
}

func testSyncJobs(stores *fakeStoreSource, enqueuer *fakeEnqueuer) (*SyncJobs, *fakePass) {
	pass := &fakePass{}
	j := NewSyncJobs(stores, pass, pass, pass, pass, enqueuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return j, pass
}

func storeTask(t *testing.T, payload StorePayload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskSyncOrders, body)
}

func TestDispatchFansOutPerStoreAndModule(t *testing.T) {
	stores := &fakeStoreSource{active: []store.Store{
		{ID: 1, TenantID: 3, Active: true},
		{ID: 2, TenantID: 3, Active: true},
	}}
	enqueuer := &fakeEnqueuer{}
	j, _ := testSyncJobs(stores, enqueuer)

	dispatch, err := NewSyncDispatchTask()
	require.NoError(t, err)
	require.NoError(t, j.HandleDispatch(context.Background(), dispatch))
	require.Len(t, enqueuer.tasks, 8) // 2 stores x 4 modules

	types := make(map[string]int)
	for _, task := range enqueuer.tasks {
		types[task.Type()]++
	}
	require.Equal(t, 2, types[TaskSyncOrders])
	require.Equal(t, 2, types[TaskSyncMerchant])
}

func TestDispatchRespectsModuleSelection(t *testing.T) {
	stores := &fakeStoreSource{active: []store.Store{{ID: 1, TenantID: 3, Active: true}}}
	enqueuer := &fakeEnqueuer{}
	j, _ := testSyncJobs(stores, enqueuer)

	dispatch, err := NewSyncDispatchTask(TaskSyncOrders)
	require.NoError(t, err)
	require.NoError(t, j.HandleDispatch(context.Background(), dispatch))
	require.Len(t, enqueuer.tasks, 1)
	require.Equal(t, TaskSyncOrders, enqueuer.tasks[0].Type())
}

func TestPassHandlerRunsActiveStore(t *testing.T) {
	stores := &fakeStoreSource{stores: map[int64]store.Store{
		7: {ID: 7, TenantID: 3, Active: true},
	}}
	j, pass := testSyncJobs(stores, &fakeEnqueuer{})
	handler := j.passHandler(TaskSyncOrders, j.orders)

	err := handler(context.Background(), storeTask(t, StorePayload{TenantID: 3, StoreID: 7}))
	require.NoError(t, err)
	require.Equal(t, []int64{7}, pass.runs)
}

func TestPassHandlerSkipsInactiveStore(t *testing.T) {
	stores := &fakeStoreSource{stores: map[int64]store.Store{
		7: {ID: 7, TenantID: 3, Active: false},
	}}
	j, pass := testSyncJobs(stores, &fakeEnqueuer{})
	handler := j.passHandler(TaskSyncOrders, j.orders)

	err := handler(context.Background(), storeTask(t, StorePayload{TenantID: 3, StoreID: 7}))
	require.NoError(t, err)
	require.Empty(t, pass.runs)
}

func TestPassHandlerDeactivatedStoreSkipsRetry(t *testing.T) {
	stores := &fakeStoreSource{stores: map[int64]store.Store{
		7: {ID: 7, TenantID: 3, Active: true},
	}}
	j, pass := testSyncJobs(stores, &fakeEnqueuer{})
	pass.err = fmt.Errorf("fetch sales page 1: %w", shared.ErrStoreInactive)
	handler := j.passHandler(TaskSyncSales, j.sales)

	err := handler(context.Background(), storeTask(t, StorePayload{TenantID: 3, StoreID: 7}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestPassHandlerUnknownStoreSkipsRetry(t *testing.T) {
	j, _ := testSyncJobs(&fakeStoreSource{stores: map[int64]store.Store{}}, &fakeEnqueuer{})
	handler := j.passHandler(TaskSyncOrders, j.orders)

	err := handler(context.Background(), storeTask(t, StorePayload{TenantID: 3, StoreID: 9}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
