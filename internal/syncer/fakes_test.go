package syncer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/comanda-hq/comanda-sync/internal/notify"
	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/shared"
	"github.com/comanda-hq/comanda-sync/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore() store.Store {
	return store.Store{ID: 7, TenantID: 3, Provider: store.ProviderMarketplace, ExternalStoreID: "ext-7", Active: true}
}

type memoryCursors struct {
	cursors map[string]*Cursor
}

func newMemoryCursors() *memoryCursors {
	return &memoryCursors{cursors: make(map[string]*Cursor)}
}

func cursorKey(tenantID, storeID int64, module string) string {
	return fmt.Sprintf("%d:%d:%s", tenantID, storeID, module)
}

func (m *memoryCursors) GetOrCreate(ctx context.Context, tenantID, storeID int64, module string) (Cursor, error) {
	key := cursorKey(tenantID, storeID, module)
	if c, ok := m.cursors[key]; ok {
		return *c, nil
	}
	c := &Cursor{TenantID: tenantID, StoreID: storeID, Module: module}
	m.cursors[key] = c
	return *c, nil
}

func (m *memoryCursors) Advance(ctx context.Context, tenantID, storeID int64, module, cursorKeyValue string, at time.Time) error {
	key := cursorKey(tenantID, storeID, module)
	c, ok := m.cursors[key]
	if !ok {
		return shared.ErrNotFound
	}
	if cursorKeyValue != "" {
		c.CursorKey = cursorKeyValue
	}
	if at.After(c.LastSyncedAt) {
		c.LastSyncedAt = at
	}
	return nil
}

func (m *memoryCursors) get(tenantID, storeID int64, module string) Cursor {
	return *m.cursors[cursorKey(tenantID, storeID, module)]
}

type memoryOrders struct {
	nextID int64
	byUUID map[string]*Order
	items  map[int64][]OrderItem
}

func newMemoryOrders() *memoryOrders {
	return &memoryOrders{byUUID: make(map[string]*Order), items: make(map[int64][]OrderItem)}
}

func (m *memoryOrders) FindByUUID(ctx context.Context, tenantID int64, orderUUID uuid.UUID) (Order, error) {
	if o, ok := m.byUUID[fmt.Sprintf("%d:%s", tenantID, orderUUID)]; ok {
		return *o, nil
	}
	return Order{}, shared.ErrNotFound
}

func (m *memoryOrders) UpsertWithItems(ctx context.Context, order Order, items []OrderItem) (int64, error) {
	key := fmt.Sprintf("%d:%s", order.TenantID, order.OrderUUID)
	existing, ok := m.byUUID[key]
	if ok {
		order.ID = existing.ID
	} else {
		m.nextID++
		order.ID = m.nextID
	}
	m.byUUID[key] = &order
	replaced := make([]OrderItem, len(items))
	copy(replaced, items)
	for i := range replaced {
		replaced[i].OrderID = order.ID
	}
	m.items[order.ID] = replaced
	return order.ID, nil
}

type memorySales struct {
	records map[string]SaleRecord
	failOn  map[string]error
}

func newMemorySales() *memorySales {
	return &memorySales{records: make(map[string]SaleRecord)}
}

func (m *memorySales) Upsert(ctx context.Context, sale SaleRecord) error {
	if err, ok := m.failOn[sale.ExternalID]; ok {
		return err
	}
	m.records[fmt.Sprintf("%d:%d:%s", sale.TenantID, sale.StoreID, sale.ExternalID)] = sale
	return nil
}

type memoryFinEvents struct {
	records map[string]FinEvent
}

func newMemoryFinEvents() *memoryFinEvents {
	return &memoryFinEvents{records: make(map[string]FinEvent)}
}

func (m *memoryFinEvents) UpsertFinEvent(ctx context.Context, evt FinEvent) error {
	m.records[fmt.Sprintf("%d:%d:%s", evt.TenantID, evt.StoreID, evt.ExternalID)] = evt
	return nil
}

type recordingNotifier struct {
	statusChanges []notify.OrderStatusChanged
	triaged       []notify.ItemTriaged
	payments      []notify.PaymentMethodLinked
}

func (n *recordingNotifier) NotifyItemTriaged(ctx context.Context, evt notify.ItemTriaged) error {
	n.triaged = append(n.triaged, evt)
	return nil
}

func (n *recordingNotifier) NotifyOrderStatusChanged(ctx context.Context, evt notify.OrderStatusChanged) error {
	n.statusChanges = append(n.statusChanges, evt)
	return nil
}

func (n *recordingNotifier) NotifyPaymentMethodLinked(ctx context.Context, evt notify.PaymentMethodLinked) error {
	n.payments = append(n.payments, evt)
	return nil
}

type fakeOrdersClient struct {
	events     []provider.Event
	orders     map[string]*provider.OrderDetail
	orderErrs  map[string]error
	acked      [][]string
	ackErr     error
	pollCalls  int
	orderCalls int
}

func (c *fakeOrdersClient) PollEvents(ctx context.Context, ref provider.StoreRef, merchantIDs []string) ([]provider.Event, error) {
	c.pollCalls++
	return c.events, nil
}

func (c *fakeOrdersClient) AcknowledgeEvents(ctx context.Context, ref provider.StoreRef, eventIDs []string) error {
	c.acked = append(c.acked, eventIDs)
	return c.ackErr
}

func (c *fakeOrdersClient) GetOrder(ctx context.Context, ref provider.StoreRef, orderID string) (*provider.OrderDetail, error) {
	c.orderCalls++
	if err, ok := c.orderErrs[orderID]; ok {
		return nil, err
	}
	detail, ok := c.orders[orderID]
	if !ok {
		return nil, provider.ErrNotFound
	}
	return detail, nil
}

type fakeDeactivator struct {
	calls []string
}

func (d *fakeDeactivator) Deactivate(ctx context.Context, tenantID, storeID int64, reason string) error {
	d.calls = append(d.calls, fmt.Sprintf("%d:%d:%s", tenantID, storeID, reason))
	return nil
}
