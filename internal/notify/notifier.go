package notify

import (
	"context"
	"log/slog"
)

// ItemTriaged reports the outcome of a mapping operation on an item.
type ItemTriaged struct {
	TenantID          int64
	OrderID           int64
	OrderCode         string
	ItemID            int64
	ItemName          string
	InternalProductID *int64
	ItemType          string
	Result            string // "mapped" or "classified"
}

// OrderStatusChanged reports a provider-driven status transition.
type OrderStatusChanged struct {
	TenantID       int64
	OrderID        int64
	OrderCode      string
	OldStatus      string
	NewStatus      string
	IsCancellation bool
}

// PaymentMethodLinked reports completion of a payment-method recalculation.
type PaymentMethodLinked struct {
	TenantID          int64
	PaymentMethodID   int64
	RecalculatedCount int
	Success           bool
	ErrorMessage      string
}

// Notifier delivers domain notifications to the presentation layer.
// Delivery is best-effort: callers log failures and move on.
type Notifier interface {
	NotifyItemTriaged(ctx context.Context, evt ItemTriaged) error
	NotifyOrderStatusChanged(ctx context.Context, evt OrderStatusChanged) error
	NotifyPaymentMethodLinked(ctx context.Context, evt PaymentMethodLinked) error
}

// LogNotifier emits notifications as structured log records. It stands in
// for the external notification transport in worker deployments without one.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyItemTriaged(ctx context.Context, evt ItemTriaged) error {
	n.logger.Info("item triaged",
		slog.Int64("tenant_id", evt.TenantID),
		slog.Int64("order_id", evt.OrderID),
		slog.String("order_code", evt.OrderCode),
		slog.Int64("item_id", evt.ItemID),
		slog.String("item_name", evt.ItemName),
		slog.String("item_type", evt.ItemType),
		slog.String("result", evt.Result))
	return nil
}

func (n *LogNotifier) NotifyOrderStatusChanged(ctx context.Context, evt OrderStatusChanged) error {
	n.logger.Info("order status changed",
		slog.Int64("tenant_id", evt.TenantID),
		slog.Int64("order_id", evt.OrderID),
		slog.String("order_code", evt.OrderCode),
		slog.String("old_status", evt.OldStatus),
		slog.String("new_status", evt.NewStatus),
		slog.Bool("cancellation", evt.IsCancellation))
	return nil
}

func (n *LogNotifier) NotifyPaymentMethodLinked(ctx context.Context, evt PaymentMethodLinked) error {
	n.logger.Info("payment method linked",
		slog.Int64("tenant_id", evt.TenantID),
		slog.Int64("payment_method_id", evt.PaymentMethodID),
		slog.Int("recalculated", evt.RecalculatedCount),
		slog.Bool("success", evt.Success),
		slog.String("error", evt.ErrorMessage))
	return nil
}
