package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/comanda-hq/comanda-sync/internal/recalc"
)

// Recalculator drives cost recomputation runs.
type Recalculator interface {
	RecalculateOrders(ctx context.Context, tenantID int64, orderIDs []int64) error
	RecalculateForProduct(ctx context.Context, tenantID, productID int64) (recalc.Summary, error)
	RecalculateForPaymentMethod(ctx context.Context, tenantID, mappingID int64) (recalc.Summary, error)
	RecalculateAll(ctx context.Context, tenantID int64) (recalc.Summary, error)
}

// RecalcJobs binds the recalculation dispatcher to its task types.
type RecalcJobs struct {
	dispatcher Recalculator
}

func NewRecalcJobs(dispatcher Recalculator) *RecalcJobs {
	return &RecalcJobs{dispatcher: dispatcher}
}

func (j *RecalcJobs) Handlers() []TaskHandler {
	return []TaskHandler{
		{Type: TaskRecalcOrders, Handler: j.HandleOrders},
		{Type: TaskRecalcProduct, Handler: j.HandleProduct},
		{Type: TaskRecalcPayment, Handler: j.HandlePayment},
		{Type: TaskRecalcAll, Handler: j.HandleAll},
	}
}

func (j *RecalcJobs) HandleOrders(ctx context.Context, t *asynq.Task) error {
	var payload RecalcOrdersPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return j.dispatcher.RecalculateOrders(ctx, payload.TenantID, payload.OrderIDs)
}

func (j *RecalcJobs) HandleProduct(ctx context.Context, t *asynq.Task) error {
	var payload RecalcProductPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.dispatcher.RecalculateForProduct(ctx, payload.TenantID, payload.ProductID)
	return err
}

func (j *RecalcJobs) HandlePayment(ctx context.Context, t *asynq.Task) error {
	var payload RecalcPaymentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.dispatcher.RecalculateForPaymentMethod(ctx, payload.TenantID, payload.PaymentMethodID)
	return err
}

func (j *RecalcJobs) HandleAll(ctx context.Context, t *asynq.Task) error {
	var payload RecalcAllPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.dispatcher.RecalculateAll(ctx, payload.TenantID)
	return err
}
