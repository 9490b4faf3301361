package notify

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task types consumed by an external notification worker.
const (
	TaskItemTriaged         = "notify:item_triaged"
	TaskOrderStatusChanged  = "notify:order_status_changed"
	TaskPaymentMethodLinked = "notify:payment_method_linked"
)

// QueueName is the queue notification tasks are published on.
const QueueName = "notify"

// Enqueuer submits prepared tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueNotifier publishes notifications as queue tasks for the external
// presentation layer to consume. Errors surface to the caller, which treats
// delivery as best-effort.
type QueueNotifier struct {
	enqueuer Enqueuer
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(enqueuer Enqueuer) *QueueNotifier {
	return &QueueNotifier{enqueuer: enqueuer}
}

func (n *QueueNotifier) publish(ctx context.Context, taskType string, evt any) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = n.enqueuer.EnqueueContext(ctx, asynq.NewTask(taskType, body, asynq.Queue(QueueName)))
	return err
}

func (n *QueueNotifier) NotifyItemTriaged(ctx context.Context, evt ItemTriaged) error {
	return n.publish(ctx, TaskItemTriaged, evt)
}

func (n *QueueNotifier) NotifyOrderStatusChanged(ctx context.Context, evt OrderStatusChanged) error {
	return n.publish(ctx, TaskOrderStatusChanged, evt)
}

func (n *QueueNotifier) NotifyPaymentMethodLinked(ctx context.Context, evt PaymentMethodLinked) error {
	return n.publish(ctx, TaskPaymentMethodLinked, evt)
}
