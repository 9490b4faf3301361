package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Queue names. Sync passes and recalculation runs are isolated so a large
// recalculation backlog cannot starve ingestion.
const (
	QueueDefault = "default"
	QueueSync    = "sync"
	QueueRecalc  = "recalc"
)

// Task types.
const (
	TaskSyncDispatch  = "sync:dispatch"
	TaskSyncOrders    = "sync:orders"
	TaskSyncSales     = "sync:sales"
	TaskSyncFinancial = "sync:financial"
	TaskSyncMerchant  = "sync:merchant"
	TaskTokenSweep    = "token:sweep"
	TaskMappingApply  = "mapping:apply"
	TaskRecalcOrders  = "recalc:orders"
	TaskRecalcProduct = "recalc:product"
	TaskRecalcPayment = "recalc:payment_method"
	TaskRecalcAll     = "recalc:all"
)

// StorePayload addresses one connected store.
type StorePayload struct {
	TenantID int64 `json:"tenant_id" validate:"required"`
	StoreID  int64 `json:"store_id" validate:"required"`
}

// MappingApplyPayload carries one catalog link or detach decision.
type MappingApplyPayload struct {
	TenantID       int64  `json:"tenant_id" validate:"required"`
	ExternalItemID string `json:"external_item_id" validate:"required"`
	Action         string `json:"action" validate:"required,oneof=link detach"`
}

// RecalcOrdersPayload recomputes an explicit order set.
type RecalcOrdersPayload struct {
	TenantID int64   `json:"tenant_id" validate:"required"`
	OrderIDs []int64 `json:"order_ids" validate:"required,min=1"`
}

// RecalcProductPayload recomputes orders mapped to one internal product.
type RecalcProductPayload struct {
	TenantID  int64 `json:"tenant_id" validate:"required"`
	ProductID int64 `json:"product_id" validate:"required"`
}

// RecalcPaymentPayload recomputes orders referencing one payment method.
type RecalcPaymentPayload struct {
	TenantID        int64 `json:"tenant_id" validate:"required"`
	PaymentMethodID int64 `json:"payment_method_id" validate:"required"`
}

// RecalcAllPayload recomputes a tenant's whole order history.
type RecalcAllPayload struct {
	TenantID int64 `json:"tenant_id" validate:"required"`
}

func newTask(taskType string, payload any, queue string) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(queue)), nil
}

// DispatchPayload selects which pass task types a dispatch round fans out.
// Empty means all of them.
type DispatchPayload struct {
	TaskTypes []string `json:"task_types"`
}

// NewSyncDispatchTask constructs the fan-out task that schedules a sync
// round for the given pass task types across every active store.
func NewSyncDispatchTask(taskTypes ...string) (*asynq.Task, error) {
	return newTask(TaskSyncDispatch, DispatchPayload{TaskTypes: taskTypes}, QueueSync)
}

// NewSyncTask constructs one per-store ingestion pass task. taskType must
// be one of the sync task types.
func NewSyncTask(taskType string, payload StorePayload) (*asynq.Task, error) {
	return newTask(taskType, payload, QueueSync)
}

// NewTokenSweepTask constructs the credential maintenance task.
func NewTokenSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTokenSweep, nil, asynq.Queue(QueueDefault))
}

// NewMappingApplyTask constructs a mapping resolution task.
func NewMappingApplyTask(payload MappingApplyPayload) (*asynq.Task, error) {
	return newTask(TaskMappingApply, payload, QueueRecalc)
}

// NewRecalcOrdersTask constructs an explicit-set recalculation task.
func NewRecalcOrdersTask(payload RecalcOrdersPayload) (*asynq.Task, error) {
	return newTask(TaskRecalcOrders, payload, QueueRecalc)
}

// NewRecalcProductTask constructs a product-scoped recalculation task.
func NewRecalcProductTask(payload RecalcProductPayload) (*asynq.Task, error) {
	return newTask(TaskRecalcProduct, payload, QueueRecalc)
}

// NewRecalcPaymentTask constructs a payment-method recalculation task.
func NewRecalcPaymentTask(payload RecalcPaymentPayload) (*asynq.Task, error) {
	return newTask(TaskRecalcPayment, payload, QueueRecalc)
}

// NewRecalcAllTask constructs a tenant-wide recalculation task.
func NewRecalcAllTask(payload RecalcAllPayload) (*asynq.Task, error) {
	return newTask(TaskRecalcAll, payload, QueueRecalc)
}
