package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler binds a task type to its handler during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Logger    *slog.Logger
	Handlers  []TaskHandler
	Cron      []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			QueueSync:    3,
			QueueRecalc:  2,
			QueueDefault: 1,
		},
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client}, nil
}

// EnqueueContext submits a prepared task.
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Enqueuer is the submission surface handlers and services depend on.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// LinkMarker flags a catalog item as pending resolution when the mapping
// task is accepted, so operators can see in-flight operations.
type LinkMarker interface {
	SetLinkingSince(ctx context.Context, tenantID int64, externalItemID string) error
}

// Handler exposes HTTP endpoints to observe queues and enqueue work.
type Handler struct {
	inspector *asynq.Inspector
	enqueuer  Enqueuer
	markers   LinkMarker
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector *asynq.Inspector, enqueuer Enqueuer, markers LinkMarker, logger *slog.Logger) *Handler {
	return &Handler{
		inspector: inspector,
		enqueuer:  enqueuer,
		markers:   markers,
		validate:  validator.New(),
		logger:    logger,
	}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/sync", h.enqueueSync)
	r.Post("/mapping", h.enqueueMapping)
	r.Post("/recalc/orders", h.enqueueRecalcOrders)
	r.Post("/recalc/product", h.enqueueRecalcProduct)
	r.Post("/recalc/payment-method", h.enqueueRecalcPayment)
	r.Post("/recalc/all", h.enqueueRecalcAll)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		writeJSON(w, http.StatusOK, map[string]any{"queue": QueueSync, "pending": 0})
		return
	}
	pending := 0
	for _, queue := range []string{QueueSync, QueueRecalc, QueueDefault} {
		info, err := h.inspector.GetQueueInfo(queue)
		if err != nil {
			continue
		}
		pending += info.Pending
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

type syncRequest struct {
	TenantID int64  `json:"tenant_id" validate:"required"`
	StoreID  int64  `json:"store_id" validate:"required"`
	Module   string `json:"module" validate:"required,oneof=orders sales financial merchant"`
}

var syncTaskByModule = map[string]string{
	"orders":    TaskSyncOrders,
	"sales":     TaskSyncSales,
	"financial": TaskSyncFinancial,
	"merchant":  TaskSyncMerchant,
}

func (h *Handler) enqueueSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !h.decode(w, r, &req) {
		return
	}
	task, err := NewSyncTask(syncTaskByModule[req.Module], StorePayload{TenantID: req.TenantID, StoreID: req.StoreID})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.submit(w, r, task)
}

func (h *Handler) enqueueMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingApplyPayload
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.markers.SetLinkingSince(r.Context(), req.TenantID, req.ExternalItemID); err != nil {
		h.logger.Warn("set linking marker", slog.Any("error", err))
	}
	task, err := NewMappingApplyTask(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.submit(w, r, task)
}

func (h *Handler) enqueueRecalcOrders(w http.ResponseWriter, r *http.Request) {
	var req RecalcOrdersPayload
	if !h.decode(w, r, &req) {
		return
	}
	task, err := NewRecalcOrdersTask(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.submit(w, r, task)
}

func (h *Handler) enqueueRecalcProduct(w http.ResponseWriter, r *http.Request) {
	var req RecalcProductPayload
	if !h.decode(w, r, &req) {
		return
	}
	task, err := NewRecalcProductTask(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.submit(w, r, task)
}

func (h *Handler) enqueueRecalcPayment(w http.ResponseWriter, r *http.Request) {
	var req RecalcPaymentPayload
	if !h.decode(w, r, &req) {
		return
	}
	task, err := NewRecalcPaymentTask(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.submit(w, r, task)
}

func (h *Handler) enqueueRecalcAll(w http.ResponseWriter, r *http.Request) {
	var req RecalcAllPayload
	if !h.decode(w, r, &req) {
		return
	}
	task, err := NewRecalcAllTask(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.submit(w, r, task)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}
	return true
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, task *asynq.Task) {
	info, err := h.enqueuer.EnqueueContext(r.Context(), task)
	if err != nil {
		h.logger.Error("enqueue task", slog.String("type", task.Type()), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id": info.ID,
		"queue":   info.Queue,
		"type":    info.Type,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
