package jobs

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/comanda-hq/comanda-sync/internal/mapping"
)

// MappingApplier executes one catalog link or detach decision.
type MappingApplier interface {
	ApplyMapping(ctx context.Context, in mapping.ApplyInput) error
}

// MappingJobs binds the mapping resolver to its task type.
type MappingJobs struct {
	resolver MappingApplier
}

func NewMappingJobs(resolver MappingApplier) *MappingJobs {
	return &MappingJobs{resolver: resolver}
}

func (j *MappingJobs) Handlers() []TaskHandler {
	return []TaskHandler{{Type: TaskMappingApply, Handler: j.HandleApply}}
}

func (j *MappingJobs) HandleApply(ctx context.Context, t *asynq.Task) error {
	var payload MappingApplyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return j.resolver.ApplyMapping(ctx, mapping.ApplyInput{
		TenantID:       payload.TenantID,
		ExternalItemID: payload.ExternalItemID,
		Action:         payload.Action,
	})
}
