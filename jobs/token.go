package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
)

// CredentialSweeper renews provider credentials nearing expiry.
type CredentialSweeper interface {
	RefreshMarketplace(ctx context.Context) error
	ReloginPOS(ctx context.Context) error
}

// TokenJobs binds the credential sweep to its task type.
type TokenJobs struct {
	sweeper CredentialSweeper
	logger  *slog.Logger
}

func NewTokenJobs(sweeper CredentialSweeper, logger *slog.Logger) *TokenJobs {
	return &TokenJobs{sweeper: sweeper, logger: logger}
}

func (j *TokenJobs) Handlers() []TaskHandler {
	return []TaskHandler{{Type: TaskTokenSweep, Handler: j.HandleSweep}}
}

// HandleSweep runs both provider sweeps. Each sweep isolates per-store
// failures internally, so an error here means the sweep itself could not
// run and the task should retry.
func (j *TokenJobs) HandleSweep(ctx context.Context, t *asynq.Task) error {
	err := errors.Join(
		j.sweeper.RefreshMarketplace(ctx),
		j.sweeper.ReloginPOS(ctx),
	)
	if err != nil {
		return err
	}
	j.logger.Info("credential sweep finished")
	return nil
}
