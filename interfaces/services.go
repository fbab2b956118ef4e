package interfaces

import (
	"context"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/models"
)

type SyncService interface {
	// StartSync registers the run and continues it in the background.
	StartSync(ctx context.Context, opts dto.SyncOptions) error
	// RunSync runs to a terminal notification and returns once it was emitted.
	RunSync(ctx context.Context, opts dto.SyncOptions) error
	CancelSync(ctx context.Context, account, folder string) bool
	Status(ctx context.Context, account, folder string) *dto.SyncStatus
	Wait()
}

type MutationService interface {
	Enqueue(ctx context.Context, account string, request dto.EnqueueMutation) (*models.QueuedMutation, error)
	List(ctx context.Context, account string) (*models.MutationQueue, error)
	Discard(ctx context.Context, account, mutationID string) (bool, error)
	ProcessAll(ctx context.Context) (dto.MutationSummary, error)
	HandleTrigger(ctx context.Context, tag string) error
}

type CommandHandler interface {
	Handle(ctx context.Context, command dto.Command) (*dto.CommandReply, error)
}

// MutationExecutor performs exactly one remote call for a queued mutation.
// A nil error means the remote accepted it.
type MutationExecutor interface {
	Execute(ctx context.Context, mutation models.QueuedMutation) error
}
