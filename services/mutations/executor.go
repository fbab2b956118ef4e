package mutations

import (
	"context"

	"github.com/emersion/go-imap"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
)

type executor struct {
	remote interfaces.RemoteAPI
}

func NewExecutor(remote interfaces.RemoteAPI) interfaces.MutationExecutor {
	return &executor{remote: remote}
}

// Execute maps the mutation onto its single remote call. Flag changes always
// send the full recomputed flag list so a replay is idempotent.
func (e *executor) Execute(ctx context.Context, mutation models.QueuedMutation) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationExecutor.Execute")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, mutation.ID)
	span.SetTag("mutation.type", mutation.Type.String())

	err := e.execute(ctx, mutation)
	if err != nil {
		tracing.TraceErr(span, err)
		return &mirrorerrors.MutationError{MutationID: mutation.ID, Type: mutation.Type.String(), Err: err}
	}
	return nil
}

func (e *executor) execute(ctx context.Context, mutation models.QueuedMutation) error {
	payload := mutation.Payload
	if payload.MessageID == "" {
		return mirrorerrors.ErrInvalidInput
	}
	endpoint := dto.Endpoint{APIBase: mutation.APIBase, Authorization: mutation.AuthHeader}

	switch mutation.Type {
	case enum.MutationToggleRead:
		seen := desiredState(payload.Read, utils.IsSeen(payload.Flags))
		flags := utils.SetFlag(payload.Flags, imap.SeenFlag, seen)
		return e.remote.UpdateMessage(ctx, endpoint, payload.MessageID, payload.Folder, dto.FlagsUpdate(flags))

	case enum.MutationToggleStar:
		flagged := desiredState(payload.Starred, utils.IsFlagged(payload.Flags))
		flags := utils.SetFlag(payload.Flags, imap.FlaggedFlag, flagged)
		return e.remote.UpdateMessage(ctx, endpoint, payload.MessageID, payload.Folder, dto.FlagsUpdate(flags))

	case enum.MutationMove:
		if payload.TargetFolder == "" {
			return mirrorerrors.ErrInvalidInput
		}
		return e.remote.UpdateMessage(ctx, endpoint, payload.MessageID, payload.Folder, dto.MoveUpdate(payload.TargetFolder))

	case enum.MutationDelete:
		return e.remote.DeleteMessage(ctx, endpoint, payload.MessageID, payload.Folder, payload.Permanent)

	case enum.MutationLabel:
		return e.remote.UpdateMessage(ctx, endpoint, payload.MessageID, payload.Folder, dto.LabelsUpdate(payload.Labels))
	}

	return mirrorerrors.ErrUnsupportedMutation
}

// desiredState is the explicit target when given, otherwise the flip of current.
func desiredState(target *bool, current bool) bool {
	return utils.GetOrDefault(target, !current)
}
