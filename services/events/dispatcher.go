package events

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/services/mailsync"
)

// CommandDispatcher routes inbound foreground commands to the sync engine.
type CommandDispatcher struct {
	syncService interfaces.SyncService
	syncConfig  mailsync.Config
}

func NewCommandDispatcher(syncService interfaces.SyncService, syncConfig mailsync.Config) interfaces.CommandHandler {
	return &CommandDispatcher{syncService: syncService, syncConfig: syncConfig}
}

func (d *CommandDispatcher) Handle(ctx context.Context, command dto.Command) (*dto.CommandReply, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "CommandDispatcher.Handle")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, command.AccountID)
	tracing.TagFolder(span, command.FolderID)
	span.SetTag("command.type", command.Type.String())

	reply := &dto.CommandReply{Type: command.Type}

	if command.AccountID == "" || command.FolderID == "" {
		reply.Error = mirrorerrors.ErrInvalidInput.Error()
		return reply, mirrorerrors.ErrInvalidInput
	}

	switch command.Type {
	case enum.CommandStartSync:
		opts := mailsync.OptionsFromCommand(command, d.syncConfig)
		if err := d.syncService.StartSync(ctx, opts); err != nil {
			tracing.TraceErr(span, err)
			reply.Error = err.Error()
			return reply, err
		}
		reply.Accepted = true

	case enum.CommandCancelSync:
		reply.Accepted = d.syncService.CancelSync(ctx, command.AccountID, command.FolderID)

	case enum.CommandSyncStatus:
		reply.Accepted = true
		reply.Status = d.syncService.Status(ctx, command.AccountID, command.FolderID)

	default:
		reply.Error = "unknown command type"
		return reply, mirrorerrors.ErrInvalidInput
	}

	return reply, nil
}
