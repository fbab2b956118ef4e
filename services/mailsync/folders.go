package mailsync

import (
	"context"
	"strings"

	"github.com/emersion/go-imap/utf7"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
)

// Outcome is the result of a best-effort step. Ignored steps were logged and
// never change the course of the run.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeIgnored
)

func (o Outcome) String() string {
	if o == OutcomeOK {
		return "ok"
	}
	return "ignored"
}

// refreshFolders mirrors the remote folder list. Failures are ignored.
func (s *syncService) refreshFolders(ctx context.Context, opts dto.SyncOptions) Outcome {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.refreshFolders")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	log := s.log.With(zap.String("account", opts.AccountID))

	raw, err := s.remote.ListFolders(ctx, opts.Endpoint)
	if err != nil {
		tracing.TraceErr(span, err)
		log.WarnMsg("folder refresh failed, continuing sync", err)
		return OutcomeIgnored
	}

	now := s.now()
	folders := make([]*models.CachedFolder, 0, len(raw))
	for _, record := range raw {
		if folder, ok := NormalizeFolder(record, opts.AccountID, now); ok {
			folders = append(folders, folder)
		}
	}

	if err := s.repositories.FolderRepository.UpsertFolders(ctx, folders); err != nil {
		tracing.TraceErr(span, err)
		log.WarnMsg("failed to store folders, continuing sync", err)
		return OutcomeIgnored
	}

	span.LogKV("folders", len(folders))
	return OutcomeOK
}

// decodeFolderName turns IMAP modified UTF-7 names into readable text. Names
// that are not valid modified UTF-7 are returned unchanged.
func decodeFolderName(name string) string {
	if !strings.Contains(name, "&") {
		return name
	}
	decoded, err := utf7.Encoding.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return decoded
}
