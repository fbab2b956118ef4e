package mailsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/repository"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
	"github.com/customeros/mailmirror/services/remote"
)

type Config struct {
	PageSize    int
	MaxMessages int
	FetchBodies bool
}

type Option func(*syncService)

func WithClock(now func() time.Time) Option {
	return func(s *syncService) {
		s.now = now
	}
}

type syncService struct {
	cfg          Config
	log          logger.Logger
	remote       interfaces.RemoteAPI
	repositories *repository.Repositories
	notifier     interfaces.Notifier
	sessions     *SessionRegistry
	now          func() time.Time
	wg           sync.WaitGroup
}

func NewSyncService(cfg Config, log logger.Logger, remoteAPI interfaces.RemoteAPI, repos *repository.Repositories, notifier interfaces.Notifier, opts ...Option) interfaces.SyncService {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	s := &syncService{
		cfg:          cfg,
		log:          log,
		remote:       remoteAPI,
		repositories: repos,
		notifier:     notifier,
		sessions:     NewSessionRegistry(),
		now:          utils.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OptionsFromCommand turns a startSync command into run options, filling
// unset values from cfg.
func OptionsFromCommand(command dto.Command, cfg Config) dto.SyncOptions {
	opts := dto.SyncOptions{
		AccountID:   command.AccountID,
		FolderID:    command.FolderID,
		FetchBodies: command.FetchBodies || cfg.FetchBodies,
		Endpoint: dto.Endpoint{
			APIBase:       command.APIBase,
			Authorization: remote.BasicAuthorization(command.AuthToken),
		},
		PageSize:    command.PageSize,
		MaxMessages: command.MaxMessages,
	}
	if opts.PageSize <= 0 {
		opts.PageSize = cfg.PageSize
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = cfg.MaxMessages
	}
	return opts
}

func (s *syncService) prepare(opts dto.SyncOptions) (dto.SyncOptions, error) {
	if opts.AccountID == "" || opts.FolderID == "" || opts.Endpoint.APIBase == "" {
		return opts, mirrorerrors.ErrInvalidInput
	}
	if opts.PageSize <= 0 {
		opts.PageSize = s.cfg.PageSize
	}
	if opts.MaxMessages < 0 {
		opts.MaxMessages = 0
	}
	return opts, s.sessions.Begin(opts.AccountID, opts.FolderID)
}

func (s *syncService) StartSync(ctx context.Context, opts dto.SyncOptions) error {
	opts, err := s.prepare(opts)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(context.WithoutCancel(ctx), opts)
	}()
	return nil
}

func (s *syncService) RunSync(ctx context.Context, opts dto.SyncOptions) error {
	opts, err := s.prepare(opts)
	if err != nil {
		return err
	}
	s.run(ctx, opts)
	return nil
}

// CancelSync is honored at the next page boundary or body fetch.
func (s *syncService) CancelSync(ctx context.Context, account, folder string) bool {
	cancelled := s.sessions.Cancel(account, folder)
	s.log.With(zap.String("account", account), zap.String("folder", folder)).
		Infof("cancel requested, running: %t", cancelled)
	return cancelled
}

func (s *syncService) Status(ctx context.Context, account, folder string) *dto.SyncStatus {
	manifest := s.repositories.SyncManifestRepository.Read(ctx, account, folder)
	status := dto.SyncStatusFromManifest(account, folder, manifest)
	status.Running = s.sessions.Running(account, folder)
	return status
}

// Wait blocks until every background run has emitted its terminal notification.
func (s *syncService) Wait() {
	s.wg.Wait()
}

type runState struct {
	pages    int
	messages int
	lastUID  string
}

// run drives one sync to exactly one terminal notification. Nothing escapes it.
func (s *syncService) run(ctx context.Context, opts dto.SyncOptions) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, opts.AccountID)
	tracing.TagFolder(span, opts.FolderID)

	log := s.log.With(zap.String("account", opts.AccountID), zap.String("folder", opts.FolderID))
	state := &runState{}

	defer s.sessions.End(opts.AccountID, opts.FolderID)
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("sync panicked: %v", r)
			tracing.TraceErr(span, err)
			log.Error(err)
			s.notify(ctx, dto.NewSyncFailed(opts.AccountID, opts.FolderID, state.pages, state.messages, err))
		}
	}()

	if err := s.fetch(ctx, opts, state, log); err != nil {
		tracing.TraceErr(span, err)
		log.Err("sync failed", err)
		s.notify(ctx, dto.NewSyncFailed(opts.AccountID, opts.FolderID, state.pages, state.messages, err))
	}
	span.LogKV("pages", state.pages, "messages", state.messages)
}

func (s *syncService) fetch(ctx context.Context, opts dto.SyncOptions, state *runState, log logger.Logger) error {
	s.notify(ctx, dto.NewSyncRunning(opts.AccountID, opts.FolderID))

	// paging always restarts at page 1, the previous cursor is informational
	if previous := s.repositories.SyncManifestRepository.Read(ctx, opts.AccountID, opts.FolderID); previous != nil {
		log.Debugf("previous sync: %d pages, %d messages, last uid %s", previous.PagesFetched, previous.MessagesFetched, previous.LastUID)
	}

	if outcome := s.refreshFolders(ctx, opts); outcome != OutcomeOK {
		log.Debugf("folder refresh %s", outcome)
	}

	manifest := &models.SyncManifest{
		Account:       opts.AccountID,
		Folder:        opts.FolderID,
		HasBodiesPass: opts.FetchBodies,
	}

	for page := 1; ; page++ {
		if s.sessions.Cancelled(opts.AccountID, opts.FolderID) {
			log.Infof("sync cancelled after %d pages", state.pages)
			s.notify(ctx, dto.NewSyncCancelled(opts.AccountID, opts.FolderID, state.pages, state.messages))
			return nil
		}

		raw, err := s.remote.ListMessages(ctx, opts.Endpoint, opts.FolderID, page, opts.PageSize)
		if err != nil {
			return errors.Wrapf(err, "fetch page %d", page)
		}
		if len(raw) == 0 {
			break
		}

		now := s.now()
		batch := make([]*models.CachedMessage, 0, len(raw))
		for _, record := range raw {
			batch = append(batch, NormalizeMessage(record, opts.AccountID, opts.FolderID, now))
		}

		keyed := withIDs(batch)
		if err := s.repositories.MessageRepository.UpsertBatch(ctx, keyed); err != nil {
			return errors.Wrapf(err, "store page %d", page)
		}

		if opts.FetchBodies {
			pass := s.fetchBodies(ctx, opts, keyed)
			if pass.skipped > 0 {
				log.Infof("page %d: %d bodies skipped", page, pass.skipped)
			}
		}

		state.pages = page
		state.messages += len(raw)
		state.lastUID = batch[0].ID

		manifest.PagesFetched = state.pages
		manifest.MessagesFetched = state.messages
		manifest.LastUID = state.lastUID
		manifest.LastSyncAt = utils.TimePtr(now)
		if err := s.repositories.SyncManifestRepository.Write(ctx, manifest); err != nil {
			return errors.Wrapf(err, "checkpoint page %d", page)
		}

		s.notify(ctx, dto.NewSyncPageProgress(opts.AccountID, opts.FolderID, state.pages, state.messages, state.lastUID))

		if opts.MaxMessages > 0 && state.messages >= opts.MaxMessages {
			log.Infof("reached max messages %d", opts.MaxMessages)
			break
		}
	}

	lastSyncAt := s.now()
	if manifest.LastSyncAt != nil {
		lastSyncAt = *manifest.LastSyncAt
	}
	log.Infof("sync complete: %d pages, %d messages", state.pages, state.messages)
	s.notify(ctx, dto.NewSyncComplete(opts.AccountID, opts.FolderID, state.pages, state.messages, state.lastUID, lastSyncAt))
	return nil
}

// withIDs drops records the remote sent without any id, they cannot be keyed.
func withIDs(batch []*models.CachedMessage) []*models.CachedMessage {
	out := make([]*models.CachedMessage, 0, len(batch))
	for _, m := range batch {
		if m.ID != "" {
			out = append(out, m)
		}
	}
	return out
}

func (s *syncService) notify(ctx context.Context, notification dto.Notification) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, notification)
	}
}
