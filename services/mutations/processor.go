package mutations

import (
	"context"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
)

// saveTimeout bounds the queue write that closes a pass, which runs even when
// the pass itself was cancelled.
const saveTimeout = 5 * time.Second

type Config struct {
	MaxRetries int
	// BackoffMin of zero disables retry delays, every trigger retries.
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BackoffFactor float64
}

type Option func(*processor)

func WithClock(now func() time.Time) Option {
	return func(p *processor) {
		p.now = now
	}
}

type processor struct {
	cfg      Config
	log      logger.Logger
	repo     interfaces.MutationQueueRepository
	executor interfaces.MutationExecutor
	notifier interfaces.Notifier
	backoff  *backoff.Backoff
	// one pass at a time, queues are read-modify-write
	sem *semaphore.Weighted
	now func() time.Time
}

func NewMutationService(cfg Config, log logger.Logger, repo interfaces.MutationQueueRepository, executor interfaces.MutationExecutor, notifier interfaces.Notifier, opts ...Option) interfaces.MutationService {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}
	p := &processor{
		cfg:      cfg,
		log:      log,
		repo:     repo,
		executor: executor,
		notifier: notifier,
		backoff: &backoff.Backoff{
			Min:    cfg.BackoffMin,
			Max:    cfg.BackoffMax,
			Factor: cfg.BackoffFactor,
			Jitter: false,
		},
		sem: semaphore.NewWeighted(1),
		now: utils.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *processor) Enqueue(ctx context.Context, account string, request dto.EnqueueMutation) (*models.QueuedMutation, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationService.Enqueue")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account)
	tracing.LogObjectAsJson(span, "request", request)

	if account == "" || !request.Type.IsValid() || request.APIBase == "" || request.Payload.MessageID == "" {
		return nil, mirrorerrors.ErrInvalidInput
	}

	mutation := &models.QueuedMutation{
		ID:         utils.NewUUID(),
		Type:       request.Type,
		Payload:    request.Payload,
		APIBase:    request.APIBase,
		AuthHeader: request.AuthHeader,
		Status:     enum.MutationPending,
		CreatedAt:  p.now(),
	}
	if err := p.repo.Enqueue(ctx, account, mutation); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return mutation, nil
}

func (p *processor) List(ctx context.Context, account string) (*models.MutationQueue, error) {
	return p.repo.Get(ctx, account)
}

// Discard removes one mutation, usually after the foreground has shown a
// dead-lettered action to the user.
func (p *processor) Discard(ctx context.Context, account, mutationID string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	return p.repo.Remove(ctx, account, mutationID)
}

// HandleTrigger runs a full pass for the connectivity-restored trigger and
// returns once it has finished.
func (p *processor) HandleTrigger(ctx context.Context, tag string) error {
	if tag != enum.TriggerMutationQueue {
		return mirrorerrors.ErrUnknownTrigger
	}
	_, err := p.ProcessAll(ctx)
	return err
}

// ProcessAll replays every queue once and emits exactly one
// mutationQueueProcessed notification.
func (p *processor) ProcessAll(ctx context.Context) (dto.MutationSummary, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationService.ProcessAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	var summary dto.MutationSummary
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return summary, err
	}
	defer p.sem.Release(1)

	queues, err := p.repo.ReadAll(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		p.log.Err("failed to read mutation queues", err)
		summary.Error = err.Error()
		p.notify(ctx, summary)
		return summary, err
	}

	summary.Queues = len(queues)
	var saveErrors []string
	for _, queue := range queues {
		if err := p.processQueue(ctx, queue, &summary); err != nil {
			tracing.TraceErr(span, err)
			saveErrors = append(saveErrors, err.Error())
		}
	}
	if ctx.Err() != nil {
		saveErrors = append(saveErrors, "pass interrupted: "+ctx.Err().Error())
	}
	if len(saveErrors) > 0 {
		summary.Error = strings.Join(saveErrors, "; ")
	}

	tracing.LogObjectAsJson(span, "summary", summary)
	p.notify(context.WithoutCancel(ctx), summary)
	return summary, nil
}

// processQueue replays one account's queue. Once ctx is done no further
// mutation is attempted and the untouched ones stay queued as they were. The
// outcome is persisted on a detached context so completed mutations are
// pruned even when the pass was cancelled midway.
func (p *processor) processQueue(ctx context.Context, queue *models.MutationQueue, summary *dto.MutationSummary) error {
	log := p.log.With(zap.String("account", queue.AccountID))
	snapshotLen := len(queue.Mutations)
	remaining := make([]models.QueuedMutation, 0, snapshotLen)
	changed := false

	for i := range queue.Mutations {
		mutation := &queue.Mutations[i]
		now := p.now()

		switch {
		case mutation.Status == enum.MutationCompleted:
			changed = true
		case mutation.Status == enum.MutationFailed && mutation.RetryCount >= p.cfg.MaxRetries:
			summary.DeadLettered++
		case mutation.NextRetryAt != nil && mutation.NextRetryAt.After(now):
			summary.Deferred++
		case ctx.Err() != nil:
			summary.Interrupted++
		default:
			if p.attempt(ctx, mutation, now, summary, log) {
				changed = true
			} else {
				summary.Interrupted++
			}
		}

		if mutation.Status != enum.MutationCompleted {
			remaining = append(remaining, *mutation)
		}
	}

	summary.Remaining += len(remaining)
	if !changed {
		return nil
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := p.repo.Save(saveCtx, queue.Key, remaining, snapshotLen); err != nil {
		log.Err("failed to save mutation queue", err)
		return err
	}
	return nil
}

// attempt executes one mutation and records the outcome on it. It reports
// false, leaving the mutation unchanged, when the call failed because ctx was
// cancelled.
func (p *processor) attempt(ctx context.Context, mutation *models.QueuedMutation, now time.Time, summary *dto.MutationSummary, log logger.Logger) bool {
	previous := mutation.Status
	mutation.Status = enum.MutationProcessing
	err := p.executor.Execute(ctx, *mutation)
	if err != nil && ctx.Err() != nil {
		mutation.Status = previous
		log.With(zap.String("mutationId", mutation.ID)).
			Infof("mutation %s interrupted: %v", mutation.Type, err)
		return false
	}

	summary.Attempted++
	if err == nil {
		mutation.Status = enum.MutationCompleted
		mutation.NextRetryAt = nil
		mutation.LastError = ""
		summary.Completed++
		return true
	}

	mutation.RetryCount++
	mutation.LastError = err.Error()
	if mutation.RetryCount >= p.cfg.MaxRetries {
		mutation.Status = enum.MutationFailed
		mutation.NextRetryAt = nil
		summary.Failed++
		log.With(zap.String("mutationId", mutation.ID)).
			Warnf("mutation %s dead-lettered after %d attempts: %v", mutation.Type, mutation.RetryCount, err)
		return true
	}

	mutation.Status = enum.MutationPending
	mutation.NextRetryAt = p.nextRetryAt(now, mutation.RetryCount)
	summary.Retrying++
	log.With(zap.String("mutationId", mutation.ID)).
		Infof("mutation %s failed (attempt %d): %v", mutation.Type, mutation.RetryCount, err)
	return true
}

func (p *processor) nextRetryAt(now time.Time, retryCount int) *time.Time {
	if p.cfg.BackoffMin <= 0 {
		return nil
	}
	return utils.TimePtr(now.Add(p.backoff.ForAttempt(float64(retryCount - 1))))
}

func (p *processor) notify(ctx context.Context, summary dto.MutationSummary) {
	if p.notifier != nil {
		p.notifier.Notify(ctx, dto.NewMutationQueueProcessed(summary))
	}
}
