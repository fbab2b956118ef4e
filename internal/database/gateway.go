package database

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/tracing"
)

type GatewayConfig struct {
	// BlockedTimeout bounds how long a single open waits on a blocked store.
	BlockedTimeout time.Duration
	// OpenRetries is the number of attempts for abort/unknown failures.
	OpenRetries  int
	RetryDelay   time.Duration
	PollInterval time.Duration
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		BlockedTimeout: 10 * time.Second,
		OpenRetries:    3,
		RetryDelay:     200 * time.Millisecond,
		PollInterval:   100 * time.Millisecond,
	}
}

// Gateway opens and recovers the local store and hands out scoped
// transactions on it.
type Gateway struct {
	cfg      GatewayConfig
	dial     Dialer
	notifier interfaces.Notifier
	log      logger.Logger

	mu    sync.Mutex
	store *Store
}

func NewGateway(cfg GatewayConfig, dial Dialer, notifier interfaces.Notifier, log logger.Logger) *Gateway {
	defaults := DefaultGatewayConfig()
	if cfg.BlockedTimeout <= 0 {
		cfg.BlockedTimeout = defaults.BlockedTimeout
	}
	if cfg.OpenRetries <= 0 {
		cfg.OpenRetries = defaults.OpenRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	return &Gateway{cfg: cfg, dial: dial, notifier: notifier, log: log}
}

// Open returns the cached store or opens it. Blocked opens are waited on up
// to BlockedTimeout, transient failures are retried with increasing delay.
func (g *Gateway) Open(ctx context.Context) (*Store, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.store != nil {
		return g.store, nil
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "Gateway.Open")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)

	var lastErr error
	for attempt := 0; attempt < g.cfg.OpenRetries; attempt++ {
		store, err := g.openOnce(ctx)
		if err == nil {
			span.LogKV("schemaVersion", store.version, "attempts", attempt+1)
			g.store = store
			return store, nil
		}
		lastErr = err

		kind := mirrorerrors.KindOf(err)
		if !kind.Transient() || attempt == g.cfg.OpenRetries-1 {
			break
		}

		delay := g.cfg.RetryDelay * time.Duration(attempt+1)
		g.log.Warnf("store open attempt %d failed (%s), retrying in %s: %v", attempt+1, kind, delay, err)
		select {
		case <-ctx.Done():
			lastErr = mirrorerrors.NewStorageError("open", mirrorerrors.KindCancelled, ctx.Err())
			attempt = g.cfg.OpenRetries
		case <-time.After(delay):
		}
	}

	tracing.TraceErr(span, lastErr)
	g.report(ctx, "open", lastErr)
	return nil, lastErr
}

type openResult struct {
	db      *gorm.DB
	version int
	err     error
}

// openOnce dials and prepares the schema, polling while the store reports
// itself blocked.
func (g *Gateway) openOnce(parent context.Context) (*Store, error) {
	ctx, cancel := context.WithTimeout(parent, g.cfg.BlockedTimeout)
	defer cancel()

	for {
		res := g.dialAndPrepare(ctx)
		if res.err == nil {
			return &Store{db: res.db, version: res.version, gateway: g}, nil
		}

		kind := classify(res.err)
		if ctx.Err() != nil {
			return nil, g.deadlineError(parent, res.err)
		}
		if kind != mirrorerrors.KindBlocked {
			return nil, mirrorerrors.NewStorageError("open", kind, res.err)
		}

		g.log.Debugf("store open blocked, waiting: %v", res.err)
		select {
		case <-ctx.Done():
			return nil, g.deadlineError(parent, res.err)
		case <-time.After(g.cfg.PollInterval):
		}
	}
}

func (g *Gateway) deadlineError(parent context.Context, cause error) error {
	if parent.Err() != nil {
		return mirrorerrors.NewStorageError("open", mirrorerrors.KindCancelled, parent.Err())
	}
	g.log.Warnf("store open blocked for more than %s: %v", g.cfg.BlockedTimeout, cause)
	return mirrorerrors.NewStorageError("open", mirrorerrors.KindBlockedTimeout, mirrorerrors.ErrBlockedTimeout)
}

// dialAndPrepare runs the dial in its own goroutine so a dialer that ignores
// ctx cannot hang the open. A connection that arrives late is closed.
func (g *Gateway) dialAndPrepare(ctx context.Context) openResult {
	ch := make(chan openResult, 1)
	go func() {
		db, err := g.dial(ctx)
		if err != nil {
			ch <- openResult{err: err}
			return
		}
		version, err := ensureSchema(ctx, db)
		if err != nil {
			closeDB(db)
			ch <- openResult{err: err}
			return
		}
		ch <- openResult{db: db, version: version}
	}()

	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.db != nil {
				closeDB(res.db)
			}
		}()
		return openResult{err: ctx.Err()}
	}
}

// WithStore opens the store if needed and runs fn against it.
func (g *Gateway) WithStore(ctx context.Context, names []enum.StoreName, mode enum.StoreMode, fn func(tx *gorm.DB) error) error {
	store, err := g.Open(ctx)
	if err != nil {
		return err
	}
	err = store.WithStore(ctx, names, mode, fn)
	if mirrorerrors.KindOf(err) == mirrorerrors.KindClosed {
		g.invalidate(store)
	}
	return err
}

func (g *Gateway) invalidate(store *Store) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.store == store {
		closeDB(store.db)
		g.store = nil
	}
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.store == nil {
		return nil
	}
	sqlDB, err := g.store.db.DB()
	g.store = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// report emits a dbError notification for an open failure or schema mismatch.
func (g *Gateway) report(ctx context.Context, op string, err error) {
	kind := mirrorerrors.KindOf(err)
	g.log.With(zap.String("op", op), zap.String("kind", kind.String())).Err("store failure", err)
	if g.notifier == nil {
		return
	}
	g.notifier.Notify(ctx, dto.NewDBError(op, kind.String(), err, kind.Recoverable()))
}

// Store is an opened local mirror.
type Store struct {
	db      *gorm.DB
	version int
	gateway *Gateway
}

func (s *Store) Version() int {
	return s.version
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithStore verifies every named store exists and runs fn. readwrite runs in
// a transaction that rolls back when fn fails. fn must only use tx.
func (s *Store) WithStore(ctx context.Context, names []enum.StoreName, mode enum.StoreMode, fn func(tx *gorm.DB) error) error {
	missing, err := missingStores(ctx, s.db, names)
	if err != nil {
		return mirrorerrors.NewStorageError("withStore", storeLookupKind(ctx, err), err)
	}
	if len(missing) > 0 {
		err := &mirrorerrors.SchemaMismatchError{Missing: missing}
		s.gateway.report(ctx, "withStore", err)
		return err
	}

	db := s.db.WithContext(ctx)
	if mode == enum.ModeReadWrite {
		err = db.Transaction(fn)
	} else {
		err = fn(db.Session(&gorm.Session{}))
	}
	if err == nil {
		return nil
	}

	var storageErr *mirrorerrors.StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return mirrorerrors.NewStorageError("transaction", classify(err), err)
}

// storeLookupKind classifies a failed catalog lookup. A cancelled caller wins
// over whatever the driver reported for the interrupted query.
func storeLookupKind(ctx context.Context, err error) mirrorerrors.Kind {
	if errors.Is(ctx.Err(), context.Canceled) {
		return mirrorerrors.KindCancelled
	}
	return classify(err)
}
