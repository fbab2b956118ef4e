package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"

	"github.com/customeros/mailmirror/api"
	"github.com/customeros/mailmirror/config"
	"github.com/customeros/mailmirror/internal/cron"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/services"
)

const (
	shutdownTimeout  = 15 * time.Second
	syncDrainTimeout = 10 * time.Second
)

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, log logger.Logger) (*Server, error) {
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, log)
	if err != nil {
		return nil, fmt.Errorf("could not initialize jaeger tracer: %w", err)
	}
	opentracing.SetGlobalTracer(tracer)

	svcs, err := services.InitServices(cfg, log)
	if err != nil {
		closer.Close()
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          log,
		router:       router,
		services:     svcs,
		cronManager:  cron.NewCronManager(cfg.CronConfig, log, svcs.MutationService),
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) Initialize(ctx context.Context) error {
	// Open the store up front so a broken database is reported at boot.
	store, err := s.services.Gateway.Open(ctx)
	if err != nil {
		return err
	}
	s.log.Infof("local store ready, schema version %d", store.Version())

	if err := s.services.EventsService.ListenForCommands(s.log, s.services.CommandHandler); err != nil {
		return err
	}

	api.RegisterRoutes(s.router, s.services, s.services.Repositories, s.config.AppConfig.APIKey)

	return s.cronManager.StartCron()
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer tracing.RecoverAndLogToJaeger(s.log.With(zap.String("goroutine", name)))
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		s.shutdown()
		return err
	}

	go s.wrapGoroutine("http_server", func() {
		s.log.Infof("starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("HTTP server error: %v", err)
		}
	})
	s.log.Info("mailmirror is running")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer tracing.RecoverAndLogToJaeger(s.log)

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-signalCtx.Done()
	s.log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("HTTP server shutdown error: %v", err)
	}

	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	s.cronManager.Stop()

	closed := make(chan struct{})
	go s.wrapGoroutine("services_shutdown", func() {
		defer close(closed)
		if err := s.services.Close(); err != nil {
			s.log.Errorf("services shutdown error: %v", err)
		}
	})

	select {
	case <-closed:
	case <-time.After(syncDrainTimeout):
		s.log.Warn("services shutdown timed out, forcing exit")
	}

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}
}
