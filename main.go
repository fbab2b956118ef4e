package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailmirror/config"
	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/server"
	"github.com/customeros/mailmirror/services"
	"github.com/customeros/mailmirror/services/mailsync"
)

func main() {
	app := &cli.App{
		Name:  "mailmirror",
		Usage: "offline mail mirror with a queued mutation replay",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Open the local store and bring its schema up to date",
				Action: runMigrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
			{
				Name:  "sync",
				Usage: "Run one folder sync in the foreground",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Required: true},
					&cli.StringFlag{Name: "folder", Required: true},
					&cli.StringFlag{Name: "api-base", Required: true, EnvVars: []string{"REMOTE_API_BASE"}},
					&cli.StringFlag{Name: "token", EnvVars: []string{"REMOTE_AUTH_TOKEN"}},
					&cli.BoolFlag{Name: "bodies", Usage: "fetch full bodies after the header pass"},
					&cli.IntFlag{Name: "page-size"},
					&cli.IntFlag{Name: "max-messages"},
				},
				Action: runSync,
			},
			{
				Name:   "replay",
				Usage:  "Replay every queued mutation once",
				Action: runReplay,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mailmirror: %v", err)
	}
}

func setup() (*config.Config, logger.Logger, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("config is empty")
	}
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	return cfg, appLogger, nil
}

func withServices(fn func(ctx context.Context, s *services.Services, cfg *config.Config) error) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	svcs, err := services.InitServices(cfg, appLogger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, svcs, cfg)
}

func runMigrate(c *cli.Context) error {
	return withServices(func(ctx context.Context, s *services.Services, _ *config.Config) error {
		store, err := s.Gateway.Open(ctx)
		if err != nil {
			return err
		}
		log.Printf("local store at schema version %d", store.Version())
		return nil
	})
}

func runServer(c *cli.Context) error {
	cfg, appLogger, err := setup()
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	srv, err := server.NewServer(cfg, appLogger)
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	appLogger.Info("shutdown complete")
	return nil
}

func runSync(c *cli.Context) error {
	return withServices(func(ctx context.Context, s *services.Services, cfg *config.Config) error {
		notifications, unsubscribe := s.EventsService.Bus.Subscribe(64)
		defer unsubscribe()
		go printNotifications(notifications, enum.NotificationSyncProgress)

		opts := mailsync.OptionsFromCommand(dto.Command{
			Type:        enum.CommandStartSync,
			AccountID:   c.String("account"),
			FolderID:    c.String("folder"),
			FetchBodies: c.Bool("bodies"),
			APIBase:     c.String("api-base"),
			AuthToken:   c.String("token"),
			PageSize:    c.Int("page-size"),
			MaxMessages: c.Int("max-messages"),
		}, cfg.SyncConfig.ServiceConfig())

		if err := s.SyncService.RunSync(ctx, opts); err != nil {
			return err
		}
		status := s.SyncService.Status(ctx, opts.AccountID, opts.FolderID)
		return printJSON(status)
	})
}

func runReplay(c *cli.Context) error {
	return withServices(func(ctx context.Context, s *services.Services, _ *config.Config) error {
		summary, err := s.MutationService.ProcessAll(ctx)
		if err != nil {
			return err
		}
		return printJSON(summary)
	})
}

func printNotifications(notifications <-chan dto.Notification, only enum.NotificationType) {
	for n := range notifications {
		if n.Type != only || n.SyncProgress == nil {
			continue
		}
		log.Printf("%s/%s %s pages=%d messages=%d", n.SyncProgress.AccountID, n.SyncProgress.FolderID, n.SyncProgress.Status, n.SyncProgress.PagesDone, n.SyncProgress.MessagesDone)
	}
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
