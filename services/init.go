package services

import (
	"github.com/customeros/mailmirror/config"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/database"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/repository"
	"github.com/customeros/mailmirror/services/events"
	"github.com/customeros/mailmirror/services/mailsync"
	"github.com/customeros/mailmirror/services/mutations"
	"github.com/customeros/mailmirror/services/remote"
)

type Services struct {
	EventsService   *events.EventsService
	Gateway         *database.Gateway
	Repositories    *repository.Repositories
	RemoteAPI       interfaces.RemoteAPI
	SyncService     interfaces.SyncService
	MutationService interfaces.MutationService
	CommandHandler  interfaces.CommandHandler
}

func InitServices(cfg *config.Config, log logger.Logger) (*Services, error) {
	eventsService, err := events.NewEventsService(cfg.AppConfig.RabbitMQURL, log, events.DefaultPublisherConfig(), events.DefaultSubscriberConfig())
	if err != nil {
		return nil, err
	}

	dial, err := database.NewDialer(cfg.StoreConfig.DatabaseConfig())
	if err != nil {
		eventsService.Close()
		return nil, err
	}
	gateway := database.NewGateway(cfg.StoreConfig.GatewayConfig(), dial, eventsService.Bus, log)
	repos := repository.InitRepositories(gateway, log)

	remoteAPI := remote.NewClient(cfg.RemoteConfig.ClientConfig())
	syncConfig := cfg.SyncConfig.ServiceConfig()
	syncService := mailsync.NewSyncService(syncConfig, log, remoteAPI, repos, eventsService.Bus)
	mutationService := mutations.NewMutationService(
		cfg.MutationConfig.ProcessorConfig(),
		log,
		repos.MutationQueueRepository,
		mutations.NewExecutor(remoteAPI),
		eventsService.Bus,
	)

	services := Services{
		EventsService:   eventsService,
		Gateway:         gateway,
		Repositories:    repos,
		RemoteAPI:       remoteAPI,
		SyncService:     syncService,
		MutationService: mutationService,
		CommandHandler:  events.NewCommandDispatcher(syncService, syncConfig),
	}

	return &services, nil
}

// Close waits for background syncs and releases the store and broker.
func (s *Services) Close() error {
	s.SyncService.Wait()
	storeErr := s.Gateway.Close()
	eventsErr := s.EventsService.Close()
	if storeErr != nil {
		return storeErr
	}
	return eventsErr
}
