package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/logger"
)

// StoreGateway runs fn against the named stores, see database.Gateway.
type StoreGateway interface {
	WithStore(ctx context.Context, names []enum.StoreName, mode enum.StoreMode, fn func(tx *gorm.DB) error) error
}

type Repositories struct {
	SyncManifestRepository  interfaces.SyncManifestRepository
	FolderRepository        interfaces.FolderRepository
	MessageRepository       interfaces.MessageRepository
	MessageBodyRepository   interfaces.MessageBodyRepository
	MutationQueueRepository interfaces.MutationQueueRepository
}

func InitRepositories(gateway StoreGateway, log logger.Logger) *Repositories {
	return &Repositories{
		SyncManifestRepository:  NewSyncManifestRepository(gateway, log),
		FolderRepository:        NewFolderRepository(gateway),
		MessageRepository:       NewMessageRepository(gateway),
		MessageBodyRepository:   NewMessageBodyRepository(gateway),
		MutationQueueRepository: NewMutationQueueRepository(gateway),
	}
}
