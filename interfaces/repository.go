package interfaces

import (
	"context"

	"github.com/customeros/mailmirror/internal/models"
)

// SyncManifestRepository persists one checkpoint per (account, folder).
// Read never fails: any problem is logged and reported as "never synced".
type SyncManifestRepository interface {
	Read(ctx context.Context, account, folder string) *models.SyncManifest
	Write(ctx context.Context, manifest *models.SyncManifest) error
	Delete(ctx context.Context, account, folder string) error
	ListByAccount(ctx context.Context, account string) ([]*models.SyncManifest, error)
}

type FolderRepository interface {
	UpsertFolders(ctx context.Context, folders []*models.CachedFolder) error
	ListByAccount(ctx context.Context, account string) ([]*models.CachedFolder, error)
}

type MessageRepository interface {
	UpsertBatch(ctx context.Context, messages []*models.CachedMessage) error
	GetByID(ctx context.Context, account, id string) (*models.CachedMessage, error)
	ListByFolder(ctx context.Context, account, folder string, limit, offset int) ([]*models.CachedMessage, int64, error)
}

type MessageBodyRepository interface {
	Upsert(ctx context.Context, body *models.CachedMessageBody) error
	GetByID(ctx context.Context, account, id string) (*models.CachedMessageBody, error)
}

// MutationQueueRepository stores one ordered queue per account in the meta store.
type MutationQueueRepository interface {
	ReadAll(ctx context.Context) ([]*models.MutationQueue, error)
	Get(ctx context.Context, account string) (*models.MutationQueue, error)
	Enqueue(ctx context.Context, account string, mutation *models.QueuedMutation) error
	// Save replaces the first snapshotLen entries of the stored queue with
	// remaining and keeps anything appended after the snapshot was read.
	Save(ctx context.Context, key string, remaining []models.QueuedMutation, snapshotLen int) error
	// Remove drops a single mutation by id, typically a dead-lettered one.
	Remove(ctx context.Context, account, mutationID string) (bool, error)
}
