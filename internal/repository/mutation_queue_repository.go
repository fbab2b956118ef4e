package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
)

const MutationQueuePrefix = "mutation_queue_"

var metaStores = []enum.StoreName{enum.StoreMeta}

func MutationQueueKey(account string) string {
	return MutationQueuePrefix + account
}

type mutationQueueRepository struct {
	gateway StoreGateway
}

func NewMutationQueueRepository(gateway StoreGateway) interfaces.MutationQueueRepository {
	return &mutationQueueRepository{gateway: gateway}
}

// ReadAll returns every stored queue whose value is a JSON array. Entries
// under the prefix holding anything else are skipped.
func (r *mutationQueueRepository) ReadAll(ctx context.Context) ([]*models.MutationQueue, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationQueueRepository.ReadAll")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)

	var entries []models.MetaEntry
	err := r.gateway.WithStore(ctx, metaStores, enum.ModeReadOnly, func(tx *gorm.DB) error {
		return tx.Where("meta_key LIKE ?", MutationQueuePrefix+"%").Order("meta_key").Find(&entries).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to read mutation queues: %w", err)
	}

	queues := make([]*models.MutationQueue, 0, len(entries))
	for _, entry := range entries {
		// LIKE treats '_' as a wildcard
		if !strings.HasPrefix(entry.Key, MutationQueuePrefix) {
			continue
		}
		mutations, err := decodeQueue(entry.Value)
		if err != nil {
			span.LogKV("skippedKey", entry.Key)
			continue
		}
		queues = append(queues, &models.MutationQueue{
			Key:       entry.Key,
			AccountID: strings.TrimPrefix(entry.Key, MutationQueuePrefix),
			Mutations: mutations,
		})
	}
	span.LogKV("queues", len(queues))

	return queues, nil
}

func (r *mutationQueueRepository) Get(ctx context.Context, account string) (*models.MutationQueue, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationQueueRepository.Get")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, account)

	key := MutationQueueKey(account)
	queue := &models.MutationQueue{Key: key, AccountID: account, Mutations: []models.QueuedMutation{}}
	err := r.gateway.WithStore(ctx, metaStores, enum.ModeReadOnly, func(tx *gorm.DB) error {
		mutations, err := loadQueue(tx, key)
		if err != nil {
			return err
		}
		queue.Mutations = mutations
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return queue, nil
}

// Enqueue appends a mutation to the account's queue. The id, status and
// creation time are assigned when not set.
func (r *mutationQueueRepository) Enqueue(ctx context.Context, account string, mutation *models.QueuedMutation) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationQueueRepository.Enqueue")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, account)

	if account == "" || mutation == nil {
		return ErrInvalidInput
	}
	if mutation.ID == "" {
		mutation.ID = utils.NewUUID()
	}
	if mutation.Status == "" {
		mutation.Status = enum.MutationPending
	}
	if mutation.CreatedAt.IsZero() {
		mutation.CreatedAt = utils.Now()
	}
	tracing.TagEntity(span, mutation.ID)

	key := MutationQueueKey(account)
	err := r.gateway.WithStore(ctx, metaStores, enum.ModeReadWrite, func(tx *gorm.DB) error {
		mutations, err := loadQueue(tx, key)
		if err != nil {
			return err
		}
		return storeQueue(tx, key, append(mutations, *mutation))
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	return nil
}

func (r *mutationQueueRepository) Save(ctx context.Context, key string, remaining []models.QueuedMutation, snapshotLen int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationQueueRepository.Save")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	span.LogKV("key", key, "remaining", len(remaining), "snapshotLen", snapshotLen)

	err := r.gateway.WithStore(ctx, metaStores, enum.ModeReadWrite, func(tx *gorm.DB) error {
		current, err := loadQueue(tx, key)
		if err != nil {
			return err
		}
		merged := make([]models.QueuedMutation, 0, len(remaining)+len(current))
		merged = append(merged, remaining...)
		if snapshotLen < len(current) {
			merged = append(merged, current[snapshotLen:]...)
		}
		return storeQueue(tx, key, merged)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save mutation queue: %w", err)
	}

	return nil
}

func (r *mutationQueueRepository) Remove(ctx context.Context, account, mutationID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mutationQueueRepository.Remove")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, account)
	tracing.TagEntity(span, mutationID)

	removed := false
	key := MutationQueueKey(account)
	err := r.gateway.WithStore(ctx, metaStores, enum.ModeReadWrite, func(tx *gorm.DB) error {
		mutations, err := loadQueue(tx, key)
		if err != nil {
			return err
		}
		kept := make([]models.QueuedMutation, 0, len(mutations))
		for _, m := range mutations {
			if m.ID == mutationID {
				removed = true
				continue
			}
			kept = append(kept, m)
		}
		if !removed {
			return nil
		}
		return storeQueue(tx, key, kept)
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return false, fmt.Errorf("failed to remove mutation: %w", err)
	}

	return removed, nil
}

// loadQueue reads one queue inside tx. A missing key is an empty queue, a
// non-array value is an error so writers never clobber it.
func loadQueue(tx *gorm.DB, key string) ([]models.QueuedMutation, error) {
	var entry models.MetaEntry
	err := tx.Where("meta_key = ?", key).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.QueuedMutation{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeQueue(entry.Value)
}

func storeQueue(tx *gorm.DB, key string, mutations []models.QueuedMutation) error {
	if mutations == nil {
		mutations = []models.QueuedMutation{}
	}
	value, err := json.Marshal(mutations)
	if err != nil {
		return err
	}
	entry := models.MetaEntry{Key: key, Value: string(value), UpdatedAt: utils.Now()}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

func decodeQueue(value string) ([]models.QueuedMutation, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, ErrQueueCorrupt
	}
	var mutations []models.QueuedMutation
	if err := json.Unmarshal([]byte(trimmed), &mutations); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueCorrupt, err)
	}
	if mutations == nil {
		mutations = []models.QueuedMutation{}
	}
	return mutations, nil
}
