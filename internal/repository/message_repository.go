package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
)

type messageRepository struct {
	gateway StoreGateway
}

func NewMessageRepository(gateway StoreGateway) interfaces.MessageRepository {
	return &messageRepository{gateway: gateway}
}

// UpsertBatch writes a normalized page in one transaction.
func (r *messageRepository) UpsertBatch(ctx context.Context, messages []*models.CachedMessage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.UpsertBatch")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	span.LogKV("count", len(messages))

	if len(messages) == 0 {
		return nil
	}

	err := r.gateway.WithStore(ctx, []enum.StoreName{enum.StoreMessages}, enum.ModeReadWrite, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(&messages, 100).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, account, id string) (*models.CachedMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagEntity(span, id)

	var message models.CachedMessage
	err := r.gateway.WithStore(ctx, []enum.StoreName{enum.StoreMessages}, enum.ModeReadOnly, func(tx *gorm.DB) error {
		return tx.Where("account = ? AND id = ?", account, id).First(&message).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &message, nil
}

// ListByFolder pages newest first.
func (r *messageRepository) ListByFolder(ctx context.Context, account, folder string, limit, offset int) ([]*models.CachedMessage, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ListByFolder")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, account)
	tracing.TagFolder(span, folder)

	var messages []*models.CachedMessage
	var total int64
	err := r.gateway.WithStore(ctx, []enum.StoreName{enum.StoreMessages}, enum.ModeReadOnly, func(tx *gorm.DB) error {
		query := tx.Model(&models.CachedMessage{}).Where("account = ? AND folder = ?", account, folder).Session(&gorm.Session{})
		if err := query.Count(&total).Error; err != nil {
			return err
		}
		return query.Order("date_ms DESC").Limit(limit).Offset(offset).Find(&messages).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}
	return messages, total, nil
}
