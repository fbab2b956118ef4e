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

type messageBodyRepository struct {
	gateway StoreGateway
}

func NewMessageBodyRepository(gateway StoreGateway) interfaces.MessageBodyRepository {
	return &messageBodyRepository{gateway: gateway}
}

func (r *messageBodyRepository) Upsert(ctx context.Context, body *models.CachedMessageBody) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagEntity(span, body.ID)

	err := r.gateway.WithStore(ctx, []enum.StoreName{enum.StoreMessageBodies}, enum.ModeReadWrite, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "id"}},
			UpdateAll: true,
		}).Create(body).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *messageBodyRepository) GetByID(ctx context.Context, account, id string) (*models.CachedMessageBody, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageBodyRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagEntity(span, id)

	var body models.CachedMessageBody
	err := r.gateway.WithStore(ctx, []enum.StoreName{enum.StoreMessageBodies}, enum.ModeReadOnly, func(tx *gorm.DB) error {
		return tx.Where("account = ? AND id = ?", account, id).First(&body).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &body, nil
}
