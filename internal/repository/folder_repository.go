package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
)

type folderRepository struct {
	gateway StoreGateway
}

func NewFolderRepository(gateway StoreGateway) interfaces.FolderRepository {
	return &folderRepository{gateway: gateway}
}

func (r *folderRepository) UpsertFolders(ctx context.Context, folders []*models.CachedFolder) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.UpsertFolders")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	span.LogKV("count", len(folders))

	if len(folders) == 0 {
		return nil
	}

	err := r.gateway.WithStore(ctx, []enum.StoreName{enum.StoreFolders}, enum.ModeReadWrite, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "path"}},
			UpdateAll: true,
		}).Create(&folders).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *folderRepository) ListByAccount(ctx context.Context, account string) ([]*models.CachedFolder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, account)

	var folders []*models.CachedFolder
	err := r.gateway.WithStore(ctx, []enum.StoreName{enum.StoreFolders}, enum.ModeReadOnly, func(tx *gorm.DB) error {
		return tx.Where("account = ?", account).Order("path").Find(&folders).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return folders, nil
}
