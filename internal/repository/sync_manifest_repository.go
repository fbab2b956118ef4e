package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/tracing"
	"github.com/customeros/mailmirror/internal/utils"
)

var manifestStores = []enum.StoreName{enum.StoreSyncManifests}

type syncManifestRepository struct {
	gateway StoreGateway
	log     logger.Logger
	now     func() time.Time
}

func NewSyncManifestRepository(gateway StoreGateway, log logger.Logger) interfaces.SyncManifestRepository {
	return &syncManifestRepository{gateway: gateway, log: log, now: utils.Now}
}

// Read retrieves the checkpoint for a folder. Nil means never synced, which is
// also what any storage failure degrades to.
func (r *syncManifestRepository) Read(ctx context.Context, account, folder string) *models.SyncManifest {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncManifestRepository.Read")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, account)
	tracing.TagFolder(span, folder)

	var manifest models.SyncManifest
	err := r.gateway.WithStore(ctx, manifestStores, enum.ModeReadOnly, func(tx *gorm.DB) error {
		return tx.Where("account = ? AND folder = ?", account, folder).First(&manifest).Error
	})
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			tracing.TraceErr(span, err)
			r.log.With(zap.String("account", account), zap.String("folder", folder)).
				WarnMsg("failed to read sync manifest, treating as never synced", err)
		}
		return nil
	}

	return &manifest
}

// Write overwrites the checkpoint for manifest's (account, folder).
func (r *syncManifestRepository) Write(ctx context.Context, manifest *models.SyncManifest) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncManifestRepository.Write")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, manifest.Account)
	tracing.TagFolder(span, manifest.Folder)

	manifest.UpdatedAt = r.now()

	err := r.gateway.WithStore(ctx, manifestStores, enum.ModeReadWrite, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account"}, {Name: "folder"}},
			UpdateAll: true,
		}).Create(manifest).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to write sync manifest: %w", err)
	}

	return nil
}

func (r *syncManifestRepository) Delete(ctx context.Context, account, folder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncManifestRepository.Delete")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)

	err := r.gateway.WithStore(ctx, manifestStores, enum.ModeReadWrite, func(tx *gorm.DB) error {
		return tx.Where("account = ? AND folder = ?", account, folder).Delete(&models.SyncManifest{}).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to delete sync manifest: %w", err)
	}

	return nil
}

func (r *syncManifestRepository) ListByAccount(ctx context.Context, account string) ([]*models.SyncManifest, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncManifestRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentStoreRepository(span)
	tracing.TagAccount(span, account)

	var manifests []*models.SyncManifest
	err := r.gateway.WithStore(ctx, manifestStores, enum.ModeReadOnly, func(tx *gorm.DB) error {
		return tx.Where("account = ?", account).Order("folder").Find(&manifests).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list sync manifests: %w", err)
	}

	return manifests, nil
}
