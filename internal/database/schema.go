package database

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/utils"
)

const SchemaVersionKey = "schema_version"

var storeModels = map[enum.StoreName]interface{}{
	enum.StoreFolders:       &models.CachedFolder{},
	enum.StoreMessages:      &models.CachedMessage{},
	enum.StoreMessageBodies: &models.CachedMessageBody{},
	enum.StoreSyncManifests: &models.SyncManifest{},
	enum.StoreMeta:          &models.MetaEntry{},
}

// ensureSchema creates every store on a fresh database and, on an existing
// one, adds only the missing stores while bumping the recorded version by
// one. Existing stores are never altered, so a newer client's schema is left
// untouched.
func ensureSchema(ctx context.Context, db *gorm.DB) (int, error) {
	db = db.WithContext(ctx)

	existing, err := existingStores(db)
	if err != nil {
		return 0, err
	}

	var missing []interface{}
	for _, name := range enum.RequiredStores {
		if !existing[name.String()] {
			missing = append(missing, storeModels[name])
		}
	}

	if len(missing) == 0 {
		return readSchemaVersion(db), nil
	}

	if len(missing) == len(enum.RequiredStores) {
		if err := db.AutoMigrate(missing...); err != nil {
			return 0, errors.Wrap(err, "create stores")
		}
		return 1, writeSchemaVersion(db, 1)
	}

	version := 1
	if existing[enum.StoreMeta.String()] {
		version = readSchemaVersion(db) + 1
	}
	if err := db.AutoMigrate(missing...); err != nil {
		return 0, errors.Wrap(err, "add missing stores")
	}
	return version, writeSchemaVersion(db, version)
}

// existingStores lists the tables of the database. Unlike HasTable it fails
// when the catalog cannot be read, so a locked or cancelled lookup is never
// mistaken for an absent store.
func existingStores(db *gorm.DB) (map[string]bool, error) {
	tables, err := db.Migrator().GetTables()
	if err != nil {
		return nil, errors.Wrap(err, "list stores")
	}
	existing := make(map[string]bool, len(tables))
	for _, table := range tables {
		existing[table] = true
	}
	return existing, nil
}

// missingStores returns the named stores absent from the database, or an
// error when the catalog lookup itself failed.
func missingStores(ctx context.Context, db *gorm.DB, names []enum.StoreName) ([]string, error) {
	existing, err := existingStores(db.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, name := range names {
		if _, known := storeModels[name]; !known || !existing[name.String()] {
			missing = append(missing, name.String())
		}
	}
	return missing, nil
}

// readSchemaVersion returns 0 when the version is absent or unreadable.
func readSchemaVersion(db *gorm.DB) int {
	var entry models.MetaEntry
	if err := db.Where("meta_key = ?", SchemaVersionKey).First(&entry).Error; err != nil {
		return 0
	}
	version, err := strconv.Atoi(entry.Value)
	if err != nil {
		return 0
	}
	return version
}

func writeSchemaVersion(db *gorm.DB, version int) error {
	entry := models.MetaEntry{
		Key:       SchemaVersionKey,
		Value:     strconv.Itoa(version),
		UpdatedAt: utils.Now(),
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}
