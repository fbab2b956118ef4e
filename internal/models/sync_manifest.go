package models

import (
	"time"
)

// SyncManifest is the per (account, folder) sync checkpoint. LastUID is the
// first id of the most recent page and is informational only: every run
// pages from the beginning.
type SyncManifest struct {
	Account         string     `gorm:"column:account;type:varchar(255);primaryKey"`
	Folder          string     `gorm:"column:folder;type:varchar(1000);primaryKey"`
	LastUID         string     `gorm:"column:last_uid;type:varchar(255)"`
	LastSyncAt      *time.Time `gorm:"column:last_sync_at"`
	PagesFetched    int        `gorm:"column:pages_fetched;default:0"`
	MessagesFetched int        `gorm:"column:messages_fetched;default:0"`
	HasBodiesPass   bool       `gorm:"column:has_bodies_pass"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (SyncManifest) TableName() string {
	return "sync_manifests"
}
