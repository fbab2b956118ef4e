package models

import "time"

// CachedFolder is a best-effort mirror of a remote folder.
type CachedFolder struct {
	Account     string    `gorm:"column:account;type:varchar(255);primaryKey"`
	Path        string    `gorm:"column:path;type:varchar(1000);primaryKey"`
	Name        string    `gorm:"column:name;type:varchar(1000)"`
	UnreadCount int       `gorm:"column:unread_count;default:0"`
	SpecialUse  string    `gorm:"column:special_use;type:varchar(50)"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (CachedFolder) TableName() string {
	return "folders"
}
