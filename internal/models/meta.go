package models

import "time"

// MetaEntry is a generic key/value record. Mutation queues and the schema
// version live here.
type MetaEntry struct {
	Key       string    `gorm:"column:meta_key;type:varchar(255);primaryKey"`
	Value     string    `gorm:"column:value;type:text"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MetaEntry) TableName() string {
	return "meta"
}
