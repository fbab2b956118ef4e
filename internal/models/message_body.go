package models

import "time"

// CachedMessageBody is only present when bodies were fetched for the message.
type CachedMessageBody struct {
	Account     string         `gorm:"column:account;type:varchar(255);primaryKey"`
	ID          string         `gorm:"column:id;type:varchar(255);primaryKey"`
	Folder      string         `gorm:"column:folder;type:varchar(1000)"`
	Body        string         `gorm:"column:body;type:text"`
	TextContent string         `gorm:"column:text_content;type:text"`
	Attachments AttachmentList `gorm:"column:attachments;type:text"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (CachedMessageBody) TableName() string {
	return "message_bodies"
}
