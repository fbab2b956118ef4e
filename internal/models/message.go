package models

import "time"

// CachedMessage is the normalized envelope of one remote message.
type CachedMessage struct {
	Account       string     `gorm:"column:account;type:varchar(255);primaryKey" json:"account"`
	ID            string     `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	Folder        string     `gorm:"column:folder;type:varchar(1000);index" json:"folder"`
	DateMs        int64      `gorm:"column:date_ms;index" json:"dateMs"`
	From          string     `gorm:"column:from_address;type:varchar(1000)" json:"from"`
	Subject       string     `gorm:"column:subject;type:text" json:"subject"`
	Snippet       string     `gorm:"column:snippet;type:text" json:"snippet"`
	Flags         StringList `gorm:"column:flags;type:text" json:"flags"`
	IsUnread      bool       `gorm:"column:is_unread" json:"is_unread"`
	IsStarred     bool       `gorm:"column:is_starred" json:"is_starred"`
	HasAttachment bool       `gorm:"column:has_attachment" json:"has_attachment"`
	ThreadID      string     `gorm:"column:thread_id;type:varchar(255);index" json:"threadId"`
	MessageID     string     `gorm:"column:message_id;type:varchar(1000)" json:"message_id"`
	InReplyTo     string     `gorm:"column:in_reply_to;type:varchar(1000)" json:"in_reply_to"`
	References    string     `gorm:"column:references_header;type:text" json:"references"`
	UpdatedAt     time.Time  `gorm:"column:updated_at" json:"updatedAt"`
}

func (CachedMessage) TableName() string {
	return "messages"
}
