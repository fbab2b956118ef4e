package dto

import (
	"time"

	"github.com/customeros/mailmirror/internal/enum"
)

// Notification is the outbound message broadcast to foreground contexts. The
// embedded parts are flattened on the wire so each kind serializes as
// {type, ...fields}.
type Notification struct {
	ID        string                `json:"id"`
	Type      enum.NotificationType `json:"type"`
	Timestamp time.Time             `json:"timestamp"`

	*SyncProgress
	*DBError
	*MutationSummary
}

type SyncProgress struct {
	AccountID    string          `json:"accountId"`
	FolderID     string          `json:"folderId"`
	Status       enum.SyncStatus `json:"status,omitempty"`
	PagesDone    int             `json:"pagesDone"`
	MessagesDone int             `json:"messagesDone"`
	LastUID      string          `json:"lastUID,omitempty"`
	LastSyncAt   *time.Time      `json:"lastSyncAt,omitempty"`
	Error        string          `json:"error,omitempty"`
}

type DBError struct {
	Op          string `json:"op"`
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

type MutationSummary struct {
	Queues       int    `json:"queues"`
	Attempted    int    `json:"attempted"`
	Completed    int    `json:"completed"`
	Retrying     int    `json:"retrying"`
	Failed       int    `json:"failed"`
	DeadLettered int    `json:"deadLettered"`
	Deferred     int    `json:"deferred"`
	Interrupted  int    `json:"interrupted"`
	Remaining    int    `json:"remaining"`
	Error        string `json:"queueError,omitempty"`
}

func NewSyncRunning(accountID, folderID string) Notification {
	return Notification{
		Type:         enum.NotificationSyncProgress,
		SyncProgress: &SyncProgress{AccountID: accountID, FolderID: folderID, Status: enum.SyncRunning},
	}
}

func NewSyncPageProgress(accountID, folderID string, pagesDone, messagesDone int, lastUID string) Notification {
	return Notification{
		Type: enum.NotificationSyncProgress,
		SyncProgress: &SyncProgress{
			AccountID:    accountID,
			FolderID:     folderID,
			Status:       enum.SyncRunning,
			PagesDone:    pagesDone,
			MessagesDone: messagesDone,
			LastUID:      lastUID,
		},
	}
}

func NewSyncFailed(accountID, folderID string, pagesDone, messagesDone int, err error) Notification {
	return Notification{
		Type: enum.NotificationSyncProgress,
		SyncProgress: &SyncProgress{
			AccountID:    accountID,
			FolderID:     folderID,
			Status:       enum.SyncError,
			PagesDone:    pagesDone,
			MessagesDone: messagesDone,
			Error:        err.Error(),
		},
	}
}

func NewSyncCancelled(accountID, folderID string, pagesDone, messagesDone int) Notification {
	return Notification{
		Type: enum.NotificationSyncCancelled,
		SyncProgress: &SyncProgress{
			AccountID:    accountID,
			FolderID:     folderID,
			PagesDone:    pagesDone,
			MessagesDone: messagesDone,
		},
	}
}

func NewSyncComplete(accountID, folderID string, pagesDone, messagesDone int, lastUID string, lastSyncAt time.Time) Notification {
	return Notification{
		Type: enum.NotificationSyncComplete,
		SyncProgress: &SyncProgress{
			AccountID:    accountID,
			FolderID:     folderID,
			PagesDone:    pagesDone,
			MessagesDone: messagesDone,
			LastUID:      lastUID,
			LastSyncAt:   &lastSyncAt,
		},
	}
}

func NewDBError(op, kind string, err error, recoverable bool) Notification {
	return Notification{
		Type:    enum.NotificationDBError,
		DBError: &DBError{Op: op, Kind: kind, Message: err.Error(), Recoverable: recoverable},
	}
}

func NewMutationQueueProcessed(summary MutationSummary) Notification {
	return Notification{
		Type:            enum.NotificationMutationQueueProcessed,
		MutationSummary: &summary,
	}
}
