package dto

import (
	"time"

	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/models"
)

// Command is an inbound message from a foreground context.
type Command struct {
	Type        enum.CommandType `json:"type"`
	AccountID   string           `json:"accountId"`
	FolderID    string           `json:"folderId"`
	FetchBodies bool             `json:"fetchBodies,omitempty"`
	APIBase     string           `json:"apiBase,omitempty"`
	AuthToken   string           `json:"authToken,omitempty"`
	PageSize    int              `json:"pageSize,omitempty"`
	MaxMessages int              `json:"maxMessages,omitempty"`
}

type CommandReply struct {
	Type     enum.CommandType `json:"type"`
	Accepted bool             `json:"accepted"`
	Status   *SyncStatus      `json:"status,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// SyncStatus is the reply to syncStatus; zero values when never synced.
type SyncStatus struct {
	AccountID       string     `json:"accountId"`
	FolderID        string     `json:"folderId"`
	LastUID         string     `json:"lastUID"`
	LastSyncAt      *time.Time `json:"lastSyncAt"`
	PagesFetched    int        `json:"pagesFetched"`
	MessagesFetched int        `json:"messagesFetched"`
	HasBodiesPass   bool       `json:"hasBodiesPass"`
	Running         bool       `json:"running"`
}

func SyncStatusFromManifest(accountID, folderID string, manifest *models.SyncManifest) *SyncStatus {
	status := &SyncStatus{AccountID: accountID, FolderID: folderID}
	if manifest == nil {
		return status
	}
	status.LastUID = manifest.LastUID
	status.LastSyncAt = manifest.LastSyncAt
	status.PagesFetched = manifest.PagesFetched
	status.MessagesFetched = manifest.MessagesFetched
	status.HasBodiesPass = manifest.HasBodiesPass
	return status
}

// EnqueueMutation is what the foreground posts to add an offline action.
type EnqueueMutation struct {
	Type       enum.MutationType      `json:"type" binding:"required"`
	Payload    models.MutationPayload `json:"payload"`
	APIBase    string                 `json:"apiBase" binding:"required"`
	AuthHeader string                 `json:"authHeader"`
}

// SyncOptions is a validated startSync command.
type SyncOptions struct {
	AccountID   string
	FolderID    string
	FetchBodies bool
	Endpoint    Endpoint
	PageSize    int
	MaxMessages int
}
