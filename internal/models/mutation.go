package models

import (
	"time"

	"github.com/customeros/mailmirror/internal/enum"
)

// QueuedMutation is one offline user action awaiting replay. It is stored as
// an element of a JSON array under a MetaEntry, never as its own row.
type QueuedMutation struct {
	ID          string              `json:"id"`
	Type        enum.MutationType   `json:"type"`
	Payload     MutationPayload     `json:"payload"`
	APIBase     string              `json:"apiBase"`
	AuthHeader  string              `json:"authHeader"`
	Status      enum.MutationStatus `json:"status"`
	RetryCount  int                 `json:"retryCount"`
	NextRetryAt *time.Time          `json:"nextRetryAt,omitempty"`
	LastError   string              `json:"lastError,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// MutationPayload carries what the foreground knew at enqueue time. Read and
// Starred are the desired states; when nil the captured flags are flipped.
type MutationPayload struct {
	MessageID    string   `json:"messageId"`
	Folder       string   `json:"folder,omitempty"`
	Flags        []string `json:"flags,omitempty"`
	Read         *bool    `json:"read,omitempty"`
	Starred      *bool    `json:"starred,omitempty"`
	TargetFolder string   `json:"targetFolder,omitempty"`
	Permanent    bool     `json:"permanent,omitempty"`
	Labels       []string `json:"labels,omitempty"`
}

// MutationQueue is the decoded content of one mutation_queue_<account> entry.
type MutationQueue struct {
	Key       string
	AccountID string
	Mutations []QueuedMutation
}
