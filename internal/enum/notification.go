package enum

type NotificationType string

const (
	NotificationSyncProgress           NotificationType = "syncProgress"
	NotificationSyncCancelled          NotificationType = "syncCancelled"
	NotificationSyncComplete           NotificationType = "syncComplete"
	NotificationDBError                NotificationType = "dbError"
	NotificationMutationQueueProcessed NotificationType = "mutationQueueProcessed"
)

func (t NotificationType) String() string {
	return string(t)
}

type CommandType string

const (
	CommandStartSync  CommandType = "startSync"
	CommandCancelSync CommandType = "cancelSync"
	CommandSyncStatus CommandType = "syncStatus"
)

func (t CommandType) String() string {
	return string(t)
}

type SyncStatus string

const (
	SyncRunning SyncStatus = "running"
	SyncError   SyncStatus = "error"
)

// TriggerMutationQueue is the tag of the connectivity-restored trigger.
const TriggerMutationQueue = "mutation-queue"
