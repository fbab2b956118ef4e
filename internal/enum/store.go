package enum

// StoreName is a logical record store inside the local mirror.
type StoreName string

const (
	StoreFolders       StoreName = "folders"
	StoreMessages      StoreName = "messages"
	StoreMessageBodies StoreName = "message_bodies"
	StoreSyncManifests StoreName = "sync_manifests"
	StoreMeta          StoreName = "meta"
)

func (s StoreName) String() string {
	return string(s)
}

// RequiredStores lists every store the engine expects to exist.
var RequiredStores = []StoreName{
	StoreFolders,
	StoreMessages,
	StoreMessageBodies,
	StoreSyncManifests,
	StoreMeta,
}

type StoreMode string

const (
	ModeReadOnly  StoreMode = "readonly"
	ModeReadWrite StoreMode = "readwrite"
)

type StoreDriver string

const (
	DriverSqlite   StoreDriver = "sqlite"
	DriverPostgres StoreDriver = "postgres"
)
