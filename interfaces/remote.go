package interfaces

import (
	"context"

	"github.com/customeros/mailmirror/dto"
)

// RemoteAPI is the remote mail API the mirror is synced from and mutations
// are replayed against.
type RemoteAPI interface {
	ListFolders(ctx context.Context, endpoint dto.Endpoint) ([]dto.RawRecord, error)
	// ListMessages returns nil with no error when the page is empty or the
	// payload is not a sequence.
	ListMessages(ctx context.Context, endpoint dto.Endpoint, folder string, page, limit int) ([]dto.RawRecord, error)
	GetMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string) (dto.RawRecord, error)
	UpdateMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string, update dto.MessageUpdate) error
	DeleteMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string, permanent bool) error
}
