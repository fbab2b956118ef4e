package mailsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/database"
	"github.com/customeros/mailmirror/internal/enum"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/repository"
)

type fakeRemote struct {
	mu         sync.Mutex
	pages      map[int][]dto.RawRecord
	pageErrors map[int]error
	folders    []dto.RawRecord
	folderErr  error
	bodies     map[string]dto.RawRecord
	requested  []int
	fetched    []string
	gate       chan struct{}
	onGet      func(id string)
}

func (f *fakeRemote) ListFolders(ctx context.Context, endpoint dto.Endpoint) ([]dto.RawRecord, error) {
	return f.folders, f.folderErr
}

func (f *fakeRemote) ListMessages(ctx context.Context, endpoint dto.Endpoint, folder string, page, limit int) ([]dto.RawRecord, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, page)
	if err := f.pageErrors[page]; err != nil {
		return nil, err
	}
	return f.pages[page], nil
}

func (f *fakeRemote) GetMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string) (dto.RawRecord, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if f.onGet != nil {
		f.onGet(id)
	}
	body, ok := f.bodies[id]
	if !ok {
		return nil, &mirrorerrors.NetworkError{Op: "getMessage", Status: 404, Err: errors.New("not found")}
	}
	return body, nil
}

func (f *fakeRemote) UpdateMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string, update dto.MessageUpdate) error {
	return nil
}

func (f *fakeRemote) DeleteMessage(ctx context.Context, endpoint dto.Endpoint, id, folder string, permanent bool) error {
	return nil
}

func (f *fakeRemote) fetchedBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeRemote) requestedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.requested...)
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []dto.Notification
	onNotify      func(dto.Notification)
}

func (r *recordingNotifier) Notify(_ context.Context, n dto.Notification) {
	r.mu.Lock()
	r.notifications = append(r.notifications, n)
	hook := r.onNotify
	r.mu.Unlock()
	if hook != nil {
		hook(n)
	}
}

func (r *recordingNotifier) ofType(notificationType enum.NotificationType) []dto.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dto.Notification
	for _, n := range r.notifications {
		if n.Type == notificationType {
			out = append(out, n)
		}
	}
	return out
}

func (r *recordingNotifier) terminal() []dto.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dto.Notification
	for _, n := range r.notifications {
		switch {
		case n.Type == enum.NotificationSyncComplete, n.Type == enum.NotificationSyncCancelled:
			out = append(out, n)
		case n.Type == enum.NotificationSyncProgress && n.SyncProgress.Status == enum.SyncError:
			out = append(out, n)
		}
	}
	return out
}

func messages(ids ...string) []dto.RawRecord {
	out := make([]dto.RawRecord, 0, len(ids))
	for i, id := range ids {
		out = append(out, dto.RawRecord{"id": id, "subject": fmt.Sprintf("subject %d", i), "date": 1700000000.0 + float64(i)})
	}
	return out
}

type harness struct {
	service  *syncService
	remote   *fakeRemote
	notifier *recordingNotifier
	repos    *repository.Repositories
}

func newHarness(t *testing.T, remote *fakeRemote) *harness {
	t.Helper()
	dial := database.NewSqliteDialer(filepath.Join(t.TempDir(), "mirror.db"), "silent")
	gateway := database.NewGateway(database.DefaultGatewayConfig(), dial, nil, logger.NewNopLogger())
	t.Cleanup(func() { gateway.Close() })

	repos := repository.InitRepositories(gateway, logger.NewNopLogger())
	notifier := &recordingNotifier{}
	service := NewSyncService(Config{PageSize: 2}, logger.NewNopLogger(), remote, repos, notifier,
		WithClock(func() time.Time { return testNow })).(*syncService)

	return &harness{service: service, remote: remote, notifier: notifier, repos: repos}
}

func syncOptions() dto.SyncOptions {
	return dto.SyncOptions{
		AccountID: "acc",
		FolderID:  "INBOX",
		Endpoint:  dto.Endpoint{APIBase: "http://remote.test", Authorization: "Basic dG9rZW4="},
		PageSize:  2,
	}
}

func TestRunSync_CompletesAfterEmptyPage(t *testing.T) {
	h := newHarness(t, &fakeRemote{pages: map[int][]dto.RawRecord{
		1: messages("m1", "m2"),
		2: messages("m3", "m4"),
	}})
	ctx := context.Background()

	require.NoError(t, h.service.RunSync(ctx, syncOptions()))

	assert.Equal(t, []int{1, 2, 3}, h.remote.requestedPages())

	terminal := h.notifier.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, enum.NotificationSyncComplete, terminal[0].Type)
	assert.Equal(t, 2, terminal[0].SyncProgress.PagesDone)
	assert.Equal(t, 4, terminal[0].SyncProgress.MessagesDone)
	assert.Equal(t, "m3", terminal[0].SyncProgress.LastUID)
	require.NotNil(t, terminal[0].SyncProgress.LastSyncAt)

	progress := h.notifier.ofType(enum.NotificationSyncProgress)
	require.Len(t, progress, 3)
	assert.Equal(t, 0, progress[0].SyncProgress.PagesDone)
	assert.Equal(t, 1, progress[1].SyncProgress.PagesDone)
	assert.Equal(t, 2, progress[1].SyncProgress.MessagesDone)
	assert.Equal(t, 2, progress[2].SyncProgress.PagesDone)

	status := h.service.Status(ctx, "acc", "INBOX")
	assert.Equal(t, 2, status.PagesFetched)
	assert.Equal(t, 4, status.MessagesFetched)
	assert.Equal(t, "m3", status.LastUID)
	assert.False(t, status.HasBodiesPass)
	assert.False(t, status.Running)

	cached, total, err := h.repos.MessageRepository.ListByFolder(ctx, "acc", "INBOX", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, cached, 4)
}

func TestRunSync_CancelAfterFirstPage(t *testing.T) {
	h := newHarness(t, &fakeRemote{pages: map[int][]dto.RawRecord{
		1: messages("m1", "m2"),
		2: messages("m3", "m4"),
		3: messages("m5"),
	}})
	h.notifier.onNotify = func(n dto.Notification) {
		if n.Type == enum.NotificationSyncProgress && n.SyncProgress.PagesDone == 1 {
			assert.True(t, h.service.CancelSync(context.Background(), "acc", "INBOX"))
		}
	}
	ctx := context.Background()

	require.NoError(t, h.service.RunSync(ctx, syncOptions()))

	terminal := h.notifier.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, enum.NotificationSyncCancelled, terminal[0].Type)
	assert.Equal(t, 2, terminal[0].SyncProgress.MessagesDone)
	assert.Equal(t, 1, terminal[0].SyncProgress.PagesDone)
	assert.Equal(t, []int{1}, h.remote.requestedPages())

	status := h.service.Status(ctx, "acc", "INBOX")
	assert.Equal(t, 1, status.PagesFetched)
	assert.Equal(t, 2, status.MessagesFetched)
	assert.False(t, status.Running)
}

func TestRunSync_PageFailureEndsWithError(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		pages:      map[int][]dto.RawRecord{1: messages("m1", "m2")},
		pageErrors: map[int]error{2: &mirrorerrors.NetworkError{Op: "listMessages", Status: 502, Err: errors.New("bad gateway")}},
	})
	ctx := context.Background()

	require.NoError(t, h.service.RunSync(ctx, syncOptions()))

	terminal := h.notifier.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, enum.SyncError, terminal[0].SyncProgress.Status)
	assert.Contains(t, terminal[0].SyncProgress.Error, "502")
	assert.Equal(t, 1, terminal[0].SyncProgress.PagesDone)
	assert.Empty(t, h.notifier.ofType(enum.NotificationSyncComplete))

	status := h.service.Status(ctx, "acc", "INBOX")
	assert.Equal(t, 1, status.PagesFetched)
	assert.False(t, status.Running)
}

func TestRunSync_FolderRefreshFailureIsIgnored(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		folderErr: errors.New("folders unavailable"),
		pages:     map[int][]dto.RawRecord{1: messages("m1")},
	})

	require.NoError(t, h.service.RunSync(context.Background(), syncOptions()))

	terminal := h.notifier.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, enum.NotificationSyncComplete, terminal[0].Type)
}

func TestRunSync_StoresFolders(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		folders: []dto.RawRecord{{"path": "INBOX", "unread": 2.0}, {"name": "Archive"}, {"unread": 1.0}},
	})
	ctx := context.Background()

	require.NoError(t, h.service.RunSync(ctx, syncOptions()))

	folders, err := h.repos.FolderRepository.ListByAccount(ctx, "acc")
	require.NoError(t, err)
	assert.Len(t, folders, 2)
}

func TestRunSync_RecordsWithoutIDAreCountedNotStored(t *testing.T) {
	h := newHarness(t, &fakeRemote{pages: map[int][]dto.RawRecord{
		1: {{"id": "m1"}, {"subject": "no id"}},
	}})
	ctx := context.Background()

	require.NoError(t, h.service.RunSync(ctx, syncOptions()))

	_, total, err := h.repos.MessageRepository.ListByFolder(ctx, "acc", "INBOX", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, 2, h.service.Status(ctx, "acc", "INBOX").MessagesFetched)
}

func TestRunSync_BodiesSkipFailures(t *testing.T) {
	h := newHarness(t, &fakeRemote{
		pages:  map[int][]dto.RawRecord{1: messages("m1", "m2")},
		bodies: map[string]dto.RawRecord{"m1": {"html": "<p>one</p>"}},
	})
	ctx := context.Background()
	opts := syncOptions()
	opts.FetchBodies = true

	require.NoError(t, h.service.RunSync(ctx, opts))

	terminal := h.notifier.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, enum.NotificationSyncComplete, terminal[0].Type)

	body, err := h.repos.MessageBodyRepository.GetByID(ctx, "acc", "m1")
	require.NoError(t, err)
	require.NotNil(t, body)
	assert.Equal(t, "one", body.TextContent)

	missing, err := h.repos.MessageBodyRepository.GetByID(ctx, "acc", "m2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.True(t, h.service.Status(ctx, "acc", "INBOX").HasBodiesPass)
}

func TestRunSync_CancelDuringBodies(t *testing.T) {
	remote := &fakeRemote{
		pages: map[int][]dto.RawRecord{
			1: messages("m1", "m2"),
			2: messages("m3", "m4"),
		},
		bodies: map[string]dto.RawRecord{
			"m1": {"html": "<p>one</p>"},
			"m2": {"html": "<p>two</p>"},
		},
	}
	h := newHarness(t, remote)
	remote.onGet = func(id string) {
		if id == "m1" {
			assert.True(t, h.service.CancelSync(context.Background(), "acc", "INBOX"))
		}
	}
	ctx := context.Background()
	opts := syncOptions()
	opts.FetchBodies = true

	require.NoError(t, h.service.RunSync(ctx, opts))

	assert.Equal(t, []string{"m1"}, remote.fetchedBodies())
	assert.Equal(t, []int{1}, remote.requestedPages())

	assert.Len(t, h.notifier.ofType(enum.NotificationSyncCancelled), 1)
	assert.Empty(t, h.notifier.ofType(enum.NotificationSyncComplete))
	terminal := h.notifier.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, enum.NotificationSyncCancelled, terminal[0].Type)
	assert.Equal(t, 1, terminal[0].SyncProgress.PagesDone)
	assert.Equal(t, 2, terminal[0].SyncProgress.MessagesDone)

	stored, err := h.repos.MessageBodyRepository.GetByID(ctx, "acc", "m1")
	require.NoError(t, err)
	assert.NotNil(t, stored)
	skipped, err := h.repos.MessageBodyRepository.GetByID(ctx, "acc", "m2")
	require.NoError(t, err)
	assert.Nil(t, skipped)
}

func TestRunSync_MaxMessagesStopsPaging(t *testing.T) {
	h := newHarness(t, &fakeRemote{pages: map[int][]dto.RawRecord{
		1: messages("m1", "m2"),
		2: messages("m3", "m4"),
		3: messages("m5", "m6"),
	}})
	opts := syncOptions()
	opts.MaxMessages = 3

	require.NoError(t, h.service.RunSync(context.Background(), opts))

	assert.Equal(t, []int{1, 2}, h.remote.requestedPages())
	terminal := h.notifier.terminal()
	require.Len(t, terminal, 1)
	assert.Equal(t, 4, terminal[0].SyncProgress.MessagesDone)
}

func TestStartSync_RejectsOverlap(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, &fakeRemote{gate: gate})
	ctx := context.Background()

	require.NoError(t, h.service.StartSync(ctx, syncOptions()))
	assert.True(t, h.service.Status(ctx, "acc", "INBOX").Running)

	err := h.service.StartSync(ctx, syncOptions())
	assert.ErrorIs(t, err, mirrorerrors.ErrSyncInProgress)

	other := syncOptions()
	other.FolderID = "Sent"
	require.NoError(t, h.service.StartSync(ctx, other))

	close(gate)
	h.service.Wait()

	assert.Len(t, h.notifier.terminal(), 2)
	assert.False(t, h.service.Status(ctx, "acc", "INBOX").Running)
	require.NoError(t, h.service.RunSync(ctx, syncOptions()))
}

func TestSync_InvalidInputAndIdleCancel(t *testing.T) {
	h := newHarness(t, &fakeRemote{})
	ctx := context.Background()

	opts := syncOptions()
	opts.Endpoint.APIBase = ""
	assert.ErrorIs(t, h.service.RunSync(ctx, opts), mirrorerrors.ErrInvalidInput)
	assert.ErrorIs(t, h.service.StartSync(ctx, dto.SyncOptions{}), mirrorerrors.ErrInvalidInput)

	assert.False(t, h.service.CancelSync(ctx, "acc", "INBOX"))

	status := h.service.Status(ctx, "acc", "never")
	assert.Equal(t, 0, status.PagesFetched)
	assert.Nil(t, status.LastSyncAt)
}

func TestOptionsFromCommand(t *testing.T) {
	opts := OptionsFromCommand(dto.Command{
		Type:      enum.CommandStartSync,
		AccountID: "acc",
		FolderID:  "INBOX",
		APIBase:   "http://remote.test",
		AuthToken: "token",
	}, Config{PageSize: 50, MaxMessages: 500, FetchBodies: true})

	assert.Equal(t, 50, opts.PageSize)
	assert.Equal(t, 500, opts.MaxMessages)
	assert.True(t, opts.FetchBodies)
	assert.Equal(t, "Basic dG9rZW4=", opts.Endpoint.Authorization)
}

func TestSessionRegistry(t *testing.T) {
	registry := NewSessionRegistry()

	require.NoError(t, registry.Begin("acc", "INBOX"))
	assert.ErrorIs(t, registry.Begin("acc", "INBOX"), mirrorerrors.ErrSyncInProgress)
	assert.NoError(t, registry.Begin("acc", "Sent"))

	assert.False(t, registry.Cancelled("acc", "INBOX"))
	assert.True(t, registry.Cancel("acc", "INBOX"))
	assert.True(t, registry.Cancelled("acc", "INBOX"))
	assert.False(t, registry.Cancelled("acc", "Sent"))

	registry.End("acc", "INBOX")
	assert.False(t, registry.Running("acc", "INBOX"))
	assert.False(t, registry.Cancel("acc", "INBOX"))
	require.NoError(t, registry.Begin("acc", "INBOX"))
	assert.False(t, registry.Cancelled("acc", "INBOX"))

	// separators inside names do not alias other keys
	require.NoError(t, registry.Begin("a|b", "c"))
	assert.NoError(t, registry.Begin("a", "b|c"))
	assert.True(t, registry.Cancel("a|b", "c"))
	assert.False(t, registry.Cancelled("a", "b|c"))
}
