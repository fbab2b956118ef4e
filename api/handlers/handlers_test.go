package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/database"
	"github.com/customeros/mailmirror/internal/enum"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/models"
	"github.com/customeros/mailmirror/internal/repository"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockCommandHandler struct {
	mock.Mock
}

func (m *mockCommandHandler) Handle(ctx context.Context, command dto.Command) (*dto.CommandReply, error) {
	args := m.Called(ctx, command)
	reply, _ := args.Get(0).(*dto.CommandReply)
	return reply, args.Error(1)
}

type mockMutationService struct {
	mock.Mock
}

func (m *mockMutationService) Enqueue(ctx context.Context, account string, request dto.EnqueueMutation) (*models.QueuedMutation, error) {
	args := m.Called(ctx, account, request)
	mutation, _ := args.Get(0).(*models.QueuedMutation)
	return mutation, args.Error(1)
}

func (m *mockMutationService) List(ctx context.Context, account string) (*models.MutationQueue, error) {
	args := m.Called(ctx, account)
	queue, _ := args.Get(0).(*models.MutationQueue)
	return queue, args.Error(1)
}

func (m *mockMutationService) Discard(ctx context.Context, account, mutationID string) (bool, error) {
	args := m.Called(ctx, account, mutationID)
	return args.Bool(0), args.Error(1)
}

func (m *mockMutationService) ProcessAll(ctx context.Context) (dto.MutationSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).(dto.MutationSummary), args.Error(1)
}

func (m *mockMutationService) HandleTrigger(ctx context.Context, tag string) error {
	return m.Called(ctx, tag).Error(0)
}

func perform(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostCommand(t *testing.T) {
	handler := &mockCommandHandler{}
	handler.On("Handle", mock.Anything, mock.MatchedBy(func(c dto.Command) bool { return c.FolderID == "INBOX" })).
		Return(&dto.CommandReply{Type: enum.CommandStartSync, Accepted: true}, nil)
	handler.On("Handle", mock.Anything, mock.MatchedBy(func(c dto.Command) bool { return c.FolderID == "Busy" })).
		Return(&dto.CommandReply{Type: enum.CommandStartSync, Error: mirrorerrors.ErrSyncInProgress.Error()}, mirrorerrors.ErrSyncInProgress)
	handler.On("Handle", mock.Anything, mock.MatchedBy(func(c dto.Command) bool { return c.FolderID == "Sent" })).
		Return(&dto.CommandReply{Type: enum.CommandSyncStatus, Accepted: true, Status: &dto.SyncStatus{FolderID: "Sent"}}, nil)

	r := gin.New()
	r.POST("/commands", PostCommand(handler))

	w := perform(r, http.MethodPost, "/commands", `{"type":"startSync","accountId":"acc","folderId":"INBOX"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = perform(r, http.MethodPost, "/commands", `{"type":"startSync","accountId":"acc","folderId":"Busy"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already running")

	w = perform(r, http.MethodPost, "/commands", `{"type":"syncStatus","accountId":"acc","folderId":"Sent"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	var reply dto.CommandReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	require.NotNil(t, reply.Status)
	assert.Equal(t, "Sent", reply.Status.FolderID)

	w = perform(r, http.MethodPost, "/commands", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnqueueMutation(t *testing.T) {
	mutations := &mockMutationService{}
	mutations.On("Enqueue", mock.Anything, "acc", mock.Anything).
		Return(&models.QueuedMutation{ID: "mut-1", Type: enum.MutationDelete, Status: enum.MutationPending}, nil)

	r := gin.New()
	r.POST("/accounts/:account/mutations", EnqueueMutation(mutations))

	w := perform(r, http.MethodPost, "/accounts/acc/mutations",
		`{"type":"delete","apiBase":"http://remote","payload":{"messageId":"m1"}}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "mut-1")

	w = perform(r, http.MethodPost, "/accounts/acc/mutations",
		`{"type":"move","apiBase":"http://remote","payload":{"messageId":"m1"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "payload.targetFolder")

	w = perform(r, http.MethodPost, "/accounts/acc/mutations",
		`{"type":"archive","apiBase":"http://remote","payload":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "payload.messageId")

	w = perform(r, http.MethodPost, "/accounts/acc/mutations", `{"type":"delete"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mutations.AssertNumberOfCalls(t, "Enqueue", 1)
}

func TestListAndDiscardMutations(t *testing.T) {
	mutations := &mockMutationService{}
	mutations.On("List", mock.Anything, "acc").Return(&models.MutationQueue{
		Key: "mutation_queue_acc", AccountID: "acc",
		Mutations: []models.QueuedMutation{{ID: "mut-1", Status: enum.MutationFailed, RetryCount: 5}},
	}, nil)
	mutations.On("Discard", mock.Anything, "acc", "mut-1").Return(true, nil)
	mutations.On("Discard", mock.Anything, "acc", "missing").Return(false, nil)

	r := gin.New()
	r.GET("/accounts/:account/mutations", ListMutations(mutations))
	r.DELETE("/accounts/:account/mutations/:id", DiscardMutation(mutations))

	w := perform(r, http.MethodGet, "/accounts/acc/mutations", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"retryCount":5`)

	w = perform(r, http.MethodDelete, "/accounts/acc/mutations/mut-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = perform(r, http.MethodDelete, "/accounts/acc/mutations/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostTrigger(t *testing.T) {
	mutations := &mockMutationService{}
	mutations.On("HandleTrigger", mock.Anything, enum.TriggerMutationQueue).Return(nil)
	mutations.On("HandleTrigger", mock.Anything, "other").Return(mirrorerrors.ErrUnknownTrigger)

	r := gin.New()
	r.POST("/triggers/:tag", PostTrigger(mutations))

	w := perform(r, http.MethodPost, "/triggers/mutation-queue", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "settled")

	w = perform(r, http.MethodPost, "/triggers/other", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMirrorReads(t *testing.T) {
	dial := database.NewSqliteDialer(filepath.Join(t.TempDir(), "mirror.db"), "silent")
	gateway := database.NewGateway(database.DefaultGatewayConfig(), dial, nil, logger.NewNopLogger())
	t.Cleanup(func() { gateway.Close() })
	repos := repository.InitRepositories(gateway, logger.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, repos.FolderRepository.UpsertFolders(ctx, []*models.CachedFolder{{Account: "acc", Path: "INBOX", Name: "Inbox"}}))
	require.NoError(t, repos.MessageRepository.UpsertBatch(ctx, []*models.CachedMessage{
		{Account: "acc", ID: "m1", Folder: "INBOX", DateMs: 1, Subject: "first"},
		{Account: "acc", ID: "m2", Folder: "INBOX", DateMs: 2, Subject: "second"},
	}))
	require.NoError(t, repos.MessageBodyRepository.Upsert(ctx, &models.CachedMessageBody{Account: "acc", ID: "m1", Folder: "INBOX", Body: "hello"}))

	r := gin.New()
	r.GET("/accounts/:account/folders", ListFolders(repos))
	r.GET("/accounts/:account/messages", ListMessages(repos))
	r.GET("/accounts/:account/messages/:id/body", GetMessageBody(repos))

	w := perform(r, http.MethodGet, "/accounts/acc/folders", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Inbox")

	w = perform(r, http.MethodGet, "/accounts/acc/messages", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodGet, "/accounts/acc/messages?folder=INBOX&limit=1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Messages []models.CachedMessage `json:"messages"`
		Total    int64                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m2", page.Messages[0].ID)

	w = perform(r, http.MethodGet, "/accounts/acc/messages/m1/body", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hello")

	w = perform(r, http.MethodGet, "/accounts/acc/messages/m2/body", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
