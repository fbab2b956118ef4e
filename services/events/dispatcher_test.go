package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/enum"
	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/services/mailsync"
)

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) StartSync(ctx context.Context, opts dto.SyncOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockSyncService) RunSync(ctx context.Context, opts dto.SyncOptions) error {
	return m.Called(ctx, opts).Error(0)
}

func (m *mockSyncService) CancelSync(ctx context.Context, account, folder string) bool {
	return m.Called(ctx, account, folder).Bool(0)
}

func (m *mockSyncService) Status(ctx context.Context, account, folder string) *dto.SyncStatus {
	status, _ := m.Called(ctx, account, folder).Get(0).(*dto.SyncStatus)
	return status
}

func (m *mockSyncService) Wait() {
	m.Called()
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, notification dto.Notification) error {
	return m.Called(ctx, notification).Error(0)
}

func (m *mockPublisher) PublishFanoutEvent(ctx context.Context, entityId string, eventType string, message interface{}) error {
	return m.Called(ctx, entityId, eventType, message).Error(0)
}

func (m *mockPublisher) PublishDirectEvent(ctx context.Context, routingKey string, message interface{}, correlationId string) error {
	return m.Called(ctx, routingKey, message, correlationId).Error(0)
}

func (m *mockPublisher) Close() error {
	return m.Called().Error(0)
}

var testSyncConfig = mailsync.Config{PageSize: 100, MaxMessages: 500}

func TestCommandDispatcher_StartSync(t *testing.T) {
	syncService := &mockSyncService{}
	syncService.On("StartSync", mock.Anything, mock.MatchedBy(func(opts dto.SyncOptions) bool {
		return opts.AccountID == "acc" && opts.FolderID == "INBOX" && opts.PageSize == 100 && opts.Endpoint.APIBase == "http://remote"
	})).Return(nil)

	dispatcher := NewCommandDispatcher(syncService, testSyncConfig)
	reply, err := dispatcher.Handle(context.Background(), dto.Command{
		Type: enum.CommandStartSync, AccountID: "acc", FolderID: "INBOX", APIBase: "http://remote",
	})
	require.NoError(t, err)
	assert.True(t, reply.Accepted)
	assert.Empty(t, reply.Error)
	syncService.AssertExpectations(t)
}

func TestCommandDispatcher_StartSyncRejectedWhileRunning(t *testing.T) {
	syncService := &mockSyncService{}
	syncService.On("StartSync", mock.Anything, mock.Anything).Return(mirrorerrors.ErrSyncInProgress)

	dispatcher := NewCommandDispatcher(syncService, testSyncConfig)
	reply, err := dispatcher.Handle(context.Background(), dto.Command{Type: enum.CommandStartSync, AccountID: "acc", FolderID: "INBOX"})
	assert.ErrorIs(t, err, mirrorerrors.ErrSyncInProgress)
	require.NotNil(t, reply)
	assert.False(t, reply.Accepted)
	assert.NotEmpty(t, reply.Error)
}

func TestCommandDispatcher_CancelAndStatus(t *testing.T) {
	syncService := &mockSyncService{}
	syncService.On("CancelSync", mock.Anything, "acc", "INBOX").Return(true)
	syncService.On("Status", mock.Anything, "acc", "INBOX").Return(&dto.SyncStatus{AccountID: "acc", FolderID: "INBOX", LastUID: "m-7"})
	dispatcher := NewCommandDispatcher(syncService, testSyncConfig)

	reply, err := dispatcher.Handle(context.Background(), dto.Command{Type: enum.CommandCancelSync, AccountID: "acc", FolderID: "INBOX"})
	require.NoError(t, err)
	assert.True(t, reply.Accepted)

	reply, err = dispatcher.Handle(context.Background(), dto.Command{Type: enum.CommandSyncStatus, AccountID: "acc", FolderID: "INBOX"})
	require.NoError(t, err)
	require.NotNil(t, reply.Status)
	assert.Equal(t, "m-7", reply.Status.LastUID)
}

func TestCommandDispatcher_InvalidCommands(t *testing.T) {
	syncService := &mockSyncService{}
	dispatcher := NewCommandDispatcher(syncService, testSyncConfig)

	_, err := dispatcher.Handle(context.Background(), dto.Command{Type: enum.CommandStartSync, AccountID: "acc"})
	assert.ErrorIs(t, err, mirrorerrors.ErrInvalidInput)

	reply, err := dispatcher.Handle(context.Background(), dto.Command{Type: "resync", AccountID: "acc", FolderID: "INBOX"})
	assert.ErrorIs(t, err, mirrorerrors.ErrInvalidInput)
	assert.Equal(t, "unknown command type", reply.Error)

	assert.Empty(t, syncService.Calls)
}

func commandEvent(data map[string]interface{}) dto.Event {
	return dto.Event{Event: dto.EventDetails{Id: "evt-1", EventType: GetEventType[dto.Command](), Data: data}}
}

func TestCommandListener_RepliesOnDelivery(t *testing.T) {
	syncService := &mockSyncService{}
	syncService.On("CancelSync", mock.Anything, "acc", "INBOX").Return(false)
	publisher := &mockPublisher{}
	publisher.On("PublishDirectEvent", mock.Anything, "reply-queue", mock.MatchedBy(func(reply *dto.CommandReply) bool {
		return reply.Type == enum.CommandCancelSync && !reply.Accepted
	}), "corr-1").Return(nil)

	listener := NewCommandListener(logger.NewNopLogger(), NewCommandDispatcher(syncService, testSyncConfig), publisher)
	assert.Equal(t, "Command", listener.GetEventType())
	assert.Equal(t, QueueCommands, listener.GetQueueName())

	ctx := WithDelivery(context.Background(), DeliveryInfo{ReplyTo: "reply-queue", CorrelationId: "corr-1"})
	err := listener.Handle(ctx, commandEvent(map[string]interface{}{
		"type": "cancelSync", "accountId": "acc", "folderId": "INBOX",
	}))
	require.NoError(t, err)
	publisher.AssertExpectations(t)
}

func TestCommandListener_RejectionIsNotAFailure(t *testing.T) {
	publisher := &mockPublisher{}
	listener := NewCommandListener(logger.NewNopLogger(), NewCommandDispatcher(&mockSyncService{}, testSyncConfig), publisher)

	err := listener.Handle(context.Background(), commandEvent(map[string]interface{}{"type": "startSync"}))
	require.NoError(t, err)
	assert.Empty(t, publisher.Calls)
}

func TestCommandListener_MalformedEvents(t *testing.T) {
	listener := NewCommandListener(logger.NewNopLogger(), NewCommandDispatcher(&mockSyncService{}, testSyncConfig), nil)

	assert.Error(t, listener.Handle(context.Background(), "not an event"))
	assert.Error(t, listener.Handle(context.Background(), dto.Event{Event: dto.EventDetails{EventType: "Command"}}))
	assert.Error(t, listener.Handle(context.Background(), dto.Event{Event: dto.EventDetails{Data: map[string]interface{}{}}}))
	assert.Error(t, listener.Handle(context.Background(), dto.Event{Event: dto.EventDetails{EventType: "Command", Data: "text"}}))
}
