package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/logger"
)

type recordingSink struct {
	mu        sync.Mutex
	published []dto.Notification
	err       error
}

func (s *recordingSink) Publish(_ context.Context, notification dto.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, notification)
	return s.err
}

func (s *recordingSink) all() []dto.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]dto.Notification(nil), s.published...)
}

func TestBus_SubscribeReceivesStampedNotification(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	defer bus.Close()

	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	bus.Notify(context.Background(), dto.NewSyncRunning("acc", "INBOX"))

	select {
	case n := <-ch:
		assert.Equal(t, enum.NotificationSyncProgress, n.Type)
		assert.NotEmpty(t, n.ID)
		assert.Contains(t, n.ID, "ntf_")
		assert.False(t, n.Timestamp.IsZero())
		require.NotNil(t, n.SyncProgress)
		assert.Equal(t, "acc", n.SyncProgress.AccountID)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestBus_FullSubscriberDropsWithoutBlocking(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	defer bus.Close()

	ch, unsubscribe := bus.Subscribe(1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Notify(context.Background(), dto.NewSyncRunning("acc", "INBOX"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	defer bus.Close()

	ch, unsubscribe := bus.Subscribe(1)
	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)

	bus.Notify(context.Background(), dto.NewSyncRunning("acc", "INBOX"))
}

func TestBus_SinkReceivesInOrder(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	sink := &recordingSink{err: errors.New("broker down")}
	bus.AddSink(sink, 8)

	bus.Notify(context.Background(), dto.NewSyncRunning("acc", "INBOX"))
	bus.Notify(context.Background(), dto.NewSyncCancelled("acc", "INBOX", 1, 2))
	bus.Close()

	published := sink.all()
	require.Len(t, published, 2)
	assert.Equal(t, enum.NotificationSyncProgress, published[0].Type)
	assert.Equal(t, enum.NotificationSyncCancelled, published[1].Type)
}

func TestBus_ClosedBusIgnoresNotifications(t *testing.T) {
	bus := NewBus(logger.NewNopLogger())
	ch, _ := bus.Subscribe(1)
	bus.Close()
	bus.Close()

	_, open := <-ch
	assert.False(t, open)

	late, _ := bus.Subscribe(1)
	_, open = <-late
	assert.False(t, open)

	bus.Notify(context.Background(), dto.NewSyncRunning("acc", "INBOX"))
}
