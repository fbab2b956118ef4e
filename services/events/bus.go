package events

import (
	"context"
	"sync"

	"github.com/customeros/mailmirror/dto"
	"github.com/customeros/mailmirror/interfaces"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/utils"
)

const DefaultSinkBuffer = 256

type sinkItem struct {
	ctx          context.Context
	notification dto.Notification
}

type sinkWorker struct {
	sink interfaces.NotificationSink
	ch   chan sinkItem
	done chan struct{}
}

// Bus fans notifications out to local subscribers and external sinks.
// Delivery is at-most-once: a full subscriber or sink buffer drops the
// notification rather than blocking the engine.
type Bus struct {
	log logger.Logger

	mu          sync.RWMutex
	subscribers map[int]chan dto.Notification
	nextID      int
	sinks       []*sinkWorker
	closed      bool
}

func NewBus(log logger.Logger) *Bus {
	return &Bus{
		log:         log,
		subscribers: make(map[int]chan dto.Notification),
	}
}

// Subscribe registers a foreground context. The returned func unsubscribes
// and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan dto.Notification, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan dto.Notification, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(sub)
			}
		})
	}
}

// AddSink attaches an external sink served by its own ordered worker.
func (b *Bus) AddSink(sink interfaces.NotificationSink, buffer int) {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	worker := &sinkWorker{sink: sink, ch: make(chan sinkItem, buffer), done: make(chan struct{})}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.sinks = append(b.sinks, worker)
	go b.runSink(worker)
}

func (b *Bus) runSink(worker *sinkWorker) {
	defer close(worker.done)
	for item := range worker.ch {
		if err := worker.sink.Publish(item.ctx, item.notification); err != nil {
			b.log.Warnf("notification sink failed for %s: %v", item.notification.Type, err)
		}
	}
}

func (b *Bus) Notify(ctx context.Context, notification dto.Notification) {
	if notification.ID == "" {
		notification.ID = utils.GenerateNanoIDWithPrefix("ntf", 21)
	}
	if notification.Timestamp.IsZero() {
		notification.Timestamp = utils.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- notification:
		default:
			b.log.Debugf("subscriber buffer full, dropped %s", notification.Type)
		}
	}

	item := sinkItem{ctx: context.WithoutCancel(ctx), notification: notification}
	for _, worker := range b.sinks {
		select {
		case worker.ch <- item:
		default:
			b.log.Warnf("sink buffer full, dropped %s", notification.Type)
		}
	}
}

// Close drains the sinks and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	sinks := b.sinks
	b.sinks = nil
	for _, worker := range sinks {
		close(worker.ch)
	}
	b.mu.Unlock()

	for _, worker := range sinks {
		<-worker.done
	}
}
