package server

import (
	"context"
	"sync"
	"time"
)

const (
	RealtimeEventTallyChanged      = "tally-changed"
	RealtimeEventCandidatesChanged = "candidates-changed"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "dinnervote-backend"
)

// RealtimeMessage announces a change within one poll group.
type RealtimeMessage struct {
	GroupCode    string
	EventType    string
	CandidateIDs []uint
	Timestamp    time.Time
}

// RealtimeDispatcher fans messages out to the stream subscribers of each group.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a subscriber for the group until ctx is done or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, groupCode string) (<-chan RealtimeMessage, func()) {
	if groupCode == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(groupCode, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(groupCode, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers the message to every subscriber of its group. Slow subscribers miss messages.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.GroupCode == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.GroupCode]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports how many streams are attached to the group.
func (d *RealtimeDispatcher) SubscriberCount(groupCode string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[groupCode])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(groupCode string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[groupCode]; !ok {
		d.subscribers[groupCode] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[groupCode][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(groupCode string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[groupCode]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, groupCode)
		}
	}
	d.mu.Unlock()
}
