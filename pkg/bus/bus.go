// Package bus carries gateway events from the chat transport to the
// moderator as one ordered stream.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotsetgreg/dotcommunity/pkg/models"
)

type EventKind string

const (
	KindMessage    EventKind = "message"
	KindMemberJoin EventKind = "member_join"
)

// Event is one inbound gateway event. Exactly one payload is set.
type Event struct {
	ID      string
	Kind    EventKind
	Message *models.MessageEvent
	Join    *models.MemberJoinEvent
}

func MessageEvent(id string, ev models.MessageEvent) Event {
	return Event{ID: id, Kind: KindMessage, Message: &ev}
}

func JoinEvent(id string, ev models.MemberJoinEvent) Event {
	return Event{ID: id, Kind: KindMemberJoin, Join: &ev}
}

type MessageBus struct {
	inbound chan Event
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

const (
	inboundBuffer  = 100
	publishTimeout = 100 * time.Millisecond
)

func NewMessageBus() *MessageBus {
	return &MessageBus{inbound: make(chan Event, inboundBuffer)}
}

// Publish enqueues ev. When the buffer stays full for publishTimeout the
// event is dropped and counted.
func (mb *MessageBus) Publish(ev Event) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	select {
	case mb.inbound <- ev:
		return true
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- ev:
			return true
		case <-timer.C:
			mb.dropped.Add(1)
			return false
		}
	}
}

func (mb *MessageBus) Consume(ctx context.Context) (Event, bool) {
	select {
	case ev, ok := <-mb.inbound:
		if !ok {
			return Event{}, false
		}
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
}

func (mb *MessageBus) Dropped() uint64 {
	return mb.dropped.Load()
}

func (mb *MessageBus) Pending() int {
	return len(mb.inbound)
}
