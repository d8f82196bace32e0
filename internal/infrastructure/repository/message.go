package repository

import (
	"sync"

	"github.com/hilthontt/bookingsync/internal/domain"
)

const defaultCapacity = 500

// MessageLog is the ordered, bounded message list of one booking. Oldest
// messages are evicted when capacity is exceeded. Messages with an id are
// stored at most once; the first copy wins. Ids of evicted messages are
// remembered (up to capacity of them) so a late redelivery is not re-added.
type MessageLog struct {
	messages []domain.Message
	ids      map[string]struct{}
	evicted  map[string]struct{}
	tombs    []string
	capacity uint
	mu       *sync.RWMutex
}

func NewMessageLog(capacity uint) *MessageLog {
	if capacity == 0 {
		capacity = defaultCapacity
	}
	return &MessageLog{
		capacity: capacity,
		messages: make([]domain.Message, 0, min(capacity, 64)),
		ids:      make(map[string]struct{}),
		evicted:  make(map[string]struct{}),
		mu:       &sync.RWMutex{},
	}
}

// Append stores msg unless a message with the same id is present or was
// recently evicted. It reports whether msg was stored.
func (l *MessageLog) Append(msg domain.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if msg.HasID() {
		if _, dup := l.ids[msg.ID]; dup {
			return false
		}
		if _, gone := l.evicted[msg.ID]; gone {
			return false
		}
		l.ids[msg.ID] = struct{}{}
	}
	l.messages = append(l.messages, msg)

	if excess := len(l.messages) - int(l.capacity); excess > 0 {
		for _, evicted := range l.messages[:excess] {
			if evicted.HasID() {
				delete(l.ids, evicted.ID)
				l.tombstone(evicted.ID)
			}
		}
		l.messages = append(l.messages[:0:0], l.messages[excess:]...)
	}
	return true
}

func (l *MessageLog) tombstone(id string) {
	l.evicted[id] = struct{}{}
	l.tombs = append(l.tombs, id)
	if excess := len(l.tombs) - int(l.capacity); excess > 0 {
		for _, old := range l.tombs[:excess] {
			delete(l.evicted, old)
		}
		l.tombs = append(l.tombs[:0:0], l.tombs[excess:]...)
	}
}

// MarkRead flags the message with id as read. Unknown ids are ignored.
func (l *MessageLog) MarkRead(id string) bool {
	if id == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.messages {
		if l.messages[i].ID == id {
			l.messages[i].IsRead = true
			return true
		}
	}
	return false
}

func (l *MessageLog) Contains(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[id]
	return ok
}

func (l *MessageLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = l.messages[:0:0]
	l.tombs = l.tombs[:0:0]
	clear(l.ids)
	clear(l.evicted)
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

// All returns a copy to prevent external mutation.
func (l *MessageLog) All() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cpy := make([]domain.Message, len(l.messages))
	copy(cpy, l.messages)
	return cpy
}

// CountUnread counts unread messages that were not sent by selfID.
func (l *MessageLog) CountUnread(selfID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, m := range l.messages {
		if !m.IsRead && (selfID == "" || m.SenderID != selfID) {
			n++
		}
	}
	return n
}
