// Package transcript holds the message log of the active conversation and
// broadcasts every mutation to subscribers.
package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// EventKind classifies a transcript mutation.
type EventKind int

const (
	EventAppended EventKind = iota
	EventDeletedLast
	EventCleared
	EventReplaced
)

// String returns a human-readable event kind.
func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "appended"
	case EventDeletedLast:
		return "deleted_last"
	case EventCleared:
		return "cleared"
	case EventReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// Event describes one mutation. Message is set for EventAppended and
// EventDeletedLast, Messages for EventReplaced. Len is the log length after
// the mutation.
type Event struct {
	Kind       EventKind
	Message    domain.Message
	Messages   []domain.Message
	Len        int
	Generation uint64
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the timestamp source for appended messages.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the ordered message log. The generation counter advances every
// time a message is taken away (DeleteLast, DeleteAll, ReplaceAll) so late
// writers can tell that the message they were answering is gone.
type Store struct {
	mu          sync.RWMutex
	messages    []domain.Message
	generation  uint64
	subscribers map[string]chan Event
	now         func() time.Time
	log         *logger.Logger
}

// New creates an empty transcript.
func New(log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		subscribers: make(map[string]chan Event),
		now:         time.Now,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message to the tail and returns it.
func (s *Store) Append(text string, author domain.Author) domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(text, author)
}

// AppendIf appends only if the log is still at generation gen. It returns
// false when anything was deleted or replaced in the meantime.
func (s *Store) AppendIf(gen uint64, text string, author domain.Author) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		s.log.Debug("dropping %s message for stale generation %d (now %d)", author, gen, s.generation)
		return domain.Message{}, false
	}
	return s.appendLocked(text, author), true
}

func (s *Store) appendLocked(text string, author domain.Author) domain.Message {
	msg := domain.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Author:    author,
		CreatedAt: s.now(),
	}
	s.messages = append(s.messages, msg)
	s.log.Debug("appended %s message %s (len=%d)", author, msg.ID, len(s.messages))
	s.publishLocked(Event{Kind: EventAppended, Message: msg})
	return msg
}

// DeleteLast removes exactly one message from the tail. It is a no-op on an
// empty log and reports whether anything was removed.
func (s *Store) DeleteLast() (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.messages) == 0 {
		return domain.Message{}, false
	}
	last := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]
	s.generation++
	s.publishLocked(Event{Kind: EventDeletedLast, Message: last})
	return last, true
}

// DeleteAll empties the log.
func (s *Store) DeleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.generation++
	s.publishLocked(Event{Kind: EventCleared})
}

// ReplaceAll installs a new log in one step. Observers never see an empty
// intermediate state.
func (s *Store) ReplaceAll(messages []domain.Message) {
	cp := make([]domain.Message, len(messages))
	copy(cp, messages)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = cp
	s.generation++
	s.publishLocked(Event{Kind: EventReplaced, Messages: append([]domain.Message(nil), cp...)})
}

// Messages returns a copy of the log.
func (s *Store) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Snapshot returns a copy of the log together with its generation.
func (s *Store) Snapshot() ([]domain.Message, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out, s.generation
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message.
func (s *Store) Last() (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return domain.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// Generation returns the current log generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ── Subscriptions ────────────────────────────────────────────────

// Subscribe registers an observer. Events are delivered in mutation order.
// The subscription is removed when ctx is cancelled.
func (s *Store) Subscribe(ctx context.Context) (<-chan Event, string) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBufferSize)

	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()

	s.log.Debug("subscriber %s added", id)

	go func() {
		<-ctx.Done()
		s.Unsubscribe(id)
	}()

	return ch, id
}

// Unsubscribe removes a subscription and closes its channel.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.subscribers[id]
	if !ok {
		return
	}
	delete(s.subscribers, id)
	close(ch)
	s.log.Debug("subscriber %s removed", id)
}

// publishLocked fans an event out to all subscribers. Must be called with
// s.mu held so delivery order matches mutation order. Never blocks: slow
// subscribers lose events.
func (s *Store) publishLocked(ev Event) {
	ev.Len = len(s.messages)
	ev.Generation = s.generation
	for id, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.log.Warn("dropped %s event for slow subscriber %s", ev.Kind, id)
		}
	}
}
