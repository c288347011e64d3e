package transcript

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return New(logger.New(logger.LevelOff, nil), opts...)
}

func texts(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestAppendAssignsIdentity(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newStore(t, WithClock(func() time.Time { return fixed }))

	a := s.Append("hi", domain.AuthorUser)
	b := s.Append("hello", domain.AuthorAssistant)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, fixed, a.CreatedAt)
	assert.Equal(t, []string{"hi", "hello"}, texts(s.Messages()))

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, b, last)
}

func TestDeleteLastOnEmptyIsNoop(t *testing.T) {
	s := newStore(t)

	_, removed := s.DeleteLast()
	assert.False(t, removed)
	assert.Equal(t, 0, s.Len())
}

func TestDeleteLastRemovesOne(t *testing.T) {
	s := newStore(t)
	s.Append("one", domain.AuthorUser)
	s.Append("two", domain.AuthorAssistant)

	gen := s.Generation()

	gone, removed := s.DeleteLast()
	require.True(t, removed)
	assert.Equal(t, "two", gone.Text)
	assert.Equal(t, []string{"one"}, texts(s.Messages()))
	assert.Equal(t, gen+1, s.Generation())

	_, ok := s.AppendIf(gen, "late reply", domain.AuthorAssistant)
	assert.False(t, ok)
}

func TestDeleteAllBumpsGeneration(t *testing.T) {
	s := newStore(t)
	s.Append("one", domain.AuthorUser)
	gen := s.Generation()

	s.DeleteAll()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, gen+1, s.Generation())
}

func TestReplaceAllDoesNotMerge(t *testing.T) {
	s := newStore(t)
	s.Append("A", domain.AuthorUser)
	s.Append("B", domain.AuthorAssistant)

	s.ReplaceAll([]domain.Message{{ID: "c", Text: "C", Author: domain.AuthorAssistant}})

	assert.Equal(t, []string{"C"}, texts(s.Messages()))
}

func TestAppendIfRejectsStaleGeneration(t *testing.T) {
	s := newStore(t)
	gen := s.Generation()

	s.ReplaceAll(nil)

	_, ok := s.AppendIf(gen, "late reply", domain.AuthorAssistant)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())

	_, ok = s.AppendIf(s.Generation(), "fresh reply", domain.AuthorAssistant)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestSubscribeDeliversInOrder(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _ := s.Subscribe(ctx)

	s.Append("hi", domain.AuthorUser)
	s.ReplaceAll([]domain.Message{{ID: "x", Text: "X"}})
	s.DeleteLast()
	s.DeleteAll()

	want := []EventKind{EventAppended, EventReplaced, EventDeletedLast, EventCleared}
	for i, kind := range want {
		select {
		case ev := <-events:
			assert.Equal(t, kind, ev.Kind, "event %d", i)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestReplaceAllPublishesFullLog(t *testing.T) {
	s := newStore(t)
	s.Append("A", domain.AuthorUser)
	s.Append("B", domain.AuthorAssistant)

	events, id := s.Subscribe(context.Background())
	defer s.Unsubscribe(id)

	s.ReplaceAll([]domain.Message{{ID: "c", Text: "C"}})

	ev := <-events
	assert.Equal(t, EventReplaced, ev.Kind)
	assert.Equal(t, 1, ev.Len, "observers must never see the empty intermediate state")
	require.Len(t, ev.Messages, 1)
	assert.Equal(t, "C", ev.Messages[0].Text)
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	events, _ := s.Subscribe(ctx)
	cancel()

	select {
	case _, open := <-events:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed after cancel")
	}
}
