package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/ottochat/internal/auth"
	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
	"github.com/hammamikhairi/ottochat/internal/transcript"
)

// ── Fakes ────────────────────────────────────────────────────────

// fakeAPI is an in-memory SessionAPI. Calls whose gate is set block until
// the gate channel yields.
type fakeAPI struct {
	mu       sync.Mutex
	sessions []domain.Session
	messages map[string][]domain.BackendMessage
	calls    []string
	nextID   int
	err      error

	renameGate chan struct{}
	listGate   chan struct{}
	entered    chan string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages: make(map[string][]domain.BackendMessage),
		entered:  make(chan string, 16),
	}
}

func (f *fakeAPI) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	f.entered <- call
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAPI) ListSessions(ctx context.Context) ([]domain.Session, error) {
	f.mu.Lock()
	gate := f.listGate
	f.mu.Unlock()
	f.record("list")
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Session, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, title string) (*domain.Session, error) {
	f.record("create")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	s := domain.Session{ID: "new-" + string(rune('0'+f.nextID)), Title: title}
	f.sessions = append([]domain.Session{s}, f.sessions...)
	return &s, nil
}

func (f *fakeAPI) SessionMessages(ctx context.Context, id string) ([]domain.BackendMessage, error) {
	f.record("messages " + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.messages[id], nil
}

func (f *fakeAPI) DeleteSession(ctx context.Context, id string) error {
	f.record("delete " + id)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeAPI) UpdateSessionTitle(ctx context.Context, id, title string) (*domain.Session, error) {
	f.record("rename " + id + " " + title)
	if f.renameGate != nil {
		<-f.renameGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Session{ID: id, Title: title}, nil
}

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func setup(t *testing.T, token string) (*Manager, *fakeAPI, *transcript.Store) {
	t.Helper()
	log := logger.New(logger.LevelOff, nil)
	api := newFakeAPI()
	ts := transcript.New(log)
	m := New(api, auth.NewStatic(token), ts, log, WithClock(func() time.Time { return fixedNow }))
	return m, api, ts
}

func seed(t *testing.T, m *Manager, api *fakeAPI, sessions ...domain.Session) {
	t.Helper()
	api.sessions = sessions
	_, err := m.ListSessions(context.Background())
	require.NoError(t, err)
	<-api.entered
}

// ── Tests ────────────────────────────────────────────────────────

func TestListSessionsUnauthenticated(t *testing.T) {
	m, api, _ := setup(t, "")

	sessions, err := m.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.Zero(t, api.callCount())
}

func TestCreateSessionPrependsAndClears(t *testing.T) {
	m, api, ts := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "old", Title: "Old"})
	ts.Append("leftover", domain.AuthorUser)

	s, err := m.CreateSession(context.Background(), "Trip planning")
	require.NoError(t, err)

	assert.Equal(t, "Trip planning", s.Title)
	assert.Equal(t, s.ID, m.Sessions()[0].ID)
	assert.Len(t, m.Sessions(), 2)
	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, s.ID, cur.ID)
	assert.Equal(t, 0, ts.Len())
}

func TestCreateSessionDefaultTitle(t *testing.T) {
	m, _, _ := setup(t, "tok")

	s, err := m.CreateSession(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "Chat Jun 1, 2025 09:30", s.Title)
}

func TestCreateSessionRequiresAuth(t *testing.T) {
	m, api, _ := setup(t, "")

	_, err := m.CreateSession(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
	assert.Zero(t, api.callCount())
	assert.NotEmpty(t, m.LastError())
}

func TestSwitchUnknownSession(t *testing.T) {
	m, api, ts := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1"})
	ts.Append("keep me", domain.AuthorUser)
	before := api.callCount()

	err := m.SwitchSession(context.Background(), "unknown-id")

	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, before, api.callCount(), "no implicit refetch")
	assert.Equal(t, 1, ts.Len())
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestSwitchReplacesTranscript(t *testing.T) {
	m, api, ts := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1", Title: "One"})
	api.messages["s1"] = []domain.BackendMessage{
		{ID: "a", Author: domain.AuthorUser, Content: "hi"},
		{ID: "b", Author: domain.AuthorAssistant, Content: "hello"},
	}
	ts.Append("A", domain.AuthorUser)
	ts.Append("B", domain.AuthorAssistant)

	require.NoError(t, m.SwitchSession(context.Background(), "s1"))

	msgs := ts.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Text)
	assert.Equal(t, domain.AuthorAssistant, msgs[1].Author)
	assert.Equal(t, "s1", m.CurrentID())
}

func TestSwitchFailureKeepsStateAndRecordsError(t *testing.T) {
	m, api, ts := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1"})
	ts.Append("A", domain.AuthorUser)
	api.err = &domain.APIError{Op: "fetch", Status: 500, Detail: "db down"}

	err := m.SwitchSession(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, "db down", m.LastError())
	assert.Equal(t, 1, ts.Len())

	api.err = nil
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))
	assert.Empty(t, m.LastError(), "success clears the error")
}

func TestDeleteCurrentSession(t *testing.T) {
	m, api, ts := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1"}, domain.Session{ID: "s2"})
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))
	ts.Append("A", domain.AuthorUser)

	require.NoError(t, m.DeleteSession(context.Background(), "s1"))

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, ts.Len())
	require.Len(t, m.Sessions(), 1)
	assert.Equal(t, "s2", m.Sessions()[0].ID)
}

func TestDeleteOtherSessionKeepsCurrent(t *testing.T) {
	m, api, ts := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1"}, domain.Session{ID: "s2"})
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))
	ts.Append("A", domain.AuthorUser)

	require.NoError(t, m.DeleteSession(context.Background(), "s2"))

	assert.Equal(t, "s1", m.CurrentID())
	assert.Equal(t, 1, ts.Len())
}

func TestUpdateTitlePatchesCurrent(t *testing.T) {
	m, api, _ := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1", Title: "Old"})
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))

	require.NoError(t, m.UpdateTitle(context.Background(), "s1", "New"))

	cur, _ := m.Current()
	assert.Equal(t, "New", cur.Title)
	assert.Equal(t, "New", m.Sessions()[0].Title)
}

func TestUpdateTitleFailureIsNotOptimistic(t *testing.T) {
	m, api, _ := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1", Title: "Old"})
	api.err = &domain.APIError{Status: 403, Detail: "forbidden"}

	require.Error(t, m.UpdateTitle(context.Background(), "s1", "New"))
	assert.Equal(t, "Old", m.Sessions()[0].Title)
	assert.Equal(t, "forbidden", m.LastError())
}

func TestLastIssuedRenameWins(t *testing.T) {
	m, api, _ := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1", Title: "Old"})

	gate := make(chan struct{})
	api.renameGate = gate

	firstDone := make(chan error, 1)
	go func() { firstDone <- m.UpdateTitle(context.Background(), "s1", "First") }()
	require.Equal(t, "rename s1 First", <-api.entered)

	secondDone := make(chan error, 1)
	go func() { secondDone <- m.UpdateTitle(context.Background(), "s1", "Second") }()
	require.Equal(t, "rename s1 Second", <-api.entered)

	// Responses land in either order; the second-issued rename must win.
	gate <- struct{}{}
	gate <- struct{}{}
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	assert.Equal(t, "Second", m.Sessions()[0].Title)
}

func TestRenameOfDeletedSessionIsNoop(t *testing.T) {
	m, api, _ := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1", Title: "Old"}, domain.Session{ID: "s2"})

	gate := make(chan struct{})
	api.renameGate = gate

	done := make(chan error, 1)
	go func() { done <- m.UpdateTitle(context.Background(), "s1", "New") }()
	<-api.entered

	require.NoError(t, m.DeleteSession(context.Background(), "s1"))
	<-api.entered
	close(gate)
	require.NoError(t, <-done)

	require.Len(t, m.Sessions(), 1)
	assert.Equal(t, "s2", m.Sessions()[0].ID)
}

func TestStaleListingDoesNotOverwriteCreate(t *testing.T) {
	m, api, _ := setup(t, "tok")
	api.sessions = []domain.Session{{ID: "s1"}}

	gate := make(chan struct{})
	api.listGate = gate

	listDone := make(chan error, 1)
	go func() {
		_, err := m.ListSessions(context.Background())
		listDone <- err
	}()
	<-api.entered
	assert.True(t, m.Loading())

	api.mu.Lock()
	api.listGate = nil
	api.mu.Unlock()
	_, err := m.CreateSession(context.Background(), "Fresh")
	require.NoError(t, err)
	<-api.entered

	close(gate)
	require.NoError(t, <-listDone)

	assert.False(t, m.Loading())
	require.NotEmpty(t, m.Sessions())
	assert.Equal(t, "Fresh", m.Sessions()[0].Title)
}

func TestStartNewSessionAndAdopt(t *testing.T) {
	m, api, ts := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1"})
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))
	ts.Append("A", domain.AuthorUser)

	m.StartNewSession()
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, ts.Len())

	m.RecordReply("srv-42", "Here is   a\nreply")

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "srv-42", cur.ID)
	assert.Equal(t, "Here is a reply", cur.LastMessagePreview)
	assert.Equal(t, fixedNow, cur.UpdatedAt)
	assert.Equal(t, "srv-42", m.Sessions()[0].ID)
}

func TestRecordReplyPatchesPreview(t *testing.T) {
	m, api, _ := setup(t, "tok")
	seed(t, m, api, domain.Session{ID: "s1"})
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))

	m.RecordReply("s1", "answer")

	assert.Equal(t, "answer", m.Sessions()[0].LastMessagePreview)
	cur, _ := m.Current()
	assert.Equal(t, "answer", cur.LastMessagePreview)
}

func TestRecordReplyAnonymousIgnored(t *testing.T) {
	m, _, _ := setup(t, "")
	m.RecordReply("srv-1", "x")
	_, ok := m.Current()
	assert.False(t, ok, "current session is only set while authenticated")
}

func TestAuthChangedSignOut(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	api := newFakeAPI()
	ts := transcript.New(log)
	tok := auth.NewStatic("tok")
	m := New(api, tok, ts, log)

	api.sessions = []domain.Session{{ID: "s1"}}
	_, err := m.ListSessions(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))

	tok.Set("")
	assert.False(t, m.AuthChanged())
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Empty(t, m.Sessions())
}

func TestPreviewTruncates(t *testing.T) {
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'é'
	}
	p := Preview(string(long))
	assert.Len(t, []rune(p), PreviewLength)
}

func TestCurrentHiddenOnceTokenDisappears(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)
	api := newFakeAPI()
	ts := transcript.New(log)
	tok := auth.NewStatic("tok")
	m := New(api, tok, ts, log)

	api.sessions = []domain.Session{{ID: "s1", Title: "One"}}
	_, err := m.ListSessions(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.SwitchSession(context.Background(), "s1"))
	require.Equal(t, "s1", m.CurrentID())

	// The token goes away without AuthChanged being called.
	tok.Set("")

	_, ok := m.Current()
	assert.False(t, ok)
	assert.Empty(t, m.CurrentID())
}
