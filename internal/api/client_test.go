package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/ottochat/internal/auth"
	"github.com/hammamikhairi/ottochat/internal/domain"
	"github.com/hammamikhairi/ottochat/internal/logger"
)

func newClient(t *testing.T, h http.Handler, token string, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, auth.NewStatic(token), logger.New(logger.LevelOff, nil), opts...)
}

func TestChatAnonymousOmitsSessionAndToken(t *testing.T) {
	var got map[string]any
	var authHeader string
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"response":"hello","session_id":"","message_id":"m1"}`)
	}), "")

	reply, err := c.Chat(context.Background(), domain.ChatRequest{Query: "hi", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Text)
	assert.Equal(t, "m1", reply.MessageID)
	assert.Empty(t, authHeader)
	assert.Equal(t, "hi", got["query"])
	_, hasSession := got["session_id"]
	assert.False(t, hasSession, "anonymous query must not carry a session id")
}

func TestChatAuthenticatedSendsBearerAndSession(t *testing.T) {
	var got chatPayload
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"response":"ok","session_id":"s1","message_id":"m2"}`)
	}), "tok")

	reply, err := c.Chat(context.Background(), domain.ChatRequest{Query: "q", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "s1", reply.SessionID)
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantDetail string
	}{
		{"detail string", 400, `{"detail":"bad query"}`, 400, "bad query"},
		{"detail list", 422, `{"detail":[{"msg":"field required"},{"msg":"other"}]}`, 422, "field required"},
		{"message", 500, `{"message":"boom"}`, 500, "boom"},
		{"plain text", 502, `upstream down`, 502, "upstream down"},
		{"empty body", 503, ``, 503, "Service Unavailable"},
		{"missing response", 200, `{"session_id":"s"}`, 200, "malformed response: missing response field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}), "")

			_, err := c.Chat(context.Background(), domain.ChatRequest{Query: "q"})
			var bre *domain.BotResponseError
			require.True(t, errors.As(err, &bre), "got %T: %v", err, err)
			assert.Equal(t, tt.wantStatus, bre.Status)
			assert.Equal(t, tt.wantDetail, bre.Detail)
		})
	}
}

func TestChatNonJSONBodyIsBotResponseError(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>")
	}), "")

	_, err := c.Chat(context.Background(), domain.ChatRequest{Query: "q"})
	var bre *domain.BotResponseError
	assert.ErrorAs(t, err, &bre)
}

func TestChatTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, nil, logger.New(logger.LevelOff, nil))
	_, err := c.Chat(context.Background(), domain.ChatRequest{Query: "q"})

	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "chat", ne.Op)
}

func TestChatCancelledContextPassesThrough(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}), "")
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Chat(ctx, domain.ChatRequest{Query: "q"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListSessionsUnauthenticatedIsEmpty(t *testing.T) {
	called := false
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}), "")

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.False(t, called)
}

func TestSessionEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /sessions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"s1","title":"First","created_at":"2025-01-02T03:04:05Z","last_message":"bye"}]`)
	})
	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		var p titlePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		_, _ = io.WriteString(w, `{"id":"s2","title":"`+p.Title+`","created_at":"2025-01-02T03:04:05Z"}`)
	})
	mux.HandleFunc("GET /sessions/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "s1", r.PathValue("id"))
		_, _ = io.WriteString(w, `[{"id":"a","session_id":"s1","role":"user","content":"hi"},{"id":"b","session_id":"s1","role":"assistant","content":"hello"}]`)
	})
	mux.HandleFunc("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("PUT /sessions/{id}/title", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":"s1","title":"Renamed"}`)
	})

	c := newClient(t, mux, "tok")
	ctx := context.Background()

	list, err := c.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bye", list[0].LastMessagePreview)
	assert.Equal(t, list[0].CreatedAt, list[0].UpdatedAt, "missing updated_at falls back to created_at")

	created, err := c.CreateSession(ctx, "Trip planning")
	require.NoError(t, err)
	assert.Equal(t, "s2", created.ID)
	assert.Equal(t, "Trip planning", created.Title)

	msgs, err := c.SessionMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.AuthorUser, msgs[0].Author)
	assert.Equal(t, domain.AuthorAssistant, msgs[1].Author)

	require.NoError(t, c.DeleteSession(ctx, "s1"))

	renamed, err := c.UpdateSessionTitle(ctx, "s1", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Title)
}

func TestSessionMutationRequiresToken(t *testing.T) {
	c := newClient(t, http.NotFoundHandler(), "")
	_, err := c.CreateSession(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrAuthRequired)
}

func TestSessionErrorIsAPIError(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Session not found"}`)
	}), "tok")

	err := c.DeleteSession(context.Background(), "gone")
	var ae *domain.APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Equal(t, "Session not found", domain.Detail(err))
}

func TestSynthesizeNoContent(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), "")

	audio, err := c.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Nil(t, audio)
}

func TestSynthesizeReturnsBytes(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p speechPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "hello", p.Text)
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write([]byte("RIFFdata"))
	}), "")

	audio, err := c.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFFdata"), audio)
}

func TestTranscribeSendsMultipart(t *testing.T) {
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		f, hdr, err := r.FormFile("audio_file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "clip.wav", hdr.Filename)
		assert.Equal(t, "wavbytes", string(data))
		_, _ = io.WriteString(w, `{"transcription":"turn left"}`)
	}), "")

	text, err := c.Transcribe(context.Background(), strings.NewReader("wavbytes"), "/tmp/clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "turn left", text)
}

func TestRequestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}), "tok", WithRequestTimeout(20*time.Millisecond))
	defer close(release)

	_, err := c.ListSessions(context.Background())
	var ne *domain.NetworkError
	assert.ErrorAs(t, err, &ne)
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail":"x"}`, "x"},
		{`{"detail":[{"msg":"first"}]}`, "first"},
		{`{"detail":[]}`, "An error occurred"},
		{`{"error":"nope"}`, "nope"},
		{`{}`, "Bad Request"},
		{`oops`, "oops"},
	}
	for _, tt := range tests {
		if got := normalizeError(400, []byte(tt.body)); got != tt.want {
			t.Fatalf("normalizeError(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestSynthesizeTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}), "", WithRequestTimeout(20*time.Millisecond))
	defer close(release)

	_, err := c.Synthesize(context.Background(), "hello")
	var ne *domain.NetworkError
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, "synthesize speech", ne.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
