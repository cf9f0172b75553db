package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rallyup/backend/internal/domain/conversation"
	"rallyup/backend/internal/domain/profile"
	"rallyup/backend/internal/store/memstore"
)

type streamCounter struct {
	mu     sync.Mutex
	opened map[string]int
	closed map[string]int
}

func (c *streamCounter) StreamOpened(stream string) func() {
	c.mu.Lock()
	c.opened[stream]++
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.closed[stream]++
		c.mu.Unlock()
	}
}

func (c *streamCounter) counts(stream string) (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened[stream], c.closed[stream]
}

type fixture struct {
	convs *conversation.Service
	obs   *streamCounter
	url   string
}

// newFixture serves /messages?conv=&uid= and /conversations?uid= with the
// caller identified by the uid query value.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memstore.New()
	profiles := profile.NewService(profile.NewRepo(st), nil)
	for _, uid := range []string{"ana", "ben"} {
		require.NoError(t, profiles.CreateStubProfile(context.Background(), uid, strings.ToUpper(uid[:1])+uid[1:], uid+"@example.com"))
	}
	convs := conversation.NewService(conversation.NewRepo(st, nil), profiles.Names(), nil)

	obs := &streamCounter{opened: map[string]int{}, closed: map[string]int{}}
	s := New(convs, nil, nil)
	s.SetObserver(obs)

	mux := http.NewServeMux()
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if err := s.Messages(w, r, q.Get("conv"), q.Get("uid")); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, conversation.ErrNotParticipant) {
				status = http.StatusForbidden
			}
			http.Error(w, err.Error(), status)
		}
	})
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		_ = s.Conversations(w, r, r.URL.Query().Get("uid"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &fixture{convs: convs, obs: obs, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error"`
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestMessagesStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	th, err := f.convs.FindOrCreate(ctx, "ben", "ana", "Doubles on Saturday?")
	require.NoError(t, err)
	id := th.Conversation.ID

	conn := dial(t, f.url+"/messages?conv="+id+"&uid=ana")

	first := read(t, conn)
	require.Equal(t, "messages", first.Type)
	var snap conversation.MessagesSnapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Equal(t, id, snap.ConversationID)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "Doubles on Saturday?", snap.Messages[0].Content)

	// messages addressed to the viewer are marked read as they stream
	assert.Eventually(t, func() bool {
		msgs, err := f.convs.Messages(ctx, id)
		return err == nil && len(msgs) == 1 && msgs[0].IsRead
	}, 2*time.Second, 10*time.Millisecond)

	_, err = f.convs.SendMessage(ctx, id, "ana", "ben", "Count me in")
	require.NoError(t, err)

	// the snapshot after the send holds both messages
	var latest conversation.MessagesSnapshot
	for len(latest.Messages) < 2 {
		fr := read(t, conn)
		require.Equal(t, "messages", fr.Type)
		require.NoError(t, json.Unmarshal(fr.Payload, &latest))
	}
	assert.Equal(t, "Count me in", latest.Messages[1].Content)
	assert.False(t, latest.Messages[1].IsRead, "ben has not seen it")

	opened, _ := f.obs.counts("messages")
	assert.Equal(t, 1, opened)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		_, closed := f.obs.counts("messages")
		return closed == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMessagesStreamRejectsOutsider(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	th, err := f.convs.FindOrCreate(ctx, "ben", "ana", "hi")
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"/messages?conv="+th.Conversation.ID+"&uid=cy", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	opened, _ := f.obs.counts("messages")
	assert.Zero(t, opened)
}

func TestConversationsStream(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	conn := dial(t, f.url+"/conversations?uid=ana")
	first := read(t, conn)
	require.Equal(t, "conversations", first.Type)
	var snap conversation.ConversationsSnapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Empty(t, snap.Conversations)

	_, err := f.convs.FindOrCreate(ctx, "ben", "ana", "Free this week?")
	require.NoError(t, err)

	for len(snap.Conversations) == 0 {
		fr := read(t, conn)
		require.Equal(t, "conversations", fr.Type)
		require.NoError(t, json.Unmarshal(fr.Payload, &snap))
	}
	c := snap.Conversations[0]
	assert.Equal(t, conversation.PairID("ana", "ben"), c.ID)
	assert.Equal(t, "Ben", c.ParticipantNames["ben"])
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "Free this week?", c.LastMessage.Content)
}

func TestCheckOrigin(t *testing.T) {
	s := New(nil, []string{"https://app.example"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, s.upgrader.CheckOrigin(req), "non-browser clients send no origin")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, s.upgrader.CheckOrigin(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, s.upgrader.CheckOrigin(req))

	open := New(nil, nil, nil)
	assert.True(t, open.upgrader.CheckOrigin(req))
}
