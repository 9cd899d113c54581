package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chazu/storyvm/save"
	"github.com/chazu/storyvm/vm"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const g0, g1 = 0x10, 0x11

// echoStory greets, then answers "ok" to every line until one starts
// with q.
func echoStory(t *testing.T) []byte {
	t.Helper()
	b := vm.NewStoryBuilder(5).Array("text", append([]byte{20, 0}, make([]byte, 20)...))
	b.Main(func(c *vm.Code) {
		c.Print("Welcome\n")
		c.Label("loop")
		c.Print(">")
		c.Op(vm.KindVAR, 0x04, c.Addr("text"), vm.Small(0)).Store(g1)
		c.Op(vm.Kind2OP, 0x10, c.Addr("text"), vm.Small(2)).Store(g0)
		c.Op(vm.Kind2OP, 0x01, vm.Var(g0), vm.Small('q')).Branch(true, "quit")
		c.Print("ok\n")
		c.Jump("loop")
		c.Label("quit")
		c.Print("bye")
		c.Quit()
	})
	data, err := b.Build()
	require.NoError(t, err)
	return data
}

func startServer(t *testing.T, story []byte, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	s, err := New(story, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/play" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readEvent(t *testing.T, conn *websocket.Conn) event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func sendInput(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "input", Text: text}))
}

func TestPlaySession(t *testing.T) {
	story := echoStory(t)
	s, ts := startServer(t, story)
	conn, _, err := dial(t, ts, "")
	require.NoError(t, err)

	hello := readEvent(t, conn)
	assert.Equal(t, eventHello, hello.Type)
	assert.NotEmpty(t, hello.Session)
	h, _ := vm.ParseHeader(story)
	assert.Equal(t, h.ID().String(), hello.Story)
	_, ok := s.Sessions().Get(hello.Session)
	assert.True(t, ok)

	assert.Equal(t, event{Type: eventOutput, Text: "Welcome\n>"}, readEvent(t, conn))
	sendInput(t, conn, "look")
	assert.Equal(t, event{Type: eventOutput, Text: "ok\n>"}, readEvent(t, conn))
	sendInput(t, conn, "Quit")
	assert.Equal(t, event{Type: eventOutput, Text: "bye"}, readEvent(t, conn))
	assert.Equal(t, event{Type: eventHalt}, readEvent(t, conn))

	require.Eventually(t, func() bool { return s.Sessions().Len() == 0 }, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "storyvm_play_sessions_total 1")
	assert.Contains(t, string(body), "storyvm_play_commands_total 2")
	assert.Contains(t, string(body), "storyvm_play_sessions_active 0")
}

func TestPlaySessionErrorEvent(t *testing.T) {
	b := vm.NewStoryBuilder(5).Main(func(c *vm.Code) {
		c.Print("dividing")
		c.Op(vm.Kind2OP, 0x17, vm.Small(1), vm.Small(0)).Store(g0)
		c.Quit()
	})
	story, err := b.Build()
	require.NoError(t, err)
	s, ts := startServer(t, story)
	conn, _, err := dial(t, ts, "")
	require.NoError(t, err)

	assert.Equal(t, eventHello, readEvent(t, conn).Type)
	assert.Equal(t, event{Type: eventOutput, Text: "dividing"}, readEvent(t, conn))
	ev := readEvent(t, conn)
	assert.Equal(t, eventError, ev.Type)
	assert.Contains(t, ev.Message, "division by zero")

	require.Eventually(t, func() bool {
		return testutilCounter(t, s, "storyvm_play_errors_total", "DivisionByZero") == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func testutilCounter(t *testing.T, s *Server, name, kind string) float64 {
	t.Helper()
	families, err := s.metrics.registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "kind" && l.GetValue() == kind {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPlayRequiresToken(t *testing.T) {
	tokens := NewTokenIssuer("secret", time.Hour)
	_, ts := startServer(t, echoStory(t), WithTokens(tokens), WithTokenKey("letmein"))

	_, resp, err := dial(t, ts, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, ts, "?token=garbage")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/token")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	token := requestToken(t, ts, "letmein", `{"player":"bob"}`)
	player, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "bob", player)

	conn, _, err := dial(t, ts, "?token="+token)
	require.NoError(t, err)
	assert.Equal(t, eventHello, readEvent(t, conn).Type)

	guest, err := tokens.Validate(requestToken(t, ts, "letmein", ""))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(guest, "guest-"))
}

func requestToken(t *testing.T, ts *httptest.Server, key, body string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/token", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(TokenKeyHeader, key)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["token"])
	return out["token"]
}

func TestTokenEndpointRequiresKey(t *testing.T) {
	tokens := NewTokenIssuer("secret", time.Hour)
	_, ts := startServer(t, echoStory(t), WithTokens(tokens), WithTokenKey("letmein"))

	for _, key := range []string{"", "wrong"} {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/token", nil)
		require.NoError(t, err)
		if key != "" {
			req.Header.Set(TokenKeyHeader, key)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "key %q", key)
	}
}

func TestTokenEndpointDisabled(t *testing.T) {
	tests := []struct {
		name string
		opts []ServerOption
	}{
		{"no tokens", nil},
		{"no key", []ServerOption{WithTokens(NewTokenIssuer("secret", time.Hour))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := startServer(t, echoStory(t), tt.opts...)
			resp, err := http.Post(ts.URL+"/token", "application/json", nil)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}
}

func TestSessionsRequiresToken(t *testing.T) {
	tokens := NewTokenIssuer("secret", time.Hour)
	_, ts := startServer(t, echoStory(t), WithTokens(tokens))

	resp, err := http.Get(ts.URL + "/sessions")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := tokens.Issue("carol")
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var list []json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list)
}

func TestMaxSessions(t *testing.T) {
	s, ts := startServer(t, echoStory(t), WithMaxSessions(1))
	conn, _, err := dial(t, ts, "")
	require.NoError(t, err)
	assert.Equal(t, eventHello, readEvent(t, conn).Type)

	_, resp, err := dial(t, ts, "")
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	conn.Close()
	require.Eventually(t, func() bool { return s.Sessions().Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	conn, _, err = dial(t, ts, "")
	require.NoError(t, err)
	assert.Equal(t, eventHello, readEvent(t, conn).Type)
}

func TestSavesGoToPlayerSlot(t *testing.T) {
	b := vm.NewStoryBuilder(5).Main(func(c *vm.Code) {
		c.Op(vm.KindEXT, 0x00).Store(g0)
		c.PrintNum(vm.Var(g0))
		c.Quit()
	})
	story, err := b.Build()
	require.NoError(t, err)
	store := save.NewMemoryStore()
	tokens := NewTokenIssuer("secret", time.Hour)
	_, ts := startServer(t, story, WithSaveStore(store), WithTokens(tokens))

	token, err := tokens.Issue("alice")
	require.NoError(t, err)
	conn, _, err := dial(t, ts, "?token="+token)
	require.NoError(t, err)
	assert.Equal(t, eventHello, readEvent(t, conn).Type)
	assert.Equal(t, event{Type: eventOutput, Text: "1"}, readEvent(t, conn))
	assert.Equal(t, eventHalt, readEvent(t, conn).Type)

	h, _ := vm.ParseHeader(story)
	entries, err := store.List(context.Background(), h.ID().String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Slot)
}

func TestNewRejectsBadStory(t *testing.T) {
	_, err := New([]byte{3, 0, 0})
	assert.Error(t, err)
}
