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

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interview-coach/realtime/internal/auth"
	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/speech"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, token, sessionRef string) (auth.Principal, error) {
	if token != "good" {
		return auth.Principal{}, errors.New("bad token")
	}
	return auth.Principal{UserID: "u-" + sessionRef, Role: "candidate"}, nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (p *recordingPublisher) PublishFeedback(_ context.Context, ref string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.msgs == nil {
		p.msgs = make(map[string][][]byte)
	}
	p.msgs[ref] = append(p.msgs[ref], payload)
	return nil
}

func (p *recordingPublisher) count(ref string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs[ref])
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := feedback.NewService(speech.DefaultConfig(), nil)
	srv := NewServer(NewRegistry(nil), feedback.NewDispatcher(svc, nil), fakeAuth{}, nil, opts)

	r := gin.New()
	r.GET("/ws/feedback/:session_id", srv.ServeWs)
	r.GET("/ws/health", srv.Health)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFeedback(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func TestServeWs_ConnectedStatus(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	conn := dial(t, ts, "/ws/feedback/sess-1?token=good&question_id=q7")

	msg := readFeedback(t, conn)
	assert.Equal(t, "connection_status", msg["feedback_type"])
	assert.Equal(t, "sess-1", msg["session_reference"])
	assert.Equal(t, "connected", msg["data"].(map[string]any)["status"])
	assert.Equal(t, 1, srv.Registry().Count())

	list := srv.Registry().List()
	require.Len(t, list, 1)
	assert.Equal(t, "u-sess-1", list[0].UserID)

	send(t, conn, `{"type":"transcript","data":"hello there"}`)
	fb := readFeedback(t, conn)
	assert.Equal(t, "speech_analysis", fb["feedback_type"])
	assert.Equal(t, "q7", fb["data"].(map[string]any)["question_id"])
}

func TestServeWs_AuthFailureNeverRegisters(t *testing.T) {
	srv, ts := newTestServer(t, Options{})

	for _, path := range []string{"/ws/feedback/sess-1?token=bad", "/ws/feedback/sess-1"} {
		conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
		if conn != nil {
			_ = conn.Close()
		}
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Zero(t, srv.Registry().Count())
	assert.Zero(t, srv.Registry().Stats().TotalOpened)
}

func TestServeWs_SubprotocolToken(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	dialer := websocket.Dialer{Subprotocols: []string{"token.good"}}

	conn, _, err := dialer.Dial(wsURL(ts, "/ws/feedback/sess-1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "token.good", conn.Subprotocol())
	assert.Equal(t, "connection_status", readFeedback(t, conn)["feedback_type"])
	assert.Equal(t, 1, srv.Registry().Count())
}

func TestServeWs_ConnectedBeforeOpenHandler(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	srv.Registry().SetLifecycleHandlers(func(ConnectionInfo) { <-release }, nil)

	conn := dial(t, ts, "/ws/feedback/sess-1?token=good")
	send(t, conn, `{"type":"transcript","data":"hello there"}`)

	// the open handler is still blocked
	msg := readFeedback(t, conn)
	assert.Equal(t, "connected", msg["data"].(map[string]any)["status"])
	assert.Equal(t, 1, srv.Registry().Count())

	unblock()
	assert.Equal(t, "speech_analysis", readFeedback(t, conn)["feedback_type"])
}

func TestServeWs_MalformedMessagesKeepConnection(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	conn := dial(t, ts, "/ws/feedback/sess-1?token=good")
	readFeedback(t, conn)

	send(t, conn, "this is not json")
	errMsg := readFeedback(t, conn)
	assert.Equal(t, "error", errMsg["feedback_type"])
	assert.NotEmpty(t, errMsg["message"])

	send(t, conn, `{"type":"audio_chunk","data":"AAAA","chunk_index":3,"is_final":false}`)
	assert.Equal(t, "error", readFeedback(t, conn)["feedback_type"])

	send(t, conn, `{"type":"ping"}`)
	assert.Equal(t, "pong", readFeedback(t, conn)["feedback_type"])

	send(t, conn, `{"type":"audio_chunk","data":"AAAA","chunk_index":0,"is_final":false}`)
	fb := readFeedback(t, conn)
	assert.Equal(t, "speech_analysis", fb["feedback_type"])
	assert.Contains(t, fb, "metrics")
}

func TestServeWs_ResponsesKeepInboundOrder(t *testing.T) {
	_, ts := newTestServer(t, Options{SendBuffer: 1})
	conn := dial(t, ts, "/ws/feedback/sess-1?token=good")
	readFeedback(t, conn)

	const n = 25
	for i := 0; i < n; i++ {
		send(t, conn, `{"type":"transcript","data":"we shipped"}`)
	}
	for i := 1; i <= n; i++ {
		fb := readFeedback(t, conn)
		metrics := fb["metrics"].(map[string]any)
		assert.EqualValues(t, 2*i, metrics["word_count"])
	}
}

func TestServeWs_AbruptDisconnectCleansUp(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	var mu sync.Mutex
	var closed []feedback.Summary
	srv.Registry().SetLifecycleHandlers(nil, func(_ ConnectionInfo, s feedback.Summary) {
		mu.Lock()
		closed = append(closed, s)
		mu.Unlock()
	})

	stay := dial(t, ts, "/ws/feedback/sess-1?token=good")
	readFeedback(t, stay)
	drop := dial(t, ts, "/ws/feedback/sess-2?token=good")
	readFeedback(t, drop)
	send(t, drop, `{"type":"transcript","data":"midway through"}`)
	readFeedback(t, drop)
	require.Equal(t, 2, srv.Registry().Count())

	var dropped string
	for _, c := range srv.Registry().List() {
		if c.SessionReference == "sess-2" {
			dropped = c.ID
		}
	}
	require.NotEmpty(t, dropped)

	require.NoError(t, drop.UnderlyingConn().Close())

	require.Eventually(t, func() bool { return srv.Registry().Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	_, stillThere := srv.Registry().Lookup(dropped)
	assert.False(t, stillThere)
	assert.Equal(t, int64(1), srv.Registry().Stats().TotalClosed)

	mu.Lock()
	require.Len(t, closed, 1)
	assert.Equal(t, "sess-2", closed[0].SessionReference)
	assert.Equal(t, 1, closed[0].Messages)
	assert.Equal(t, 2, closed[0].Final.WordCount)
	mu.Unlock()

	send(t, stay, `{"type":"ping"}`)
	assert.Equal(t, "pong", readFeedback(t, stay)["feedback_type"])
}

func TestServeWs_OrderlyCloseSendsDisconnected(t *testing.T) {
	srv, ts := newTestServer(t, Options{PongWait: 200 * time.Millisecond})
	conn := dial(t, ts, "/ws/feedback/sess-1?token=good")
	conn.SetPingHandler(func(string) error { return nil })
	readFeedback(t, conn)

	// no pongs: the server read deadline ends the session
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"disconnected"`)

	require.Eventually(t, func() bool { return srv.Registry().Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestServeWs_CapacityLimit(t *testing.T) {
	srv, ts := newTestServer(t, Options{MaxConnections: 1})
	first := dial(t, ts, "/ws/feedback/sess-1?token=good")
	readFeedback(t, first)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/feedback/sess-2?token=good"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 1, srv.Registry().Count())

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return srv.Registry().Count() == 0 }, 5*time.Second, 10*time.Millisecond)

	// the slot is released once the first handler returns
	require.Eventually(t, func() bool {
		c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/feedback/sess-3?token=good"), nil)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond)
}

func TestServer_ShutdownClosesLiveConnections(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	var mu sync.Mutex
	var closed []string
	srv.Registry().SetLifecycleHandlers(nil, func(info ConnectionInfo, _ feedback.Summary) {
		mu.Lock()
		closed = append(closed, info.SessionReference)
		mu.Unlock()
	})

	a := dial(t, ts, "/ws/feedback/sess-a?token=good")
	readFeedback(t, a)
	b := dial(t, ts, "/ws/feedback/sess-b?token=good")
	readFeedback(t, b)
	require.Equal(t, 2, srv.Registry().Count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	assert.Zero(t, srv.Registry().Count())
	assert.Equal(t, int64(2), srv.Registry().Stats().TotalClosed)
	mu.Lock()
	assert.ElementsMatch(t, []string{"sess-a", "sess-b"}, closed)
	mu.Unlock()

	for _, conn := range []*websocket.Conn{a, b} {
		assert.Equal(t, "disconnected", readFeedback(t, conn)["data"].(map[string]any)["status"])
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/feedback/sess-c?token=good"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_ShutdownWithoutConnections(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestServeWs_PublishesOutbound(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	pub := &recordingPublisher{}
	srv.SetPublisher(pub)

	conn := dial(t, ts, "/ws/feedback/sess-9?token=good")
	readFeedback(t, conn)
	send(t, conn, `{"type":"ping"}`)
	readFeedback(t, conn)

	require.Eventually(t, func() bool { return pub.count("sess-9") >= 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	conn := dial(t, ts, "/ws/feedback/sess-1?token=good")
	readFeedback(t, conn)

	resp, err := http.Get(ts.URL + "/ws/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["active_connections"])
	assert.EqualValues(t, 1, body["total_opened"])
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/feedback/s?token=q", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "token.p")
	tok, proto := extractToken(r)
	assert.Equal(t, "q", tok)
	assert.Empty(t, proto)

	r = httptest.NewRequest(http.MethodGet, "/ws/feedback/s", nil)
	r.Header.Set("Sec-WebSocket-Protocol", "json, token.abc.def")
	tok, proto = extractToken(r)
	assert.Equal(t, "abc.def", tok)
	assert.Equal(t, "token.abc.def", proto)
}
