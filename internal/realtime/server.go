package realtime

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/auth"
	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/metrics"
	"github.com/interview-coach/realtime/pkg/response"
)

// tokenProtocolPrefix marks a Sec-WebSocket-Protocol entry carrying the bearer token.
const tokenProtocolPrefix = "token."

// Authenticator verifies the credential presented for a session before the upgrade.
type Authenticator interface {
	Authenticate(ctx context.Context, token, sessionRef string) (auth.Principal, error)
}

// EventPublisher receives a copy of every outbound message (cross-instance observers).
type EventPublisher interface {
	PublishFeedback(ctx context.Context, sessionRef string, payload []byte) error
}

// Options tune the per-connection loop.
type Options struct {
	SendBuffer      int
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageBytes int64
	MaxConnections  int
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		SendBuffer:      64,
		PingInterval:    30 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		MaxMessageBytes: 1 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = d.MaxMessageBytes
	}
	return o
}

// Server accepts feedback connections and runs one loop per connection.
type Server struct {
	registry   *Registry
	dispatcher *feedback.Dispatcher
	authn      Authenticator
	publisher  EventPublisher
	upgrader   websocket.Upgrader
	opts       Options
	sem        chan struct{}
	logger     *zap.Logger

	mu       sync.Mutex
	clients  map[*client]struct{}
	closing  bool
	handlers sync.WaitGroup
}

// NewServer creates a feedback connection server.
func NewServer(registry *Registry, dispatcher *feedback.Dispatcher, authn Authenticator, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		authn:      authn,
		opts:       opts,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // access is gated by the token
			},
		},
	}
	if opts.MaxConnections > 0 {
		s.sem = make(chan struct{}, opts.MaxConnections)
	}
	return s
}

// SetPublisher enables best-effort fan-out of outbound messages.
func (s *Server) SetPublisher(p EventPublisher) { s.publisher = p }

// Registry returns the connection registry.
func (s *Server) Registry() *Registry { return s.registry }

// ServeWs handles GET /ws/feedback/:session_id. Authentication happens before the upgrade so a
// rejected caller is never registered.
func (s *Server) ServeWs(c *gin.Context) {
	sessionRef := strings.TrimSpace(c.Param("session_id"))
	if sessionRef == "" {
		response.BadRequest(c, "session_id required")
		return
	}

	if s.isClosing() {
		metrics.ConnectionsTotal.WithLabelValues("shutting_down").Inc()
		response.ServiceUnavailable(c, "server is shutting down")
		return
	}

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		default:
			metrics.ConnectionsTotal.WithLabelValues("over_capacity").Inc()
			response.ServiceUnavailable(c, "too many active connections")
			return
		}
	}

	token, protocol := extractToken(c.Request)
	principal, err := s.authn.Authenticate(c.Request.Context(), token, sessionRef)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("unauthorized").Inc()
		s.logger.Info("feedback connection rejected",
			zap.String("session_reference", sessionRef), zap.Error(err))
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	handle := NewHandle(uuid.New().String(), sessionRef, principal.UserID, s.dispatcher.Service().Now())

	var header http.Header
	if protocol != "" {
		header = http.Header{"Sec-Websocket-Protocol": []string{protocol}}
	}
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		metrics.ConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := s.dispatcher.Service().NewSession(handle.ID, principal.UserID, sessionRef)
	if qid := c.Query("question_id"); qid != "" {
		sess.MergeMetadata(map[string]any{feedback.MetaQuestionID: qid})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cl := &client{
		server:  s,
		handle:  handle,
		session: sess,
		conn:    conn,
		send:    make(chan feedback.Feedback, s.opts.SendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		logger: s.logger.With(
			zap.String("connection_id", handle.ID),
			zap.String("session_reference", sessionRef),
			zap.String("user_id", principal.UserID)),
	}
	if !s.track(cl) {
		cancel()
		metrics.ConnectionsTotal.WithLabelValues("shutting_down").Inc()
		_ = conn.Close()
		return
	}
	defer s.untrack(cl)
	go cl.writePump()

	if err := s.registry.activate(handle); err != nil {
		metrics.ConnectionsTotal.WithLabelValues("register_failed").Inc()
		s.logger.Error("register connection", zap.String("connection_id", handle.ID), zap.Error(err))
		cl.close()
		return
	}
	metrics.ConnectionsTotal.WithLabelValues("accepted").Inc()

	// the client hears "connected" before the open handler touches storage
	cl.enqueue(feedback.StatusFeedback(sessionRef, "connected", "connected to real-time feedback", s.dispatcher.Service().Now()))
	s.registry.announce(handle)
	cl.readPump()
}

// Shutdown stops accepting connections, closes every live one and waits until each has been
// deregistered, or until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	open := len(s.clients)
	for cl := range s.clients {
		cl.cancel()
	}
	s.mu.Unlock()
	s.logger.Info("closing feedback connections", zap.Int("open", open))

	drained := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// track adds cl to the live set unless the server is shutting down.
func (s *Server) track(cl *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.clients[cl] = struct{}{}
	s.handlers.Add(1)
	return true
}

func (s *Server) untrack(cl *client) {
	s.mu.Lock()
	delete(s.clients, cl)
	s.mu.Unlock()
	s.handlers.Done()
}

// Health handles GET /ws/health.
func (s *Server) Health(c *gin.Context) {
	st := s.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"active_connections": st.Active,
		"total_opened":       st.TotalOpened,
		"total_closed":       st.TotalClosed,
	})
}

// Connections handles GET /ws/connections (admin).
func (s *Server) Connections(c *gin.Context) {
	response.OK(c, s.registry.List())
}

// extractToken returns the credential from ?token= or a "token.<jwt>" subprotocol entry, plus
// the subprotocol to echo back when that form was used.
func extractToken(r *http.Request) (token, protocol string) {
	if t := r.URL.Query().Get("token"); t != "" {
		return t, ""
	}
	for _, p := range websocket.Subprotocols(r) {
		if strings.HasPrefix(p, tokenProtocolPrefix) {
			return strings.TrimPrefix(p, tokenProtocolPrefix), p
		}
	}
	return "", ""
}
