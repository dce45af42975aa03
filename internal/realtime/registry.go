package realtime

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/metrics"
)

// ErrDuplicateConnection is returned when a connection id is registered twice.
var ErrDuplicateConnection = errors.New("connection already registered")

// State is the lifecycle state of one connection.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Handle is the registry's view of a connection. It never carries speech state.
type Handle struct {
	ID               string
	SessionReference string
	UserID           string
	ConnectedAt      time.Time
	state            atomic.Int32
}

// NewHandle creates a handle in the connecting state.
func NewHandle(id, sessionRef, userID string, now time.Time) *Handle {
	return &Handle{ID: id, SessionReference: sessionRef, UserID: userID, ConnectedAt: now}
}

// State returns the current lifecycle state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Info returns a copy safe to hand out.
func (h *Handle) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:               h.ID,
		SessionReference: h.SessionReference,
		UserID:           h.UserID,
		ConnectedAt:      h.ConnectedAt,
		State:            h.State().String(),
	}
}

// ConnectionInfo is the JSON form of a handle for introspection endpoints.
type ConnectionInfo struct {
	ID               string    `json:"connection_id"`
	SessionReference string    `json:"session_reference"`
	UserID           string    `json:"user_id"`
	ConnectedAt      time.Time `json:"connected_at"`
	State            string    `json:"state"`
}

// Stats aggregates registry health.
type Stats struct {
	Active      int   `json:"active_connections"`
	TotalOpened int64 `json:"total_opened"`
	TotalClosed int64 `json:"total_closed"`
}

// OpenHandler is called after a connection becomes active.
type OpenHandler func(info ConnectionInfo)

// CloseHandler is called once after a connection is closed, with the session's final readout.
type CloseHandler func(info ConnectionInfo, summary feedback.Summary)

// Registry maps connection id to handle. The lock is held only for map updates and reads.
type Registry struct {
	conns   map[string]*Handle
	mu      sync.RWMutex
	opened  atomic.Int64
	closed  atomic.Int64
	logger  *zap.Logger
	onOpen  OpenHandler
	onClose CloseHandler
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		conns:  make(map[string]*Handle),
		logger: logger,
	}
}

// SetLifecycleHandlers sets callbacks for open and close (e.g. audit log, summary jobs).
// Either may be nil.
func (r *Registry) SetLifecycleHandlers(onOpen OpenHandler, onClose CloseHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onOpen = onOpen
	r.onClose = onClose
}

// Register moves h from connecting to active, makes it visible and runs the open handler.
func (r *Registry) Register(h *Handle) error {
	if err := r.activate(h); err != nil {
		return err
	}
	r.announce(h)
	return nil
}

func (r *Registry) activate(h *Handle) error {
	r.mu.Lock()
	if _, exists := r.conns[h.ID]; exists {
		r.mu.Unlock()
		return ErrDuplicateConnection
	}
	if !h.state.CompareAndSwap(int32(StateConnecting), int32(StateActive)) {
		r.mu.Unlock()
		return errors.New("connection is not in connecting state")
	}
	r.conns[h.ID] = h
	r.mu.Unlock()

	r.opened.Add(1)
	metrics.ConnectionsActive.Inc()
	r.logger.Debug("connection registered",
		zap.String("connection_id", h.ID),
		zap.String("session_reference", h.SessionReference))
	return nil
}

// announce runs the open handler for an activated handle.
func (r *Registry) announce(h *Handle) {
	r.mu.RLock()
	onOpen := r.onOpen
	r.mu.RUnlock()
	if onOpen != nil {
		r.safeCall("open", func() { onOpen(h.Info()) })
	}
}

// Deregister closes h and removes it. Only the first call for a handle has any effect; it
// reports whether this call performed the close.
func (r *Registry) Deregister(h *Handle, summary feedback.Summary) bool {
	if !h.state.CompareAndSwap(int32(StateActive), int32(StateClosed)) {
		// never activated: just mark closed
		h.state.CompareAndSwap(int32(StateConnecting), int32(StateClosed))
		return false
	}
	r.mu.Lock()
	delete(r.conns, h.ID)
	onClose := r.onClose
	r.mu.Unlock()

	r.closed.Add(1)
	metrics.ConnectionsActive.Dec()
	r.logger.Debug("connection deregistered",
		zap.String("connection_id", h.ID),
		zap.String("session_reference", h.SessionReference))
	if onClose != nil {
		r.safeCall("close", func() { onClose(h.Info(), summary) })
	}
	return true
}

// Lookup returns the handle for id, if registered.
func (r *Registry) Lookup(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[id]
	return h, ok
}

// Count returns the number of active connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// List returns the active connections ordered by connect time.
func (r *Registry) List() []ConnectionInfo {
	r.mu.RLock()
	list := make([]ConnectionInfo, 0, len(r.conns))
	for _, h := range r.conns {
		list = append(list, h.Info())
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ConnectedAt.Before(list[j].ConnectedAt) })
	return list
}

// Stats returns counts without touching any session.
func (r *Registry) Stats() Stats {
	return Stats{
		Active:      r.Count(),
		TotalOpened: r.opened.Load(),
		TotalClosed: r.closed.Load(),
	}
}

func (r *Registry) safeCall(event string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("lifecycle handler panic", zap.String("event", event), zap.Any("panic", rec))
		}
	}()
	fn()
}
