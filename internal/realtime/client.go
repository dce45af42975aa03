package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/interview-coach/realtime/internal/feedback"
	"github.com/interview-coach/realtime/internal/metrics"
)

const publishTimeout = 2 * time.Second

// client is one accepted connection. The read goroutine owns the session; the write goroutine
// owns all writes to conn.
type client struct {
	server  *Server
	handle  *Handle
	session *feedback.Session
	conn    *websocket.Conn
	send    chan feedback.Feedback
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	logger  *zap.Logger
}

// enqueue hands fb to the writer in order. It blocks while the buffer is full and gives up
// once the connection is closing.
func (c *client) enqueue(fb feedback.Feedback) bool {
	select {
	case c.send <- fb:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			metrics.ProcessingErrors.Inc()
			c.logger.Error("feedback loop panic", zap.Any("panic", r))
		}
		c.close()
	}()

	opts := c.server.opts
	c.conn.SetReadLimit(opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection dropped", zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))

		for _, fb := range c.server.dispatcher.Dispatch(c.ctx, c.session, raw) {
			if !c.enqueue(fb) {
				return
			}
		}
	}
}

func (c *client) writePump() {
	opts := c.server.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case fb := <-c.send:
			if err := c.write(fb); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			c.goodbye()
			return
		}
	}
}

func (c *client) write(fb feedback.Feedback) error {
	payload, err := feedback.Encode(fb)
	if err != nil {
		return err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.opts.WriteWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	c.publish(payload)
	return nil
}

func (c *client) publish(payload []byte) {
	p := c.server.publisher
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, publishTimeout)
	defer cancel()
	if err := p.PublishFeedback(ctx, c.handle.SessionReference, payload); err != nil {
		c.logger.Debug("publish feedback", zap.Error(err))
	}
}

// goodbye is best-effort: the peer may already be gone.
func (c *client) goodbye() {
	fb := feedback.StatusFeedback(c.handle.SessionReference, "disconnected", "feedback session closed", time.Now())
	payload, err := feedback.Encode(fb)
	if err != nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// close runs exactly once per connection, on whichever exit path is reached first.
func (c *client) close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
		summary := c.session.Summary(c.server.dispatcher.Service().Now())
		if c.server.registry.Deregister(c.handle, summary) {
			c.logger.Info("feedback connection closed",
				zap.Int("messages", summary.Messages),
				zap.Int("questions", summary.Questions),
				zap.Duration("duration", summary.EndedAt.Sub(summary.StartedAt)))
		}
	})
}
