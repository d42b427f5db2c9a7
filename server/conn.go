package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/randalmurphal/claude-relay/relay"
)

// Client message types.
const (
	MessageClaudeCommand  = "claude-command"
	MessageAbortSession   = "abort-session"
	MessageSessionAborted = "session-aborted"
)

// clientMessage is any message a client sends.
type clientMessage struct {
	Type      string        `json:"type"`
	Command   string        `json:"command"`
	Options   relay.Options `json:"options"`
	SessionID string        `json:"sessionId"`
}

// sessionAborted answers an abort-session message.
type sessionAborted struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Success   bool   `json:"success"`
}

var errConnClosed = errors.New("connection closed")

// conn is one websocket client. Writes from concurrent runs are serialized.
type conn struct {
	id     string
	server *Server
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	closed  bool
}

func newConn(s *Server, ws *websocket.Conn) *conn {
	id := uuid.NewString()
	return &conn{
		id:     id,
		server: s,
		ws:     ws,
		logger: s.logger.With(slog.String("conn", id)),
	}
}

// serve reads client messages until the connection fails.
func (c *conn) serve() {
	defer c.close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", slog.Any("error", err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid client message", slog.Any("error", err))
			continue
		}
		c.handle(msg)
	}
}

func (c *conn) handle(msg clientMessage) {
	switch msg.Type {
	case MessageClaudeCommand:
		c.logger.Debug("claude command",
			slog.String("session", msg.Options.SessionID),
			slog.Int("images", len(msg.Options.Images)))
		c.server.startRun(c, msg.Command, msg.Options)

	case MessageAbortSession:
		ok, err := c.server.runner.Abort(c.server.runCtx, msg.SessionID)
		if err != nil {
			c.logger.Warn("abort signal failed", slog.String("session", msg.SessionID), slog.Any("error", err))
		}
		if err := c.writeJSON(sessionAborted{
			Type:      MessageSessionAborted,
			SessionID: msg.SessionID,
			Success:   ok,
		}); err != nil {
			c.logger.Debug("abort reply not delivered", slog.Any("error", err))
		}

	default:
		c.logger.Warn("unknown client message type", slog.String("type", msg.Type))
	}
}

func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return errConnClosed
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *conn) close() {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	_ = c.ws.Close()
}

// newRunSink returns a sink for one run on this connection.
func (c *conn) newRunSink() *runSink {
	return &runSink{conn: c, logger: c.logger}
}

// runSink delivers one run's events to its connection.
type runSink struct {
	conn   *conn
	logger *slog.Logger
}

var (
	_ relay.Sink          = (*runSink)(nil)
	_ relay.SessionBinder = (*runSink)(nil)
)

// Send implements relay.Sink.
func (s *runSink) Send(ev relay.Event) error {
	if err := s.conn.writeJSON(ev); err != nil {
		s.logger.Debug("event not delivered", slog.String("event", string(ev.Type())), slog.Any("error", err))
		return err
	}
	return nil
}

// SetSessionID implements relay.SessionBinder. Only the run's goroutine
// calls Send and SetSessionID, so the logger swap needs no lock.
func (s *runSink) SetSessionID(id string) {
	s.logger = s.conn.logger.With(slog.String("session", id))
	s.logger.Debug("run bound to session")
}
