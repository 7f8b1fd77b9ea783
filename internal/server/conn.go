package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send buffer full")
)

// wsConn adapts a websocket to session.Conn. Send never blocks the engine loop:
// a full buffer is reported as a failed send.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func newWSConn(ws *websocket.Conn, buffer int) *wsConn {
	return &wsConn{ws: ws, send: make(chan []byte, buffer)}
}

func (c *wsConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return errSlowConsumer
	}
}

// Close stops the write pump, which closes the socket.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

func (s *Server) handleWebSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(ws, s.cfg.SendBuffer)
	go s.writePump(conn)

	sess, err := s.engine.Connect(s.ctx, conn)
	if err != nil {
		s.logger.Warn("session rejected", zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "engine unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	s.readPump(conn, sess.ID)
}

// readPump feeds client frames to the engine until the socket fails.
func (s *Server) readPump(conn *wsConn, id string) {
	defer func() {
		if err := s.engine.Disconnect(s.ctx, id); err != nil {
			s.logger.Debug("disconnect after close", zap.String("session", id), zap.Error(err))
		}
		_ = conn.Close()
	}()

	conn.ws.SetReadLimit(maxMessageSize)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Info("websocket read error", zap.String("session", id), zap.Error(err))
			}
			return
		}
		if err := s.engine.HandleMessage(s.ctx, id, msg); err != nil {
			s.logger.Warn("message not handled", zap.String("session", id), zap.Error(err))
			return
		}
	}
}

func (s *Server) writePump(conn *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
