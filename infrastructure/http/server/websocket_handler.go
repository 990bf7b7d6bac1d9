package server

import (
	"context"
	"time"

	"chat-relay/auth"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/services"
	"chat-relay/sink"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	credentialKey = "credential"

	reasonClientClosed = "client closed"
	reasonReadFailed   = "read failed"
	reasonWriteFailed  = "write failed"
	reasonProtocol     = "protocol violation"
	reasonShutdown     = "server shutdown"
)

// upgrade refuses the WebSocket handshake when the credential is not valid,
// so an unauthenticated client never holds an open connection.
func (s *Server) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	credential := auth.Credential(c)
	pid, err := s.chatService.Authenticate(c.UserContext(), credential)
	if err != nil {
		if errors.Is(err, errors.ErrStorage) {
			return err
		}
		s.countAuthFailure(err)
		s.log.Warn("WebSocket upgrade refused", "reason", errors.AuthReason(err), "ip", c.IP())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":  "authentication",
			"reason": errors.AuthReason(err),
		})
	}
	c.Locals(auth.ParticipantKey, pid)
	c.Locals(credentialKey, credential)
	return c.Next()
}

// handleConnection owns one upgraded connection: a writer goroutine drains the
// session sink while this goroutine reads frames until the peer leaves.
func (s *Server) handleConnection(conn *websocket.Conn) {
	pid, _ := conn.Locals(auth.ParticipantKey).(chat.ParticipantID)
	credential, _ := conn.Locals(credentialKey).(string)
	log := s.log.With("participant", pid)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	out := sink.NewConnectionSink(pid, s.options.ConnectionBufferSize, log)
	session := s.chatService.NewSession(out)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(conn, out)
	}()
	go func() {
		select {
		case <-ctx.Done():
			out.Close(reasonShutdown)
		case <-out.Done():
		}
	}()

	reason := reasonClientClosed
	defer func() {
		session.Close(context.WithoutCancel(ctx), reason)
		<-writerDone
		log.Debug("Connection handler finished", "reason", out.Reason())
	}()

	if err := session.Open(ctx, credential); err != nil {
		log.Warn("Session refused after upgrade", "error", err)
		return
	}
	reason = s.readPump(ctx, conn, session)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, session *services.Session) string {
	conn.SetReadLimit(s.options.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.options.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.options.PongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Info("WebSocket read error", "participant", session.Participant(), "error", err)
				return reasonReadFailed
			}
			return reasonClientClosed
		}
		if err = session.HandleFrame(ctx, frame); err != nil {
			s.log.Warn("Closing connection", "participant", session.Participant(), "error", err)
			return reasonProtocol
		}
	}
}

// writePump is the only writer of conn. Once the sink is closed it flushes
// what is still queued, sends a close frame and bounds the pending read.
func (s *Server) writePump(conn *websocket.Conn, out *sink.ConnectionSink) {
	ticker := time.NewTicker(s.options.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame := <-out.Events():
			if err := s.write(conn, websocket.TextMessage, frame); err != nil {
				s.log.Info("WebSocket write error", "participant", out.Participant(), "error", err)
				out.Close(reasonWriteFailed)
				_ = conn.SetReadDeadline(time.Now())
				return
			}
		case <-ticker.C:
			if err := s.write(conn, websocket.PingMessage, nil); err != nil {
				out.Close(reasonWriteFailed)
				_ = conn.SetReadDeadline(time.Now())
				return
			}
		case <-out.Done():
			s.flush(conn, out)
			_ = s.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, out.Reason()))
			_ = conn.SetReadDeadline(time.Now().Add(s.options.WriteTimeout))
			return
		}
	}
}

func (s *Server) flush(conn *websocket.Conn, out *sink.ConnectionSink) {
	for {
		select {
		case frame := <-out.Events():
			if err := s.write(conn, websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Server) write(conn *websocket.Conn, messageType int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(s.options.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}
