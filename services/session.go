package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/internal/keylock"
	"chat-relay/observability"

	"golang.org/x/time/rate"
)

type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticating
	Active
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

const (
	supersededNotice = "New session detected"
	noticeTimeout    = time.Second

	reasonSuperseded = "superseded"
	reasonRejected   = "rejected"
)

// Session drives one connection through its lifecycle. Frames of a session
// are handled one at a time by the transport read loop; different sessions
// run concurrently.
type Session struct {
	conn     contract.Connection
	verifier contract.TokenVerifier
	users    contract.UserDirectory
	registry contract.IRegistry
	delivery IDeliveryService
	presence IPresenceService
	locks    *keylock.KeyLock
	metrics  *observability.Metrics
	limiter  *rate.Limiter
	log      *slog.Logger

	mu          sync.Mutex
	state       SessionState
	participant chat.ParticipantID
	closeOnce   sync.Once
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Participant() chat.ParticipantID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

func (s *Session) transition(from, to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

// Authenticate verifies the credential and checks the participant is known.
// On failure the session is closed and no presence entry is ever created.
func (s *Session) Authenticate(ctx context.Context, credential string) (chat.ParticipantID, error) {
	if !s.transition(Unauthenticated, Authenticating) {
		return "", fmt.Errorf("authenticate from state %s", s.State())
	}
	pid, err := authenticate(ctx, s.verifier, s.users, credential)
	if err != nil {
		s.metrics.AuthFailures.WithLabelValues(errors.AuthReason(err)).Inc()
		s.log.Warn("Connection refused", "reason", errors.AuthReason(err), "error", err)
		s.mu.Lock()
		s.state = Closed
		s.mu.Unlock()
		s.conn.Close(reasonRejected)
		return "", err
	}
	s.mu.Lock()
	s.participant = pid
	s.mu.Unlock()
	return pid, nil
}

// Activate registers the connection, evicting any previous session of the
// same participant, flags the user online, announces it and replays what
// was missed.
func (s *Session) Activate(ctx context.Context) error {
	if !s.transition(Authenticating, Active) {
		return fmt.Errorf("activate from state %s", s.State())
	}
	pid := s.Participant()

	unlock := s.locks.Lock(string(pid))
	evicted, ok := s.registry.Register(pid, s.conn)
	if ok {
		s.metrics.SessionTakeovers.Inc()
		s.log.Info("Disconnecting old session", "participant", pid, "connection", evicted.ID())
		noticeCtx, cancel := context.WithTimeout(ctx, noticeTimeout)
		if err := evicted.Consume(noticeCtx, event.ForceDisconnect{Message: supersededNotice}); err != nil {
			s.log.Debug("Superseded notice not delivered", "participant", pid, "error", err)
		}
		cancel()
		evicted.Close(reasonSuperseded)
	}
	onlineErr := s.users.SetOnline(ctx, pid, true)
	unlock()

	s.metrics.ActiveConnections.Set(float64(s.registry.Len()))
	if onlineErr != nil {
		s.log.Error("Could not flag user online", "participant", pid, "error", onlineErr)
	}
	s.presence.UserOnline(s.profile(ctx, pid))
	s.log.Info("User connected", "participant", pid, "connection", s.conn.ID())

	if err := s.conn.Consume(ctx, event.Registered{UserID: pid}); err != nil {
		s.log.Debug("Registered event not delivered", "participant", pid, "error", err)
	}
	if err := s.delivery.Replay(ctx, pid, s.conn); err != nil {
		s.log.Error("Replay interrupted", "participant", pid, "error", err)
		if !errors.Is(err, errors.ErrConnectionClosed) && ctx.Err() == nil {
			s.reject(ctx, err, "Failed to load missed messages")
		}
	}
	return nil
}

// Open runs Authenticate then Activate.
func (s *Session) Open(ctx context.Context, credential string) error {
	if _, err := s.Authenticate(ctx, credential); err != nil {
		return err
	}
	return s.Activate(ctx)
}

// HandleFrame decodes and dispatches one inbound frame. A non-nil error means
// the connection must be closed.
func (s *Session) HandleFrame(ctx context.Context, frame []byte) error {
	env, err := domain.ParseEnvelope(frame)
	if err != nil {
		s.reject(ctx, errors.Join(errors.ErrInvalidPayload, err), "Invalid message data")
		return nil
	}
	cmd, err := chat.DecodeCommand(env)
	if err != nil {
		s.reject(ctx, fmt.Errorf("%s: %w", env.Event, err), "Invalid message data")
		return nil
	}
	return s.Handle(ctx, cmd)
}

// Handle dispatches a decoded command. Only an identity mismatch on register
// ends the session; every other failure is reported with an error event.
func (s *Session) Handle(ctx context.Context, cmd chat.Command) error {
	if s.State() != Active {
		return errors.ErrConnectionClosed
	}
	pid := s.Participant()

	switch c := cmd.(type) {
	case chat.SendCommand:
		if !s.limiter.Allow() {
			s.reject(ctx, errors.ErrRateLimited, "")
			return nil
		}
		if err := s.delivery.Send(ctx, pid, s.conn, c); err != nil {
			s.reject(ctx, err, "Failed to send message")
		}
	case chat.TypingCommand:
		s.delivery.Typing(ctx, pid, c)
	case chat.MarkReadCommand:
		if err := s.delivery.MarkRead(ctx, pid, c); err != nil {
			s.reject(ctx, err, "Failed to mark message as read")
		}
	case chat.RegisterCommand:
		if c.UserID != pid {
			s.log.Warn("Client registration user ID mismatch", "participant", pid, "claimed", c.UserID)
			s.reject(ctx, errors.ErrUserMismatch, "")
			return errors.ErrUserMismatch
		}
		s.log.Debug("Client registered", "participant", pid)
	default:
		s.reject(ctx, errors.ErrUnknownEvent, "Unknown event")
	}
	return nil
}

// Close is idempotent. The presence entry is only removed, and the user only
// flagged offline, if this session is still the registered one.
func (s *Session) Close(ctx context.Context, reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		wasActive := s.state == Active
		s.state = Closed
		pid := s.participant
		s.mu.Unlock()

		if wasActive {
			unlock := s.locks.Lock(string(pid))
			removed := s.registry.Unregister(pid, s.conn)
			var offlineErr error
			if removed {
				offlineErr = s.users.SetOnline(ctx, pid, false)
			}
			unlock()

			if removed {
				s.metrics.ActiveConnections.Set(float64(s.registry.Len()))
				if offlineErr != nil {
					s.log.Error("Could not flag user offline", "participant", pid, "error", offlineErr)
				}
				s.presence.UserOffline(s.profile(ctx, pid))
			}
			s.log.Info("User disconnected", "participant", pid, "reason", reason, "unregistered", removed)
		}
		s.conn.Close(reason)
	})
}

func (s *Session) reject(ctx context.Context, err error, fallback string) {
	switch {
	case errors.Is(err, errors.ErrStorage):
		s.log.Error("Operation failed", "participant", s.Participant(), "error", err)
	default:
		s.log.Warn("Operation rejected", "participant", s.Participant(), "error", err)
	}
	message := errors.ClientMessage(err, fallback)
	if err = s.conn.Consume(ctx, event.Error{Message: message}); err != nil {
		s.log.Debug("Error event not delivered", "participant", s.Participant(), "error", err)
	}
}

func (s *Session) profile(ctx context.Context, pid chat.ParticipantID) event.Profile {
	profile, err := s.users.Profile(ctx, pid)
	if err != nil {
		s.log.Debug("Profile unavailable, announcing identifier only", "participant", pid, "error", err)
		return event.Profile{Email: string(pid)}
	}
	return profile
}

func authenticate(ctx context.Context, verifier contract.TokenVerifier, users contract.UserDirectory, credential string) (chat.ParticipantID, error) {
	pid, err := verifier.Verify(credential)
	if err != nil {
		return "", err
	}
	exists, err := users.Exists(ctx, pid)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", errors.ErrUnknownUser
	}
	return pid, nil
}
