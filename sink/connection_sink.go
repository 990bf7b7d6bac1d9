package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"

	"github.com/google/uuid"
)

// ConnectionSink is the outbound half of one client connection. Consume
// encodes the event and queues the frame; a writer pump owned by the
// transport drains Events until Done is closed.
type ConnectionSink struct {
	id          string
	participant chat.ParticipantID
	log         *slog.Logger
	events      chan []byte
	done        chan struct{}

	mu     sync.RWMutex
	closed bool
	reason string
}

func NewConnectionSink(participant chat.ParticipantID, bufferSize int, log *slog.Logger) *ConnectionSink {
	return &ConnectionSink{
		id:          uuid.NewString(),
		participant: participant,
		log:         log,
		events:      make(chan []byte, bufferSize),
		done:        make(chan struct{}),
	}
}

func (s *ConnectionSink) ID() string { return s.id }

func (s *ConnectionSink) Participant() chat.ParticipantID { return s.participant }

// Consume queues e for the writer. When the buffer is full it waits for the
// writer to make room, until the sink is closed (ErrConnectionClosed) or ctx
// is done (ErrConnectionBlocked).
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	frame, err := event.Encode(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.EventName(), err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case s.events <- frame:
		return nil
	default:
	}
	s.log.Debug("Outbound buffer full, waiting for the writer",
		"participant", s.participant, "connection", s.id, "event", e.EventName())
	select {
	case s.events <- frame:
		return nil
	case <-s.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		s.log.Warn("Outbound buffer still full, event not queued",
			"participant", s.participant, "connection", s.id, "event", e.EventName())
		return errors.Join(errors.ErrConnectionBlocked, ctx.Err())
	}
}

// Close marks the sink closed and wakes the writer, which flushes what is
// already queued before closing the socket. Only the first reason is kept.
func (s *ConnectionSink) Close(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.reason = reason
	close(s.done)
}

func (s *ConnectionSink) Events() <-chan []byte { return s.events }

func (s *ConnectionSink) Done() <-chan struct{} { return s.done }

func (s *ConnectionSink) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

func (s *ConnectionSink) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
