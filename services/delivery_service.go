//go:generate go run go.uber.org/mock/mockgen -source=delivery_service.go -destination=../mocks/mock_delivery_service.go -package=mocks
package services

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

const defaultNotifyTimeout = time.Second

type IDeliveryService interface {
	Send(ctx context.Context, from chat.ParticipantID, conn contract.Connection, cmd chat.SendCommand) error
	Replay(ctx context.Context, pid chat.ParticipantID, conn contract.Connection) error
	MarkRead(ctx context.Context, from chat.ParticipantID, cmd chat.MarkReadCommand) error
	Typing(ctx context.Context, from chat.ParticipantID, cmd chat.TypingCommand)
}

// DeliveryService pushes a message when its receiver is present and otherwise
// leaves it undelivered in the store; the receiver's next connection replays it.
// There is no retry timer.
type DeliveryService struct {
	conversations repositories.IConversationRepository
	users         contract.UserDirectory
	registry      contract.IRegistry
	metrics       *observability.Metrics
	moderator     *moderation.Moderator
	log           *slog.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

func NewDeliveryService(
	conversations repositories.IConversationRepository,
	users contract.UserDirectory,
	registry contract.IRegistry,
	metrics *observability.Metrics,
	log *slog.Logger,
) *DeliveryService {
	return &DeliveryService{
		conversations: conversations,
		users:         users,
		registry:      registry,
		metrics:       metrics,
		log:           log,
		now:           time.Now,
		notifyTimeout: defaultNotifyTimeout,
	}
}

// WithModerator masks blacklisted words in every message before it is stored.
func (s *DeliveryService) WithModerator(m *moderation.Moderator) *DeliveryService {
	s.moderator = m
	return s
}

// WithNotifyTimeout bounds how long a receipt or typing notification waits for
// room on the peer's connection. Message pushes are not bounded.
func (s *DeliveryService) WithNotifyTimeout(d time.Duration) *DeliveryService {
	if d > 0 {
		s.notifyTimeout = d
	}
	return s
}

// Send persists the message, acknowledges it to conn with messageSent and then
// tries an immediate push to the receiver. messageDelivered only follows a
// push that actually reached a live connection.
func (s *DeliveryService) Send(ctx context.Context, from chat.ParticipantID, conn contract.Connection, cmd chat.SendCommand) error {
	if err := validate.Struct(cmd); err != nil {
		return errors.Join(errors.ErrInvalidPayload, err)
	}
	if cmd.SenderID != from {
		s.log.Warn("Sender ID mismatch", "participant", from, "claimed", cmd.SenderID)
		return errors.ErrSenderMismatch
	}
	if cmd.ReceiverID == from {
		return errors.ErrSelfMessage
	}
	if err := cmd.ReceiverID.Validate(); err != nil {
		return err
	}
	receiver, err := s.resolve(ctx, cmd.ReceiverID)
	if err != nil {
		if errors.Is(err, errors.ErrRecipientNotFound) {
			s.log.Warn("Receiver not found", "participant", from, "receiver", cmd.ReceiverID)
		}
		return err
	}
	if receiver == from {
		return errors.ErrSelfMessage
	}

	content, censored := s.moderator.Censor(cmd.Message)
	if len(censored) > 0 {
		s.metrics.MessagesCensored.Inc()
		s.log.Info("Message censored", "message_id", cmd.MessageID, "participant", from, "words", len(censored))
	}
	message, err := chat.NewMessage(cmd.MessageID, from, receiver, content, s.now())
	if err != nil {
		return err
	}
	result, err := s.conversations.AppendMessage(ctx, message)
	if err != nil {
		return err
	}
	stored := result.Message
	if result.Duplicate {
		s.log.Info("Duplicate message id, not stored twice", "message_id", stored.MessageID, "participant", from)
	} else {
		s.metrics.MessagesSent.Inc()
		s.log.Info("Message saved", "message_id", stored.MessageID, "participant", from, "receiver", stored.ReceiverID)
	}

	if err = conn.Consume(ctx, event.MessageSent{MessageRecord: event.NewMessageRecord(stored)}); err != nil {
		s.log.Debug("Could not acknowledge message", "message_id", stored.MessageID, "error", err)
	}
	if stored.Delivered {
		return nil
	}

	if !s.pushLive(ctx, stored) {
		s.log.Info("Receiver offline, message kept for replay", "message_id", stored.MessageID, "receiver", stored.ReceiverID)
		return nil
	}
	if err = conn.Consume(ctx, event.MessageDelivered{MessageID: stored.MessageID}); err != nil {
		s.log.Debug("Could not notify delivery", "message_id", stored.MessageID, "error", err)
	}
	return nil
}

// pushLive pushes message to the receiver's current connection, looked up at
// the last moment, and marks it delivered on success.
func (s *DeliveryService) pushLive(ctx context.Context, message chat.Message) bool {
	receiver, ok := s.registry.Lookup(message.ReceiverID)
	if !ok {
		return false
	}
	if err := receiver.Consume(ctx, event.ReceiveMessage{MessageRecord: event.NewMessageRecord(message)}); err != nil {
		s.log.Info("Push to receiver failed", "message_id", message.MessageID, "receiver", message.ReceiverID, "error", err)
		return false
	}
	if err := s.conversations.SetDelivered(ctx, message.Pair, message.MessageID); err != nil {
		s.log.Error("Pushed but not marked delivered, will be replayed", "message_id", message.MessageID, "error", err)
		return false
	}
	s.metrics.MessagesDelivered.WithLabelValues(observability.DeliveryLive).Inc()
	s.log.Info("Message delivered", "message_id", message.MessageID, "receiver", message.ReceiverID)
	return true
}

// Replay pushes every undelivered message of pid to conn, oldest first,
// waiting for the writer whenever the outbound buffer is full. A failure on
// one message skips it and moves on. Only a closed connection or a done ctx
// stops the replay.
func (s *DeliveryService) Replay(ctx context.Context, pid chat.ParticipantID, conn contract.Connection) error {
	pending, err := s.conversations.FindUndelivered(ctx, pid)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		s.log.Info("Replaying undelivered messages", "participant", pid, "count", len(pending))
	}
	for _, message := range pending {
		record := event.NewMessageRecord(message)
		record.Read = false
		if err = conn.Consume(ctx, event.ReceiveMessage{MessageRecord: record}); err != nil {
			if errors.Is(err, errors.ErrConnectionClosed) || ctx.Err() != nil {
				return err
			}
			s.log.Warn("Replay push failed", "message_id", message.MessageID, "participant", pid, "error", err)
			continue
		}
		if err = s.conversations.SetDelivered(ctx, message.Pair, message.MessageID); err != nil {
			s.log.Error("Replayed but not marked delivered", "message_id", message.MessageID, "error", err)
			continue
		}
		s.metrics.MessagesDelivered.WithLabelValues(observability.DeliveryReplay).Inc()
		s.notify(ctx, message.SenderID, event.MessageDelivered{MessageID: message.MessageID})
	}
	return nil
}

// MarkRead flips the read flag of a message addressed to from and tells the
// sender, if present. Marking an already read message is a silent no-op.
func (s *DeliveryService) MarkRead(ctx context.Context, from chat.ParticipantID, cmd chat.MarkReadCommand) error {
	if err := validate.Struct(cmd); err != nil {
		return errors.Join(errors.ErrInvalidPayload, err)
	}
	candidates, err := s.conversations.FindMessages(ctx, cmd.MessageID)
	if err != nil {
		return err
	}
	var message chat.Message
	found := false
	for _, candidate := range candidates {
		if candidate.ReceiverID == from {
			message, found = candidate, true
			break
		}
	}
	if !found {
		s.log.Warn("Not authorized to mark message as read", "participant", from, "message_id", cmd.MessageID)
		return errors.ErrNotMessageReceiver
	}

	changed, err := s.conversations.SetRead(ctx, message.Pair, message.MessageID)
	if err != nil {
		return err
	}
	if !changed {
		s.log.Debug("Message already read", "message_id", message.MessageID)
		return nil
	}
	s.metrics.MessagesRead.Inc()
	s.notify(ctx, message.SenderID, event.MessageRead{MessageID: message.MessageID})
	return nil
}

// Typing forwards a transient notification. A spoofed sender is dropped
// without telling the client.
func (s *DeliveryService) Typing(ctx context.Context, from chat.ParticipantID, cmd chat.TypingCommand) {
	if cmd.SenderID != from {
		s.log.Warn("Typing sender ID mismatch", "participant", from, "claimed", cmd.SenderID)
		return
	}
	if cmd.ReceiverID == "" || cmd.ReceiverID == from {
		return
	}
	receiver, err := s.resolve(ctx, cmd.ReceiverID)
	if err != nil || receiver == from {
		return
	}
	var evt event.DomainEvent = event.UserTyping{SenderID: from}
	if cmd.Stopped {
		evt = event.UserStoppedTyping{SenderID: from}
	}
	s.notify(ctx, receiver, evt)
}

// resolve maps a client supplied participant to the identity stored in the
// directory, the one sessions register under.
func (s *DeliveryService) resolve(ctx context.Context, pid chat.ParticipantID) (chat.ParticipantID, error) {
	profile, err := s.users.Profile(ctx, pid)
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return "", errors.ErrRecipientNotFound
	case err != nil:
		return "", err
	}
	return chat.ParticipantID(profile.Email), nil
}

func (s *DeliveryService) notify(ctx context.Context, pid chat.ParticipantID, evt event.DomainEvent) {
	conn, ok := s.registry.Lookup(pid)
	if !ok {
		return
	}
	notifyCtx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	if err := conn.Consume(notifyCtx, evt); err != nil {
		s.log.Debug("Notification not delivered", "participant", pid, "event", evt.EventName(), "error", err)
	}
}
