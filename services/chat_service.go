package services

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/internal/keylock"
	"chat-relay/observability"
	"chat-relay/repositories"

	"golang.org/x/time/rate"
)

type IChatService interface {
	Authenticate(ctx context.Context, credential string) (chat.ParticipantID, error)
	NewSession(conn contract.Connection) *Session
	History(ctx context.Context, caller, a, b chat.ParticipantID, cursor *string) ([]chat.Message, *string, error)
	Online() []chat.ParticipantID
}

// ChatService wires sessions to the shared registry, store and presence
// queue. It is the only place sessions are created.
type ChatService struct {
	conversations repositories.IConversationRepository
	users         contract.UserDirectory
	verifier      contract.TokenVerifier
	registry      contract.IRegistry
	delivery      IDeliveryService
	presence      IPresenceService
	metrics       *observability.Metrics
	log           *slog.Logger
	locks         *keylock.KeyLock
	sendRate      rate.Limit
	sendBurst     int
}

func NewChatService(
	conversations repositories.IConversationRepository,
	users contract.UserDirectory,
	verifier contract.TokenVerifier,
	registry contract.IRegistry,
	delivery IDeliveryService,
	presence IPresenceService,
	metrics *observability.Metrics,
	log *slog.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		users:         users,
		verifier:      verifier,
		registry:      registry,
		delivery:      delivery,
		presence:      presence,
		metrics:       metrics,
		log:           log,
		locks:         keylock.New(),
		sendRate:      rate.Inf,
	}
}

// WithSendLimit caps how many send events one connection may issue per second.
// A non-positive rate disables the cap.
func (s *ChatService) WithSendLimit(perSecond float64, burst int) *ChatService {
	if perSecond <= 0 {
		s.sendRate = rate.Inf
		return s
	}
	s.sendRate, s.sendBurst = rate.Limit(perSecond), max(burst, 1)
	return s
}

// Authenticate lets the transport refuse an upgrade before any session exists.
func (s *ChatService) Authenticate(ctx context.Context, credential string) (chat.ParticipantID, error) {
	return authenticate(ctx, s.verifier, s.users, credential)
}

func (s *ChatService) NewSession(conn contract.Connection) *Session {
	return &Session{
		conn:     conn,
		verifier: s.verifier,
		users:    s.users,
		registry: s.registry,
		delivery: s.delivery,
		presence: s.presence,
		locks:    s.locks,
		metrics:  s.metrics,
		limiter:  rate.NewLimiter(s.sendRate, s.sendBurst),
		log:      s.log.With("connection", conn.ID()),
		state:    Unauthenticated,
	}
}

// History pages through the conversation between a and b. Only a member of
// the pair may read it.
func (s *ChatService) History(ctx context.Context, caller, a, b chat.ParticipantID, cursor *string) ([]chat.Message, *string, error) {
	pair, err := chat.NewPair(a, b)
	if err != nil {
		return nil, nil, err
	}
	if !pair.Contains(caller) {
		return nil, nil, errors.ErrNotParticipant
	}
	return s.conversations.GetMessages(ctx, a, b, cursor)
}

func (s *ChatService) Online() []chat.ParticipantID {
	return s.registry.Online()
}
