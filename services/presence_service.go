//go:generate go run go.uber.org/mock/mockgen -source=presence_service.go -destination=../mocks/mock_presence_service.go -package=mocks
package services

import (
	"log/slog"

	"chat-relay/domain/event"
	"chat-relay/observability"
)

type IPresenceService interface {
	UserOnline(profile event.Profile)
	UserOffline(profile event.Profile)
	NewUser(profile event.Profile)
}

// PresenceService queues presence announcements for the fanout worker.
// Publishing never blocks the caller: when the queue is full the event is
// dropped, presence having no delivery guarantee.
type PresenceService struct {
	events  chan event.DomainEvent
	metrics *observability.Metrics
	log     *slog.Logger
}

func NewPresenceService(bufferSize int, metrics *observability.Metrics, log *slog.Logger) *PresenceService {
	return &PresenceService{
		events:  make(chan event.DomainEvent, bufferSize),
		metrics: metrics,
		log:     log,
	}
}

// Events is consumed by workers.PresenceFanout.
func (p *PresenceService) Events() <-chan event.DomainEvent { return p.events }

func (p *PresenceService) UserOnline(profile event.Profile) {
	profile.Online = true
	p.Broadcast(event.UserOnline{Profile: profile})
}

func (p *PresenceService) UserOffline(profile event.Profile) {
	profile.Online = false
	p.Broadcast(event.UserOffline{Profile: profile})
}

func (p *PresenceService) NewUser(profile event.Profile) {
	p.Broadcast(event.NewUser{Profile: profile})
}

func (p *PresenceService) Broadcast(e event.DomainEvent) {
	select {
	case p.events <- e:
	default:
		p.metrics.BroadcastsDropped.Inc()
		p.log.Warn("Presence queue full, event dropped", "event", e.EventName())
	}
}
