// Package event lists every server to client event and its wire payload.
package event

import (
	"encoding/json"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/chat"
	"chat-relay/errors"
)

const (
	ReceiveMessageEvent    = "receiveMessage"
	MessageSentEvent       = "messageSent"
	MessageDeliveredEvent  = "messageDelivered"
	MessageReadEvent       = "messageRead"
	UserTypingEvent        = "userTyping"
	UserStoppedTypingEvent = "userStoppedTyping"
	UserOnlineEvent        = "userOnline"
	UserOfflineEvent       = "userOffline"
	NewUserEvent           = "newUser"
	ForceDisconnectEvent   = "forceDisconnect"
	RegisteredEvent        = "registered"
	ErrorEvent             = "error"
)

type DomainEvent interface {
	EventName() string
}

// MessageRecord is the full message as exposed to clients.
type MessageRecord struct {
	MessageID  string             `json:"messageId"`
	SenderID   chat.ParticipantID `json:"senderId"`
	ReceiverID chat.ParticipantID `json:"receiverId"`
	Message    string             `json:"message"`
	Timestamp  time.Time          `json:"timestamp"`
	Delivered  bool               `json:"delivered"`
	Read       bool               `json:"read"`
}

func NewMessageRecord(m chat.Message) MessageRecord {
	return MessageRecord{
		MessageID:  m.MessageID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Message:    m.Content,
		Timestamp:  m.Timestamp,
		Delivered:  m.Delivered,
		Read:       m.Read,
	}
}

type ReceiveMessage struct{ MessageRecord }

func (ReceiveMessage) EventName() string { return ReceiveMessageEvent }

type MessageSent struct{ MessageRecord }

func (MessageSent) EventName() string { return MessageSentEvent }

type MessageDelivered struct {
	MessageID string `json:"messageId"`
}

func (MessageDelivered) EventName() string { return MessageDeliveredEvent }

type MessageRead struct {
	MessageID string `json:"messageId"`
}

func (MessageRead) EventName() string { return MessageReadEvent }

type UserTyping struct {
	SenderID chat.ParticipantID `json:"senderId"`
}

func (UserTyping) EventName() string { return UserTypingEvent }

type UserStoppedTyping struct {
	SenderID chat.ParticipantID `json:"senderId"`
}

func (UserStoppedTyping) EventName() string { return UserStoppedTypingEvent }

// Profile is the public view of a user carried by presence events.
type Profile struct {
	Email          string `json:"email"`
	Username       string `json:"username"`
	Online         bool   `json:"online"`
	ProfilePicture string `json:"profilePicture"`
}

type UserOnline struct{ Profile }

func (UserOnline) EventName() string { return UserOnlineEvent }

type UserOffline struct{ Profile }

func (UserOffline) EventName() string { return UserOfflineEvent }

type NewUser struct{ Profile }

func (NewUser) EventName() string { return NewUserEvent }

type ForceDisconnect struct {
	Message string `json:"message"`
}

func (ForceDisconnect) EventName() string { return ForceDisconnectEvent }

type Registered struct {
	UserID chat.ParticipantID `json:"userId"`
}

func (Registered) EventName() string { return RegisteredEvent }

type Error struct {
	Message string `json:"message"`
}

func (Error) EventName() string { return ErrorEvent }

func Encode(e DomainEvent) ([]byte, error) {
	return domain.NewEnvelope(e.EventName(), e)
}

// Decode is used by clients to turn a server frame back into a typed event.
func Decode(env domain.Envelope) (DomainEvent, error) {
	var target DomainEvent
	switch env.Event {
	case ReceiveMessageEvent:
		target = &ReceiveMessage{}
	case MessageSentEvent:
		target = &MessageSent{}
	case MessageDeliveredEvent:
		target = &MessageDelivered{}
	case MessageReadEvent:
		target = &MessageRead{}
	case UserTypingEvent:
		target = &UserTyping{}
	case UserStoppedTypingEvent:
		target = &UserStoppedTyping{}
	case UserOnlineEvent:
		target = &UserOnline{}
	case UserOfflineEvent:
		target = &UserOffline{}
	case NewUserEvent:
		target = &NewUser{}
	case ForceDisconnectEvent:
		target = &ForceDisconnect{}
	case RegisteredEvent:
		target = &Registered{}
	case ErrorEvent:
		target = &Error{}
	default:
		return nil, errors.ErrUnknownEvent
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, errors.ErrInvalidPayload
	}
	return target, nil
}
