package chat

import (
	"encoding/json"

	"chat-relay/domain"
	"chat-relay/errors"
)

const (
	SendEvent       = "send"
	TypingEvent     = "typing"
	StopTypingEvent = "stopTyping"
	MarkReadEvent   = "markRead"
	RegisterEvent   = "register"
)

// Command is an inbound client request, decoded from an envelope.
type Command interface {
	CommandName() string
}

type SendCommand struct {
	SenderID   ParticipantID `json:"senderId" validate:"required"`
	ReceiverID ParticipantID `json:"receiverId" validate:"required"`
	Message    string        `json:"message" validate:"required"`
	MessageID  string        `json:"messageId" validate:"required,max=128"`
}

func (SendCommand) CommandName() string { return SendEvent }

// TypingCommand covers both typing and stopTyping.
type TypingCommand struct {
	SenderID   ParticipantID `json:"senderId"`
	ReceiverID ParticipantID `json:"receiverId"`
	Stopped    bool          `json:"-"`
}

func (t TypingCommand) CommandName() string {
	if t.Stopped {
		return StopTypingEvent
	}
	return TypingEvent
}

type MarkReadCommand struct {
	MessageID string `json:"messageId" validate:"required"`
}

func (MarkReadCommand) CommandName() string { return MarkReadEvent }

// RegisterCommand is the client echoing the identity it believes it holds.
type RegisterCommand struct {
	UserID ParticipantID `json:"userId" validate:"required"`
}

func (RegisterCommand) CommandName() string { return RegisterEvent }

// DecodeCommand turns an envelope into a typed command. Field level validation
// is left to the services, which decide how each violation is reported.
func DecodeCommand(env domain.Envelope) (Command, error) {
	switch env.Event {
	case SendEvent:
		var cmd SendCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case TypingEvent, StopTypingEvent:
		cmd := TypingCommand{Stopped: env.Event == StopTypingEvent}
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case MarkReadEvent:
		var cmd MarkReadCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	case RegisterEvent:
		var cmd RegisterCommand
		if err := decode(env.Data, &cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	default:
		return nil, errors.ErrUnknownEvent
	}
}

// EncodeCommand is the client side counterpart of DecodeCommand.
func EncodeCommand(cmd Command) ([]byte, error) {
	return domain.NewEnvelope(cmd.CommandName(), cmd)
}

func decode(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return errors.ErrInvalidPayload
	}
	if err := json.Unmarshal(data, target); err != nil {
		return errors.ErrInvalidPayload
	}
	return nil
}
