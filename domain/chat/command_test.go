package chat

import (
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	req := require.New(t)

	// Given a send frame produced by the client encoder
	frame, err := EncodeCommand(SendCommand{SenderID: "alice", ReceiverID: "bob", Message: "hi", MessageID: "m-1"})
	req.NoError(err)
	env, err := domain.ParseEnvelope(frame)
	req.NoError(err)

	// When it is decoded
	cmd, err := DecodeCommand(env)

	// Then the typed command comes back
	req.NoError(err)
	req.Equal(SendCommand{SenderID: "alice", ReceiverID: "bob", Message: "hi", MessageID: "m-1"}, cmd)
}

func TestDecodeCommand_StopTyping(t *testing.T) {
	req := require.New(t)

	cmd, err := DecodeCommand(domain.Envelope{Event: StopTypingEvent, Data: []byte(`{"senderId":"a","receiverId":"b"}`)})
	req.NoError(err)

	typing, ok := cmd.(TypingCommand)
	req.True(ok)
	req.True(typing.Stopped)
	req.Equal(StopTypingEvent, typing.CommandName())
}

func TestDecodeCommand_Errors(t *testing.T) {
	req := require.New(t)

	_, err := DecodeCommand(domain.Envelope{Event: "deleteMessage", Data: []byte(`{}`)})
	req.ErrorIs(err, errors.ErrUnknownEvent)

	_, err = DecodeCommand(domain.Envelope{Event: MarkReadEvent})
	req.ErrorIs(err, errors.ErrInvalidPayload)

	_, err = DecodeCommand(domain.Envelope{Event: SendEvent, Data: []byte(`{"senderId":42}`)})
	req.ErrorIs(err, errors.ErrInvalidPayload)
}

func TestNewMessage(t *testing.T) {
	req := require.New(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	msg, err := NewMessage("m-1", "bob", "alice", "hello", at)
	req.NoError(err)
	req.Equal(ParticipantID("alice"), msg.Pair.First())
	req.Equal(time.UTC, msg.Timestamp.Location())
	req.False(msg.Delivered)
	req.False(msg.Read)

	_, err = NewMessage(" ", "bob", "alice", "hello", at)
	req.ErrorIs(err, errors.ErrInvalidPayload)

	_, err = NewMessage("m-2", "bob", "bob", "hello", at)
	req.ErrorIs(err, errors.ErrSelfMessage)
}
