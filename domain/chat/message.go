package chat

import (
	"strings"
	"time"

	"chat-relay/errors"
)

// Message is a single direct message. Delivered and Read only ever move from
// false to true. Seq is assigned by the store and reflects arrival order.
type Message struct {
	MessageID  string
	Pair       Pair
	SenderID   ParticipantID
	ReceiverID ParticipantID
	Content    string
	Timestamp  time.Time
	Delivered  bool
	Read       bool
	Seq        uint64
}

// NewMessage builds an undelivered, unread message. The timestamp is the
// server's clock at persist time.
func NewMessage(messageID string, sender, receiver ParticipantID, content string, at time.Time) (Message, error) {
	if strings.TrimSpace(messageID) == "" {
		return Message{}, errors.ErrInvalidPayload
	}
	pair, err := NewPair(sender, receiver)
	if err != nil {
		return Message{}, err
	}
	return Message{
		MessageID:  messageID,
		Pair:       pair,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Timestamp:  at.UTC(),
	}, nil
}

// Conversation is the durable thread between the two members of Pair.
type Conversation struct {
	Pair      Pair
	CreatedAt time.Time
	Messages  []Message
}

func (c Conversation) Participants() [2]ParticipantID { return c.Pair.Participants() }

// AppendResult is what the store hands back after persisting a message.
// Duplicate is set when the messageId already existed in the conversation;
// Message then holds the stored copy, including its current flags.
type AppendResult struct {
	Conversation Conversation
	Message      Message
	Duplicate    bool
}
