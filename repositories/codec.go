package repositories

import (
	"fmt"
	"time"

	"chat-relay/domain/chat"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored in protobuf wire format. Field numbers below are part of
// the on-disk layout and must never be reused.
const (
	messageFieldID        protowire.Number = 1
	messageFieldSender    protowire.Number = 2
	messageFieldReceiver  protowire.Number = 3
	messageFieldContent   protowire.Number = 4
	messageFieldTimestamp protowire.Number = 5
	messageFieldDelivered protowire.Number = 6
	messageFieldRead      protowire.Number = 7
	messageFieldSeq       protowire.Number = 8
)

const (
	conversationFieldFirst     protowire.Number = 1
	conversationFieldSecond    protowire.Number = 2
	conversationFieldCreatedAt protowire.Number = 3
)

const (
	userFieldID             protowire.Number = 1
	userFieldEmail          protowire.Number = 2
	userFieldUsername       protowire.Number = 3
	userFieldPasswordHash   protowire.Number = 4
	userFieldRole           protowire.Number = 5
	userFieldOnline         protowire.Number = 6
	userFieldProfilePicture protowire.Number = 7
	userFieldCreatedAt      protowire.Number = 8
)

func marshalMessage(m chat.Message) []byte {
	var b []byte
	b = appendString(b, messageFieldID, m.MessageID)
	b = appendString(b, messageFieldSender, string(m.SenderID))
	b = appendString(b, messageFieldReceiver, string(m.ReceiverID))
	b = appendString(b, messageFieldContent, m.Content)
	b = appendVarint(b, messageFieldTimestamp, uint64(m.Timestamp.UnixNano()))
	b = appendBool(b, messageFieldDelivered, m.Delivered)
	b = appendBool(b, messageFieldRead, m.Read)
	b = appendVarint(b, messageFieldSeq, m.Seq)
	return b
}

func unmarshalMessage(b []byte) (chat.Message, error) {
	var m chat.Message
	err := walk(b, func(num protowire.Number, v uint64, s []byte) {
		switch num {
		case messageFieldID:
			m.MessageID = string(s)
		case messageFieldSender:
			m.SenderID = chat.ParticipantID(s)
		case messageFieldReceiver:
			m.ReceiverID = chat.ParticipantID(s)
		case messageFieldContent:
			m.Content = string(s)
		case messageFieldTimestamp:
			m.Timestamp = time.Unix(0, int64(v)).UTC()
		case messageFieldDelivered:
			m.Delivered = protowire.DecodeBool(v)
		case messageFieldRead:
			m.Read = protowire.DecodeBool(v)
		case messageFieldSeq:
			m.Seq = v
		}
	})
	if err != nil {
		return chat.Message{}, fmt.Errorf("decode message: %w", err)
	}
	pair, err := chat.NewPair(m.SenderID, m.ReceiverID)
	if err != nil {
		return chat.Message{}, fmt.Errorf("decode message %s: %w", m.MessageID, err)
	}
	m.Pair = pair
	return m, nil
}

func marshalConversation(c chat.Conversation) []byte {
	var b []byte
	b = appendString(b, conversationFieldFirst, string(c.Pair.First()))
	b = appendString(b, conversationFieldSecond, string(c.Pair.Second()))
	b = appendVarint(b, conversationFieldCreatedAt, uint64(c.CreatedAt.UnixNano()))
	return b
}

func unmarshalConversation(b []byte) (chat.Conversation, error) {
	var first, second chat.ParticipantID
	var createdAt time.Time
	err := walk(b, func(num protowire.Number, v uint64, s []byte) {
		switch num {
		case conversationFieldFirst:
			first = chat.ParticipantID(s)
		case conversationFieldSecond:
			second = chat.ParticipantID(s)
		case conversationFieldCreatedAt:
			createdAt = time.Unix(0, int64(v)).UTC()
		}
	})
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	pair, err := chat.NewPair(first, second)
	if err != nil {
		return chat.Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return chat.Conversation{Pair: pair, CreatedAt: createdAt}, nil
}

func marshalUser(u User) []byte {
	var b []byte
	b = appendString(b, userFieldID, u.ID)
	b = appendString(b, userFieldEmail, u.Email)
	b = appendString(b, userFieldUsername, u.Username)
	b = appendString(b, userFieldPasswordHash, u.PasswordHash)
	b = appendString(b, userFieldRole, u.Role)
	b = appendBool(b, userFieldOnline, u.Online)
	b = appendString(b, userFieldProfilePicture, u.ProfilePicture)
	b = appendVarint(b, userFieldCreatedAt, uint64(u.CreatedAt.Unix()))
	return b
}

func unmarshalUser(b []byte) (User, error) {
	var u User
	err := walk(b, func(num protowire.Number, v uint64, s []byte) {
		switch num {
		case userFieldID:
			u.ID = string(s)
		case userFieldEmail:
			u.Email = string(s)
		case userFieldUsername:
			u.Username = string(s)
		case userFieldPasswordHash:
			u.PasswordHash = string(s)
		case userFieldRole:
			u.Role = string(s)
		case userFieldOnline:
			u.Online = protowire.DecodeBool(v)
		case userFieldProfilePicture:
			u.ProfilePicture = string(s)
		case userFieldCreatedAt:
			u.CreatedAt = time.Unix(int64(v), 0).UTC()
		}
	})
	if err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	return u, nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

// walk calls fn for every varint and length-delimited field of b.
// Unknown wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, v uint64, s []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			fn(num, v, nil)
			b = b[n:]
		case protowire.BytesType:
			s, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			fn(num, 0, s)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
