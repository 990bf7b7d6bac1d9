package repositories

import (
	"bytes"
	"fmt"
)

// Describe decodes a raw Badger entry into something printable. It is used by
// the debug inspector only; password hashes are never exposed.
func Describe(key, value []byte) any {
	switch {
	case bytes.HasPrefix(key, []byte(conversationPrefix)):
		c, err := unmarshalConversation(value)
		if err != nil {
			return fmt.Sprintf("<corrupt conversation: %v>", err)
		}
		return map[string]any{
			"participants": c.Participants(),
			"createdAt":    c.CreatedAt,
		}
	case bytes.HasPrefix(key, []byte(messagePrefix)):
		m, err := unmarshalMessage(value)
		if err != nil {
			return fmt.Sprintf("<corrupt message: %v>", err)
		}
		return map[string]any{
			"seq":        m.Seq,
			"messageId":  m.MessageID,
			"senderId":   m.SenderID,
			"receiverId": m.ReceiverID,
			"message":    m.Content,
			"timestamp":  m.Timestamp,
			"delivered":  m.Delivered,
			"read":       m.Read,
		}
	case bytes.HasPrefix(key, []byte(userPrefix)):
		u, err := unmarshalUser(value)
		if err != nil {
			return fmt.Sprintf("<corrupt user: %v>", err)
		}
		return map[string]any{
			"id":        u.ID,
			"email":     u.Email,
			"username":  u.Username,
			"role":      u.Role,
			"online":    u.Online,
			"createdAt": u.CreatedAt,
		}
	case bytes.HasPrefix(key, []byte(dedupPrefix)),
		bytes.HasPrefix(key, []byte(messageIDPrefix)),
		bytes.HasPrefix(key, []byte(pendingPrefix)):
		return string(value)
	default:
		return fmt.Sprintf("%d bytes", len(value))
	}
}

// KindOf names the record type stored under key.
func KindOf(key []byte) string {
	for _, kind := range []struct {
		prefix string
		name   string
	}{
		{conversationPrefix, "CONVERSATION"},
		{messageIDPrefix, "MESSAGE_ID"},
		{messagePrefix, "MESSAGE"},
		{dedupPrefix, "DEDUP"},
		{pendingPrefix, "PENDING"},
		{userPrefix, "USER"},
		{sequenceKey, "SEQUENCE"},
	} {
		if bytes.HasPrefix(key, []byte(kind.prefix)) {
			return kind.name
		}
	}
	return "RAW"
}
