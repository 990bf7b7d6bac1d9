package repositories

import (
	"fmt"
	"net/url"
	"strings"

	"chat-relay/domain/chat"
)

// Key layout:
//
//	conv:{pair}                  conversation header
//	msg:{pair}:{seq}             message record
//	mid:{pair}:{messageId}       -> msg key, de-duplication within a conversation
//	msgid:{messageId}:{pair}     -> msg key, lookup by message id
//	pending:{receiver}:{seq}     -> msg key, present while undelivered
//	user:{email}                 user record
//
// Every component is query-escaped so ':' can only appear as a separator.
const (
	conversationPrefix = "conv:"
	messagePrefix      = "msg:"
	dedupPrefix        = "mid:"
	messageIDPrefix    = "msgid:"
	pendingPrefix      = "pending:"
	userPrefix         = "user:"
	sequenceKey        = "seq:messages"
)

// seqWidth pads sequence numbers so lexicographic order is numeric order.
const seqWidth = 20

func escape(s string) string { return url.QueryEscape(s) }

func pairKey(p chat.Pair) string {
	return escape(string(p.First())) + ":" + escape(string(p.Second()))
}

func conversationKey(p chat.Pair) []byte {
	return []byte(conversationPrefix + pairKey(p))
}

func messagesPrefix(p chat.Pair) []byte {
	return []byte(messagePrefix + pairKey(p) + ":")
}

func messageKey(p chat.Pair, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%0*d", messagePrefix, pairKey(p), seqWidth, seq))
}

func dedupKey(p chat.Pair, messageID string) []byte {
	return []byte(dedupPrefix + pairKey(p) + ":" + escape(messageID))
}

func messageIDKeyPrefix(messageID string) []byte {
	return []byte(messageIDPrefix + escape(messageID) + ":")
}

func messageIDKey(messageID string, p chat.Pair) []byte {
	return append(messageIDKeyPrefix(messageID), pairKey(p)...)
}

func pendingKeyPrefix(receiver chat.ParticipantID) []byte {
	return []byte(pendingPrefix + escape(string(receiver)) + ":")
}

func pendingKey(receiver chat.ParticipantID, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%0*d", pendingKeyPrefix(receiver), seqWidth, seq))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func userKey(email string) []byte {
	return []byte(userPrefix + escape(normalizeEmail(email)))
}
