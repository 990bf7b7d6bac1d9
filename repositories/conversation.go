//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"chat-relay/domain/chat"
	"chat-relay/errors"
	"chat-relay/internal/keylock"

	"github.com/dgraph-io/badger/v4"
)

const (
	maxConflictRetries = 5
	sequenceBandwidth  = 100
)

type IConversationRepository interface {
	FindConversation(ctx context.Context, a, b chat.ParticipantID) (chat.Conversation, bool, error)
	AppendMessage(ctx context.Context, message chat.Message) (chat.AppendResult, error)
	SetDelivered(ctx context.Context, pair chat.Pair, messageID string) error
	SetRead(ctx context.Context, pair chat.Pair, messageID string) (bool, error)
	FindUndelivered(ctx context.Context, receiver chat.ParticipantID) ([]chat.Message, error)
	FindMessages(ctx context.Context, messageID string) ([]chat.Message, error)
	GetMessages(ctx context.Context, a, b chat.ParticipantID, cursor *string) ([]chat.Message, *string, error)
}

type ConversationRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
	seq           *badger.Sequence
	locks         *keylock.KeyLock
}

func NewConversationRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*ConversationRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, errors.Storage("lease message sequence", err)
	}
	return &ConversationRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		seq:           seq,
		locks:         keylock.New(),
	}, nil
}

// Close hands the unused part of the sequence lease back to Badger.
func (r *ConversationRepository) Close() error {
	return r.seq.Release()
}

func (r *ConversationRepository) FindConversation(ctx context.Context, a, b chat.ParticipantID) (chat.Conversation, bool, error) {
	pair, err := chat.NewPair(a, b)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	if err = ctx.Err(); err != nil {
		return chat.Conversation{}, false, errors.Storage("find conversation", err)
	}

	var conversation chat.Conversation
	found := false
	err = r.db.View(func(txn *badger.Txn) error {
		c, ok, err := getConversation(txn, pair)
		if err != nil || !ok {
			return err
		}
		found = true
		conversation = c

		prefix := messagesPrefix(pair)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var message chat.Message
			err := it.Item().Value(func(val []byte) error {
				var err error
				message, err = unmarshalMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			conversation.Messages = append(conversation.Messages, message)
		}
		return nil
	})
	if err != nil {
		return chat.Conversation{}, false, errors.Storage("find conversation", err)
	}
	return conversation, found, nil
}

// AppendMessage persists message at the end of its conversation, creating the
// conversation on first use. Appends to the same pair are serialized.
// A messageId already present in the conversation is not stored twice: the
// stored copy is returned with Duplicate set.
func (r *ConversationRepository) AppendMessage(ctx context.Context, message chat.Message) (chat.AppendResult, error) {
	if message.Pair.IsZero() {
		pair, err := chat.NewPair(message.SenderID, message.ReceiverID)
		if err != nil {
			return chat.AppendResult{}, err
		}
		message.Pair = pair
	}
	unlock := r.locks.Lock(pairKey(message.Pair))
	defer unlock()

	var result chat.AppendResult
	err := r.update(ctx, func(txn *badger.Txn) error {
		result = chat.AppendResult{}
		conversation, found, err := getConversation(txn, message.Pair)
		if err != nil {
			return err
		}
		if !found {
			conversation = chat.Conversation{Pair: message.Pair, CreatedAt: message.Timestamp}
			if err = txn.Set(conversationKey(message.Pair), marshalConversation(conversation)); err != nil {
				return err
			}
		}
		result.Conversation = conversation

		stored, err := getByRef(txn, dedupKey(message.Pair, message.MessageID))
		switch {
		case err == nil:
			result.Message = stored
			result.Duplicate = true
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		next, err := r.seq.Next()
		if err != nil {
			return err
		}
		message.Seq = next + 1
		key := messageKey(message.Pair, message.Seq)
		if err = txn.Set(key, marshalMessage(message)); err != nil {
			return err
		}
		if err = txn.Set(dedupKey(message.Pair, message.MessageID), key); err != nil {
			return err
		}
		if err = txn.Set(messageIDKey(message.MessageID, message.Pair), key); err != nil {
			return err
		}
		if !message.Delivered {
			if err = txn.Set(pendingKey(message.ReceiverID, message.Seq), key); err != nil {
				return err
			}
		}
		result.Message = message
		return nil
	})
	if err != nil {
		return chat.AppendResult{}, errors.Storage("append message", err)
	}
	return result, nil
}

// SetDelivered flips the delivered flag and drops the pending index entry.
// Calling it on an already delivered message is a no-op.
func (r *ConversationRepository) SetDelivered(ctx context.Context, pair chat.Pair, messageID string) error {
	_, err := r.flip(ctx, pair, messageID, func(m *chat.Message, txn *badger.Txn) (bool, error) {
		if m.Delivered {
			return false, nil
		}
		m.Delivered = true
		return true, txn.Delete(pendingKey(m.ReceiverID, m.Seq))
	})
	return err
}

// SetRead reports whether this call is the one that flipped the flag.
func (r *ConversationRepository) SetRead(ctx context.Context, pair chat.Pair, messageID string) (bool, error) {
	return r.flip(ctx, pair, messageID, func(m *chat.Message, _ *badger.Txn) (bool, error) {
		if m.Read {
			return false, nil
		}
		m.Read = true
		return true, nil
	})
}

func (r *ConversationRepository) flip(ctx context.Context, pair chat.Pair, messageID string,
	apply func(m *chat.Message, txn *badger.Txn) (bool, error)) (bool, error) {
	unlock := r.locks.Lock(pairKey(pair))
	defer unlock()

	changed := false
	err := r.update(ctx, func(txn *badger.Txn) error {
		changed = false
		ref, err := getRef(txn, dedupKey(pair, messageID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrMessageNotFound
		}
		if err != nil {
			return err
		}
		message, err := getMessage(txn, ref)
		if err != nil {
			return err
		}
		if changed, err = apply(&message, txn); err != nil || !changed {
			return err
		}
		return txn.Set(ref, marshalMessage(message))
	})
	if errors.Is(err, errors.ErrMessageNotFound) {
		return false, err
	}
	if err != nil {
		return false, errors.Storage("update message", err)
	}
	return changed, nil
}

// FindUndelivered returns every undelivered message addressed to receiver,
// oldest first.
func (r *ConversationRepository) FindUndelivered(ctx context.Context, receiver chat.ParticipantID) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Storage("find undelivered", err)
	}
	var messages []chat.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := pendingKeyPrefix(receiver)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ref, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := getMessage(txn, ref)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Storage("find undelivered", err)
	}
	return messages, nil
}

// FindMessages returns every stored message carrying messageID. Ids are
// client generated, so two conversations may in theory share one.
func (r *ConversationRepository) FindMessages(ctx context.Context, messageID string) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Storage("find message", err)
	}
	var messages []chat.Message
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messageIDKeyPrefix(messageID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ref, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			message, err := getMessage(txn, ref)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Storage("find message", err)
	}
	if len(messages) == 0 {
		return nil, errors.ErrMessageNotFound
	}
	return messages, nil
}

// GetMessages pages through a conversation newest first.
// The returned cursor is nil once the beginning of the conversation is reached.
func (r *ConversationRepository) GetMessages(ctx context.Context, a, b chat.ParticipantID, cursor *string) ([]chat.Message, *string, error) {
	pair, err := chat.NewPair(a, b)
	if err != nil {
		return nil, nil, err
	}
	if err = ctx.Err(); err != nil {
		return nil, nil, errors.Storage("get messages", err)
	}

	var messages []chat.Message
	var lastSeq uint64
	full := false
	err = r.db.View(func(txn *badger.Txn) error {
		prefix := messagesPrefix(pair)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = messageKey(pair, math.MaxUint64)
		default:
			seq, err := strconv.ParseUint(*cursor, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: bad cursor %q", errors.ErrInvalidPayload, *cursor)
			}
			seekKey = messageKey(pair, seq)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitMessages != nil && len(messages) == *r.limitMessages {
				r.log.Debug(fmt.Sprintf("Maximum of %d message reached", *r.limitMessages))
				full = true
				break
			}
			var message chat.Message
			err := it.Item().Value(func(val []byte) error {
				var err error
				message, err = unmarshalMessage(val)
				return err
			})
			if err != nil {
				return err
			}
			lastSeq = message.Seq
			messages = append(messages, message)
		}
		return nil
	})
	if errors.Is(err, errors.ErrInvalidPayload) {
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, errors.Storage("get messages", err)
	}
	if !full {
		return messages, nil, nil
	}
	next := strconv.FormatUint(lastSeq, 10)
	return messages, &next, nil
}

func (r *ConversationRepository) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return err
		}
		r.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
}

func getConversation(txn *badger.Txn, pair chat.Pair) (chat.Conversation, bool, error) {
	item, err := txn.Get(conversationKey(pair))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Conversation{}, false, nil
	}
	if err != nil {
		return chat.Conversation{}, false, err
	}
	var conversation chat.Conversation
	err = item.Value(func(val []byte) error {
		conversation, err = unmarshalConversation(val)
		return err
	})
	return conversation, err == nil, err
}

func getRef(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func getMessage(txn *badger.Txn, key []byte) (chat.Message, error) {
	item, err := txn.Get(key)
	if err != nil {
		return chat.Message{}, err
	}
	var message chat.Message
	err = item.Value(func(val []byte) error {
		message, err = unmarshalMessage(val)
		return err
	})
	return message, err
}

func getByRef(txn *badger.Txn, key []byte) (chat.Message, error) {
	ref, err := getRef(txn, key)
	if err != nil {
		return chat.Message{}, err
	}
	return getMessage(txn, ref)
}
