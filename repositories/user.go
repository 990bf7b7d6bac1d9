//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const defaultRole = "user"

type IUserRepository interface {
	contract.UserDirectory
	CreateUser(ctx context.Context, email, username, hashedPassword string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) UserRepository {
	return UserRepository{db: db, log: log}
}

// User is the repository view of an account. The lower-cased email doubles as
// the participant identity used by the messaging core.
type User struct {
	ID             string
	Email          string
	Username       string
	PasswordHash   string
	Role           string
	Online         bool
	ProfilePicture string
	CreatedAt      time.Time
}

func (u User) ParticipantID() chat.ParticipantID {
	return chat.ParticipantID(u.Email)
}

func (u User) Profile() event.Profile {
	return event.Profile{
		Email:          u.Email,
		Username:       u.Username,
		Online:         u.Online,
		ProfilePicture: u.ProfilePicture,
	}
}

// CreateUser persists a new account and returns it with its generated ID.
func (u UserRepository) CreateUser(ctx context.Context, email, username, hashedPassword string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, errors.Storage("create user", err)
	}
	user := User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(email),
		Username:     username,
		PasswordHash: hashedPassword,
		Role:         defaultRole,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	err := u.db.Update(func(txn *badger.Txn) error {
		key := userKey(user.Email)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, marshalUser(user))
	})
	switch {
	case errors.Is(err, errors.ErrUserAlreadyExists):
		return User{}, err
	case err != nil:
		return User{}, errors.Storage("create user", err)
	}
	return user, nil
}

func (u UserRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, errors.Storage("get user", err)
	}
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, email)
		return err
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return User{}, errors.ErrUserNotFound
	case err != nil:
		return User{}, errors.Storage("get user", err)
	}
	return user, nil
}

func (u UserRepository) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Storage("list users", err)
	}
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				user, err := unmarshalUser(val)
				if err != nil {
					return err
				}
				users = append(users, user)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Storage("list users", err)
	}
	return users, nil
}

func (u UserRepository) Exists(ctx context.Context, pid chat.ParticipantID) (bool, error) {
	_, err := u.GetUserByEmail(ctx, string(pid))
	switch {
	case errors.Is(err, errors.ErrUserNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

func (u UserRepository) Profile(ctx context.Context, pid chat.ParticipantID) (event.Profile, error) {
	user, err := u.GetUserByEmail(ctx, string(pid))
	if err != nil {
		return event.Profile{}, err
	}
	return user.Profile(), nil
}

func (u UserRepository) SetOnline(ctx context.Context, pid chat.ParticipantID, online bool) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Storage("set online", err)
		}
		err := u.db.Update(func(txn *badger.Txn) error {
			user, err := getUser(txn, string(pid))
			if err != nil {
				return err
			}
			if user.Online == online {
				return nil
			}
			user.Online = online
			return txn.Set(userKey(user.Email), marshalUser(user))
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return errors.ErrUserNotFound
		case errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries:
			u.log.Debug("Transaction conflict, retrying", "participant", pid, "attempt", attempt+1)
		default:
			return errors.Storage("set online", err)
		}
	}
}

// ResetOnline clears every online flag left behind by a previous process.
// Nobody is connected when the server starts.
func (u UserRepository) ResetOnline(ctx context.Context) (int, error) {
	users, err := u.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, user := range users {
		if !user.Online {
			continue
		}
		if err = u.SetOnline(ctx, user.ParticipantID(), false); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

func getUser(txn *badger.Txn, email string) (User, error) {
	item, err := txn.Get(userKey(email))
	if err != nil {
		return User{}, err
	}
	var user User
	err = item.Value(func(val []byte) error {
		var err error
		user, err = unmarshalUser(val)
		return err
	})
	return user, err
}
