//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain/chat"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is the server side handle of one live client connection.
// Consume waits for buffer space no longer than ctx allows; Close is safe to
// call more than once and releases any waiting Consume.
type Connection interface {
	EventSink
	ID() string
	Close(reason string)
}

// IRegistry maps a participant to its single active connection.
type IRegistry interface {
	// Register installs conn and returns the connection it displaced, if any.
	Register(pid chat.ParticipantID, conn Connection) (Connection, bool)
	Lookup(pid chat.ParticipantID) (Connection, bool)
	// Unregister removes the entry only while it still points to expected.
	Unregister(pid chat.ParticipantID, expected Connection) bool
	Connections() []Connection
	Online() []chat.ParticipantID
	Len() int
}

// TokenVerifier resolves an opaque credential into a participant identity.
type TokenVerifier interface {
	Verify(credential string) (chat.ParticipantID, error)
}

// UserDirectory is the part of the user store the messaging core relies on.
type UserDirectory interface {
	Exists(ctx context.Context, pid chat.ParticipantID) (bool, error)
	Profile(ctx context.Context, pid chat.ParticipantID) (event.Profile, error)
	SetOnline(ctx context.Context, pid chat.ParticipantID, online bool) error
}
