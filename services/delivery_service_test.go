package services

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/sink"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	alice chat.ParticipantID = "alice@example.com"
	bob   chat.ParticipantID = "bob@example.com"
)

type fixture struct {
	log           *slog.Logger
	conversations *repositories.ConversationRepository
	users         repositories.UserRepository
	registry      *runtime.Registry
	metrics       *observability.Metrics
	presence      *PresenceService
	delivery      *DeliveryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conversations, err := repositories.NewConversationRepository(db, log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conversations.Close() })

	users := repositories.NewUserRepository(db, log)
	for _, pid := range []chat.ParticipantID{alice, bob} {
		_, err = users.CreateUser(context.Background(), string(pid), "user-"+string(pid), "hash")
		require.NoError(t, err)
	}

	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	return &fixture{
		log:           log,
		conversations: conversations,
		users:         users,
		registry:      registry,
		metrics:       metrics,
		presence:      NewPresenceService(16, metrics, log),
		delivery:      NewDeliveryService(conversations, users, registry, metrics, log),
	}
}

// connect registers a fresh sink for pid the way an activated session would.
func (f *fixture) connect(pid chat.ParticipantID) *sink.ConnectionSink {
	conn := sink.NewConnectionSink(pid, 16, f.log)
	f.registry.Register(pid, conn)
	return conn
}

func receive(t *testing.T, conn *sink.ConnectionSink) event.DomainEvent {
	t.Helper()
	select {
	case frame := <-conn.Events():
		env, err := domain.ParseEnvelope(frame)
		require.NoError(t, err)
		evt, err := event.Decode(env)
		require.NoError(t, err)
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func requireSilent(t *testing.T, conn *sink.ConnectionSink) {
	t.Helper()
	select {
	case frame := <-conn.Events():
		t.Fatalf("unexpected frame %s", frame)
	default:
	}
}

func send(id string, from, to chat.ParticipantID) chat.SendCommand {
	return chat.SendCommand{SenderID: from, ReceiverID: to, Message: "Hi " + string(to), MessageID: id}
}

func Test_Send_To_Offline_Receiver_Then_Replay(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn := f.connect(alice)

	// Given bob is offline
	// When alice sends him a message
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("m1", alice, bob)))

	// Then alice only gets the storage acknowledgement
	sent, ok := receive(t, aliceConn).(*event.MessageSent)
	req.True(ok)
	req.Equal("m1", sent.MessageID)
	req.False(sent.Delivered)
	requireSilent(t, aliceConn)

	pending, err := f.conversations.FindUndelivered(ctx, bob)
	req.NoError(err)
	req.Len(pending, 1)

	// When bob connects and his backlog is replayed
	bobConn := f.connect(bob)
	req.NoError(f.delivery.Replay(ctx, bob, bobConn))

	// Then bob receives the message and alice learns it was delivered
	received, ok := receive(t, bobConn).(*event.ReceiveMessage)
	req.True(ok)
	req.Equal("m1", received.MessageID)
	req.Equal("Hi "+string(bob), received.Message)
	req.Equal(alice, received.SenderID)

	delivered, ok := receive(t, aliceConn).(*event.MessageDelivered)
	req.True(ok)
	req.Equal("m1", delivered.MessageID)

	pending, err = f.conversations.FindUndelivered(ctx, bob)
	req.NoError(err)
	req.Empty(pending)
	req.Equal(1.0, testutil.ToFloat64(f.metrics.MessagesDelivered.WithLabelValues(observability.DeliveryReplay)))
}

func Test_Send_To_Online_Receiver_Delivers_Live(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn, bobConn := f.connect(alice), f.connect(bob)

	// When alice writes to bob who is connected
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("m2", alice, bob)))

	// Then bob gets it and alice sees messageSent then messageDelivered
	received, ok := receive(t, bobConn).(*event.ReceiveMessage)
	req.True(ok)
	req.Equal("m2", received.MessageID)

	_, ok = receive(t, aliceConn).(*event.MessageSent)
	req.True(ok)
	delivered, ok := receive(t, aliceConn).(*event.MessageDelivered)
	req.True(ok)
	req.Equal("m2", delivered.MessageID)

	conversation, found, err := f.conversations.FindConversation(ctx, alice, bob)
	req.NoError(err)
	req.True(found)
	req.Len(conversation.Messages, 1)
	req.True(conversation.Messages[0].Delivered)
	req.Equal(1.0, testutil.ToFloat64(f.metrics.MessagesSent))
	req.Equal(1.0, testutil.ToFloat64(f.metrics.MessagesDelivered.WithLabelValues(observability.DeliveryLive)))
}

func Test_Send_Push_Failure_Keeps_Message_Undelivered(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn, bobConn := f.connect(alice), f.connect(bob)

	// Given bob's connection went away but is still registered
	bobConn.Close("gone")

	// When alice sends
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("m3", alice, bob)))

	// Then no delivery is claimed and the message waits for replay
	_, ok := receive(t, aliceConn).(*event.MessageSent)
	req.True(ok)
	requireSilent(t, aliceConn)

	pending, err := f.conversations.FindUndelivered(ctx, bob)
	req.NoError(err)
	req.Len(pending, 1)
}

func Test_Send_Duplicate_Message_Id(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn := f.connect(alice)

	// When alice retries the same message id twice while bob is offline
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("m4", alice, bob)))
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("m4", alice, bob)))

	// Then both attempts are acknowledged but only one message is stored
	first, ok := receive(t, aliceConn).(*event.MessageSent)
	req.True(ok)
	second, ok := receive(t, aliceConn).(*event.MessageSent)
	req.True(ok)
	req.Equal(first.MessageID, second.MessageID)
	req.Equal(first.Timestamp, second.Timestamp)

	conversation, _, err := f.conversations.FindConversation(ctx, alice, bob)
	req.NoError(err)
	req.Len(conversation.Messages, 1)
	req.Equal(1.0, testutil.ToFloat64(f.metrics.MessagesSent))
}

func Test_Send_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		command chat.SendCommand
		wantErr error
	}{
		{"spoofed sender", send("s1", bob, alice), errors.ErrSenderMismatch},
		{"self message", send("s2", alice, alice), errors.ErrSelfMessage},
		{"unknown receiver", send("s3", alice, "carol@example.com"), errors.ErrRecipientNotFound},
		{"missing message id", send("", alice, bob), errors.ErrInvalidPayload},
		{"empty content", chat.SendCommand{SenderID: alice, ReceiverID: bob, MessageID: "s4"}, errors.ErrInvalidPayload},
		{"control character receiver", send("s5", alice, "bob\n"), errors.ErrInvalidParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ctx := context.Background()
			f := newFixture(t)
			aliceConn, bobConn := f.connect(alice), f.connect(bob)

			err := f.delivery.Send(ctx, alice, aliceConn, tt.command)

			req.ErrorIs(err, tt.wantErr)
			requireSilent(t, aliceConn)
			requireSilent(t, bobConn)
			_, found, err := f.conversations.FindConversation(ctx, alice, bob)
			req.NoError(err)
			req.False(found)
		})
	}
}

func Test_MarkRead(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn, bobConn := f.connect(alice), f.connect(bob)

	// Given alice's message was delivered to bob
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("m5", alice, bob)))
	receive(t, bobConn)
	receive(t, aliceConn)
	receive(t, aliceConn)

	// When alice tries to mark her own message as read
	err := f.delivery.MarkRead(ctx, alice, chat.MarkReadCommand{MessageID: "m5"})

	// Then she is refused
	req.ErrorIs(err, errors.ErrNotMessageReceiver)

	// When bob reads it
	req.NoError(f.delivery.MarkRead(ctx, bob, chat.MarkReadCommand{MessageID: "m5"}))

	// Then alice gets a read receipt
	read, ok := receive(t, aliceConn).(*event.MessageRead)
	req.True(ok)
	req.Equal("m5", read.MessageID)

	// When bob reads it again nothing more happens
	req.NoError(f.delivery.MarkRead(ctx, bob, chat.MarkReadCommand{MessageID: "m5"}))
	requireSilent(t, aliceConn)
	req.Equal(1.0, testutil.ToFloat64(f.metrics.MessagesRead))

	// And unknown ids are reported
	err = f.delivery.MarkRead(ctx, bob, chat.MarkReadCommand{MessageID: "nope"})
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_MarkRead_Sender_Offline_Still_Persists(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn := f.connect(alice)
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("m6", alice, bob)))

	// Given alice left
	f.registry.Unregister(alice, aliceConn)

	// When bob reads the message
	req.NoError(f.delivery.MarkRead(ctx, bob, chat.MarkReadCommand{MessageID: "m6"}))

	// Then the flag is stored all the same
	conversation, _, err := f.conversations.FindConversation(ctx, alice, bob)
	req.NoError(err)
	req.True(conversation.Messages[0].Read)
}

func Test_Typing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn, bobConn := f.connect(alice), f.connect(bob)

	// When alice pretends to be bob
	f.delivery.Typing(ctx, alice, chat.TypingCommand{SenderID: bob, ReceiverID: alice})

	// Then nobody hears about it
	requireSilent(t, aliceConn)
	requireSilent(t, bobConn)

	// When alice starts then stops typing
	f.delivery.Typing(ctx, alice, chat.TypingCommand{SenderID: alice, ReceiverID: bob})
	f.delivery.Typing(ctx, alice, chat.TypingCommand{SenderID: alice, ReceiverID: bob, Stopped: true})

	// Then bob sees both notifications
	typing, ok := receive(t, bobConn).(*event.UserTyping)
	req.True(ok)
	req.Equal(alice, typing.SenderID)
	stopped, ok := receive(t, bobConn).(*event.UserStoppedTyping)
	req.True(ok)
	req.Equal(alice, stopped.SenderID)
	requireSilent(t, aliceConn)
}

func Test_Send_Masks_Censored_Words(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', f.log)
	req.NoError(err)
	f.delivery.WithModerator(moderator)
	aliceConn := f.connect(alice)
	bobConn := f.connect(bob)

	// When alice sends a message holding a blacklisted word
	cmd := send("m1", alice, bob)
	cmd.Message = "the B4dger ate it"
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, cmd))

	// Then the stored and pushed copies are masked
	received, ok := receive(t, bobConn).(*event.ReceiveMessage)
	req.True(ok)
	req.Equal("the ****** ate it", received.Message)
	sent, ok := receive(t, aliceConn).(*event.MessageSent)
	req.True(ok)
	req.Equal("the ****** ate it", sent.Message)
	req.Equal(1.0, testutil.ToFloat64(f.metrics.MessagesCensored))
}

func Test_Replay_Backlog_Larger_Than_Buffer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn := sink.NewConnectionSink(alice, 32, f.log)
	f.registry.Register(alice, aliceConn)

	// Given alice wrote ten messages while bob was away
	for i := range 10 {
		req.NoError(f.delivery.Send(ctx, alice, aliceConn, send(fmt.Sprintf("m%02d", i), alice, bob)))
	}

	// When bob comes back on a connection that only buffers four frames
	bobConn := sink.NewConnectionSink(bob, 4, f.log)
	f.registry.Register(bob, bobConn)
	replayed := make(chan error, 1)
	go func() { replayed <- f.delivery.Replay(ctx, bob, bobConn) }()

	// Then every message reaches him, in order, as the writer drains
	for i := range 10 {
		received, ok := receive(t, bobConn).(*event.ReceiveMessage)
		req.True(ok)
		req.Equal(fmt.Sprintf("m%02d", i), received.MessageID)
	}
	select {
	case err := <-replayed:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("Replay did not finish")
	}

	pending, err := f.conversations.FindUndelivered(ctx, bob)
	req.NoError(err)
	req.Empty(pending)
	req.False(bobConn.Closed())
	req.Equal(10.0, testutil.ToFloat64(f.metrics.MessagesDelivered.WithLabelValues(observability.DeliveryReplay)))
}

func Test_Replay_Stops_When_Connection_Closes(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn := f.connect(alice)
	for i := range 3 {
		req.NoError(f.delivery.Send(ctx, alice, aliceConn, send(fmt.Sprintf("c%d", i), alice, bob)))
	}

	// Given bob's connection buffers one frame and nobody drains it
	bobConn := sink.NewConnectionSink(bob, 1, f.log)
	replayed := make(chan error, 1)
	go func() { replayed <- f.delivery.Replay(ctx, bob, bobConn) }()
	time.Sleep(20 * time.Millisecond)

	// When the connection goes away
	bobConn.Close("gone")

	// Then the replay ends and only the queued message counts as delivered
	select {
	case err := <-replayed:
		req.ErrorIs(err, errors.ErrConnectionClosed)
	case <-time.After(time.Second):
		req.Fail("Replay not released by Close")
	}
	pending, err := f.conversations.FindUndelivered(ctx, bob)
	req.NoError(err)
	req.Len(pending, 2)
}

func Test_Send_Resolves_Receiver_Identity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	aliceConn, bobConn := f.connect(alice), f.connect(bob)

	// When alice addresses bob with different letter case
	req.NoError(f.delivery.Send(ctx, alice, aliceConn, send("r1", alice, "BOB@Example.com")))

	// Then the message is stored for and pushed to bob's registered identity
	received, ok := receive(t, bobConn).(*event.ReceiveMessage)
	req.True(ok)
	req.Equal(bob, received.ReceiverID)
	sent, ok := receive(t, aliceConn).(*event.MessageSent)
	req.True(ok)
	req.Equal(bob, sent.ReceiverID)
	_, ok = receive(t, aliceConn).(*event.MessageDelivered)
	req.True(ok)

	conversation, found, err := f.conversations.FindConversation(ctx, alice, bob)
	req.NoError(err)
	req.True(found)
	req.Len(conversation.Messages, 1)

	// When alice addresses herself with different letter case
	err = f.delivery.Send(ctx, alice, aliceConn, send("r2", alice, "ALICE@example.com"))

	// Then it is refused as a self message
	req.ErrorIs(err, errors.ErrSelfMessage)
	requireSilent(t, aliceConn)
	requireSilent(t, bobConn)
}

func Test_Typing_Resolves_Receiver_Identity(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	aliceConn, bobConn := f.connect(alice), f.connect(bob)

	f.delivery.Typing(context.Background(), alice, chat.TypingCommand{SenderID: alice, ReceiverID: "Bob@example.com"})

	typing, ok := receive(t, bobConn).(*event.UserTyping)
	req.True(ok)
	req.Equal(alice, typing.SenderID)
	requireSilent(t, aliceConn)
}
