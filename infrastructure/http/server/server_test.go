package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/dgraph-io/badger/v4"
	fastws "github.com/fasthttp/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const testPassword = "ComplexPass123!"

type testServer struct {
	server  *Server
	address string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)

	conversations, err := repositories.NewConversationRepository(db, log, lo.ToPtr(2))
	require.NoError(t, err)
	users := repositories.NewUserRepository(db, log)
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry()
	tokens := auth.NewTokenService("0123456789abcdef", time.Hour)
	presence := services.NewPresenceService(64, metrics, log)
	delivery := services.NewDeliveryService(conversations, users, registry, metrics, log)
	chatService := services.NewChatService(conversations, users, tokens, registry, delivery, presence, metrics, log)
	authService := services.NewAuthService(users, tokens, presence, log)

	server := NewServer(log, chatService, authService, users, tokens, metrics, Options{
		ConnectionBufferSize: 32,
		WriteTimeout:         time.Second,
		PongWait:             5 * time.Second,
		MaxMessageSize:       4096,
		Inspect:              internal.InspectHandler(db, repositories.Describe),
	})

	ctx, cancel := context.WithCancel(context.Background())
	fanout := workers.NewPresenceFanout(log, presence.Events(), registry, metrics, time.Second)
	go func() { _ = fanout.Run(ctx) }()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.App().Listener(listener) }()

	t.Cleanup(func() {
		_ = server.Shutdown()
		cancel()
		_ = conversations.Close()
		_ = db.Close()
	})
	return &testServer{server: server, address: listener.Addr().String()}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := ts.server.App().Test(request, 5000)
	require.NoError(t, err)
	defer response.Body.Close()
	content, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	return response.StatusCode, content
}

func (ts *testServer) register(t *testing.T, username string) (chat.ParticipantID, string) {
	t.Helper()
	status, content := ts.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
	})
	require.Equal(t, http.StatusCreated, status, string(content))
	var response authResponse
	require.NoError(t, json.Unmarshal(content, &response))
	return chat.ParticipantID(response.User.Email), response.Token
}

func (ts *testServer) dial(t *testing.T, token string) *fastws.Conn {
	t.Helper()
	conn, response, err := fastws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?token=%s", ts.address, token), nil)
	require.NoError(t, err)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// await reads frames until an event named name shows up. Presence events from
// the fanout may interleave with anything, so they are skipped.
func await(t *testing.T, conn *fastws.Conn, name string) event.DomainEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", name)
		env, err := domain.ParseEnvelope(frame)
		require.NoError(t, err)
		if env.Event != name {
			continue
		}
		evt, err := event.Decode(env)
		require.NoError(t, err)
		return evt
	}
}

func emit(t *testing.T, conn *fastws.Conn, cmd chat.Command) {
	t.Helper()
	frame, err := chat.EncodeCommand(cmd)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(fastws.TextMessage, frame))
}

func Test_Health_And_Metrics(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	status, content := ts.do(t, http.MethodGet, "/", "", nil)
	req.Equal(http.StatusOK, status)
	req.Equal("OK", string(content))

	status, content = ts.do(t, http.MethodGet, "/metrics", "", nil)
	req.Equal(http.StatusOK, status)
	req.Contains(string(content), "chat_relay_active_connections")
}

func Test_Register_And_Login(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	// Given a registered user
	pid, token := ts.register(t, "alice")
	req.Equal(chat.ParticipantID("alice@example.com"), pid)
	req.NotEmpty(token)

	// When the same email registers again
	status, _ := ts.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Username: "alice2", Email: "Alice@example.com", Password: testPassword,
	})
	// Then it is refused
	req.Equal(http.StatusBadRequest, status)

	// When logging in with the right then the wrong password
	status, content := ts.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "alice@example.com", Password: testPassword})
	req.Equal(http.StatusOK, status, string(content))
	status, _ = ts.do(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "alice@example.com", Password: "WrongPass123!"})
	req.Equal(http.StatusUnauthorized, status)

	// And a weak password never creates an account
	status, _ = ts.do(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Username: "bob", Email: "bob@example.com", Password: "weak",
	})
	req.Equal(http.StatusBadRequest, status)
}

func Test_Protected_Routes_Require_A_Token(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	status, content := ts.do(t, http.MethodGet, "/api/messages?userId1=a@example.com&userId2=b@example.com", "", nil)
	req.Equal(http.StatusUnauthorized, status)
	req.Contains(string(content), "missing")

	status, _ = ts.do(t, http.MethodGet, "/api/users", "garbage", nil)
	req.Equal(http.StatusUnauthorized, status)
}

func Test_Upgrade_Is_Refused_Without_Valid_Token(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	for _, token := range []string{"", "not-a-jwt"} {
		_, response, err := fastws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?token=%s", ts.address, token), nil)
		req.Error(err)
		req.NotNil(response)
		req.Equal(http.StatusUnauthorized, response.StatusCode)
		_ = response.Body.Close()
	}
}

func Test_Live_Exchange_Over_WebSocket(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	alice, aliceToken := ts.register(t, "alice")
	bob, bobToken := ts.register(t, "bob")

	// Given both participants are connected
	aliceConn := ts.dial(t, aliceToken)
	registered := await(t, aliceConn, event.RegisteredEvent).(*event.Registered)
	req.Equal(alice, registered.UserID)
	bobConn := ts.dial(t, bobToken)
	await(t, bobConn, event.RegisteredEvent)

	// When alice sends a message
	emit(t, aliceConn, chat.SendCommand{SenderID: alice, ReceiverID: bob, Message: "Hi Bob", MessageID: "m2"})

	// Then bob receives it and alice gets both acknowledgements
	received := await(t, bobConn, event.ReceiveMessageEvent).(*event.ReceiveMessage)
	req.Equal("Hi Bob", received.Message)
	req.Equal(alice, received.SenderID)
	sent := await(t, aliceConn, event.MessageSentEvent).(*event.MessageSent)
	req.Equal("m2", sent.MessageID)
	delivered := await(t, aliceConn, event.MessageDeliveredEvent).(*event.MessageDelivered)
	req.Equal("m2", delivered.MessageID)

	// When bob types then reads the message
	emit(t, bobConn, chat.TypingCommand{SenderID: bob, ReceiverID: alice})
	emit(t, bobConn, chat.MarkReadCommand{MessageID: "m2"})

	// Then alice sees both
	typing := await(t, aliceConn, event.UserTypingEvent).(*event.UserTyping)
	req.Equal(bob, typing.SenderID)
	read := await(t, aliceConn, event.MessageReadEvent).(*event.MessageRead)
	req.Equal("m2", read.MessageID)

	// When alice spoofs bob
	emit(t, aliceConn, chat.SendCommand{SenderID: bob, ReceiverID: alice, Message: "fake", MessageID: "x"})

	// Then she gets an error and the connection stays usable
	reported := await(t, aliceConn, event.ErrorEvent).(*event.Error)
	req.Equal("Sender ID mismatch", reported.Message)
	emit(t, aliceConn, chat.SendCommand{SenderID: alice, ReceiverID: bob, Message: "still here", MessageID: "m3"})
	await(t, bobConn, event.ReceiveMessageEvent)
}

func Test_Offline_Message_Is_Replayed_On_Connect(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	alice, aliceToken := ts.register(t, "alice")
	bob, bobToken := ts.register(t, "bob")

	// Given bob is offline when alice writes
	aliceConn := ts.dial(t, aliceToken)
	await(t, aliceConn, event.RegisteredEvent)
	for _, id := range []string{"m1", "m2", "m3"} {
		emit(t, aliceConn, chat.SendCommand{SenderID: alice, ReceiverID: bob, Message: "Hi " + id, MessageID: id})
		sent := await(t, aliceConn, event.MessageSentEvent).(*event.MessageSent)
		req.False(sent.Delivered)
	}

	// Then the history is paged newest first
	status, content := ts.do(t, http.MethodGet, "/api/messages?userId1=alice@example.com&userId2=bob@example.com", bobToken, nil)
	req.Equal(http.StatusOK, status, string(content))
	var page historyResponse
	req.NoError(json.Unmarshal(content, &page))
	req.Len(page.Messages, 2)
	req.Equal("m3", page.Messages[0].MessageID)
	req.NotNil(page.Cursor)

	status, content = ts.do(t, http.MethodGet, "/api/messages?userId1=alice@example.com&userId2=bob@example.com&cursor="+*page.Cursor, bobToken, nil)
	req.Equal(http.StatusOK, status)
	req.NoError(json.Unmarshal(content, &page))
	req.Len(page.Messages, 1)
	req.Equal("m1", page.Messages[0].MessageID)
	req.Nil(page.Cursor)

	// When bob connects
	bobConn := ts.dial(t, bobToken)

	// Then the backlog arrives in order and alice learns it was delivered
	for _, id := range []string{"m1", "m2", "m3"} {
		received := await(t, bobConn, event.ReceiveMessageEvent).(*event.ReceiveMessage)
		req.Equal(id, received.MessageID)
		req.False(received.Read)
		delivered := await(t, aliceConn, event.MessageDeliveredEvent).(*event.MessageDelivered)
		req.Equal(id, delivered.MessageID)
	}
}

func Test_Second_Connection_Takes_Over(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	alice, aliceToken := ts.register(t, "alice")
	bob, bobToken := ts.register(t, "bob")

	// Given alice is connected
	first := ts.dial(t, aliceToken)
	await(t, first, event.RegisteredEvent)

	// When she connects from another device
	second := ts.dial(t, aliceToken)
	await(t, second, event.RegisteredEvent)

	// Then the first connection is told and closed
	notice := await(t, first, event.ForceDisconnectEvent).(*event.ForceDisconnect)
	req.Equal("New session detected", notice.Message)
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			req.True(fastws.IsCloseError(err, fastws.CloseNormalClosure), err.Error())
			break
		}
	}

	// And messages for alice only reach the new connection
	bobConn := ts.dial(t, bobToken)
	await(t, bobConn, event.RegisteredEvent)
	emit(t, bobConn, chat.SendCommand{SenderID: bob, ReceiverID: alice, Message: "which one?", MessageID: "t1"})
	received := await(t, second, event.ReceiveMessageEvent).(*event.ReceiveMessage)
	req.Equal("t1", received.MessageID)

	// And the users list still shows alice online
	status, content := ts.do(t, http.MethodGet, "/api/users", bobToken, nil)
	req.Equal(http.StatusOK, status)
	var users []userResponse
	req.NoError(json.Unmarshal(content, &users))
	online := lo.SliceToMap(users, func(u userResponse) (string, bool) { return u.Email, u.Online })
	req.True(online[string(alice)])
}

func Test_Register_Mismatch_Closes_The_Connection(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	_, aliceToken := ts.register(t, "alice")

	conn := ts.dial(t, aliceToken)
	await(t, conn, event.RegisteredEvent)

	emit(t, conn, chat.RegisterCommand{UserID: "mallory@example.com"})

	reported := await(t, conn, event.ErrorEvent).(*event.Error)
	req.Equal("User ID mismatch", reported.Message)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			req.True(fastws.IsCloseError(err, fastws.CloseNormalClosure), err.Error())
			break
		}
	}
}

func Test_Debug_Inspect(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	ts.register(t, "alice")

	status, content := ts.do(t, http.MethodGet, "/debug/inspect?prefix=user:", "", nil)

	req.Equal(http.StatusOK, status)
	req.True(strings.Contains(string(content), "alice@example.com"))
	req.False(strings.Contains(string(content), "argon2"))
}
