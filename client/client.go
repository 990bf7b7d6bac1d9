package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const requestTimeout = 10 * time.Second

type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Username       string `json:"username"`
	Online         bool   `json:"online"`
	ProfilePicture string `json:"profilePicture"`
}

type Credentials struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type HistoryPage struct {
	Messages []event.MessageRecord `json:"messages"`
	Cursor   *string               `json:"cursor"`
}

// API talks to the REST surface of the relay.
type API struct {
	baseURL string
	http    *fasthttp.Client
}

func NewAPI(baseURL string) *API {
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{Name: "chat-relay-client"},
	}
}

func (a *API) Register(username, email, password string) (Credentials, error) {
	var credentials Credentials
	err := a.do(fasthttp.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "email": email, "password": password,
	}, &credentials)
	return credentials, err
}

func (a *API) Login(email, password string) (Credentials, error) {
	var credentials Credentials
	err := a.do(fasthttp.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	}, &credentials)
	return credentials, err
}

func (a *API) Users(token string) ([]User, error) {
	var users []User
	err := a.do(fasthttp.MethodGet, "/api/users", token, nil, &users)
	return users, err
}

func (a *API) History(token string, self, other chat.ParticipantID, cursor *string) (HistoryPage, error) {
	query := url.Values{}
	query.Set("userId1", self.String())
	query.Set("userId2", other.String())
	if cursor != nil {
		query.Set("cursor", *cursor)
	}
	var page HistoryPage
	err := a.do(fasthttp.MethodGet, "/api/messages?"+query.Encode(), token, nil, &page)
	return page, err
}

func (a *API) do(method, path, token string, body, target any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(a.baseURL + path)
	req.Header.SetMethod(method)
	if token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+token)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	if err := a.http.DoTimeout(req, resp, requestTimeout); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if status := resp.StatusCode(); status >= fasthttp.StatusBadRequest {
		var failure struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		_ = json.Unmarshal(resp.Body(), &failure)
		return fmt.Errorf("%s %s: %d %s %s", method, path, status, failure.Error, failure.Reason)
	}
	return json.Unmarshal(resp.Body(), target)
}

// Client is one live WebSocket session. Writes are serialized, reads happen
// in Run only.
type Client struct {
	self   chat.ParticipantID
	conn   *websocket.Conn
	log    *slog.Logger
	events chan event.DomainEvent

	mu      sync.Mutex
	closing atomic.Bool
}

// Dial opens the WebSocket at baseURL/ws, authenticated with token.
func Dial(ctx context.Context, baseURL, token string, self chat.ParticipantID, log *slog.Logger) (*Client, error) {
	wsURL, err := websocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	header := map[string][]string{"Authorization": {"Bearer " + token}}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s", wsURL, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Client{self: self, conn: conn, log: log, events: make(chan event.DomainEvent, 64)}, nil
}

func websocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

func (c *Client) Self() chat.ParticipantID { return c.self }

// Events is closed when Run returns.
func (c *Client) Events() <-chan event.DomainEvent { return c.events }

// Run reads server frames until the connection ends or ctx is done.
// Frames that cannot be decoded are logged and skipped.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || c.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		env, err := domain.ParseEnvelope(frame)
		if err != nil {
			c.log.Debug("Skipping unreadable frame", "error", err)
			continue
		}
		evt, err := event.Decode(env)
		if err != nil {
			c.log.Debug("Skipping unknown event", "event", env.Event, "error", err)
			continue
		}
		select {
		case c.events <- evt:
		case <-ctx.Done():
			return nil
		}
	}
}

// Send writes a message to receiver and returns the generated messageId.
func (c *Client) Send(receiver chat.ParticipantID, text string) (string, error) {
	id := uuid.NewString()
	return id, c.emit(chat.SendCommand{SenderID: c.self, ReceiverID: receiver, Message: text, MessageID: id})
}

// Resend retries a message keeping its messageId, the relay stores it once.
func (c *Client) Resend(receiver chat.ParticipantID, id, text string) error {
	return c.emit(chat.SendCommand{SenderID: c.self, ReceiverID: receiver, Message: text, MessageID: id})
}

func (c *Client) Typing(receiver chat.ParticipantID, stopped bool) error {
	return c.emit(chat.TypingCommand{SenderID: c.self, ReceiverID: receiver, Stopped: stopped})
}

func (c *Client) MarkRead(messageID string) error {
	return c.emit(chat.MarkReadCommand{MessageID: messageID})
}

func (c *Client) Register() error {
	return c.emit(chat.RegisterCommand{UserID: c.self})
}

func (c *Client) emit(cmd chat.Command) error {
	frame, err := chat.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close sends a normal close frame then drops the connection.
func (c *Client) Close() error {
	c.closing.Store(true)
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
