package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/client"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const awaitTimeout = 10 * time.Second

type BaseRelaySuite struct {
	suite.Suite
	Config Config
	API    *client.API
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.ServerURL == "" {
		s.T().Skip("CHAT_SERVER_URL not set")
	}
	s.API = client.NewAPI(s.Config.ServerURL)
}

// Step prints a colorized header for a scenario step in logs
func (s *BaseRelaySuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// NewAccount registers a throwaway user and returns its credentials.
func (s *BaseRelaySuite) NewAccount(name string) client.Credentials {
	email := fmt.Sprintf("%s-%s@e2e.test", name, uuid.NewString()[:8])
	credentials, err := s.API.Register(name, email, s.Config.Password)
	s.Require().NoError(err, "register "+email)
	return credentials
}

// Connect opens a session for credentials and waits for the registered event.
func (s *BaseRelaySuite) Connect(ctx context.Context, credentials client.Credentials) *client.Client {
	conn, err := client.Dial(ctx, s.Config.ServerURL, credentials.Token,
		chat.ParticipantID(credentials.User.Email), logs.GetLoggerFromLevel(slog.LevelWarn))
	s.Require().NoError(err)
	go func() { _ = conn.Run(ctx) }()
	s.T().Cleanup(func() { _ = conn.Close() })

	_, ok := s.Await(conn, event.RegisteredEvent).(*event.Registered)
	s.Require().True(ok)
	return conn
}

// Await returns the next event called name, skipping anything else.
func (s *BaseRelaySuite) Await(conn *client.Client, name string) event.DomainEvent {
	deadline := time.After(awaitTimeout)
	for {
		select {
		case evt, ok := <-conn.Events():
			s.Require().True(ok, "connection closed while waiting for "+name)
			s.debug(conn, evt)
			if evt.EventName() == name {
				return evt
			}
		case <-deadline:
			s.FailNow("timed out waiting for " + name)
			return nil
		}
	}
}

func (s *BaseRelaySuite) debug(conn *client.Client, evt event.DomainEvent) {
	if !s.Config.DebugJSON {
		return
	}
	body, _ := json.MarshalIndent(evt, "", "  ")
	s.T().Logf("%s <- %s\n%s", conn.Self(), evt.EventName(), body)
}
