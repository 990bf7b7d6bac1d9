package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chat-relay/client"
	"chat-relay/domain/chat"
	"chat-relay/domain/event"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Email     string `env:"CHAT_EMAIL,required=true"`
	Password  string `env:"CHAT_PASSWORD,required=true"`
	Username  string `env:"CHAT_USERNAME"`
	Register  bool   `env:"CHAT_REGISTER,default=false"`
	AutoRead  bool   `env:"CHAT_AUTO_READ,default=true"`
	Colours   bool   `env:"CHAT_COLOURS,default=true"`
	LogLevel  string `env:"LOG_LEVEL,default=WARN"`
}

const usage = `commands:
  /to <email>         talk to someone
  /who                list users
  /history [cursor]   show the conversation with the current peer
  /read <messageId>   mark a message as read
  /quit
anything else is sent to the current peer`

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.Register && config.Username == "" {
		return exitConfig, fmt.Errorf("config error: CHAT_USERNAME is required to register")
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPI(config.ServerURL)
	credentials, err := authenticate(api, config)
	if err != nil {
		return exitRuntime, err
	}
	self := chat.ParticipantID(credentials.User.Email)

	conn, err := client.Dial(ctx, config.ServerURL, credentials.Token, self, log)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	printer := client.Printer{Colours: config.Colours}
	fmt.Println(usage)

	runErr := make(chan error, 1)
	go func() { runErr <- conn.Run(ctx) }()

	lines := make(chan string)
	go scan(os.Stdin, lines)

	repl := &session{api: api, conn: conn, token: credentials.Token, printer: printer, out: os.Stdout, autoRead: config.AutoRead}
	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case err = <-runErr:
			if err != nil {
				return exitRuntime, fmt.Errorf("connection lost: %w", err)
			}
			fmt.Println("Disconnected.")
			return exitOK, nil
		case evt, ok := <-conn.Events():
			if !ok {
				continue
			}
			repl.onEvent(evt)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if quit := repl.onLine(strings.TrimSpace(line)); quit {
				return exitOK, nil
			}
		}
	}
}

func authenticate(api *client.API, config Config) (client.Credentials, error) {
	if config.Register {
		return api.Register(config.Username, config.Email, config.Password)
	}
	return api.Login(config.Email, config.Password)
}

func scan(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

type session struct {
	api      *client.API
	conn     *client.Client
	token    string
	printer  client.Printer
	out      io.Writer
	peer     chat.ParticipantID
	autoRead bool
}

func (s *session) onEvent(evt event.DomainEvent) {
	if line := s.printer.Event(evt); line != "" {
		_, _ = fmt.Fprintln(s.out, line)
	}
	if msg, ok := evt.(*event.ReceiveMessage); ok && s.autoRead && msg.SenderID == s.peer {
		_ = s.conn.MarkRead(msg.MessageID)
	}
}

func (s *session) onLine(line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		s.say(line)
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch command {
	case "/quit":
		return true
	case "/to":
		if arg == "" {
			s.println("usage: /to <email>")
			return false
		}
		s.peer = chat.ParticipantID(arg)
		s.println("talking to " + arg)
	case "/who":
		users, err := s.api.Users(s.token)
		if err != nil {
			s.println(err.Error())
			return false
		}
		s.printer.Users(s.out, lo.Filter(users, func(u client.User, _ int) bool {
			return chat.ParticipantID(u.Email) != s.conn.Self()
		}))
	case "/history":
		if s.peer == "" {
			s.println("pick someone first with /to")
			return false
		}
		page, err := s.api.History(s.token, s.conn.Self(), s.peer, lo.EmptyableToPtr(arg))
		if err != nil {
			s.println(err.Error())
			return false
		}
		s.printer.History(s.out, page)
	case "/read":
		if err := s.conn.MarkRead(arg); err != nil {
			s.println(err.Error())
		}
	default:
		s.println(usage)
	}
	return false
}

func (s *session) say(text string) {
	if s.peer == "" {
		s.println("pick someone first with /to")
		return
	}
	if _, err := s.conn.Send(s.peer, text); err != nil {
		s.println(err.Error())
	}
}

func (s *session) println(text string) {
	_, _ = fmt.Fprintln(s.out, text)
}
