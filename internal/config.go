package internal

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=8080"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=1s"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=65536"`
	SendRate             float64       `env:"SEND_RATE,default=20"`
	SendBurst            int           `env:"SEND_BURST,default=40"`
	CensoredWordsDir     string        `env:"CENSORED_WORDS_DIR"`
	CensoredChar         string        `env:"CENSORED_CHAR,default=*"`
}

// LoadConfig reads an optional .env file then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, fmt.Errorf("loading %v: %w", files, err)
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	switch {
	case len(c.JWTSecret) < 16:
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.BufferSize <= 0:
		return fmt.Errorf("BUFFER_SIZE must be positive, got %d", c.BufferSize)
	case c.LimitMessages != nil && *c.LimitMessages <= 0:
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	case c.PongWait <= 0:
		return fmt.Errorf("PONG_WAIT must be positive")
	case utf8.RuneCountInString(c.CensoredChar) != 1:
		return fmt.Errorf("CENSORED_CHAR must be a single character, got %q", c.CensoredChar)
	}
	return nil
}

// PingPeriod must stay below PongWait so the peer answers before the read deadline.
func (c Config) PingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c Config) CensorRune() rune {
	r, _ := utf8.DecodeRuneInString(c.CensoredChar)
	return r
}
