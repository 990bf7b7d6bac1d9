package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// CHAT_SERVER_URL points at a running relay, the suite is skipped without it
	ServerURL string `envconfig:"CHAT_SERVER_URL"`
	// E2E_DEBUG_JSON dumps every event received as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_PASSWORD is used for every throwaway account
	Password string `envconfig:"E2E_PASSWORD" default:"E2ePassword123!"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
