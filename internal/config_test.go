package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", t.TempDir())
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	config, err := LoadConfig()

	req.NoError(err)
	req.Equal(8080, config.Port)
	req.Equal("0.0.0.0:8080", config.Address())
	req.Equal(24*time.Hour, config.AuthTokenDuration)
	req.Equal(60*time.Second, config.PongWait)
	req.Equal(54*time.Second, config.PingPeriod())
	req.Nil(config.LimitMessages)
	req.Empty(config.CensoredWordsDir)
	req.Equal('*', config.CensorRune())
}

func TestLoadConfig_From_File(t *testing.T) {
	req := require.New(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "BADGER_FILEPATH=/tmp/relay\nJWT_SECRET=0123456789abcdef\nLIMIT_MESSAGES=20\nPORT=9090\n"
	req.NoError(os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, name := range []string{"BADGER_FILEPATH", "JWT_SECRET", "LIMIT_MESSAGES", "PORT"} {
			_ = os.Unsetenv(name)
		}
	})

	config, err := LoadConfig(path)

	req.NoError(err)
	req.Equal(9090, config.Port)
	req.NotNil(config.LimitMessages)
	req.Equal(20, *config.LimitMessages)
}

func TestLoadConfig_Rejects_Invalid_Values(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing secret", map[string]string{"BADGER_FILEPATH": "/tmp/relay"}},
		{"short secret", map[string]string{"BADGER_FILEPATH": "/tmp/relay", "JWT_SECRET": "short"}},
		{"zero limit", map[string]string{"BADGER_FILEPATH": "/tmp/relay", "JWT_SECRET": "0123456789abcdef", "LIMIT_MESSAGES": "0"}},
		{"empty buffer", map[string]string{"BADGER_FILEPATH": "/tmp/relay", "JWT_SECRET": "0123456789abcdef", "CONNECTION_BUFFER_SIZE": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for name, value := range tt.env {
				t.Setenv(name, value)
			}

			_, err := LoadConfig()

			require.Error(t, err)
		})
	}
}
