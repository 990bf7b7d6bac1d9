package moderation

import (
	"log/slog"
	"testing"
	"testing/fstest"

	"chat-relay/errors"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const replacementChar = '*'

// The dictionary uses specific words to avoid partial collisions (e.g., "he" inside "The")
func TestModerator_Censor(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	mod, err := NewModerator([]string{"badger", "snake", "mushroom"}, replacementChar, log)
	req.NoError(err)

	tests := []struct {
		name     string
		input    string
		expected string
		words    []string
	}{
		{
			name:     "Simple word and space preservation",
			input:    "The badger is here",
			expected: "The ****** is here",
			words:    []string{"badger"},
		},
		{
			name:     "Multiple occurrences",
			input:    "badger badger badger",
			expected: "****** ****** ******",
			words:    []string{"badger", "badger", "badger"},
		},
		{
			name:     "Leet speak and internal punctuation",
			input:    "Look at B.4.d.g.€r !",
			expected: "Look at ********** !",
			words:    []string{"badger"},
		},
		{
			name:     "Uppercase and extreme noise",
			input:    "S-N-A-K-E is a B.A.D.G.E.R",
			expected: "********* is a ***********",
			words:    []string{"snake", "badger"},
		},
		{
			name:     "Accents are left alone",
			input:    "Un été avec un badger",
			expected: "Un été avec un ******",
			words:    []string{"badger"},
		},
		{
			name:     "Nothing to censor",
			input:    "see you at noon",
			expected: "see you at noon",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			content, words := mod.Censor(tt.input)
			req.Equal(tt.expected, content)
			req.Equal(tt.words, words)
		})
	}
}

func TestModerator_Noise_Only_Words_Are_Ignored(t *testing.T) {
	req := require.New(t)

	// Given a dictionary holding only noise besides one real word
	mod, err := NewModerator([]string{"...", ",,,", "", "badger"}, replacementChar, logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)

	// Then only the real word is censored
	content, words := mod.Censor("The badger is safe ...")
	req.Equal("The ****** is safe ...", content)
	req.Equal([]string{"badger"}, words)
}

func TestModerator_Nil_Censors_Nothing(t *testing.T) {
	req := require.New(t)
	var mod *Moderator

	content, words := mod.Censor("badger")

	req.Equal("badger", content)
	req.Nil(words)
}

func TestLoadDictionary(t *testing.T) {
	req := require.New(t)
	fsys := fstest.MapFS{
		"words/en.txt":    {Data: []byte("badger\r\nsnake\n\n# comment\n")},
		"words/fr.txt":    {Data: []byte("serpent\nbadger\n")},
		"words/README.md": {Data: []byte("ignored")},
		"empty/en.txt":    {Data: []byte("\n\n")},
	}

	dict, err := LoadDictionary(fsys, "words")
	req.NoError(err)
	req.Equal([]string{"badger", "serpent", "snake"}, dict.Words)
	req.ElementsMatch([]string{"en", "fr"}, dict.Languages)

	_, err = LoadDictionary(fsys, "empty")
	req.ErrorIs(err, errors.ErrEmptyWords)
}
