package moderation_test

import (
	"huddle/errors"
	"huddle/moderation"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModerator_Censor(t *testing.T) {
	req := require.New(t)

	// Given a moderator built over a small dictionary
	mod, err := moderation.NewModerator([]string{"badger", "snake", "mushroom"}, '*')
	req.NoError(err)

	tests := []struct {
		name  string
		input string
		want  string
		words []string
	}{
		{
			name:  "Plain forbidden word",
			input: "The badger is here",
			want:  "The ****** is here",
			words: []string{"badger"},
		},
		{
			name:  "Trailing punctuation is kept",
			input: "I love badger!",
			want:  "I love ******!",
			words: []string{"badger"},
		},
		{
			name:  "Separators inside a word are masked too",
			input: "S-N-A-K-E attack",
			want:  "********* attack",
			words: []string{"snake"},
		},
		{
			name:  "Clean content is untouched",
			input: "Huddle is amazing",
			want:  "Huddle is amazing",
		},
		{
			name:  "Empty content",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When the content is censored
			got, words := mod.Censor(tt.input)

			// Then forbidden words are masked rune for rune
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.words, words)
		})
	}
}

func TestNewModerator_RejectsEmptyDictionary(t *testing.T) {
	req := require.New(t)

	// Given a dictionary where nothing survives normalization
	_, err := moderation.NewModerator([]string{"", "..."}, '*')

	// Then the moderator cannot be built
	req.ErrorIs(err, errors.ErrEmptyWords)
}

func TestDetectLanguage(t *testing.T) {
	req := require.New(t)

	lang := moderation.DetectLanguage("Bonjour à tous, je suis très content de vous retrouver dans ce salon aujourd'hui")

	req.Equal("fr", lang)
}
