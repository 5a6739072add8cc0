package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"lower case", "HeLLo World", "hello world"},
		{"vietnamese diacritics", "Phim này hay quá", "phim nay hay qua"},
		{"horn and hook marks", "Người ở đây", "nguoi o đay"},
		{"d with stroke is kept", "Địt", "đit"},
		{"punctuation becomes space", "d.u-m_a", "d u m a"},
		{"whitespace collapsed", "a  \t\n b", "a b"},
		{"punctuation runs collapse", "wow!!! ok...", "wow ok "},
		{"edges are not trimmed", "  hi  ", " hi "},
		{"latin accents", "Gdańsk café", "gdansk cafe"},
		{"unlisted punctuation kept", "what? 'quoted'", "what? 'quoted'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"Đụ má mày!!!", "Phim  hay, quá.", "ÀÁÂÃ", ""}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize(%q)", in)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, " a b ", collapseWhitespace("\t a   b\n"))
	assert.Equal(t, "", collapseWhitespace(""))
}
