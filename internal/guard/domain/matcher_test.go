package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		patterns []string
		want     bool
	}{
		{"plain domain", "https://roblox.com/play", []string{"roblox.com"}, true},
		{"case insensitive url", "HTTPS://ROBLOX.COM/", []string{"roblox.com"}, true},
		{"case insensitive pattern", "https://roblox.com/", []string{"Roblox.COM"}, true},
		{"path fragment", "https://tylerhalltech.com/noguardian2/x", []string{"noguardian2"}, true},
		{"keyword anywhere", "https://example.com/?q=casino", []string{"casino"}, true},
		{"substring false positive is expected", "https://disable.com/", []string{"able.com"}, true},
		{"art.com inside part.com", "https://part.com", []string{"art.com"}, true},
		{"no match", "https://example.org/", []string{"example.com"}, false},
		{"empty pattern ignored", "https://example.org/", []string{""}, false},
		{"empty list", "https://example.org/", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.url, tt.patterns))
		})
	}
}

func TestMatches_MultipleLists(t *testing.T) {
	safe := []string{"google.com"}
	user := []string{"example.net"}
	assert.True(t, Matches("https://example.net/a", safe, user))
	assert.True(t, Matches("https://docs.google.com/doc1", safe, user))
	assert.False(t, Matches("https://example.org/", safe, user))
}
