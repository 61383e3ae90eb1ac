package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"process", ModeProcess, false},
		{"camera", ModeCamera, false},
		{"hybrid", ModeHybrid, false},
		{"  Hybrid ", ModeHybrid, false},
		{"", "", true},
		{"events", "", true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestWatchPattern_Matches(t *testing.T) {
	p := WatchPattern("howdy")

	// Exact short-name match is case-insensitive.
	assert.True(t, p.Matches("howdy", ""))
	assert.True(t, p.Matches("HOWDY", ""))
	assert.False(t, p.Matches("howdy2", ""))

	// Command-line match is substring, case-insensitive.
	assert.True(t, p.Matches("python3", "/usr/bin/python3 /usr/lib/howdy/compare.py"))
	assert.True(t, p.Matches("python3", "/usr/lib/Howdy/compare.py"))
	assert.False(t, p.Matches("python3", "/usr/bin/python3 server.py"))

	// Empty inputs never match.
	assert.False(t, p.Matches("", ""))
	assert.False(t, WatchPattern("").Matches("howdy", "howdy"))
}

func TestWatchList_Matches(t *testing.T) {
	list := WatchList{"howdy", "facecam"}

	assert.True(t, list.Matches("facecam", ""))
	assert.True(t, list.Matches("python3", "run howdy now"))
	assert.False(t, list.Matches("bash", "/bin/bash"))
	assert.False(t, WatchList{}.Matches("howdy", "howdy"))
}
