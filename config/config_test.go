package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vsariola/patchbay/config"
)

func TestDefaultIsValid(t *testing.T) {
	c := config.Default()
	require.NoError(t, c.Validate())
	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
	assert.Len(t, c.TransportOptions(), 2)
}

func TestLoadMissingFile(t *testing.T) {
	c, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
logLevel: debug
bpm: 90
pollInterval: 5ms
midiPort: IAC
midiChannel: 10
presetDirs: [/tmp/a, /tmp/b]
`), 0644))
	c, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 90.0, c.BPM)
	assert.Equal(t, 5*time.Millisecond, c.PollInterval)
	assert.Equal(t, "IAC", c.MIDIPort)
	assert.Equal(t, 10, c.MIDIChannel)
	assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, c.PresetDirs)
	assert.Equal(t, config.Default().Lookahead, c.Lookahead)
	l, _ := c.Level()
	assert.Equal(t, slog.LevelDebug, l)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for _, tt := range []struct {
		name string
		yml  string
	}{
		{"syntax", "bpm: [1"},
		{"bpm", "bpm: 1000"},
		{"level", "logLevel: loud"},
		{"channel", "midiChannel: 17"},
		{"poll", "pollInterval: 1s"},
		{"lookahead", "lookahead: -1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yml), 0644))
			c, err := config.Load(path)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
			assert.Equal(t, config.Default(), c)
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yml")
	c := config.Default()
	c.BPM = 140
	c.MIDIPort = "Synth"
	require.NoError(t, c.Save(path))
	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	c.SampleRate = 0
	assert.ErrorIs(t, c.Save(path), config.ErrInvalidConfig)
}
