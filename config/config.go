// Package config reads the user configuration of the patchbay command line
// tool from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vsariola/patchbay/transport"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"logLevel"`

	// BPM, when not zero, overrides the tempo of every transport.
	BPM          float64       `yaml:"bpm,omitempty"`
	Lookahead    float64       `yaml:"lookahead"`
	StartOffset  float64       `yaml:"startOffset"`
	PollInterval time.Duration `yaml:"pollInterval"`
	SampleRate   float64       `yaml:"sampleRate"`

	// MIDIPort is a prefix of the name of the MIDI output port notes and
	// clock are mirrored to. Empty disables MIDI output.
	MIDIPort    string `yaml:"midiPort,omitempty"`
	MIDIChannel int    `yaml:"midiChannel"`

	// PresetDirs are searched, in order, for presets given by name.
	PresetDirs []string `yaml:"presetDirs,omitempty"`
}

func Default() Config {
	c := Config{
		LogLevel:     "info",
		Lookahead:    transport.DefaultLookahead,
		StartOffset:  transport.DefaultStartOffset,
		PollInterval: transport.DefaultPollInterval,
		SampleRate:   44100,
		MIDIChannel:  1,
	}
	if dir, err := Dir(); err == nil {
		c.PresetDirs = []string{filepath.Join(dir, "presets")}
	}
	return c
}

// Dir is the directory holding the configuration file and the user presets.
func Dir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "patchbay"), nil
}

// Path is the default location of the configuration file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load reads the configuration file on top of the defaults. A missing file is
// not an error: the defaults are returned.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Default(), fmt.Errorf("%w: %v: %v", ErrInvalidConfig, path, err)
	}
	if err := c.Validate(); err != nil {
		return Default(), fmt.Errorf("%v: %w", path, err)
	}
	return c, nil
}

// Save writes the configuration, creating the directory if needed.
func (c Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("could not marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if c.BPM != 0 && (c.BPM < transport.MinBPM || c.BPM > transport.MaxBPM) {
		errs = append(errs, fmt.Errorf("bpm %v outside [%v, %v]", c.BPM, transport.MinBPM, transport.MaxBPM))
	}
	if c.Lookahead <= 0 {
		errs = append(errs, fmt.Errorf("lookahead must be positive, got %v", c.Lookahead))
	}
	if c.StartOffset < 0 {
		errs = append(errs, fmt.Errorf("startOffset must not be negative, got %v", c.StartOffset))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("pollInterval must be positive, got %v", c.PollInterval))
	} else if c.PollInterval.Seconds() >= c.Lookahead {
		errs = append(errs, fmt.Errorf("pollInterval %v must be shorter than the lookahead", c.PollInterval))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sampleRate must be positive, got %v", c.SampleRate))
	}
	if c.MIDIChannel < 1 || c.MIDIChannel > 16 {
		errs = append(errs, fmt.Errorf("midiChannel %d outside [1, 16]", c.MIDIChannel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return l, nil
}

// TransportOptions returns the scheduler options implied by the config.
func (c Config) TransportOptions() []transport.Option {
	return []transport.Option{
		transport.WithLookahead(c.Lookahead),
		transport.WithStartOffset(c.StartOffset),
	}
}
