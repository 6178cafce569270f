// Package config holds the runtime settings of the tonicgrid command: audio
// device, frame rate, logging and export options. Settings come from an
// optional YAML file, overridden by TONICGRID_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string `yaml:"logLevel"`

	// Audio
	SampleRate int           `yaml:"sampleRate"`
	BufferSize time.Duration `yaml:"bufferSize"` // device latency; 0 lets oto decide
	NoAudio    bool          `yaml:"noAudio"`    // drive the transport from the wall clock

	// Playback
	FPS          int           `yaml:"fps"`
	TickInterval time.Duration `yaml:"tickInterval"` // wall clock step without audio
	Loop         bool          `yaml:"loop"`

	// Export
	TicksPerQuarter int `yaml:"ticksPerQuarter"`
	BaseKey         int `yaml:"baseKey"`
	Repeats         int `yaml:"repeats"`
}

const envPrefix = "TONICGRID_"

func Default() Config {
	return Config{
		LogLevel:        "info",
		SampleRate:      44100,
		FPS:             60,
		TickInterval:    5 * time.Millisecond,
		TicksPerQuarter: 960,
		BaseKey:         72,
	}
}

// Load reads the YAML file at path, if path is not empty, on top of the
// defaults, and applies the environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("could not unmarshal config %v: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = i
		return nil
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = b
		return nil
	}
	duration := func(key string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, key, err)
		}
		*dst = d
		return nil
	}
	str("LOG_LEVEL", &c.LogLevel)
	for _, err := range []error{
		integer("SAMPLE_RATE", &c.SampleRate),
		duration("BUFFER_SIZE", &c.BufferSize),
		boolean("NO_AUDIO", &c.NoAudio),
		integer("FPS", &c.FPS),
		duration("TICK_INTERVAL", &c.TickInterval),
		boolean("LOOP", &c.Loop),
		integer("TICKS_PER_QUARTER", &c.TicksPerQuarter),
		integer("BASE_KEY", &c.BaseKey),
		integer("REPEATS", &c.Repeats),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate should be > 0, got %d", c.SampleRate)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps should be > 0, got %d", c.FPS)
	}
	if c.TicksPerQuarter <= 0 || c.TicksPerQuarter > 0x7fff {
		return fmt.Errorf("ticks per quarter should be in 1..32767, got %d", c.TicksPerQuarter)
	}
	if c.BaseKey < 0 || c.BaseKey > 127 {
		return fmt.Errorf("base key should be in 0..127, got %d", c.BaseKey)
	}
	if c.Repeats < 0 {
		return fmt.Errorf("repeats should be >= 0, got %d", c.Repeats)
	}
	return nil
}

// Level returns the logrus level; Validate has already checked it parses.
func (c *Config) Level() logrus.Level {
	l, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
