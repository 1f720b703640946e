// Package config loads station configuration from a TOML file, SDS011_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/banshee-data/airquality.report/internal/serialmux"
	"github.com/banshee-data/airquality.report/internal/units"
)

// Config holds the resolved station configuration.
type Config struct {
	Port   string
	Serial serialmux.PortOptions

	Listen   string
	DBPath   string
	Units    string
	Timezone string
	LogLevel string

	// Fixtures replays hex-encoded frames instead of opening Port.
	Fixtures       string
	ReplayInterval time.Duration
	DisableSensor  bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Port:           "/dev/ttyUSB0",
		Serial:         serialmux.PortOptions{BaudRate: serialmux.DefaultBaudRate},
		Listen:         ":8080",
		DBPath:         "sds011.db",
		Units:          units.UGM3,
		Timezone:       "UTC",
		LogLevel:       "info",
		ReplayInterval: time.Second,
	}
}

// Validate checks the configuration for errors and normalises the serial
// options.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Port == "" && c.Fixtures == "" && !c.DisableSensor {
		return fmt.Errorf("serial port is required unless fixtures are replayed or the sensor is disabled")
	}
	if !units.IsValid(c.Units) {
		return fmt.Errorf("invalid units %q: must be one of %s", c.Units, units.GetValidUnitsString())
	}
	if c.Timezone != "UTC" && !units.IsTimezoneValid(c.Timezone) {
		return fmt.Errorf("invalid timezone %q", c.Timezone)
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if lvl, err := zerolog.ParseLevel(c.LogLevel); err != nil || lvl == zerolog.NoLevel {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	if c.ReplayInterval <= 0 {
		return fmt.Errorf("replay interval must be positive, got %s", c.ReplayInterval)
	}

	opts, err := c.Serial.Normalise()
	if err != nil {
		return fmt.Errorf("serial options: %w", err)
	}
	c.Serial = opts
	return nil
}

// configSetter writes a value unless the matching flag was set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}
