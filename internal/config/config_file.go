package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML
// friendly. Unset keys leave the current value alone.
type FileConfig struct {
	Port           string `toml:"port"`
	BaudRate       int    `toml:"baud_rate"`
	DataBits       int    `toml:"data_bits"`
	StopBits       int    `toml:"stop_bits"`
	Parity         string `toml:"parity"`
	Listen         string `toml:"listen"`
	DBPath         string `toml:"db_path"`
	Units          string `toml:"units"`
	Timezone       string `toml:"timezone"`
	LogLevel       string `toml:"log_level"`
	Fixtures       string `toml:"fixtures"`
	ReplayInterval string `toml:"replay_interval"`
	DisableSensor  *bool  `toml:"disable_sensor"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.sds011/config.toml, or "" if there is no home
// directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".sds011", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("port", fc.Port, &cfg.Port)
	s.setInt("baud-rate", fc.BaudRate, &cfg.Serial.BaudRate)
	s.setInt("data-bits", fc.DataBits, &cfg.Serial.DataBits)
	s.setInt("stop-bits", fc.StopBits, &cfg.Serial.StopBits)
	s.setString("parity", fc.Parity, &cfg.Serial.Parity)
	s.setString("listen", fc.Listen, &cfg.Listen)
	s.setString("db-path", fc.DBPath, &cfg.DBPath)
	s.setString("units", fc.Units, &cfg.Units)
	s.setString("timezone", fc.Timezone, &cfg.Timezone)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("fixtures", fc.Fixtures, &cfg.Fixtures)
	s.setBool("disable-sensor", fc.DisableSensor, &cfg.DisableSensor)

	return s.setDuration("replay-interval", fc.ReplayInterval, &cfg.ReplayInterval)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
