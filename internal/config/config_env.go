package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnvConfig applies SDS011_* environment variables. They override the
// file but not flags set on the command line.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("port", os.Getenv("SDS011_PORT"), &cfg.Port)
	s.setString("listen", os.Getenv("SDS011_LISTEN"), &cfg.Listen)
	s.setString("db-path", os.Getenv("SDS011_DB_PATH"), &cfg.DBPath)
	s.setString("units", os.Getenv("SDS011_UNITS"), &cfg.Units)
	s.setString("timezone", os.Getenv("SDS011_TIMEZONE"), &cfg.Timezone)
	s.setString("log-level", os.Getenv("SDS011_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("fixtures", os.Getenv("SDS011_FIXTURES"), &cfg.Fixtures)

	if v := os.Getenv("SDS011_BAUD_RATE"); v != "" {
		baud, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse baud-rate: %w", err)
		}
		s.setInt("baud-rate", baud, &cfg.Serial.BaudRate)
	}
	if v := os.Getenv("SDS011_DISABLE_SENSOR"); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse disable-sensor: %w", err)
		}
		s.setBool("disable-sensor", &disabled, &cfg.DisableSensor)
	}
	return s.setDuration("replay-interval", os.Getenv("SDS011_REPLAY_INTERVAL"), &cfg.ReplayInterval)
}
