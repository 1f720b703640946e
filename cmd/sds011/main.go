package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/version"
)

const longHelp = `Read particulate concentrations from an SDS011 sensor over serial, keep the
latest sensor state, record readings to SQLite and serve them over HTTP.

Configuration is read from a TOML file, then SDS011_* environment variables,
then flags; each layer overrides the previous one.`

var exampleUsage = strings.TrimSpace(`
  sds011 --port /dev/ttyUSB0 --listen :8080
  sds011 --fixtures fixtures.hex --replay-interval 500ms
  sds011 decode "AA C0 4B 00 51 00 E9 77 FC AB"
  sds011 migrate status --db-path sds011.db
`)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log := monitoring.Logger()
		log.Error().Err(err).Msg("sds011")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "sds011",
		Short:         "SDS011 particulate sensor station",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", version.String(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			// flags are already bound into cfg; keep a copy to layer reloads over
			base := cfg
			cfgFile, err := resolveConfig(&cfg, cfgPath, changed)
			if err != nil {
				return err
			}
			if err := monitoring.SetLevel(cfg.LogLevel); err != nil {
				return err
			}

			log := monitoring.Logger()
			log.Info().Interface("config", cfg).Str("config_file", cfgFile).Msg("configuration")

			return runStation(cmd.Context(), cfg, stationReload{path: cfgFile, base: base, changed: changed})
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.sds011/config.toml)")

	root.Flags().StringVar(&cfg.Port, "port", cfg.Port, "serial port connected to the sensor")
	root.Flags().IntVar(&cfg.Serial.BaudRate, "baud-rate", cfg.Serial.BaudRate, "serial baud rate")
	root.Flags().IntVar(&cfg.Serial.DataBits, "data-bits", cfg.Serial.DataBits, "serial data bits (default 8)")
	root.Flags().IntVar(&cfg.Serial.StopBits, "stop-bits", cfg.Serial.StopBits, "serial stop bits (default 1)")
	root.Flags().StringVar(&cfg.Serial.Parity, "parity", cfg.Serial.Parity, "serial parity: N, E or O (default N)")
	root.Flags().StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	root.Flags().StringVar(&cfg.Units, "units", cfg.Units, "display units: ugm3 or mgm3")
	root.Flags().StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "display timezone for timestamps")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	root.Flags().StringVar(&cfg.Fixtures, "fixtures", cfg.Fixtures, "replay hex frames from this file instead of opening the port")
	root.Flags().DurationVar(&cfg.ReplayInterval, "replay-interval", cfg.ReplayInterval, "delay between replayed fixture frames")
	root.Flags().BoolVar(&cfg.DisableSensor, "disable-sensor", cfg.DisableSensor, "run without a sensor (API and history only)")
	root.PersistentFlags().StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the SQLite database")

	root.AddCommand(newDecodeCmd(), newMigrateCmd(&cfg, &cfgPath))
	return root
}

// resolveConfig layers the config file and environment into cfg, respecting
// flags that were set explicitly, and validates the result. It returns the
// config file path that was used, or "" if none was found.
func resolveConfig(cfg *config.Config, cfgPath string, changed map[string]bool) (string, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = config.DefaultConfigPath()
	}

	if cfgFile != "" && config.FileExists(cfgFile) {
		fc, err := config.LoadFileConfig(cfgFile)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if err := config.ApplyFileConfig(cfg, fc, changed); err != nil {
			return "", err
		}
	} else if cfgPath != "" {
		return "", fmt.Errorf("config file %s not found", cfgPath)
	} else {
		cfgFile = ""
	}

	if err := config.ApplyEnvConfig(cfg, changed); err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return cfgFile, nil
}
