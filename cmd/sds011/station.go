package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/airquality.report/internal/api"
	"github.com/banshee-data/airquality.report/internal/config"
	"github.com/banshee-data/airquality.report/internal/db"
	"github.com/banshee-data/airquality.report/internal/ingest"
	"github.com/banshee-data/airquality.report/internal/monitoring"
	"github.com/banshee-data/airquality.report/internal/serialmux"
)

// stationReload describes how to rebuild the config when the file changes.
type stationReload struct {
	path    string
	base    config.Config
	changed map[string]bool
}

// openSensor picks the frame source for cfg: a disabled mux, a fixture
// replay or the real serial port.
func openSensor(cfg config.Config) (serialmux.SerialMuxInterface, error) {
	switch {
	case cfg.DisableSensor:
		monitoring.Logf("sensor disabled; serving stored history only")
		return serialmux.NewDisabledSerialMux(), nil
	case cfg.Fixtures != "":
		frames, err := loadFixtures(cfg.Fixtures)
		if err != nil {
			return nil, err
		}
		monitoring.Logf("replaying %d fixture frames from %s every %s", len(frames), cfg.Fixtures, cfg.ReplayInterval)
		return serialmux.NewMockSerialMux(frames, cfg.ReplayInterval), nil
	default:
		m, err := serialmux.NewRealSerialMux(cfg.Port, cfg.Serial)
		if err != nil {
			return nil, fmt.Errorf("failed to open sensor port: %w", err)
		}
		monitoring.Logf("opened %s at %d baud", cfg.Port, cfg.Serial.BaudRate)
		return m, nil
	}
}

func runStation(parent context.Context, cfg config.Config, reload stationReload) error {
	if parent == nil {
		parent = context.Background()
	}

	sensor, err := openSensor(cfg)
	if err != nil {
		return err
	}
	defer sensor.Close()

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	reg := monitoring.NewRegistry()
	station := ingest.NewStation(database, monitoring.NewFrameMetrics(reg))
	apiServer := api.NewServer(station, database, cfg.Units, cfg.Timezone)

	// Create a wait group for the HTTP server, serial monitor, and ingest routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sensor.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Errorf("failed to monitor serial port: %v", err)
		}
		monitoring.Logf("monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		station.Run(ctx, sensor)
	}()

	if reload.path != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := config.Watch(ctx, reload.path, reload.base, reload.changed, func(c config.Config) {
				if err := monitoring.SetLevel(c.LogLevel); err != nil {
					monitoring.Warnf("config reload: %v", err)
				}
				apiServer.SetDisplay(c.Units, c.Timezone)
				monitoring.Logf("config reloaded: units=%s timezone=%s log_level=%s", c.Units, c.Timezone, c.LogLevel)
			})
			if err != nil {
				monitoring.Errorf("config watcher stopped: %v", err)
			}
		}()
	}

	mux := apiServer.ServeMux()
	mux.Handle("/metrics", monitoring.Handler(reg))
	sensor.AttachAdminRoutes(mux)
	database.AttachAdminRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.LoggingMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	monitoring.Logf("listening on %s", cfg.Listen)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("failed to start server: %w", err)
		}
		stop()
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Errorf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Errorf("HTTP server force close error: %v", err)
		}
	}

	wg.Wait()
	monitoring.Logf("Graceful shutdown complete")
	return runErr
}
