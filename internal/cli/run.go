package cli

import (
	"context"

	"github.com/rileyhilliard/sensord/internal/bus"
	"github.com/rileyhilliard/sensord/internal/config"
	"github.com/rileyhilliard/sensord/internal/daemon"
	"github.com/rileyhilliard/sensord/internal/logger"
	"github.com/rileyhilliard/sensord/internal/metrics"
	"github.com/rileyhilliard/sensord/internal/power"
	"github.com/rileyhilliard/sensord/internal/sensor"
)

// loadConfig loads and validates the config selected by --config.
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func connectBus(cfg config.BusConfig, log logger.Logger) (*bus.DBusConn, error) {
	if cfg.System {
		return bus.ConnectSystem(log)
	}
	return bus.ConnectSession(log)
}

// runCommand runs the daemon and the metrics server until ctx is done.
func runCommand(ctx context.Context) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.NewEnvLogger("sensord")
	if path != "" {
		log.Info("using config %s", path)
	} else {
		log.Warn("no config file found, running with defaults and no sensors")
	}

	conn, err := connectBus(cfg.Bus, logger.NewEnvLogger("bus"))
	if err != nil {
		return err
	}
	defer conn.Close()
	if cfg.Bus.Name != "" {
		if err := conn.RequestName(cfg.Bus.Name); err != nil {
			return err
		}
	}

	sink := metrics.NewSink(true)
	d, err := daemon.New(daemon.Options{
		Config:         cfg,
		Conn:           conn,
		Log:            log,
		Sinks:          []sensor.Sink{sink},
		PowerListeners: []power.Listener{sink.PowerChanged},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	if cfg.HTTP.Listen != "" {
		srv := metrics.NewServer(sink, logger.NewEnvLogger("http"), version)
		go func() {
			err := srv.ListenAndServe(ctx, cfg.HTTP.Listen)
			if err != nil {
				cancel()
			}
			httpErr <- err
		}()
	} else {
		httpErr <- nil
	}

	runErr := d.Run(ctx)
	cancel()
	if err := <-httpErr; err != nil && runErr == nil {
		return err
	}
	return runErr
}
