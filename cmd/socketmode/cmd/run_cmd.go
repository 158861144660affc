package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"socketmode/internal/config"
	"socketmode/internal/logging"
	"socketmode/internal/metrics"
	"socketmode/internal/relay"
	"socketmode/internal/socket"
	"socketmode/internal/supervisor"
	"socketmode/internal/tracer"
)

func NewRunCmd() *cobra.Command {
	var (
		debugReconnects bool
		noRestart       bool
		listen          string
	)

	c := &cobra.Command{
		Use:   "run",
		Short: "Connect over Socket Mode and relay acknowledged events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(globals.configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("debug-reconnects") {
				cfg.Socket.DebugReconnects = debugReconnects
			}
			if noRestart {
				cfg.Supervisor.Enabled = false
			}
			if cmd.Flags().Changed("listen") {
				cfg.Relay.Listen = listen
			}

			logger := logging.FromContext(ctx)
			return run(ctx, cfg, configCredentials{configFile: globals.configFile, logger: logger})
		},
	}
	c.Flags().BoolVar(&debugReconnects, "debug-reconnects", false, "ask the remote side to send frequent reconnect requests")
	c.Flags().BoolVar(&noRestart, "no-restart", false, "exit after the first session instead of restarting")
	c.Flags().StringVar(&listen, "listen", "", "relay HTTP listen address (events, metrics, healthz)")
	return c
}

func run(ctx context.Context, cfg *config.Config, creds socket.CredentialSource) error {
	logger := logging.FromContext(ctx)

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return &socket.ConfigError{Err: err}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.Options{Registry: reg})

	var sinks []relay.Sink
	var hub *relay.Hub
	if cfg.Relay.Listen != "" {
		hub = relay.NewHub()
		sinks = append(sinks, hub)
	}
	if cfg.Relay.RedisURL != "" {
		rs, err := relay.NewRedisSink(cfg.Relay.RedisURL, relay.RedisOptions{
			Stream:        cfg.Relay.RedisStream,
			MaxLen:        cfg.Relay.RedisStreamMaxLen,
			ChannelPrefix: cfg.Relay.RedisChannelPrefix,
		})
		if err != nil {
			return &socket.ConfigError{Err: err}
		}
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("redis not reachable yet", "err", err.Error())
		}
		logger.Info("redis relay enabled", "stream", cfg.Relay.RedisStream)
		sinks = append(sinks, rs)
	}

	parent := ctx
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	if hub != nil {
		srv := relay.NewServer(relay.ServerOptions{
			Listen:        cfg.Relay.Listen,
			InternalToken: cfg.Relay.InternalToken,
			Hub:           hub,
			Gatherer:      reg,
		})
		ln, err := srv.Listen()
		if err != nil {
			return err
		}

		serverDone := make(chan struct{})
		go func() {
			defer close(serverDone)
			if err := srv.Serve(ctx, ln); err != nil && ctx.Err() == nil {
				logger.Error("relay server failed", "err", err.Error())
				cancel(fmt.Errorf("relay server: %w", err))
			}
		}()
		defer func() {
			cancel(nil)
			<-serverDone
		}()
	}

	dispatcher := relay.NewDispatcher(relay.DispatcherOptions{
		Sinks:          sinks,
		SlashResponses: cfg.Responses.SlashCommands,
		Logger:         logger,
		Metrics:        m,
	})

	newManager := func(attempt int) supervisor.Runner {
		return socket.New(creds, dispatcher, socket.Options{
			OpenURL:          cfg.Socket.OpenURL,
			DebugReconnects:  cfg.Socket.DebugReconnects,
			HandshakeTimeout: cfg.Socket.HandshakeTimeout,
			WriteTimeout:     cfg.Socket.WriteTimeout,
			FramePacing:      cfg.Socket.FramePacing,
			ReadLimit:        cfg.Socket.ReadLimitBytes,
			Logger:           logger.With("attempt", attempt),
			Metrics:          m,
		})
	}

	if !cfg.Supervisor.Enabled {
		err = newManager(1).Run(ctx)
	} else {
		err = supervisor.New(newManager, supervisor.Options{
			BaseDelay:   cfg.Supervisor.BaseDelay,
			MaxDelay:    cfg.Supervisor.MaxDelay,
			StableAfter: cfg.Supervisor.StableAfter,
			MaxFailures: cfg.Supervisor.MaxFailures,
			Logger:      logger,
			Metrics:     m,
		}).Run(ctx)
	}
	if parent.Err() == nil && ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return err
}

// loadConfig loads and validates; failures are configuration errors.
func loadConfig(file string) (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: file})
	if err != nil {
		return nil, &socket.ConfigError{Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &socket.ConfigError{Err: fmt.Errorf("invalid config: %w", err)}
	}
	return cfg, nil
}
