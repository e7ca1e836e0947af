package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/dshills/extbridge/internal/config"
	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/host"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/transport"
)

func newServeCmd(configPath *string) *cobra.Command {
	var (
		kind   string
		listen string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the extension and serve the bridge",
		Long: `Start the configured extension process and serve the host side of the
bridge until interrupted. With --transport websocket, wait for extension
processes to connect instead of launching one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if kind != "" {
				cfg.Transport.Kind = kind
			}
			if listen != "" {
				cfg.Transport.Listen = listen
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := cfg.Log.NewLogger("extbridge", cmd.ErrOrStderr())
			for _, name := range config.UnknownEnv(os.Environ()) {
				log.Warn("unknown environment variable", "name", name)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if *configPath != "" {
				if err := watchConfig(ctx, *configPath, log); err != nil {
					log.Warn("config file not watched", "error", err)
				}
			}

			srv := &server{cfg: cfg, settingsPath: *configPath, log: log}
			switch cfg.Transport.Kind {
			case config.TransportWebSocket:
				return srv.serveWebSocket(ctx)
			default:
				return srv.servePlugin(ctx)
			}
		},
	}
	cmd.Flags().StringVar(&kind, "transport", "", "transport to use (plugin, websocket)")
	cmd.Flags().StringVar(&listen, "listen", "", "websocket listen address")
	return cmd
}

// watchConfig applies log level changes from the config file without a
// restart. Other settings take effect for the next session.
func watchConfig(ctx context.Context, path string, log hclog.Logger) error {
	return config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			log.Warn("config reload failed", "error", err)
			return
		}
		log.SetLevel(cfg.Log.HCLogLevel())
		log.Info("config reloaded", "level", cfg.Log.Level)
	})
}

type server struct {
	cfg          *config.Config
	settingsPath string
	log          hclog.Logger
}

func (s *server) servePlugin(ctx context.Context) error {
	proc, err := host.Launch(ctx, s.cfg.Extension, s.log)
	if err != nil {
		return err
	}
	defer proc.Kill()

	err = s.runSession(ctx, proc.Conn())
	if proc.Exited() {
		s.log.Warn("extension process exited")
	}
	return err
}

func (s *server) serveWebSocket(ctx context.Context) error {
	ln, err := transport.Listen(s.cfg.Transport.Listen, s.cfg.Transport.Path, transport.WithLogger(s.log))
	if err != nil {
		return err
	}
	defer ln.Close()
	s.log.Info("waiting for extension", "addr", ln.Addr().String(), "path", s.cfg.Transport.Path)

	for {
		conn, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.log.Info("extension connected", "remote", conn.RemoteAddr().String())
		if err := s.runSession(ctx, conn); err != nil {
			s.log.Error("session ended", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// runSession serves one extension connection until it closes or ctx ends.
func (s *server) runSession(ctx context.Context, conn rpc.Conn) error {
	sess, err := host.NewSession(conn, s.cfg, s.log, host.WithSettingsPath(s.settingsPath))
	if err != nil {
		conn.Close()
		return err
	}
	defer sess.Close()
	traceEvents(sess.Bus, s.log.Named("events"))

	res, err := sess.Start(ctx)
	if err != nil {
		return err
	}
	s.log.Info("session ready", "extension", s.cfg.Extension.ID, "commands", len(res.Commands))

	select {
	case <-ctx.Done():
		return nil
	case <-sess.Done():
		if err := sess.Err(); err != nil && !errors.Is(err, rpc.ErrClosed) {
			return fmt.Errorf("extension connection: %w", err)
		}
		return nil
	}
}

func traceEvents(bus *event.Bus, log hclog.Logger) {
	bus.PanelCreated.Subscribe(func(e event.PanelCreated) {
		log.Debug("panel created", "handle", e.Handle, "view_type", e.ViewType, "restored", e.Restored)
	})
	bus.PanelDisposed.Subscribe(func(e event.PanelDisposed) {
		log.Debug("panel disposed", "handle", e.Handle, "by_host", e.ByHost)
	})
	bus.CommandsChanged.Subscribe(func(e event.CommandsChanged) {
		log.Debug("command changed", "id", e.ID, "registered", e.Registered)
	})
	bus.EditorProviderChanged.Subscribe(func(e event.EditorProviderChanged) {
		log.Debug("editor provider changed", "view_type", e.ViewType, "registered", e.Registered)
	})
	bus.ConnectionChanged.Subscribe(func(e event.ConnectionChanged) {
		if e.Err != nil {
			log.Warn("connection lost", "error", e.Err)
		}
	})
}
