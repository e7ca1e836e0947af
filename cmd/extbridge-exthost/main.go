// Command extbridge-exthost is the reference extension process. The host
// launches it over go-plugin; with --connect it dials a host listening on
// the WebSocket transport instead.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/dshills/extbridge/internal/extension"
	"github.com/dshills/extbridge/internal/host"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/transport"
	"github.com/dshills/extbridge/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		extensionID string
		connect     string
		level       string
	)
	cmd := &cobra.Command{
		Use:          "extbridge-exthost",
		Short:        "Reference extension process for extbridge",
		Version:      version.Short(),
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// go-plugin forwards JSON lines on stderr into the host log.
			log := hclog.New(&hclog.LoggerOptions{
				Name:       "exthost",
				Level:      hclog.LevelFromString(level),
				Output:     cmd.ErrOrStderr(),
				JSONFormat: connect == "",
			})
			ext := protocol.WebviewExtension{ID: extensionID}

			if connect == "" {
				host.ServePlugin(func(conn net.Conn) error {
					_, err := start(context.Background(), rpc.NewStreamConn(conn), ext, log)
					return err
				}, log)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			conn, err := transport.Dial(ctx, connect)
			if err != nil {
				return err
			}
			p, err := start(ctx, conn, ext, log)
			if err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return p.Close()
			case <-p.Done():
				return nil
			}
		},
	}
	cmd.SetVersionTemplate(version.String("extbridge-exthost") + "\n")
	cmd.Flags().StringVar(&extensionID, "extension", "openai.chatgpt", "identifier of the hosted extension")
	cmd.Flags().StringVar(&connect, "connect", "", "WebSocket URL of a listening host")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	return cmd
}

// start serves the extension capabilities over conn and activates the chat
// extension once the host initializes it.
func start(ctx context.Context, conn rpc.Conn, ext protocol.WebviewExtension, log hclog.Logger) (*rpc.Protocol, error) {
	p := rpc.New(conn, rpc.WithLogger(log.Named("rpc")))
	rt := extension.New(p, ext, log)
	rt.OnActivate(extension.ActivateChat)
	if err := rt.Register(); err != nil {
		p.Close()
		return nil, err
	}
	p.Start(ctx)
	log.Debug("extension runtime started", "extension", ext.ID)
	return p, nil
}
