package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/dshills/extbridge/internal/config"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
)

// ErrNoCommand indicates no extension process command is configured.
var ErrNoCommand = errors.New("no extension command configured")

// Process is a launched extension process and the bridge stream to it.
type Process struct {
	client *plugin.Client
	conn   *rpc.StreamConn
}

// Launch starts the extension process described by cfg, completes the
// go-plugin handshake and opens the bridge stream.
func Launch(ctx context.Context, cfg config.ExtensionConfig, log hclog.Logger) (*Process, error) {
	if cfg.Command == "" {
		return nil, ErrNoCommand
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  protocol.Handshake,
		Plugins:          PluginMap(nil),
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           log.Named("exthost"),
		StartTimeout:     cfg.StartTimeout.Std(),
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("start extension process %s: %w", cfg.Command, err)
	}
	raw, err := rpcClient.Dispense(protocol.PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("dispense %s: %w", protocol.PluginName, err)
	}
	bridge, ok := raw.(*BridgeClient)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("dispense %s: unexpected type %T", protocol.PluginName, raw)
	}

	stream, err := bridge.Attach(ctx)
	if err != nil {
		client.Kill()
		return nil, err
	}
	log.Debug("extension process attached", "command", cfg.Command)
	return &Process{client: client, conn: rpc.NewStreamConn(stream)}, nil
}

// Conn returns the bridge connection.
func (p *Process) Conn() rpc.Conn {
	return p.conn
}

// Exited reports whether the process has ended.
func (p *Process) Exited() bool {
	return p.client.Exited()
}

// Kill closes the bridge stream and ends the process.
func (p *Process) Kill() {
	p.conn.Close()
	p.client.Kill()
}
