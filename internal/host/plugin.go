package host

import (
	"context"
	"fmt"
	"net"
	netrpc "net/rpc"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"

	"github.com/dshills/extbridge/internal/protocol"
)

// AttachFunc receives the bridge stream on the extension side. It must
// return promptly; the session runs on its own goroutines.
type AttachFunc func(conn net.Conn) error

// BridgePlugin is the go-plugin binding of the extension process. The
// plugin RPC channel only carries Attach; bridge traffic uses a separate
// stream opened through the MuxBroker.
type BridgePlugin struct {
	// Attach is set on the extension side.
	Attach AttachFunc
}

// Server implements plugin.Plugin.
func (p *BridgePlugin) Server(b *plugin.MuxBroker) (interface{}, error) {
	return &BridgeServer{broker: b, attach: p.Attach}, nil
}

// Client implements plugin.Plugin.
func (p *BridgePlugin) Client(b *plugin.MuxBroker, c *netrpc.Client) (interface{}, error) {
	return &BridgeClient{broker: b, client: c}, nil
}

// PluginMap is the plugin set both sides hand to go-plugin.
func PluginMap(attach AttachFunc) map[string]plugin.Plugin {
	return map[string]plugin.Plugin{
		protocol.PluginName: &BridgePlugin{Attach: attach},
	}
}

// BridgeServer runs in the extension process.
type BridgeServer struct {
	broker *plugin.MuxBroker
	attach AttachFunc
}

// Attach dials the broker stream the host opened under id.
func (s *BridgeServer) Attach(id uint32, resp *bool) error {
	if s.attach == nil {
		return fmt.Errorf("extension process cannot attach")
	}
	conn, err := s.broker.Dial(id)
	if err != nil {
		return fmt.Errorf("dial bridge stream %d: %w", id, err)
	}
	if err := s.attach(conn); err != nil {
		conn.Close()
		return err
	}
	*resp = true
	return nil
}

// BridgeClient runs in the host.
type BridgeClient struct {
	broker *plugin.MuxBroker
	client *netrpc.Client
}

// Attach opens the bridge stream and asks the extension to dial it.
func (c *BridgeClient) Attach(ctx context.Context) (net.Conn, error) {
	id := c.broker.NextId()

	ch := make(chan accepted, 1)
	go func() {
		conn, err := c.broker.Accept(id)
		ch <- accepted{conn, err}
	}()

	var ok bool
	if err := c.client.Call("Plugin.Attach", id, &ok); err != nil {
		go discardAccepted(ch)
		return nil, fmt.Errorf("attach: %w", err)
	}

	select {
	case a := <-ch:
		if a.err != nil {
			return nil, fmt.Errorf("accept bridge stream %d: %w", id, a.err)
		}
		return a.conn, nil
	case <-ctx.Done():
		go discardAccepted(ch)
		return nil, ctx.Err()
	}
}

type accepted struct {
	conn net.Conn
	err  error
}

// discardAccepted closes the stream of an abandoned Accept once it lands.
func discardAccepted(ch <-chan accepted) {
	if a := <-ch; a.conn != nil {
		a.conn.Close()
	}
}

// ServePlugin serves the extension side over go-plugin and blocks until
// the host ends the process.
func ServePlugin(attach AttachFunc, log hclog.Logger) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: protocol.Handshake,
		Plugins:         PluginMap(attach),
		Logger:          log,
	})
}
