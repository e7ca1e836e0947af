package config

import (
	"net"
	"strings"

	"github.com/hashicorp/go-hclog"
)

// Validate checks every setting and reports all failures at once as
// ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors
	fail := func(path string, value any, msg string) {
		errs = append(errs, &ValidationError{Path: path, Value: value, Message: msg})
	}

	if c.Log.HCLogLevel() == hclog.NoLevel {
		fail("log.level", c.Log.Level, "must be one of trace, debug, info, warn, error, off")
	}

	if c.RPC.Workers < 1 {
		fail("rpc.workers", c.RPC.Workers, "must be at least 1")
	}
	if c.RPC.CorruptionThreshold < 0 {
		fail("rpc.corruption_threshold", c.RPC.CorruptionThreshold, "must not be negative")
	}
	if c.RPC.CallTimeout < 0 {
		fail("rpc.call_timeout", c.RPC.CallTimeout.Std(), "must not be negative")
	}

	switch c.Transport.Kind {
	case TransportPlugin:
	case TransportWebSocket:
		if _, _, err := net.SplitHostPort(c.Transport.Listen); err != nil {
			fail("transport.listen", c.Transport.Listen, "must be host:port")
		}
		if !strings.HasPrefix(c.Transport.Path, "/") {
			fail("transport.path", c.Transport.Path, "must start with /")
		}
	default:
		fail("transport.kind", c.Transport.Kind, "must be plugin or websocket")
	}

	if c.Extension.ID == "" {
		fail("extension.id", c.Extension.ID, "must not be empty")
	}
	if c.Transport.Kind == TransportPlugin && c.Extension.Command == "" {
		fail("extension.command", c.Extension.Command, "is required for the plugin transport")
	}
	if c.Extension.StartTimeout < 0 {
		fail("extension.start_timeout", c.Extension.StartTimeout.Std(), "must not be negative")
	}
	for _, kv := range c.Extension.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			fail("extension.env", kv, "entries must be KEY=VALUE")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
