package config

import (
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/protocol"
)

// Transport kinds.
const (
	TransportPlugin    = "plugin"
	TransportWebSocket = "websocket"
)

// Config is the resolved bridge configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	RPC       RPCConfig       `toml:"rpc"`
	Transport TransportConfig `toml:"transport"`
	Extension ExtensionConfig `toml:"extension"`
}

// LogConfig controls the host logger.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// RPCConfig tunes the protocol endpoint.
type RPCConfig struct {
	Workers             int      `toml:"workers"`
	CorruptionThreshold int      `toml:"corruption_threshold"`
	CallTimeout         Duration `toml:"call_timeout"`
}

// TransportConfig selects how the extension process is reached.
type TransportConfig struct {
	Kind   string `toml:"kind"`
	Listen string `toml:"listen"`
	Path   string `toml:"path"`
}

// ExtensionConfig describes the hosted extension and how to launch the
// process that runs it.
type ExtensionConfig struct {
	ID               string            `toml:"id"`
	CodeDir          string            `toml:"code_dir"`
	DisplayName      string            `toml:"display_name"`
	Description      string            `toml:"description"`
	Publisher        string            `toml:"publisher"`
	Version          string            `toml:"version"`
	MainFile         string            `toml:"main_file"`
	ActivationEvents []string          `toml:"activation_events"`
	Engines          map[string]string `toml:"engines"`
	Dependencies     []string          `toml:"dependencies"`

	Command      string   `toml:"command"`
	Args         []string `toml:"args"`
	Env          []string `toml:"env"`
	StartTimeout Duration `toml:"start_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		RPC: RPCConfig{
			Workers:             8,
			CorruptionThreshold: 16,
			CallTimeout:         Duration(30 * time.Second),
		},
		Transport: TransportConfig{
			Kind:   TransportPlugin,
			Listen: "127.0.0.1:7850",
			Path:   "/bridge",
		},
		Extension: ExtensionConfig{
			ID:               "openai.chatgpt",
			CodeDir:          "codex",
			DisplayName:      "OpenAI Codex",
			Description:      "OpenAI Codex AI-powered code assistant",
			Publisher:        "openai",
			Version:          "0.4.56",
			MainFile:         "./out/extension.js",
			ActivationEvents: []string{"onStartupFinished"},
			Engines:          map[string]string{"vscode": "^1.0.0"},
			Command:          "extbridge-exthost",
			StartTimeout:     Duration(10 * time.Second),
		},
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Extension.ActivationEvents = append([]string(nil), c.Extension.ActivationEvents...)
	out.Extension.Dependencies = append([]string(nil), c.Extension.Dependencies...)
	out.Extension.Args = append([]string(nil), c.Extension.Args...)
	out.Extension.Env = append([]string(nil), c.Extension.Env...)
	if c.Extension.Engines != nil {
		out.Extension.Engines = make(map[string]string, len(c.Extension.Engines))
		for k, v := range c.Extension.Engines {
			out.Extension.Engines[k] = v
		}
	}
	return &out
}

// Metadata converts the extension section into the metadata sent with
// $initialize.
func (e ExtensionConfig) Metadata() protocol.ExtensionDescription {
	return protocol.ExtensionDescription{
		ID:                    e.ID,
		CodeDir:               e.CodeDir,
		DisplayName:           e.DisplayName,
		Description:           e.Description,
		Publisher:             e.Publisher,
		Version:               e.Version,
		Main:                  e.MainFile,
		ActivationEvents:      e.ActivationEvents,
		Engines:               e.Engines,
		ExtensionDependencies: e.Dependencies,
	}
}

// HCLogLevel returns the configured level, or hclog.NoLevel when it is not a
// level name.
func (l LogConfig) HCLogLevel() hclog.Level {
	return hclog.LevelFromString(l.Level)
}

// NewLogger builds the root logger described by l.
func (l LogConfig) NewLogger(name string, w io.Writer) hclog.InterceptLogger {
	level := l.HCLogLevel()
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:       name,
		Level:      level,
		Output:     w,
		JSONFormat: l.JSON,
	})
}

// Duration is a time.Duration written as a Go duration string ("30s") in
// TOML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}
