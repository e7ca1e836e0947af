package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EXTBRIDGE_"

// Load resolves the configuration: defaults, then the file at path (skipped
// when path is empty), then the process environment. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
			}
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := Decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses TOML data over cfg. Keys absent from data keep their current
// values. source names the data in errors.
func Decode(source string, data []byte, cfg *Config) error {
	if err := toml.Unmarshal(data, cfg); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			perr.Line, perr.Column = de.Position()
		}
		return perr
	}
	return nil
}

// Encode renders cfg as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return buf.Bytes(), nil
}

// envSetter applies one environment value to a config.
type envSetter func(c *Config, v string) error

// envMapping maps each supported variable to its setter.
func envMapping() map[string]envSetter {
	return map[string]envSetter{
		"EXTBRIDGE_LOG_LEVEL": func(c *Config, v string) error {
			c.Log.Level = v
			return nil
		},
		"EXTBRIDGE_LOG_JSON": func(c *Config, v string) error {
			return parseBool(v, &c.Log.JSON)
		},
		"EXTBRIDGE_RPC_WORKERS": func(c *Config, v string) error {
			return parseInt(v, &c.RPC.Workers)
		},
		"EXTBRIDGE_RPC_CORRUPTION_THRESHOLD": func(c *Config, v string) error {
			return parseInt(v, &c.RPC.CorruptionThreshold)
		},
		"EXTBRIDGE_RPC_CALL_TIMEOUT": func(c *Config, v string) error {
			return c.RPC.CallTimeout.UnmarshalText([]byte(v))
		},
		"EXTBRIDGE_TRANSPORT": func(c *Config, v string) error {
			c.Transport.Kind = strings.ToLower(v)
			return nil
		},
		"EXTBRIDGE_TRANSPORT_LISTEN": func(c *Config, v string) error {
			c.Transport.Listen = v
			return nil
		},
		"EXTBRIDGE_TRANSPORT_PATH": func(c *Config, v string) error {
			c.Transport.Path = v
			return nil
		},
		"EXTBRIDGE_EXTENSION_ID": func(c *Config, v string) error {
			c.Extension.ID = v
			return nil
		},
		"EXTBRIDGE_EXTENSION_VERSION": func(c *Config, v string) error {
			c.Extension.Version = v
			return nil
		},
		"EXTBRIDGE_EXTENSION_COMMAND": func(c *Config, v string) error {
			c.Extension.Command = v
			return nil
		},
		"EXTBRIDGE_EXTENSION_ARGS": func(c *Config, v string) error {
			c.Extension.Args = strings.Fields(v)
			return nil
		},
		"EXTBRIDGE_EXTENSION_START_TIMEOUT": func(c *Config, v string) error {
			return c.Extension.StartTimeout.UnmarshalText([]byte(v))
		},
	}
}

// EnvNames lists the supported environment variables.
func EnvNames() []string {
	m := envMapping()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv applies the EXTBRIDGE_ overrides found through lookup. Every
// malformed value is reported.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	mapping := envMapping()
	var errs []error
	for _, name := range EnvNames() {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := mapping[name](c, v); err != nil {
			errs = append(errs, &EnvError{Name: name, Value: v, Err: err})
		}
	}
	return errors.Join(errs...)
}

// UnknownEnv returns the EXTBRIDGE_ variables in environ that no setting
// reads, so callers can warn about likely typos. The go-plugin handshake
// variable is not reported.
func UnknownEnv(environ []string) []string {
	mapping := envMapping()
	var unknown []string
	for _, kv := range environ {
		name, _, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if _, known := mapping[name]; known || name == "EXTBRIDGE_PLUGIN" {
			continue
		}
		unknown = append(unknown, name)
	}
	sort.Strings(unknown)
	return unknown
}

func parseBool(s string, out *bool) error {
	switch strings.ToLower(s) {
	case "true", "yes", "on", "1":
		*out = true
	case "false", "no", "off", "0", "":
		*out = false
	default:
		return fmt.Errorf("not a boolean")
	}
	return nil
}

func parseInt(s string, out *int) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*out = n
	return nil
}

// CallTimeout returns the per-call timeout, or zero for none.
func (c *Config) CallTimeout() time.Duration {
	return c.RPC.CallTimeout.Std()
}
