package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/config"
	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/exthost"
	"github.com/dshills/extbridge/internal/mainthread"
	"github.com/dshills/extbridge/internal/protocol"
	"github.com/dshills/extbridge/internal/rpc"
	"github.com/dshills/extbridge/internal/statesync"
	"github.com/dshills/extbridge/internal/version"
)

// CommandOpenSettings is served by the host itself.
const CommandOpenSettings = "workbench.action.openSettings"

// Session errors.
var (
	// ErrIncompatibleExtension indicates the extension answered $initialize
	// with an unsupported protocol version.
	ErrIncompatibleExtension = errors.New("incompatible extension protocol")

	// ErrNotActivated indicates the extension did not activate.
	ErrNotActivated = errors.New("extension did not activate")
)

// Session is one live connection to an extension process together with the
// host-side state it drives.
type Session struct {
	log hclog.Logger
	cfg *config.Config

	Bus       *event.Bus
	Protocol  *rpc.Protocol
	Extension *exthost.Client

	Webviews      *mainthread.Webviews
	Panels        *mainthread.WebviewPanels
	CustomEditors *mainthread.CustomEditors
	Commands      *mainthread.Commands

	Documents *statesync.Documents
	Tabs      *statesync.Tabs

	settingsPath string

	mu      sync.Mutex
	init    protocol.InitResult
	started bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSettingsPath sets the file reported by the open-settings command.
func WithSettingsPath(path string) SessionOption {
	return func(s *Session) {
		s.settingsPath = path
	}
}

// NewSession wires the host managers to conn. Nothing is exchanged until
// Start.
func NewSession(conn rpc.Conn, cfg *config.Config, log hclog.Logger, opts ...SessionOption) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	s := &Session{
		log: log.Named("session"),
		cfg: cfg,
		Bus: event.NewBus(log.Named("events")),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Protocol = rpc.New(conn,
		rpc.WithLogger(log.Named("rpc")),
		rpc.WithWorkers(cfg.RPC.Workers),
		rpc.WithCorruptionThreshold(cfg.RPC.CorruptionThreshold),
	)
	s.Extension = exthost.NewClient(s.Protocol)

	s.Webviews = mainthread.NewWebviews(s.Extension.Webviews, s.Bus, log)
	s.Panels = mainthread.NewWebviewPanels(s.Extension.WebviewPanels, s.Webviews, s.Bus, log)
	s.CustomEditors = mainthread.NewCustomEditors(s.Extension.CustomEditors, s.Webviews, s.Bus, log)
	s.Commands = mainthread.NewCommands(s.Extension.Commands, s.Bus, log)
	s.Documents = statesync.NewDocuments(s.Extension.DocumentsAndEditors, s.Bus, log)
	s.Tabs = statesync.NewTabs(s.Extension.EditorTabs, s.Bus, log)

	if err := mainthread.Register(s.Protocol, s.Panels, s.Webviews, s.CustomEditors, s.Commands); err != nil {
		return nil, fmt.Errorf("register host capabilities: %w", err)
	}
	if err := s.Commands.RegisterLocal(CommandOpenSettings, s.openSettings); err != nil {
		return nil, err
	}
	return s, nil
}

// Start opens the connection, initializes the extension and sends the
// initial documents and tabs. The session closes when ctx ends.
func (s *Session) Start(ctx context.Context) (protocol.InitResult, error) {
	s.mu.Lock()
	if s.started {
		init := s.init
		s.mu.Unlock()
		return init, nil
	}
	s.started = true
	s.mu.Unlock()

	s.Protocol.Start(ctx)
	s.Bus.ConnectionChanged.Publish(event.ConnectionChanged{Connected: true})
	go func() {
		<-s.Protocol.Done()
		err := s.Protocol.Err()
		if errors.Is(err, rpc.ErrClosed) && errors.Unwrap(err) == nil {
			err = nil
		}
		s.log.Info("extension connection closed", "error", err)
		s.Bus.ConnectionChanged.Publish(event.ConnectionChanged{Connected: false, Err: err})
	}()

	callCtx := ctx
	if d := s.cfg.CallTimeout(); d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	data := protocol.InitData{
		ProtocolVersion: protocol.ProtocolVersion,
		HostVersion:     version.Short(),
		Extension:       s.cfg.Extension.Metadata(),
	}
	res, err := s.Extension.Extension.Initialize(data).AwaitOrCancel(callCtx)
	if err != nil {
		s.Protocol.Close()
		return protocol.InitResult{}, fmt.Errorf("initialize extension: %w", err)
	}
	if ok, verr := protocol.IsCompatible(res.ProtocolVersion); !ok {
		s.Protocol.Close()
		return res, fmt.Errorf("%w: %w", ErrIncompatibleExtension, verr)
	}
	if !res.Activated {
		s.Protocol.Close()
		return res, ErrNotActivated
	}

	s.mu.Lock()
	s.init = res
	s.mu.Unlock()

	s.Documents.Start()
	s.Tabs.Start()
	s.log.Info("extension initialized", "extension", data.Extension.ID, "protocol", res.ProtocolVersion, "commands", len(res.Commands))
	return res, nil
}

// InitResult returns the extension's answer to $initialize.
func (s *Session) InitResult() protocol.InitResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.init
}

// Done is closed when the connection ends.
func (s *Session) Done() <-chan struct{} {
	return s.Protocol.Done()
}

// Err returns why the connection ended.
func (s *Session) Err() error {
	return s.Protocol.Err()
}

// Close ends the session.
func (s *Session) Close() error {
	err := s.Protocol.Close()
	s.Bus.Close()
	return err
}

// ExecuteCommand runs a host or extension command and waits for its result.
func (s *Session) ExecuteCommand(ctx context.Context, id string, args ...any) (rpc.Value, error) {
	if d := s.cfg.CallTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return s.Commands.Execute(ctx, id, args...).AwaitOrCancel(ctx)
}

// SettingsResult is returned by the open-settings command.
type SettingsResult struct {
	Path string `json:"path"`
}

func (s *Session) openSettings(context.Context, *rpc.Args) (any, error) {
	s.log.Info("settings requested", "path", s.settingsPath)
	return SettingsResult{Path: s.settingsPath}, nil
}
