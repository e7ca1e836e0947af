package mainthread

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/dshills/extbridge/internal/event"
	"github.com/dshills/extbridge/internal/promise"
	"github.com/dshills/extbridge/internal/rpc"
)

// CommandHandler runs a host command with positional arguments.
type CommandHandler func(ctx context.Context, args *rpc.Args) (any, error)

// Commands is the command registry of a session. Host commands run in
// process; commands contributed by the extension run in the extension.
type Commands struct {
	log    hclog.Logger
	events *event.Bus
	peer   CommandPeer

	mu          sync.RWMutex
	local       map[string]CommandHandler
	contributed map[string]struct{}
}

// NewCommands creates an empty registry.
func NewCommands(peer CommandPeer, bus *event.Bus, log hclog.Logger) *Commands {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if bus == nil {
		bus = event.NewBus(log)
	}
	return &Commands{
		log:         log.Named("commands"),
		events:      bus,
		peer:        peer,
		local:       make(map[string]CommandHandler),
		contributed: make(map[string]struct{}),
	}
}

// RegisterLocal adds a host command.
func (c *Commands) RegisterLocal(id string, h CommandHandler) error {
	c.mu.Lock()
	if c.exists(id) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, id)
	}
	c.local[id] = h
	c.mu.Unlock()

	c.events.CommandsChanged.Publish(event.CommandsChanged{ID: id, Registered: true})
	return nil
}

// UnregisterLocal removes a host command.
func (c *Commands) UnregisterLocal(id string) bool {
	c.mu.Lock()
	_, ok := c.local[id]
	delete(c.local, id)
	c.mu.Unlock()

	if ok {
		c.events.CommandsChanged.Publish(event.CommandsChanged{ID: id})
	}
	return ok
}

// RegisterContributed records a command implemented by the extension.
func (c *Commands) RegisterContributed(id string) error {
	c.mu.Lock()
	if c.exists(id) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateCommand, id)
	}
	c.contributed[id] = struct{}{}
	c.mu.Unlock()

	c.log.Debug("command contributed", "id", id)
	c.events.CommandsChanged.Publish(event.CommandsChanged{ID: id, Registered: true, Contributed: true})
	return nil
}

// UnregisterContributed forgets an extension command. Unknown ids are
// ignored.
func (c *Commands) UnregisterContributed(id string) {
	c.mu.Lock()
	_, ok := c.contributed[id]
	delete(c.contributed, id)
	c.mu.Unlock()

	if ok {
		c.events.CommandsChanged.Publish(event.CommandsChanged{ID: id, Contributed: true})
	}
}

// exists must be called with mu held.
func (c *Commands) exists(id string) bool {
	if _, ok := c.local[id]; ok {
		return true
	}
	_, ok := c.contributed[id]
	return ok
}

// List returns every command id in sorted order.
func (c *Commands) List() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.local)+len(c.contributed))
	for id := range c.local {
		ids = append(ids, id)
	}
	for id := range c.contributed {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

// Has reports whether id is registered on either side.
func (c *Commands) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exists(id)
}

// Execute runs command id. Host commands run on a new goroutine; extension
// commands are sent to the extension. The returned future never blocks the
// caller.
func (c *Commands) Execute(ctx context.Context, id string, args ...any) *promise.Future[rpc.Value] {
	c.mu.RLock()
	h, isLocal := c.local[id]
	_, isContributed := c.contributed[id]
	c.mu.RUnlock()

	switch {
	case isLocal:
		env, err := rpc.Wrap(args)
		if err != nil {
			return promise.Rejected[rpc.Value](fmt.Errorf("command %s: %w", id, err))
		}
		a, err := rpc.NewArgs(env)
		if err != nil {
			return promise.Rejected[rpc.Value](fmt.Errorf("command %s: %w", id, err))
		}
		f, r := promise.New[rpc.Value](promise.WithLogger(c.log), promise.WithName(id))
		go func() {
			v, err := c.runLocal(ctx, id, h, a)
			if err != nil {
				r.Reject(err)
				return
			}
			r.Resolve(v)
		}()
		return f
	case isContributed:
		return c.peer.ExecuteContributedCommand(id, args...)
	default:
		return promise.Rejected[rpc.Value](fmt.Errorf("%w: %s", ErrUnknownCommand, id))
	}
}

func (c *Commands) runLocal(ctx context.Context, id string, h CommandHandler, args *rpc.Args) (v rpc.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("command panicked", "id", id, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("command %s panicked: %v", id, r)
		}
	}()
	out, err := h(ctx, args)
	if err != nil {
		return rpc.Value{}, err
	}
	if val, ok := out.(rpc.Value); ok {
		return val, nil
	}
	return rpc.NewValue(out)
}

// executeForExtension serves $executeCommand. args holds the command id
// followed by the command's own arguments.
func (c *Commands) executeForExtension(ctx context.Context, args *rpc.Args) (any, error) {
	var id string
	if err := args.Decode(0, &id); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing command id", rpc.ErrInvalidParams)
	}

	c.mu.RLock()
	h, isLocal := c.local[id]
	c.mu.RUnlock()
	if isLocal {
		tail, err := rpc.NewArgs(args.Envelope(1))
		if err != nil {
			return nil, err
		}
		return c.runLocal(ctx, id, h, tail)
	}

	// Re-decode the tail so buffers are re-attached to the forwarded call.
	fwd := make([]any, 0, args.Len()-1)
	for i := 1; i < args.Len(); i++ {
		var v any
		if err := args.Decode(i, &v); err != nil {
			return nil, err
		}
		fwd = append(fwd, v)
	}
	return c.Execute(ctx, id, fwd...), nil
}
