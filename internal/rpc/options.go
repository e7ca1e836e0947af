package rpc

import (
	"github.com/hashicorp/go-hclog"
)

// Default protocol settings.
const (
	DefaultWorkers             = 8
	DefaultCorruptionThreshold = 16
)

// Option configures a Protocol.
type Option func(*Protocol)

// WithLogger sets the logger. The default discards output.
func WithLogger(l hclog.Logger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.log = l
		}
	}
}

// WithWorkers sets the size of the worker pool shared by capabilities
// without UI affinity.
func WithWorkers(n int) Option {
	return func(p *Protocol) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithCorruptionThreshold sets how many corrupt messages are tolerated
// before the connection is closed. Zero disables the limit.
func WithCorruptionThreshold(n int) Option {
	return func(p *Protocol) {
		if n >= 0 {
			p.corruptionThreshold = n
		}
	}
}

// RegisterOption configures a capability registration.
type RegisterOption func(*registration)

// WithUIAffinity runs the capability on the single UI goroutine shared by all
// capabilities registered with this option.
func WithUIAffinity() RegisterOption {
	return func(r *registration) {
		r.ui = true
	}
}
