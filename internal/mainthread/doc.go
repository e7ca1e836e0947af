// Package mainthread implements the host-side capabilities the extension
// calls: webview panels, webview content, custom editors and commands.
//
// Every manager keeps its resources in a map keyed by handle. The map has
// its own RWMutex and every record its own mutex, so operations on different
// panels never contend and a dispose racing a mutation is well defined: the
// mutation either completes before the dispose or finds the handle gone.
//
// Mutations of an unknown or disposed handle are logged and reported to the
// caller as a *HandleError. They never panic and never change state.
//
// Managers call back into the extension through small peer interfaces that
// the stubs in internal/exthost satisfy. Methods returns the rpc.Handler
// that exposes a manager under its capability name.
package mainthread
