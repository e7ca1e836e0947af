// Package host runs the host side of the bridge.
//
// Launch starts the extension process through go-plugin and opens a
// dedicated MuxBroker stream for bridge traffic. NewSession wires the
// webview, custom editor and command managers, the document and tab
// synchronizers, and the typed extension stubs to one rpc.Protocol over that
// stream (or over any other rpc.Conn, such as a WebSocket from the
// transport package). Session.Start performs the $initialize handshake and
// then sends the initial document and tab state.
//
// ServePlugin is the matching entry point for the extension process.
package host
