// Package transport carries bridge messages over a WebSocket, for extension
// processes that are not launched by the host.
//
// Each rpc.Message travels as one binary WebSocket message holding the same
// frame the stream transport writes (see rpc.EncodeFrame), so buffers stay
// out of band and no extra length prefix is needed.
package transport
