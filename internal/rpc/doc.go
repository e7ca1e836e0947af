// Package rpc implements the call/reply bridge between the host process and
// the extension process.
//
// Both sides run the same Protocol over an ordered, reliable, bidirectional
// Conn. A side serves capabilities it implements (Register) and calls the
// capabilities of its peer through RemoteProxy stubs (Remote).
//
// # Architecture
//
//	caller                                    callee
//	┌──────────────┐   request{id,cap,m,args}  ┌──────────────────┐
//	│ RemoteProxy  │ ────────────────────────▶ │ registry         │
//	│  Call() ─┐   │                           │  cap -> Handler  │
//	│  Future ◀┘   │ ◀──────────────────────── │ keyed executor   │
//	└──────────────┘   reply{id,result}        └──────────────────┘
//
// The main pieces are:
//
//   - Envelope: JSON payload plus out-of-band binary buffers. Values of type
//     Buffer are replaced by {"$buf":N} placeholders on the way out and
//     substituted back on the way in.
//   - Protocol: correlation ids, pending calls, dispatch and cancellation.
//   - StreamConn: Content-Length framing over any io.ReadWriteCloser.
//
// # Ordering
//
// Invocations for one capability run in the order they were received. Work
// for different capabilities runs concurrently on a bounded worker pool,
// except for capabilities registered with WithUIAffinity, which share a single
// dedicated goroutine.
//
// # Failure model
//
// A malformed message, an out-of-range buffer reference or an unknown
// capability drops that one message. The connection is only torn down when
// such corruption exceeds the configured threshold. Errors raised by a
// handler reach the caller as a rejected Future carrying a *RemoteError.
package rpc
