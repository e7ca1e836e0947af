// Package extension is the extension-process side of the bridge.
//
// A Runtime serves the ExtHost capabilities over an rpc.Protocol: it answers
// $initialize, runs contributed commands, mirrors the host's documents,
// editors and tabs, and receives webview traffic. Host exposes typed stubs
// for the capabilities the host serves, so extension code can create panels,
// post messages and register commands.
package extension
