// Package config loads the bridge configuration.
//
// Values are resolved in three steps, each overriding the one before:
//
//  1. Built-in defaults (Default).
//  2. A TOML file, when a path is given.
//  3. Environment variables prefixed with EXTBRIDGE_.
//
// The file is organised in four sections:
//
//	[log]        level, json
//	[rpc]        workers, corruption_threshold, call_timeout
//	[transport]  kind (plugin or websocket), listen, path
//	[extension]  metadata of the hosted extension and how to launch it
//
// Watch reloads the file when it changes on disk. Only settings that can be
// applied to a running session (currently the log level) take effect without
// a restart; the caller decides what to do with the rest.
package config
