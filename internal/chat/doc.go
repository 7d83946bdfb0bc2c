// Package chat implements the core of a line-protocol chat server.
//
// The implementation is organized into specialized files for the client
// registry, transport helpers, message routing, per-connection sessions,
// configuration, and the WebSocket gateway to keep the codebase
// maintainable and testable as the project grows.
package chat
