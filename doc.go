// Package evbus matches JSON events against event patterns and pushes
// matching events to WebSocket subscribers.
//
// The pattern language and matching engine are in package 'match'.
// Subscribers and their stored patterns live in a 'registry', the
// WebSocket side is 'push', and 'broadcast' ties them together.  The
// service itself is in cmd/evbus, and cmd/patmatch tries patterns from
// the command line.
package evbus
