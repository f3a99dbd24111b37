// Package audit implements async event dispatching for agent authentication and recovery
// operations.
//
// # Components
//
//   - [Sink] interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher] buffered async relay that sheds or waits when full and counts lost events per type.
//   - [Event] structured audit record with timestamp, type, agent, email, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit. The Engine and flow functions do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import agentauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
