// Package engine drives one streaming agent invocation per inbound user
// message.
//
// An invocation moves through pending, running, and a terminal completed
// or error state. While running, every intermediate event the external
// agent produces (assistant content blocks, tool results, API errors) is
// pushed to the session's channel through the connection registry. On
// success the newly produced turns are reconciled into the conversation
// store, preferring one atomic batch and degrading to best-effort
// individual appends with saved-count accounting.
//
// The engine never raises to its scheduler: terminal failures become
// error events when the channel is still reachable, log entries when it
// is not.
package engine
