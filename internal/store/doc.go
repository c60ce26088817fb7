// Package store provides persistent storage for the gateway using SQLite.
//
// # Data Models
//
//   - Session: One conversation between a client and the agent, with an
//     active/inactive status that trails the connection registry
//   - Message: Individual messages holding the JSON serialization of
//     structured content blocks, totally ordered by timestamp per session
//
// The Store interface deliberately stays small: append message(s) to a
// session's ordered log and read the log back. SQLiteStore implements it
// on modernc.org/sqlite with WAL mode and schema-on-open.
package store
