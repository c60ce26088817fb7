// Package session provides the lifecycle facade over session and
// message persistence: id generation, user message wrapping, batch
// validation, role mapping, and status transitions. Storage semantics
// live in the store package; orchestration lives in the engine.
package session
