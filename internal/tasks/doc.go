// Package tasks provides a supervisor for background work spawned by
// request handlers. Tasks run with a concurrency cap, panic recovery,
// and error logging, and are drained on shutdown.
package tasks
