// Package registry tracks which sessions currently have a live push
// channel.
//
// Membership is split in two: an authoritative shared Redis hash that any
// gateway instance can consult ("is this session connected anywhere?"),
// and a process-local map from session id to the actual channel handle.
// Only the process that accepted a connection can push to it.
//
// The principal correctness hazard is the "ghost active" session: an
// entry left in the shared store after its channel died. Every cleanup
// path (explicit close, disconnect, send failure) removes the entry from
// both maps.
package registry
