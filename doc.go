// Package rrb implements a distributed request broker and fan-out pub/sub
// library on top of a Redis-compatible backend.
//
// Two interaction patterns share one backend: request/response RPC, where a
// Client enqueues a request on a named queue and exactly one Worker handles
// it and returns a response through a request-specific response channel;
// and fan-out pub/sub, where a Publisher emits a message on a named channel
// and every currently-listening Subscriber receives it.
//
// The wire formats, keyspace layout, worker dispatch state machine, and
// client request lifecycle are the coordination protocol that makes a
// shared Redis-compatible backend a correct work-dispatch and fan-out
// medium; see SPEC_FULL.md in the module root for the full design.
package rrb
