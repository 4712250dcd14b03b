// Package keys builds the deterministic key and channel names that make up
// the broker's keyspace: request queues, request-notification channels,
// response channels, and pub/sub user channels, all under a process prefix.
package keys

// Builder holds a prefix read once at participant construction time, so a
// later change to the process-wide default prefix never retroactively
// affects an already-constructed participant.
type Builder struct {
	prefix string
}

// DefaultPrefix is used when no prefix is configured.
const DefaultPrefix = "rrb:"

// New returns a Builder for the given prefix. An empty prefix falls back to
// DefaultPrefix.
func New(prefix string) Builder {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Builder{prefix: prefix}
}

// Queue returns the list key holding queued requests for queue name q.
func (b Builder) Queue(q string) string { return b.prefix + "q:" + q }

// Notification returns the pub/sub channel used to wake up idle workers on
// queue q. It carries no payload.
func (b Builder) Notification(q string) string { return b.prefix + "n:" + q }

// Response returns the pub/sub channel a single request's response is
// published on.
func (b Builder) Response(requestID string) string { return b.prefix + "r:" + requestID }

// Channel returns the pub/sub channel for user-level fan-out channel name c.
func (b Builder) Channel(c string) string { return b.prefix + "c:" + c }
