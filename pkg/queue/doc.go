// Package queue guarantees eventual delivery of packaged envelopes despite
// transient transport failures. Entries are durable, deduplicated by id,
// retried under a pluggable backoff rule, and never sent concurrently for
// the same logical delivery.
package queue
