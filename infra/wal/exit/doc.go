// Package exit is the outbound side of the pipeline: a pebble-backed
// outbox holding one serialized snapshot per processed event, keyed by the
// event sequence, until the broadcaster has delivered it.
package exit
