// Package memory provides in-memory guest storage.
//
// GuestStore keeps records in a sharded concurrent map keyed by token with a
// secondary index from guest id to tokens, so a guest's primary and backup
// tokens can be found together.
//
// Thread Safety:
//
// Single-record reads and MarkUsed take only the owning shard lock. Batch
// writes hold a store-wide lock so a batch is applied entirely or not at all.
package memory
