// Package storage provides the durable guest store.
//
// BadgerStore keeps guest records, the campaign and a copy of security
// events in an embedded Badger database. It implements the same TokenStore
// contract as the in-memory store in package memory.
//
// Key layout:
//
//   - g/<token>  guest record (JSON)
//   - campaign   campaign (JSON)
//   - e/<ulid>   security event (JSON, expires after the event retention)
//
// A background loop runs value-log GC and, when metrics are registered,
// refreshes size gauges.
package storage
