// Package cmap provides a sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards, each guarded by its
// own RWMutex, so writers for unrelated keys rarely contend. Values that need
// their own critical section (for example a per-identifier counter) are
// usually stored as pointers and locked independently of the shard:
//
//	windows := cmap.New[string, *window]()
//	w, _ := windows.GetOrCreate(ip, newWindow)
//	w.mu.Lock()
//	...
//
// Range and DeleteIf visit one shard at a time and never hold more than one
// shard lock.
package cmap
