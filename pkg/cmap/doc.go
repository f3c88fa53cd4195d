// Package cmap provides a generic sharded map safe for concurrent use.
//
// Keys are spread over a power-of-two number of shards by hash/maphash,
// each guarded by its own RWMutex, so that goroutines working on different
// keys rarely contend:
//
//	conns := cmap.New[string, *conn]()
//	conns.Set(id, c)
//	defer conns.Delete(id)
//
// Range and Values lock one shard at a time, so they do not see a single
// consistent snapshot of the whole map.
package cmap
