// Package memstore is the shared memory layer behind memory nodes. Entries
// are namespaced by scope (workflow, session, user, global), carry optional
// read/write role lists, and expire by TTL. Backends: in-process map and
// Redis.
package memstore
