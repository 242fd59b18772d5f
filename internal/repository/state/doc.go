// Package state implements persistence for the watched channel's StoredState.
//
// Two drivers are available behind the Repository interface: FileRepository
// keeps one JSON document that is replaced atomically (temp file, fsync,
// rename), SQLiteRepository keeps one row per channel and upserts it inside a
// transaction. Either way a crash during Save leaves the previous or the new
// value, never a partial one.
package state
