// Package watcher runs the poll loop: fetch the channel status, detect a
// change against the persisted state, notify, persist, sleep.
//
// Failed fetches back off exponentially up to a cap; a successful fetch
// restores the base interval. The loop owns the state store and is the only
// goroutine touching it.
package watcher
