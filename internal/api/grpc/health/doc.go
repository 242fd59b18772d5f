// Package health exposes the watcher's liveness over the standard gRPC health protocol.
//
// The process-level service ("") is SERVING while the server runs. The watcher
// service reports UNKNOWN until the first cycle, then SERVING or NOT_SERVING
// depending on whether the last fetch succeeded.
package health
