// Package common holds helpers shared by the commands.
//
// It provides a gRPC health client with call timeouts, detection of the
// current system actor (hostname/username) for startup logs, and the
// single-instance guard backed by a pid file.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
