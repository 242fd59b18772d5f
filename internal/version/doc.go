// Package version exposes build metadata for the project.
//
// Variables Version, Commit, and BuildTime are injected at build time via
// Go ldflags. UserAgent derives the default User-Agent header for API calls.
package version
