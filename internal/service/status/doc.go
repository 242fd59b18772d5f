// Package status fetches the live status of a channel from the Picarto API.
//
// The Client is stateless: one request per Fetch, bounded by a timeout, no
// retries. Failures are classified as *NetworkError (transport, timeout) or
// *APIError (error status, unreadable or malformed payload) so the watcher
// can report them and back off.
package status
