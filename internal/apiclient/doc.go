// Package apiclient is the HTTP client used to talk to the API.
//
// Every request goes through the same pipeline: the current access token is
// attached, the request is sent with retries for transient failures, and a
// 401 hands control to a single shared refresh of the token pair after which
// the request is replayed once. Concurrent 401s wait for the refresh already
// in flight instead of starting their own. Every failure reaches the caller
// as an *Error.
package apiclient
