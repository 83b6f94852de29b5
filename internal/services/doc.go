// Package services implements the Spotify Web API client that appends tracks to one playlist.
//
// # Components
//
// The client is assembled from small parts, leaf first:
//   - [TokenStore] persists the live [Credential] (and the selected playlist) as base64 encoded JSON.
//     A file that cannot be decoded is removed and treated as absent.
//   - [AuthorizationFlow] builds the authorization link and trades codes or refresh tokens for credentials
//     against the accounts host.
//   - [Dispatcher] sends requests to the accounts or api host and applies the [Policy] through a [Retrier].
//   - [PlaylistCache] mirrors playlist membership and guards against duplicate additions.
//   - [SpotifyClient] composes the above into the [PlaylistService] operations used by the server and CLI.
//
// # Retry Policy
//
// [DefaultPolicy] sends a request at most five times. A 401 refreshes the credential before the next
// attempt, a 403 is retried unchanged (paced by a rate limiter when configured) and any other API error
// aborts. Transport failures are never retried. Accounts-host errors always abort.
//
// # Errors
//
// Every operation fails with an [*Error] whose [Kind] is one of NoToken, AlreadyAdded, Upstream, Exhausted
// or Transport. Use [KindOf] to switch on the kind and [AuthLinkOf] to obtain the link carried by NoToken
// errors. Each kind also matches its shared sentinel under [errors.Is]:
//   - [shared.ErrNotAuthenticated] : no credential, authorization required
//   - [shared.ErrAlreadyAdded] : the track is already a playlist member
//   - [shared.ErrAPIRequest] : the API answered with an error payload
//   - [shared.ErrRetriesExhausted] : no valid response within the attempt bound
//   - [shared.ErrTransport] : the request could not be sent
//
// # Concurrency
//
// A single [SpotifyClient] is shared by all request handlers. Concurrent token refreshes and concurrent
// playlist loads are collapsed with singleflight, and additions are serialized so the membership check
// and the append happen atomically.
package services
