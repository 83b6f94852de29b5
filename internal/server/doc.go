// Package server is the HTTP route layer in front of the Spotify client.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally and dispatches on method per path.
//
// # Routes
//
//	GET       /            submission form with authed, success and already_added notices
//	GET       /authorize/  OAuth callback
//	GET|POST  /search      search form and results
//	POST      /submit      add the track named by spotify_link
//	POST      /setup       select the playlist when none is configured
//	GET       /healthz     liveness
//	GET       /metrics     Prometheus metrics
//
// # Error Mapping
//
// Handlers switch on [services.KindOf]. NoToken redirects to the authorization link, AlreadyAdded redirects to
// /?already_added=1 and every other kind is a 500.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
// [AuthorizeHandler] is registered this way.
package server
