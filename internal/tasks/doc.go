// Package tasks runs background maintenance for the API client.
//
// [CacheRefresher] keeps the in-memory playlist membership from going stale. The cache is otherwise loaded
// once and only extended by this process's own additions, so tracks added or removed elsewhere would
// never be seen. On every tick the refresher invalidates and reloads the cache. Failures are logged and
// the loop continues; a missing playlist or credential skips the tick.
//
// Refresh steps are reported as [RefreshEvent] values on an optional channel. Sends never block, so a slow
// consumer cannot stall the refresher.
package tasks
