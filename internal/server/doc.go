// Package server exposes the reconciliation engine and the video matcher over HTTP.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [ChiRouter] implements it on
// go-chi; middleware is applied at registration time, the first added outermost. [NewHandler]
// installs request IDs, panic recovery, structured request logging and CORS.
//
// # Endpoints
//
//	GET  /health
//	POST /api/metadata/batch      JSON summary, or server-sent events with Accept: text/event-stream or ?stream=1
//	POST /api/youtube/match       {success, enabled, match}
//	GET  /api/youtube/quota       {success, day, used, limit, remaining, percentage, nextReset}
//	POST /api/cache/clear?scope=  youtube, metadata or all
//	GET  /api/cache/stats
//
// Failures answer {"success": false, "error": ...} with a status from [StatusFor]. A streamed batch
// always answers 200 once the stream has begun; per-item failures travel inside the events, and
// the batch keeps running if the client goes away.
//
// # OAuth Callback Handler
//
// [OAuthHandler] completes the YouTube authorization-code flow for the CLI: it validates the state
// parameter, exchanges the code and delivers a single [OAuthResult].
package server
