// Package services implements the remote collaborators used by the reconciliation engine and
// the video matcher.
//
// # Internet Archive
//
// [ArchiveService] reads item metadata (GET /metadata/{id}), writes JSON-patch updates
// (POST /metadata/{id} with -target=metadata and -patch) and lists an uploader's items through
// advancedsearch.php. Writes authenticate with S3-style access and secret keys.
//
// A write that reaches the archive always yields a [models.WriteResult], even when the archive
// refused it; its [models.WriteResult.Signal] tells the engine whether the field was already set,
// already correct, or locked. Go errors are reserved for transport failures and unexpected
// status codes, reported as [*StatusError] so the retry layer can spot throttling.
//
// # YouTube
//
// [YouTubeSearcher] runs search.list against one channel using the YouTube Data API client
// from google.golang.org/api. It authenticates with an API key or an OAuth token source.
// Provider quota exhaustion maps to [shared.ErrQuotaExceeded].
package services
