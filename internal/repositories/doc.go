// Package repositories implements SQLite persistence for cached lookups, quota counters and the
// OAuth token row.
//
// Key Implementations:
//   - [CacheRepository] : TTL key-value store; entries are JSON payloads keyed by [CacheKey] and
//     partitioned by [Scope]. Staleness is evaluated on read, rows are only deleted by
//     [CacheRepository.Sweep] or [CacheRepository.Clear].
//   - [QuotaRepository] : per-day unit counters with an atomic increment-with-ceiling
//   - [TokenRepository] : singleton OAuth token consulted by the YouTube client
package repositories
