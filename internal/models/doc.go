// Package models defines the data exchanged between the reconciliation engine, the match scorer
// and the ingress layers.
//
// Request types:
//   - [UpdateRequest] : ordered item identifiers plus ordered [FieldUpdate] values
//   - [MatchRequest] : title/date/identifier lookup against the video catalog
//
// Remote state:
//   - [Snapshot] : field map read from the archive; list values compare by their first element
//   - [Item] : one row of an uploader listing
//
// Match results:
//   - [Candidate] : raw search result
//   - [MatchResult] : accepted candidate with fields derived from its own title
//   - [CachedMatch] : cache payload where a nil match records a confirmed "no match"
//
// Request validation goes through a shared go-playground validator with English messages and
// json field names; see [Validate].
package models
