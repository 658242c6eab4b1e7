// Package tasks reconciles desired metadata against archive items with real-time progress reporting.
//
// # Reconciliation
//
// [Engine.Run] processes an [models.UpdateRequest] one item at a time, in submitted order:
//
//  1. Read the item's current metadata, cache first ([Engine.CurrentMetadata]). A failed read
//     leaves every field presumed absent.
//  2. [Plan] the updates: a field whose current value already equals the target is skipped
//     without a write.
//  3. Apply each remaining field through a small state machine. Every write starts as an add;
//     an "already set" answer moves it to replace, a "no changes" answer turns it into a skip,
//     and an "editing restricted" answer aborts the rest of the item.
//
// All remote calls go through a [ratelimit.Caller], so at most one is in flight and each one is
// paced and retried.
//
// # Progress Reporting
//
// Run emits [Event] values on a caller-supplied channel: one start, then processing followed by
// success or error per item, then one complete carrying the [Summary]. A request that fails
// validation produces a single fatal error event instead. Sends block, so no event is dropped;
// [Engine.Stream] wraps Run with its own channel and closes it when the batch ends.
//
// # Analysis
//
// [Analyze] and [Audit] inspect an uploader listing for missing or inconsistent band, venue and
// date metadata, producing suggestions that can be turned back into update requests.
package tasks
