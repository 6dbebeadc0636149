// Package dedup implements the admit-once ledger that sits between the
// normalizer and the dispatch pipeline.
//
// The ledger:
//   - Records every EventIdentity at admission, before storage or notification
//   - Rejects replays (snapshot resends, userEvents/userFills overlap)
//   - Is bounded by capacity and optionally by age
//
// Eviction horizon: an identity evicted by capacity or TTL is forgotten, so a
// replay older than the horizon is admitted again. The persistence store's own
// unique keys absorb those re-deliveries; consumers may see them once more.
// Size the capacity well above the number of events the venue can replay on
// resubscribe.
package dedup
