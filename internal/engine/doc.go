// Package engine implements the sync engine that drains the journal.
//
// # Replay
//
// UploadData lists the journal oldest first and sends one record at a time:
// Create records are POSTed to the object's collection, Update records are
// PUT to the item, addressed by the server id once one is known. A record
// is removed from the journal only after the server accepted it. The first
// failure ends the pass; the failing record and everything behind it stay
// queued, so the next pass resumes exactly there.
//
// # Triggering
//
// Domain services call Trigger after every local change. Triggers coalesce
// through a one-slot signal channel, so a burst of changes costs one pass.
// Run consumes the signal; Schedule adds a cron-driven trigger for
// devices that stay offline between changes.
//
// Overlapping passes are refused with ErrSyncInProgress rather than queued.
package engine
