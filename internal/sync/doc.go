// Package sync implements the incremental document sync engine.
//
// An Engine runs one pass for one locked user. It builds a request budget
// from the user's persisted window, then visits locations in priority order
// through a locationSyncer, which pages through the Content API, resolves
// document content, and upserts documents into the cache.
//
// # Modes
//
// While the initial backfill is not done, a location is only visited after
// every earlier location completed, either in this pass or in an earlier
// one. Afterwards each pass visits every location once, fetching documents
// updated after the location's watermark.
//
// # Cursors
//
// Every exit path leaves a location's cursor pointing at a position whose
// preceding documents are all written. Budget exhaustion mid-page keeps the
// cursor of that page, so the page is re-read next time; the cache writer
// never lets an older version of a document replace a newer one.
//
// # Stopping
//
// Budget exhaustion and 429 answers end the pass without error and schedule
// the user's next attempt. Any other error is returned with the partial
// Outcome for the coordinator to persist.
package sync
