// Package coordinator runs sync passes over every eligible user.
//
// A pass lists the users whose next allowed time has come (or whose lock
// went stale), then syncs them concurrently up to the configured limit:
//
//  1. The stored API token is fetched and decrypted. A user without a usable
//     token is skipped and left untouched.
//  2. The user's lock is taken with a single conditional write. Losing the
//     race skips the user without reporting it.
//  3. The engine runs one pass for the user.
//  4. The outcome is written back and the lock released in one write,
//     guarded by the lock timestamp. A panicking engine leaves the cursors
//     as they were and keeps the user away for one window.
//
// Per-user failures end up in the pass report and never abort the pass, so
// a pass can be retried at any time. Passes are triggered externally through
// RunPass or, when enabled, by the built-in scheduler started with Start.
package coordinator
