// Package store provides persistent storage for telegram-mcp using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with specialized
// interfaces composed into one:
//
//   - CacheStore: TTL key-value cache with lazy expiry and a manual sweep
//   - LogStore: Append-only structured tool-call log with retention trimming
//   - AccountStore: Phone-keyed account/session registry
//   - Store: All of the above plus config key-values and Close
//
// SQLiteStore implements every interface in a single struct over one
// database/sql handle, allowing easy composition while maintaining clear
// interface boundaries. The handle is opened once at process start and owned
// by its creator; there is no package-level singleton.
//
// # Data Models
//
//   - CacheEntry (table cache): opaque key, JSON value, optional absolute
//     expiry in epoch milliseconds
//   - LogEntry (table logs): UUID id, level, tool/action, serialized
//     arguments/result/metadata, error text, duration, correlation IDs
//   - Account/Session (table sessions): one row per phone number; Session is
//     a read projection present once the account is linked to a remote user
//   - config: reserved key-value table for process-level state
//
// # Semantics worth knowing
//
// Cache expiry is lazy: an expired entry is invisible to Get (and deleted as
// a side effect of the read) but remains physically present until Cleanup or
// that Get runs. Hit/miss counters are process-local and never derived from
// storage.
//
// Log writes below the construction-time minimum level are dropped entirely.
// The message argument of log calls is mirrored to the process logger but has
// no column; only structured context fields persist.
//
// Account status is derived from the stored is_active flag on every read.
// CreateAccount's return value is stamped pending_auth, a transient value
// that never round-trips through a read.
package store
