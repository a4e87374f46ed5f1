// Package repositories implements SQLite persistence for the sync engine.
//
// Key Implementations:
//   - [UserRepository] : users, soft deletes, active listing for the scheduler
//   - [CredentialRepository] : per-platform linked accounts and the GetToken lookup
//   - [TaskRepository] : the task store; creation, exclusive claim, retry, and terminal transitions
//   - [PageRepository] : social pages, metric snapshot history, posts and comments
//
// Sequence numbers provide stable, human-readable ordering (e.g., user #42, task #15) independent of UUIDs and
// creation timestamps. [NextSequence] increments per-table counters inside the caller's transaction.
//
// Writes that lose a lock race are retried with exponential backoff; a write that still cannot
// land is reported as [shared.ErrPersistenceConflict].
package repositories
