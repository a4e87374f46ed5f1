// Package tasks turns sync requests into tracked tasks and executes them with retries and revocation.
//
// # Core Operations
//
//  1. [Dispatcher.RequestSync] : admit a sync for one user
//     - Rejects unknown, inactive and deleted users
//     - Skips platforms without a usable credential, reporting each one
//     - Returns the in-flight task when one already exists for (user, platform)
//
//  2. [Executor.Run] : claim and execute PENDING tasks
//     - Claims are compare-and-set, so a task runs on at most one worker at a time
//     - Every later write is fenced by the claim's lease; a worker whose task was requeued writes nothing
//     - Each attempt fetches the profile, then every post page, then transforms and persists
//     - Failures are classified and either rescheduled with backoff or recorded as FAILURE
//
//  3. [Dispatcher.Revoke] : cancel a task
//     - A running attempt is cancelled through its context and never persists results
//     - A PENDING task is revoked by the next worker to claim it
//
//  4. [Scheduler.Run] : request a sync for every active user on an interval
//
// # Lifecycle Events
//
// The [Executor] and [Dispatcher] publish [Event] values on an optional channel. Sends use
// select with default, so a slow consumer drops events and never stalls a worker.
//
// # Retry
//
// [RetryPolicy] doubles the delay from a base up to a cap. Quota failures start from a
// longer base. Attempts are counted when a task is claimed.
package tasks
