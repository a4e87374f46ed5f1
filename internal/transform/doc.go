// Package transform converts raw provider payloads into pages, posts, and metric snapshots.
//
// [Transform] is pure: it performs no I/O and reads no clock. Given the same payloads, the same
// previous snapshot, and the same as-of time it returns identical values, so a retried task
// never drifts from the attempt it replaces.
//
// Each platform decodes its payloads through a [Mapper]. Payloads that cannot be decoded, or
// that decode into impossible values, fail with [shared.KindTransformInvariant] and carry a
// [PayloadRef] identifying the offending payload by digest.
package transform
