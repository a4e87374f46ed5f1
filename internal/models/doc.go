// Package models defines the domain entities of the sync engine.
//
// The package contains three groups of types:
//
//  1. Identity: [User] and the per-platform [Credential] linking a user to an external account.
//  2. Work: [SyncTask] and its [TaskState] machine, one task per (user, platform) sync attempt.
//  3. Synced data: [SocialPage], [MetricSnapshot], [Post] and [Comment], produced by the transformer
//     from raw [ProviderProfile] and [ProviderPost] payloads.
//
// [Platform] is a closed set; every platform-specific behavior switches on it.
package models
