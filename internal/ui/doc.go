// Package ui implements a terminal dashboard for a user's sync tasks using bubbletea's Elm architecture.
//
// Views:
//  1. [TaskListView] : the user's tasks, refreshed on an interval
//  2. [TaskDetailView] : one task's status and the events seen for it
//  3. [ConfirmRevokeView] : confirm revoking the selected task
//
// When the dashboard runs next to an in-process executor, lifecycle events arrive on a channel
// and are shown live; otherwise the list is polled.
package ui
