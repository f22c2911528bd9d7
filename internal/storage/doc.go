// Package storage is the optional SQLite persistence used for the reminder
// outcome history and the notifier's cross-restart dedup window.
//
// Pending reminders themselves are never persisted.
package storage
