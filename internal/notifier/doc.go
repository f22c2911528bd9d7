// Package notifier delivers outbound chat messages for the reminder
// service.
//
// Send is synchronous so the caller learns whether its attempt succeeded.
// Every send is rate limited, time bounded and tagged with a delivery id.
// A message with the same delivery identity (its DedupKey, or its text when
// no key is set) to the same chat inside the dedup window is not sent and
// Send returns ErrDuplicate; the window can be persisted so it survives a
// restart.
package notifier
