// Package notifier defines the event stream the virtual charge point emits
// for test tooling: one Notification per noteworthy protocol event.
package notifier

// Notification is one published event, keyed by a dotted topic such as
// "boot.notification" or "remote.start.transaction".
type Notification struct {
	Topic string
	Data  map[string]interface{}
}
