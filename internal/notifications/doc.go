// Package notifications pushes generation events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check whether notifications are enabled. The
// Generation and Errors toggles in config suppress their respective events.
package notifications
