// Package services defines shared utilities consumed by the registries, the
// generation session, and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp the active identity, generation mode, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the classification
//     that maps any failure onto the user-facing error taxonomy (configuration,
//     quota, storage quota, validation, transient).
//
// Use these helpers when wiring new components so failures surface with
// consistent messages and recovery actions.
package services
