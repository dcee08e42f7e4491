// Package library owns the generated content items and the folders that
// group them for the current identity.
//
// Items and folders are mirrored from two document store subscriptions,
// newest first. Inline images on new items are promoted to durable blob URLs
// before the write; a failed upload keeps the text and drops the image.
// Deleting a folder never touches its items: readers treat an item whose
// folder no longer exists as root-level.
package library
