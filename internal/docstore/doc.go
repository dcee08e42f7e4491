// Package docstore is the real-time document store the registries mirror.
//
// Documents live in named collections scoped per identity
// ("users/<uid>/brands"). Writers create, merge-update, and delete single
// documents atomically; readers subscribe to a collection with an ordering
// and receive the full ordered document set on subscribe and again after
// every committed change, including changes written by other processes that
// share the database file.
//
// The SQLite implementation enforces a per-document size ceiling and reports
// violations as storage quota failures so callers can tell them apart from
// other write errors.
package docstore
