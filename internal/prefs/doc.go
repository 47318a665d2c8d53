// Package prefs persists the operator preferences that survive restarts:
// whether monitoring resumes automatically after boot and which adapter was
// monitored last.
//
// A Store exposes typed accessors over a Backend. Backends are durable
// key/value stores; a Set that returned nil is visible to every later Get,
// including after a process restart. Three backends are provided:
//   - FileBackend keeps a YAML document, rewritten atomically on every Set
//   - SQLiteBackend keeps a single table in an SQLite database
//   - MemoryBackend keeps values in process memory (tests, ephemeral runs)
package prefs
