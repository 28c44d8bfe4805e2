// Package store keeps finished runs in SQLite so they can be listed and
// compared later.
//
// A run is stored as three tables:
//   - runs: one row per run, holding the header, summary and a digest
//   - cases: one row per dispatched case, keyed by (run_id, seq)
//   - results: one row per implementation answer, keyed by (run_id, seq, implementation)
//
// Case and result bodies are stored as the JSON the reporter emits. The
// run's digest is computed over RFC 8785 canonical JSON, so two runs with
// equal digests are equal reports regardless of seq numbering or the
// bowtie version that wrote them. Reads order by seq, then implementation,
// never by insertion time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
