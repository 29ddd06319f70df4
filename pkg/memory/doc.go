// Package memory stores short text memories per (user, app) pair and retrieves
// them with hybrid semantic + keyword search.
//
// Invariants:
// - Every vector entering or leaving the package is unit-length and exactly 256-dimensional.
// - The canonical row and its keyword index entry are written in one transaction.
// - The vector index is best-effort: a memory may exist without a vector.
// - Search never fails because an optional signal path (embedding, either index) is down.
//
// The keyword index needs mattn/go-sqlite3 compiled with FTS5 support:
//
//	go build -tags sqlite_fts5 ./...
//	go test -tags sqlite_fts5 ./...
//
// Without the tag the store opens fine but keyword search degrades to empty
// results, and the package tests that exercise it fail their FTS5 precondition.
//
// Usage:
//
//	svc, _ := memory.New(memory.Config{DBPath: "/data/memories.db"})
//	defer svc.Close()
//	id, _ := svc.Add(ctx, memory.AddInput{UserID: "u1", AppName: "a1", Type: memory.TypeProfile, Text: "prefers dark mode"})
//	results, _ := svc.Search(ctx, "interface preferences", "u1", "a1")
//	_, _ = id, results
package memory
