// Package stores provides persistence layer implementations for the governance engine.
// MemoryStore keeps state in process with journaled, undoable transactions; SQLiteStore persists
// it in SQLite with embedded migrations and single-writer immediate transactions. Both
// implement engine.Store.
package stores
