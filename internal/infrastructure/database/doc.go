// Package database provides SQLite database connectivity for the WSS
// session-history store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Connection pooling and lifecycle management
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Performance Characteristics:
//   - WAL mode allows concurrent reads during writes
//   - Busy timeout prevents lock contention errors
//   - Single writer connection matches SQLite's write model
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.History.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// Schema is owned by the consuming store (see internal/history), which
// applies it idempotently at construction.
package database
