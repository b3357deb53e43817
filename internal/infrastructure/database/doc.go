// Package database provides SQLite storage for Moodring.
//
// Two things are persisted:
//   - hue_credentials: the username a bridge issued at registration, so the
//     link button only has to be pressed once per bridge
//   - palette_history: an append-only log of applied palettes for the status API
//
// The color cache itself is deliberately not stored; every restart begins
// with an empty cache.
//
// Usage:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are embedded by the top-level migrations package and named
// YYYYMMDD_HHMMSS_name.up.sql. They only go forward; a schema fix ships as
// a new migration.
package database
