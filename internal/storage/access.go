package storage

import "database/sql"

// SQLDB exposes the underlying handle for tests and diagnostics.
func (r *Repository) SQLDB() *sql.DB {
	if r == nil {
		return nil
	}
	return r.db
}
