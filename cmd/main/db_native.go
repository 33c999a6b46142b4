//go:build !cgo_sqlite

package main

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

func openDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite", dataSource+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
}
