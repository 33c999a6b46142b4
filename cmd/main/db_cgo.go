//go:build cgo_sqlite

package main

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

func openDB(dataSource string) (*sql.DB, error) {
	return sql.Open("sqlite3", dataSource+"?_journal_mode=WAL&_busy_timeout=5000")
}
