package decisionlog

import (
	"database/sql"
	"fmt"
	"strings"
)

func ensureDecisionLogSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycle_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			provider_id TEXT,
			model TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			system_prompt_len INTEGER NOT NULL DEFAULT 0,
			user_prompt TEXT,
			raw_output TEXT,
			commands_json TEXT,
			symbols TEXT,
			attempted INTEGER NOT NULL DEFAULT 0,
			succeeded INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			note TEXT,
			created_at INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_logs_started ON cycle_logs(started_at DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_logs_trace ON cycle_logs(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return ensureDecisionLogColumns(db)
}

// columns added after the first release; ALTERs are idempotent.
func ensureDecisionLogColumns(db *sql.DB) error {
	cols := []struct {
		table  string
		column string
		typ    string
	}{
		{"cycle_logs", "issues_json", "TEXT"},
		{"cycle_logs", "resolved", "INTEGER NOT NULL DEFAULT 0"},
		{"cycle_logs", "balance", "TEXT"},
	}
	for _, col := range cols {
		if err := addColumnIfMissing(db, col.table, col.column, col.typ); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	query := fmt.Sprintf("PRAGMA table_info(%s)", table)
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	exists := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			exists = true
			break
		}
	}
	if exists {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ)
	_, err = db.Exec(stmt)
	return err
}
