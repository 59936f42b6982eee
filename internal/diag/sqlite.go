package diag

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS ess_rounds (
	run        TEXT    NOT NULL,
	generation INTEGER NOT NULL,
	round      INTEGER NOT NULL,
	ess        REAL    NOT NULL,
	size       INTEGER NOT NULL,
	PRIMARY KEY (run, generation, round)
)`

// SQLite stores ESS records for one run in a sqlite database shared by
// many runs.
type SQLite struct {
	db     *sql.DB
	run    string
	insert *sql.Stmt
}

func OpenSQLite(path, run string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	insert, err := db.Prepare(`INSERT OR REPLACE INTO ess_rounds (run, generation, round, ess, size) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &SQLite{db: db, run: run, insert: insert}, nil
}

func (s *SQLite) RecordESS(generation, round int, ess float64, size int) error {
	if _, err := s.insert.Exec(s.run, generation, round, ess, size); err != nil {
		return fmt.Errorf("record ess for generation %d round %d: %w", generation, round, err)
	}
	return nil
}

// Records returns every record of run, ordered by generation and round.
func (s *SQLite) Records(run string) ([]Record, error) {
	rows, err := s.db.Query(`SELECT generation, round, ess, size FROM ess_rounds WHERE run = ? ORDER BY generation, round`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Generation, &r.Round, &r.ESS, &r.Size); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Runs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT run FROM ess_rounds ORDER BY run`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var run string
		if err := rows.Scan(&run); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	if err := s.insert.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
