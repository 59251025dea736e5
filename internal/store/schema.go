package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Dialect covers the two SQL differences between the supported drivers:
// placeholder syntax and the auto-increment key column.
type Dialect struct {
	Name       string
	identity   string
	positional bool
}

var (
	Postgres = Dialect{Name: "postgres", identity: "BIGSERIAL PRIMARY KEY", positional: true}
	SQLite   = Dialect{Name: "sqlite", identity: "INTEGER PRIMARY KEY AUTOINCREMENT"}
)

// DialectFor maps a sink driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case Postgres.Name:
		return Postgres, nil
	case SQLite.Name:
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unknown sink driver %q", driver)
}

// Rebind rewrites '?' placeholders as $1, $2, ... for Postgres.
func (d Dialect) Rebind(query string) string {
	if !d.positional {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (d Dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS passage (
			id ` + d.identity + `,
			prev_test_meta_id BIGINT NOT NULL,
			prev_test_file_id BIGINT NOT NULL,
			content TEXT NOT NULL,
			category VARCHAR(20) NOT NULL,
			sub_category VARCHAR(50),
			title VARCHAR(200),
			author VARCHAR(100),
			keywords VARCHAR(500),
			insert_time TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS exam_question (
			id ` + d.identity + `,
			passage_id BIGINT REFERENCES passage(id),
			prev_test_meta_id BIGINT NOT NULL,
			prev_test_file_id BIGINT NOT NULL,
			question_number INTEGER NOT NULL,
			question_text TEXT NOT NULL,
			question_type VARCHAR(20) NOT NULL,
			reference_text TEXT,
			category VARCHAR(20),
			sub_category VARCHAR(50),
			answer VARCHAR(100),
			explanation TEXT,
			question_pattern VARCHAR(100),
			type_code VARCHAR(32) NOT NULL,
			type_confidence REAL NOT NULL,
			low_confidence BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS exam_question_choice (
			id ` + d.identity + `,
			question_id BIGINT NOT NULL REFERENCES exam_question(id),
			choice_number INTEGER NOT NULL,
			choice_text TEXT NOT NULL,
			is_answer BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS question_type_ref (
			code VARCHAR(32) PRIMARY KEY,
			category VARCHAR(20) NOT NULL,
			name_ko VARCHAR(50) NOT NULL,
			sort_order INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_passage_file ON passage (prev_test_meta_id, prev_test_file_id)`,
		`CREATE INDEX IF NOT EXISTS idx_exam_question_file ON exam_question (prev_test_meta_id, prev_test_file_id)`,
	}
}

// Migrate creates the sink tables when they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	for _, stmt := range d.schema() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}
