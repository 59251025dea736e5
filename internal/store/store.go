// Package store persists analysed exam files as flat rows: passage, then
// exam_question linked to its passage (or none), then exam_question_choice.
// Every file is written in one transaction so a failure leaves no partial
// passage, question or choice set behind.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/edenschool/examparse/internal/classifier"
	"github.com/edenschool/examparse/internal/exam"
)

// FileRef identifies the source file rows belong to.
type FileRef struct {
	MetaID int64
	FileID int64
}

// Sink inserts rows inside a caller-owned transaction.
type Sink interface {
	InsertPassage(ctx context.Context, tx *sql.Tx, ref FileRef, p exam.Passage) (int64, error)
	InsertQuestions(ctx context.Context, tx *sql.Tx, ref FileRef, passageID *int64, qs []exam.Question) ([]int64, error)
}

// TxRunner is satisfied by postgres.Client and sqlite.Client.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// SQLSink implements Sink for Postgres and SQLite.
type SQLSink struct {
	dialect Dialect
}

func NewSQLSink(d Dialect) *SQLSink {
	return &SQLSink{dialect: d}
}

func (s *SQLSink) InsertPassage(ctx context.Context, tx *sql.Tx, ref FileRef, p exam.Passage) (int64, error) {
	category := truncate(string(p.Category), 20)
	if category == "" {
		category = string(exam.CategoryOther)
	}
	var id int64
	err := tx.QueryRowContext(ctx, s.dialect.Rebind(
		`INSERT INTO passage (prev_test_meta_id, prev_test_file_id, content, category, sub_category, title, author, keywords)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		ref.MetaID, ref.FileID, p.Content, category,
		nullable(truncate(p.SubCategory, 50)), nullable(truncate(p.Title, 200)),
		nullable(truncate(p.Author, 100)), nullable(truncate(p.Keywords, 500)),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting passage: %w", err)
	}
	return id, nil
}

func (s *SQLSink) InsertQuestions(ctx context.Context, tx *sql.Tx, ref FileRef, passageID *int64, qs []exam.Question) ([]int64, error) {
	var owner sql.NullInt64
	if passageID != nil {
		owner = sql.NullInt64{Int64: *passageID, Valid: true}
	}
	questionStmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(
		`INSERT INTO exam_question (passage_id, prev_test_meta_id, prev_test_file_id, question_number, question_text,
			question_type, reference_text, category, sub_category, answer, explanation, question_pattern,
			type_code, type_confidence, low_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`))
	if err != nil {
		return nil, fmt.Errorf("preparing question insert: %w", err)
	}
	defer questionStmt.Close()
	choiceStmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(
		`INSERT INTO exam_question_choice (question_id, choice_number, choice_text, is_answer) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return nil, fmt.Errorf("preparing choice insert: %w", err)
	}
	defer choiceStmt.Close()

	ids := make([]int64, 0, len(qs))
	for _, q := range qs {
		qType := truncate(q.QuestionType, 20)
		if qType == "" {
			qType = exam.QuestionTypeMultipleChoice
		}
		var id int64
		err := questionStmt.QueryRowContext(ctx,
			owner, ref.MetaID, ref.FileID, q.Number, q.QuestionText,
			qType, nullable(q.ReferenceText), nullable(truncate(string(q.Category), 20)),
			nullable(truncate(q.SubCategory, 50)), nullable(truncate(q.Answer, 100)),
			nullable(q.Explanation), nullable(truncate(q.Pattern, 100)),
			q.Classification.Code, q.Classification.Confidence, q.LowConfidence,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("inserting question %d: %w", q.Number, err)
		}
		for _, c := range q.Choices {
			if _, err := choiceStmt.ExecContext(ctx, id, c.Number, c.Text, c.IsAnswer); err != nil {
				return nil, fmt.Errorf("inserting choice %d of question %d: %w", c.Number, q.Number, err)
			}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// WriteStats counts the rows one file produced.
type WriteStats struct {
	Passages  int
	Questions int
	Choices   int
}

// Writer stores whole analyses through a Sink.
type Writer struct {
	db      TxRunner
	sink    Sink
	dialect Dialect
	query   *sql.DB
	logger  *slog.Logger
}

// NewWriter builds a Writer. query is the plain handle used for reads
// outside transactions.
func NewWriter(db TxRunner, query *sql.DB, d Dialect) *Writer {
	return &Writer{
		db:      db,
		sink:    NewSQLSink(d),
		dialect: d,
		query:   query,
		logger:  slog.Default().With("component", "store"),
	}
}

// WithSink swaps the row writer, keeping the transaction runner.
func (w *Writer) WithSink(s Sink) *Writer {
	cp := *w
	cp.sink = s
	return &cp
}

// WriteAnalysis writes every passage with its questions, then the
// standalone questions, in one transaction.
func (w *Writer) WriteAnalysis(ctx context.Context, a *exam.Analysis) (WriteStats, error) {
	ref := FileRef{MetaID: a.MetaID, FileID: a.FileID}
	var stats WriteStats
	err := w.db.InTx(ctx, func(tx *sql.Tx) error {
		stats = WriteStats{}
		for _, p := range a.Passages {
			id, err := w.sink.InsertPassage(ctx, tx, ref, p)
			if err != nil {
				return err
			}
			stats.Passages++
			if len(p.Questions) == 0 {
				continue
			}
			if _, err := w.sink.InsertQuestions(ctx, tx, ref, &id, p.Questions); err != nil {
				return err
			}
			stats.add(p.Questions)
		}
		if len(a.Standalone) > 0 {
			if _, err := w.sink.InsertQuestions(ctx, tx, ref, nil, a.Standalone); err != nil {
				return err
			}
			stats.add(a.Standalone)
		}
		return nil
	})
	if err != nil {
		return WriteStats{}, fmt.Errorf("writing meta %d file %d: %w", ref.MetaID, ref.FileID, err)
	}
	w.logger.Debug("analysis stored",
		"meta_id", ref.MetaID,
		"file_id", ref.FileID,
		"passages", stats.Passages,
		"questions", stats.Questions,
	)
	return stats, nil
}

func (s *WriteStats) add(qs []exam.Question) {
	s.Questions += len(qs)
	for _, q := range qs {
		s.Choices += len(q.Choices)
	}
}

// Imported reports whether rows for the file already exist.
func (w *Writer) Imported(ctx context.Context, ref FileRef) (bool, error) {
	var n int
	err := w.query.QueryRowContext(ctx, w.dialect.Rebind(
		`SELECT COUNT(*) FROM (
			SELECT 1 FROM passage WHERE prev_test_meta_id = ? AND prev_test_file_id = ?
			UNION ALL
			SELECT 1 FROM exam_question WHERE prev_test_meta_id = ? AND prev_test_file_id = ?
		) AS existing`),
		ref.MetaID, ref.FileID, ref.MetaID, ref.FileID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking imported rows: %w", err)
	}
	return n > 0, nil
}

// SeedTypes upserts the question type reference table.
func (w *Writer) SeedTypes(ctx context.Context, types []classifier.TypeInfo) error {
	return w.db.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, w.dialect.Rebind(
			`INSERT INTO question_type_ref (code, category, name_ko, sort_order) VALUES (?, ?, ?, ?)
			ON CONFLICT (code) DO UPDATE SET category = excluded.category, name_ko = excluded.name_ko, sort_order = excluded.sort_order`))
		if err != nil {
			return fmt.Errorf("preparing type upsert: %w", err)
		}
		defer stmt.Close()
		for _, t := range types {
			if _, err := stmt.ExecContext(ctx, t.Code, string(t.Category), t.NameKo, t.SortOrder); err != nil {
				return fmt.Errorf("upserting type %s: %w", t.Code, err)
			}
		}
		return nil
	})
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
