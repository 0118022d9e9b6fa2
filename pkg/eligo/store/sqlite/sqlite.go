// Package sqlite persists trials and criteria in a SQLite database.
//
// SQLite connections must not be shared across goroutines, so each run
// opens its own store handle. Writes go through a buffered transaction
// that the coordinator commits at pass boundaries via Flush.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/eligolab/eligo/pkg/eligo/store"
	"github.com/eligolab/eligo/pkg/eligo/trial"
)

type sqliteStore struct {
	db *sql.DB
	tx *sql.Tx // pending writes, nil between checkpoints
}

// Open opens a SQLite database with WAL mode enabled and creates the
// schema if necessary.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// one connection per store handle, single-writer discipline
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	// another run may hold the write lock across a whole pass; wait for
	// it instead of failing with SQLITE_BUSY
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close rolls back any uncommitted writes and closes the database.
func (s *sqliteStore) Close() error {
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS trials (
	nct TEXT PRIMARY KEY,
	title TEXT,
	gender INTEGER NOT NULL DEFAULT 0,
	min_age INTEGER NOT NULL DEFAULT 0,
	max_age INTEGER NOT NULL DEFAULT 200,
	population TEXT,
	sampling_method TEXT,
	healthy_volunteers INTEGER NOT NULL DEFAULT 0,
	criteria_text TEXT
);

CREATE TABLE IF NOT EXISTS criteria (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nct TEXT NOT NULL,
	is_inclusion INTEGER NOT NULL,
	text TEXT,
	FOREIGN KEY(nct) REFERENCES trials(nct) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS criterion_results (
	criterion_id INTEGER NOT NULL,
	pipeline TEXT NOT NULL,
	state INTEGER NOT NULL DEFAULT 0,
	codes TEXT NOT NULL DEFAULT '',
	cuis TEXT NOT NULL DEFAULT '',
	PRIMARY KEY(criterion_id, pipeline),
	FOREIGN KEY(criterion_id) REFERENCES criteria(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_criteria_nct ON criteria(nct);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// dbtx covers both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// writer returns the pending transaction, starting one if needed.
func (s *sqliteStore) writer(ctx context.Context) (dbtx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	return tx, nil
}

// reader reads through the pending transaction so a run sees its own
// uncommitted writes.
func (s *sqliteStore) reader() dbtx {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Flush commits everything written since the last checkpoint.
func (s *sqliteStore) Flush(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// UpsertTrial inserts or replaces the trial row, keyed by NCT.
func (s *sqliteStore) UpsertTrial(ctx context.Context, t *trial.Trial) error {
	w, err := s.writer(ctx)
	if err != nil {
		return err
	}

	_, err = w.ExecContext(ctx, `
INSERT INTO trials (nct, title, gender, min_age, max_age, population, sampling_method, healthy_volunteers, criteria_text)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(nct) DO UPDATE SET
	title=excluded.title,
	gender=excluded.gender,
	min_age=excluded.min_age,
	max_age=excluded.max_age,
	population=excluded.population,
	sampling_method=excluded.sampling_method,
	healthy_volunteers=excluded.healthy_volunteers,
	criteria_text=excluded.criteria_text;
`, t.NCT, t.Title, int(t.Gender), t.MinAge, t.MaxAge, t.Population, t.SamplingMethod, boolToInt(t.HealthyVolunteers), t.CriteriaText)
	return err
}

// GetTrial loads one trial and its criteria. The second return value
// is false when no trial with that NCT exists.
func (s *sqliteStore) GetTrial(ctx context.Context, nct string) (*trial.Trial, bool, error) {
	t := trial.New(nct)
	var healthy int
	err := s.reader().QueryRowContext(ctx, `
SELECT title, gender, min_age, max_age, population, sampling_method, healthy_volunteers, criteria_text
FROM trials WHERE nct = ?;
`, nct).Scan(&t.Title, &t.Gender, &t.MinAge, &t.MaxAge, &t.Population, &t.SamplingMethod, &healthy, &t.CriteriaText)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	t.HealthyVolunteers = healthy != 0

	t.Criteria, err = s.LoadCriteria(ctx, nct)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// LoadCriteria returns all criterion rows for the trial in insertion
// order, with their per-pipeline results hydrated.
func (s *sqliteStore) LoadCriteria(ctx context.Context, nct string) ([]*trial.Criterion, error) {
	r := s.reader()
	rows, err := r.QueryContext(ctx, `
SELECT id, is_inclusion, text FROM criteria WHERE nct = ? ORDER BY id;
`, nct)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var criteria []*trial.Criterion
	for rows.Next() {
		c := &trial.Criterion{NCT: nct}
		var inclusion int
		if err := rows.Scan(&c.ID, &inclusion, &c.Text); err != nil {
			return nil, err
		}
		c.IsInclusion = inclusion != 0
		criteria = append(criteria, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range criteria {
		if err := s.loadResults(ctx, c); err != nil {
			return nil, err
		}
	}
	return criteria, nil
}

func (s *sqliteStore) loadResults(ctx context.Context, c *trial.Criterion) error {
	rows, err := s.reader().QueryContext(ctx, `
SELECT pipeline, state, codes, cuis FROM criterion_results WHERE criterion_id = ?;
`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pipeline    string
			state       int
			codes, cuis string
		)
		if err := rows.Scan(&pipeline, &state, &codes, &cuis); err != nil {
			return err
		}
		r := c.Result(pipeline)
		r.State = trial.PipelineState(state)
		r.Codes = store.SplitCodes(codes)
		r.CUIs = store.SplitCodes(cuis)
	}
	return rows.Err()
}

// UpsertCriterion inserts the criterion if it has no identifier yet,
// then writes all mutable fields including the per-pipeline results.
// Safe to call repeatedly.
func (s *sqliteStore) UpsertCriterion(ctx context.Context, c *trial.Criterion) (int64, error) {
	w, err := s.writer(ctx)
	if err != nil {
		return 0, err
	}

	if c.ID == 0 {
		err = w.QueryRowContext(ctx, `
INSERT INTO criteria (nct, is_inclusion, text) VALUES (?, ?, ?) RETURNING id;
`, c.NCT, boolToInt(c.IsInclusion), c.Text).Scan(&c.ID)
		if err != nil {
			return 0, err
		}
	} else {
		if _, err := w.ExecContext(ctx, `
UPDATE criteria SET nct = ?, is_inclusion = ?, text = ? WHERE id = ?;
`, c.NCT, boolToInt(c.IsInclusion), c.Text, c.ID); err != nil {
			return 0, err
		}
	}

	for pipeline, r := range c.Results {
		if _, err := w.ExecContext(ctx, `
INSERT INTO criterion_results (criterion_id, pipeline, state, codes, cuis)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(criterion_id, pipeline) DO UPDATE SET
	state=excluded.state,
	codes=excluded.codes,
	cuis=excluded.cuis;
`, c.ID, pipeline, int(r.State), store.JoinCodes(r.Codes), store.JoinCodes(r.CUIs)); err != nil {
			return 0, err
		}
	}

	return c.ID, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
