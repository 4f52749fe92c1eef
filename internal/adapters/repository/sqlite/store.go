// Package sqlite provides a SQLite-backed planning data provider.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/crewtrain/internal/adapters/repository"
	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/pkg/metrics"
)

//go:embed schema.sql
var schema string

// Store persists planning inputs in SQLite.
type Store struct {
	sqlDB *sql.DB
}

var _ repository.Provider = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) a SQLite database and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return repository.ErrClosed
	}
	return nil
}

func observe(query string, start time.Time) {
	metrics.RecordRepositoryQuery(query, float64(time.Since(start).Microseconds())/1000)
}

// PutPilot inserts or renames a pilot.
func (s *Store) PutPilot(ctx context.Context, p repository.Pilot) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO pilots (id, name) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		int64(p.ID), strings.TrimSpace(p.Name))
	if err != nil {
		return fmt.Errorf("put pilot: %w", err)
	}
	return nil
}

// AddScores appends raw scores, registering unknown pilots.
func (s *Store) AddScores(ctx context.Context, scores ...model.RawScore) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	for _, r := range scores {
		if r.Score < model.MinRawScore || r.Score > model.MaxRawScore || r.Competency == "" || r.Source == "" {
			return fmt.Errorf("%w: score %d for pilot %d", repository.ErrInvalidRecord, r.Score, r.PilotID)
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range scores {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO pilots (id) VALUES (?)`, int64(r.PilotID)); err != nil {
				return fmt.Errorf("register pilot: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO pilot_competency_scores (pilot_id, competency, source, score, scored_at, comment)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				int64(r.PilotID), string(r.Competency), string(r.Source), r.Score, toMillis(r.Date), r.Comment,
			); err != nil {
				return fmt.Errorf("insert score: %w", err)
			}
		}
		return nil
	})
}

// SetWeights replaces the whole weight table.
func (s *Store) SetWeights(ctx context.Context, rows ...model.CompetencyWeight) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	for _, w := range rows {
		if w.Weight < 0 || w.Weight > 1 || w.Competency == "" || w.Source == "" {
			return fmt.Errorf("%w: weight %s/%s=%v", repository.ErrInvalidRecord, w.Competency, w.Source, w.Weight)
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM competency_weights`); err != nil {
			return fmt.Errorf("clear weights: %w", err)
		}
		for _, w := range rows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO competency_weights (competency, source, weight) VALUES (?, ?, ?)
				 ON CONFLICT(competency, source) DO UPDATE SET weight = excluded.weight`,
				string(w.Competency), string(w.Source), w.Weight,
			); err != nil {
				return fmt.Errorf("insert weight: %w", err)
			}
		}
		return nil
	})
}

// PutExercises inserts or replaces catalog entries.
func (s *Store) PutExercises(ctx context.Context, exercises ...model.Exercise) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	for _, ex := range exercises {
		if len(ex.Competencies) == 0 {
			return fmt.Errorf("%w: exercise %d has no competencies", repository.ErrInvalidRecord, ex.ID)
		}
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, ex := range exercises {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO exercises (id, name) VALUES (?, ?)
				 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
				ex.ID, ex.Name,
			); err != nil {
				return fmt.Errorf("put exercise: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM exercise_competencies WHERE exercise_id = ?`, ex.ID); err != nil {
				return fmt.Errorf("clear exercise competencies: %w", err)
			}
			for i, code := range ex.Competencies {
				if _, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO exercise_competencies (exercise_id, competency, position) VALUES (?, ?, ?)`,
					ex.ID, string(code), i,
				); err != nil {
					return fmt.Errorf("put exercise competency: %w", err)
				}
			}
		}
		return nil
	})
}

// Weights implements repository.Provider.
func (s *Store) Weights(ctx context.Context) ([]model.CompetencyWeight, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	defer observe("weights", time.Now())

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT competency, source, weight FROM competency_weights ORDER BY competency, source`)
	if err != nil {
		return nil, fmt.Errorf("query weights: %w", err)
	}
	defer rows.Close()

	var out []model.CompetencyWeight
	for rows.Next() {
		var w model.CompetencyWeight
		var code, source string
		if err := rows.Scan(&code, &source, &w.Weight); err != nil {
			return nil, fmt.Errorf("scan weight: %w", err)
		}
		w.Competency, w.Source = model.CompetencyCode(code), model.SourceType(source)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weights: %w", err)
	}
	return out, nil
}

// Scores implements repository.Provider.
func (s *Store) Scores(ctx context.Context, pilot model.PilotID) ([]model.RawScore, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	defer observe("scores", time.Now())

	var id int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id FROM pilots WHERE id = ?`, int64(pilot)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", repository.ErrUnknownPilot, pilot)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup pilot: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT competency, source, score, scored_at, comment
		 FROM pilot_competency_scores WHERE pilot_id = ? ORDER BY id`, int64(pilot))
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []model.RawScore
	for rows.Next() {
		var (
			code, source string
			at           int64
			r            = model.RawScore{PilotID: pilot}
		)
		if err := rows.Scan(&code, &source, &r.Score, &at, &r.Comment); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		r.Competency, r.Source, r.Date = model.CompetencyCode(code), model.SourceType(source), fromMillis(at)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return out, nil
}

// Catalog implements repository.Provider.
func (s *Store) Catalog(ctx context.Context) ([]model.Exercise, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	defer observe("catalog", time.Now())

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT e.id, e.name, c.competency
		 FROM exercises e JOIN exercise_competencies c ON c.exercise_id = e.id
		 ORDER BY e.id, c.position`)
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	defer rows.Close()

	var out []model.Exercise
	for rows.Next() {
		var (
			id         int64
			name, code string
		)
		if err := rows.Scan(&id, &name, &code); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		if n := len(out); n == 0 || out[n-1].ID != id {
			out = append(out, model.Exercise{ID: id, Name: name})
		}
		last := &out[len(out)-1]
		last.Competencies = append(last.Competencies, model.CompetencyCode(code))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return out, nil
}

// Counts implements repository.Provider.
func (s *Store) Counts(ctx context.Context) (repository.Counts, error) {
	if err := s.ready(ctx); err != nil {
		return repository.Counts{}, err
	}
	defer observe("counts", time.Now())

	var c repository.Counts
	err := s.sqlDB.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM pilots),
		(SELECT COUNT(*) FROM pilot_competency_scores),
		(SELECT COUNT(*) FROM competency_weights),
		(SELECT COUNT(*) FROM exercises)`).Scan(&c.Pilots, &c.Scores, &c.Weights, &c.Exercises)
	if err != nil {
		return repository.Counts{}, fmt.Errorf("count records: %w", err)
	}
	metrics.UpdateRepositoryRecords("pilots", c.Pilots)
	metrics.UpdateRepositoryRecords("scores", c.Scores)
	metrics.UpdateRepositoryRecords("weights", c.Weights)
	metrics.UpdateRepositoryRecords("exercises", c.Exercises)
	return c, nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
