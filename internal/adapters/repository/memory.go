package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/crewtrain/internal/domain/model"
	"github.com/okian/crewtrain/pkg/metrics"
)

// dataset is an immutable view once published.
type dataset struct {
	pilots    map[model.PilotID]Pilot
	scores    map[model.PilotID][]model.RawScore
	weights   []model.CompetencyWeight
	exercises map[int64]model.Exercise
	catalog   []model.Exercise // sorted by id, rebuilt on publish
}

func newDataset() *dataset {
	return &dataset{
		pilots:    make(map[model.PilotID]Pilot),
		scores:    make(map[model.PilotID][]model.RawScore),
		exercises: make(map[int64]model.Exercise),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for id, p := range d.pilots {
		c.pilots[id] = p
	}
	for id, s := range d.scores {
		c.scores[id] = append([]model.RawScore(nil), s...)
	}
	for id, ex := range d.exercises {
		c.exercises[id] = ex
	}
	c.weights = append([]model.CompetencyWeight(nil), d.weights...)
	return c
}

func (d *dataset) putPilot(p Pilot) {
	d.pilots[p.ID] = p
}

func (d *dataset) addScore(s model.RawScore) {
	if _, ok := d.pilots[s.PilotID]; !ok {
		d.pilots[s.PilotID] = Pilot{ID: s.PilotID}
	}
	d.scores[s.PilotID] = append(d.scores[s.PilotID], s)
}

func (d *dataset) putExercise(ex model.Exercise) {
	ex.Competencies = append([]model.CompetencyCode(nil), ex.Competencies...)
	d.exercises[ex.ID] = ex
}

func (d *dataset) seal() *dataset {
	d.catalog = make([]model.Exercise, 0, len(d.exercises))
	for _, ex := range d.exercises {
		d.catalog = append(d.catalog, ex)
	}
	model.SortExercises(d.catalog)
	return d
}

func (d *dataset) counts() Counts {
	n := 0
	for _, s := range d.scores {
		n += len(s)
	}
	return Counts{Pilots: len(d.pilots), Scores: n, Weights: len(d.weights), Exercises: len(d.exercises)}
}

// MemoryStore is an in-memory Provider. Readers load an immutable
// snapshot; writers copy, modify and publish a new one.
type MemoryStore struct {
	mu       sync.Mutex // serializes writers
	snapshot atomic.Pointer[dataset]
	closed   atomic.Bool
}

// NewMemoryStore builds a store seeded by opts.
func NewMemoryStore(opts ...Option) *MemoryStore {
	d := newDataset()
	for _, opt := range opts {
		opt(d)
	}
	s := &MemoryStore{}
	s.publish(d)
	return s
}

func (s *MemoryStore) publish(d *dataset) {
	s.snapshot.Store(d.seal())
	c := d.counts()
	metrics.UpdateRepositoryRecords("pilots", c.Pilots)
	metrics.UpdateRepositoryRecords("scores", c.Scores)
	metrics.UpdateRepositoryRecords("weights", c.Weights)
	metrics.UpdateRepositoryRecords("exercises", c.Exercises)
}

func (s *MemoryStore) update(fn func(*dataset)) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.snapshot.Load().clone()
	fn(d)
	s.publish(d)
	return nil
}

func (s *MemoryStore) load(ctx context.Context, query string) (*dataset, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}
	start := time.Now()
	done := func() {
		metrics.RecordRepositoryQuery(query, float64(time.Since(start).Microseconds())/1000)
	}
	return s.snapshot.Load(), done, nil
}

// PutPilot registers or renames a pilot.
func (s *MemoryStore) PutPilot(p Pilot) error {
	return s.update(func(d *dataset) { d.putPilot(p) })
}

// AddScores appends raw scores. Scores outside 2..5 are rejected.
func (s *MemoryStore) AddScores(scores ...model.RawScore) error {
	for _, r := range scores {
		if err := validateScore(r); err != nil {
			return err
		}
	}
	return s.update(func(d *dataset) {
		for _, r := range scores {
			d.addScore(r)
		}
	})
}

// SetWeights replaces the weight rows.
func (s *MemoryStore) SetWeights(rows ...model.CompetencyWeight) error {
	for _, w := range rows {
		if w.Weight < 0 || w.Weight > 1 || w.Competency == "" || w.Source == "" {
			return fmt.Errorf("%w: weight %s/%s=%v", ErrInvalidRecord, w.Competency, w.Source, w.Weight)
		}
	}
	return s.update(func(d *dataset) { d.weights = append([]model.CompetencyWeight(nil), rows...) })
}

// PutExercises adds or replaces catalog entries.
func (s *MemoryStore) PutExercises(exercises ...model.Exercise) error {
	for _, ex := range exercises {
		if len(ex.Competencies) == 0 {
			return fmt.Errorf("%w: exercise %d has no competencies", ErrInvalidRecord, ex.ID)
		}
	}
	return s.update(func(d *dataset) {
		for _, ex := range exercises {
			d.putExercise(ex)
		}
	})
}

// Weights implements Provider.
func (s *MemoryStore) Weights(ctx context.Context) ([]model.CompetencyWeight, error) {
	d, done, err := s.load(ctx, "weights")
	if err != nil {
		return nil, err
	}
	defer done()
	return append([]model.CompetencyWeight(nil), d.weights...), nil
}

// Scores implements Provider.
func (s *MemoryStore) Scores(ctx context.Context, pilot model.PilotID) ([]model.RawScore, error) {
	d, done, err := s.load(ctx, "scores")
	if err != nil {
		return nil, err
	}
	defer done()
	if _, ok := d.pilots[pilot]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPilot, pilot)
	}
	return append([]model.RawScore(nil), d.scores[pilot]...), nil
}

// Catalog implements Provider.
func (s *MemoryStore) Catalog(ctx context.Context) ([]model.Exercise, error) {
	d, done, err := s.load(ctx, "catalog")
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]model.Exercise, len(d.catalog))
	for i, ex := range d.catalog {
		ex.Competencies = append([]model.CompetencyCode(nil), ex.Competencies...)
		out[i] = ex
	}
	return out, nil
}

// Counts implements Provider.
func (s *MemoryStore) Counts(ctx context.Context) (Counts, error) {
	d, done, err := s.load(ctx, "counts")
	if err != nil {
		return Counts{}, err
	}
	defer done()
	return d.counts(), nil
}

// Pilots returns the registered pilots ordered by id.
func (s *MemoryStore) Pilots(ctx context.Context) ([]Pilot, error) {
	d, done, err := s.load(ctx, "pilots")
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]Pilot, 0, len(d.pilots))
	for _, p := range d.pilots {
		out = append(out, p)
	}
	sortPilots(out)
	return out, nil
}

// Close rejects further calls.
func (s *MemoryStore) Close() error {
	s.closed.Store(true)
	return nil
}

func validateScore(r model.RawScore) error {
	if r.Score < model.MinRawScore || r.Score > model.MaxRawScore {
		return fmt.Errorf("%w: score %d for pilot %d out of range", ErrInvalidRecord, r.Score, r.PilotID)
	}
	if r.Competency == "" || r.Source == "" {
		return fmt.Errorf("%w: score for pilot %d lacks competency or source", ErrInvalidRecord, r.PilotID)
	}
	return nil
}
