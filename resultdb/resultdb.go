// Package resultdb persists simulation results in a SQLite database.
package resultdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/sarchlab/mdpsim/harness"
)

// RunRecord is one stored simulation run.
type RunRecord struct {
	bun.BaseModel `bun:"table:runs,alias:r"`

	ID       int64  `bun:",pk,autoincrement"`
	RunID    string `bun:",unique,notnull"`
	Workload string `bun:",notnull"`

	WindowSize          int
	PredictorSize       int
	SyncSize            int
	StoreResolveLatency int
	MemoryOnly          bool

	Instructions      int64
	Loads             int64
	Stores            int64
	Predictions       int64
	Mispredictions    int64
	Speculations      int64
	MisSpeculations   int64
	FalseDependencies int64
	LoadBufferTime    int64

	MispredictionRate   *float64
	MisSpeculationRate  *float64
	FalseDependencyRate *float64
	AvgLoadBufferTime   *float64

	SimulatedTime float64
	WallTimeNs    int64
	CreatedAt     time.Time `bun:",notnull"`
}

// Store is a SQLite-backed result repository.
type Store struct {
	db *bun.DB
}

// Option configures a Store.
type Option func(*Store)

// WithQueryLog prints every query to w.
func WithQueryLog(w io.Writer) Option {
	return func(s *Store) {
		s.db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.WithWriter(w),
		))
	}
}

// Open connects to the database at dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open result database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	s := &Store{
		db: bun.NewDB(sqldb, sqlitedialect.New()),
	}
	for _, opt := range opts {
		opt(s)
	}

	_, err = s.db.NewCreateTable().
		Model((*RunRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		s.db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// NewRecord flattens a result into a row.
func NewRecord(r *harness.Result) *RunRecord {
	p := r.Config.Predictor
	rep := r.Report

	return &RunRecord{
		RunID:    r.RunID,
		Workload: r.Workload,

		WindowSize:          p.WindowSize,
		PredictorSize:       p.PredictorSize,
		SyncSize:            p.SyncSize,
		StoreResolveLatency: p.StoreResolveLatency,
		MemoryOnly:          r.Config.MemoryOnly,

		Instructions:      int64(rep.Instructions),
		Loads:             int64(rep.Loads),
		Stores:            int64(rep.Stores),
		Predictions:       int64(rep.Predictions),
		Mispredictions:    int64(rep.Mispredictions),
		Speculations:      int64(rep.Speculations),
		MisSpeculations:   int64(rep.MisSpeculations),
		FalseDependencies: int64(rep.FalseDependencies),
		LoadBufferTime:    int64(rep.LoadBufferTime),

		MispredictionRate:   r.MispredictionRate,
		MisSpeculationRate:  r.MisSpeculationRate,
		FalseDependencyRate: r.FalseDependencyRate,
		AvgLoadBufferTime:   r.AvgLoadBufferTime,

		SimulatedTime: r.SimulatedTime,
		WallTimeNs:    r.WallTime.Nanoseconds(),
		CreatedAt:     time.Now(),
	}
}

// Save stores results in one transaction.
func (s *Store) Save(ctx context.Context, results ...*harness.Result) error {
	if len(results) == 0 {
		return nil
	}

	records := make([]*RunRecord, 0, len(results))
	for _, r := range results {
		records = append(records, NewRecord(r))
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&records).Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	return nil
}

// List returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]RunRecord, error) {
	var records []RunRecord

	q := s.db.NewSelect().Model(&records).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return records, nil
}

// ByWorkload returns every run of one workload, oldest first.
func (s *Store) ByWorkload(ctx context.Context, workload string) ([]RunRecord, error) {
	var records []RunRecord

	err := s.db.NewSelect().
		Model(&records).
		Where("workload = ?", workload).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs of %s: %w", workload, err)
	}

	return records, nil
}
