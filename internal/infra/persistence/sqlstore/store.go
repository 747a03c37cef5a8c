// Package sqlstore implements domain.RecordStore over database/sql. The
// sqlite and postgres packages supply the driver and dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"immunocore/internal/entitymodel/sqlbundle"
	"immunocore/internal/infra/persistence/sqlfilter"
	"immunocore/pkg/domain"
)

var _ domain.RecordStore = (*Store)(nil)

// Dialect captures what differs between SQL backends.
type Dialect struct {
	Name        string
	DDL         string
	Placeholder sqlfilter.Placeholder
}

// Store is a RecordStore backed by a *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

var sampleColumns = []string{
	"sample", "project", "subject", "condition", "age", "sex", "treatment", "response",
	"sample_type", "time_from_treatment_start",
	"b_cell", "cd8_t_cell", "cd4_t_cell", "nk_cell", "monocyte",
}

var frequencyColumns = []string{"sample", "total_count", "population", "count", "percentage"}

// Open pings db and applies the dialect's schema. Failures are reported as
// *domain.StoreUnavailableError.
func Open(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, &domain.StoreUnavailableError{Driver: dialect.Name, Err: fmt.Errorf("ping: %w", err)}
	}
	if err := applyDDL(ctx, db, dialect.DDL); err != nil {
		return nil, &domain.StoreUnavailableError{Driver: dialect.Name, Err: err}
	}
	return &Store{db: db, dialect: dialect}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func applyDDL(ctx context.Context, exec execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *Store) marks(n, offset int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = s.dialect.Placeholder(offset + i + 1)
	}
	return strings.Join(out, ", ")
}

// Rebuild drops and recreates the data tables and bumps the store version in
// a single transaction.
func (s *Store) Rebuild(ctx context.Context, samples []domain.SampleRecord, frequencies []domain.FrequencyRow) (retErr error) {
	if err := domain.ValidateRecords(samples); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, table := range sqlbundle.DataTables {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if err := applyDDL(ctx, tx, s.dialect.DDL); err != nil {
		return err
	}

	insertSample := fmt.Sprintf("INSERT INTO cell_counts (%s) VALUES (%s)",
		strings.Join(sampleColumns, ", "), s.marks(len(sampleColumns), 0))
	for _, r := range samples {
		_, err := tx.ExecContext(ctx, insertSample,
			r.Sample, r.Project, r.Subject, r.Condition, r.Age, r.Sex, r.Treatment, r.Response,
			r.SampleType, r.TimeFromTreatmentStart,
			r.Counts.BCell, r.Counts.CD8TCell, r.Counts.CD4TCell, r.Counts.NKCell, r.Counts.Monocyte)
		if err != nil {
			return fmt.Errorf("insert sample %s: %w", r.Sample, err)
		}
	}

	insertFrequency := fmt.Sprintf("INSERT INTO cell_frequencies (%s) VALUES (%s)",
		strings.Join(frequencyColumns, ", "), s.marks(len(frequencyColumns), 0))
	for _, f := range frequencies {
		if _, err := tx.ExecContext(ctx, insertFrequency, f.Sample, f.TotalCount, string(f.Population), f.Count, f.Percentage); err != nil {
			return fmt.Errorf("insert frequency %s/%s: %w", f.Sample, f.Population, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE store_meta SET version = version + 1 WHERE id = 1"); err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	return nil
}

// QuerySamples implements domain.RecordStore.
func (s *Store) QuerySamples(ctx context.Context, spec domain.FilterSpec) ([]domain.SampleRecord, error) {
	where, args, err := sqlfilter.Where(spec, s.dialect.Placeholder)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM cell_counts WHERE %s ORDER BY sample", strings.Join(sampleColumns, ", "), where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.SampleRecord{}
	for rows.Next() {
		var r domain.SampleRecord
		if err := rows.Scan(&r.Sample, &r.Project, &r.Subject, &r.Condition, &r.Age, &r.Sex, &r.Treatment, &r.Response,
			&r.SampleType, &r.TimeFromTreatmentStart,
			&r.Counts.BCell, &r.Counts.CD8TCell, &r.Counts.CD4TCell, &r.Counts.NKCell, &r.Counts.Monocyte); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// ListFrequencies implements domain.RecordStore.
func (s *Store) ListFrequencies(ctx context.Context) ([]domain.FrequencyRow, error) {
	query := fmt.Sprintf("SELECT %s FROM cell_frequencies ORDER BY sample", strings.Join(frequencyColumns, ", "))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query frequencies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.FrequencyRow{}
	for rows.Next() {
		var (
			f          domain.FrequencyRow
			population string
		)
		if err := rows.Scan(&f.Sample, &f.TotalCount, &population, &f.Count, &f.Percentage); err != nil {
			return nil, fmt.Errorf("scan frequency: %w", err)
		}
		f.Population = domain.Population(population)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frequencies: %w", err)
	}
	return out, nil
}

// DistinctValues implements domain.RecordStore.
func (s *Store) DistinctValues(ctx context.Context, attr domain.Attribute) ([]string, error) {
	col, ok := sqlfilter.Column(attr)
	if !ok {
		return nil, &domain.FilterError{Attribute: attr, Reason: "unknown attribute"}
	}
	query := fmt.Sprintf("SELECT DISTINCT %[1]s FROM cell_counts WHERE %[1]s IS NOT NULL ORDER BY %[1]s", col)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", attr, err)
	}
	defer func() { _ = rows.Close() }()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", attr, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Version implements domain.RecordStore.
func (s *Store) Version(ctx context.Context) (uint64, error) {
	var v uint64
	err := s.db.QueryRowContext(ctx, "SELECT version FROM store_meta WHERE id = 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return v, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
