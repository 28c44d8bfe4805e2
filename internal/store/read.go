package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/bowtie/internal/cases"
	"github.com/roach88/bowtie/internal/engine"
	"github.com/roach88/bowtie/internal/report"
	"github.com/roach88/bowtie/internal/result"
)

var (
	// ErrRunNotFound is returned when no run has the requested id.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoRunID is returned when saving a report whose header lacks a run id.
	ErrNoRunID = errors.New("report has no run id")
)

// RunSummary is one row of ListRuns.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	Dialect       string    `json:"dialect"`
	BowtieVersion string    `json:"bowtie_version"`
	Started       time.Time `json:"started"`
	Digest        string    `json:"digest"`
	Cases         int       `json:"cases"`
}

// ListRuns returns every stored run, oldest first.
// Ties on start time are broken by run id for deterministic output.
//
// Returns an empty slice (not nil) if nothing is stored.
func (s *Store) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.dialect, r.bowtie_version, r.started, r.digest,
		       (SELECT COUNT(*) FROM cases c WHERE c.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started ASC, r.run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var (
			rs      RunSummary
			started string
		)
		if err := rows.Scan(&rs.RunID, &rs.Dialect, &rs.BowtieVersion, &started, &rs.Digest, &rs.Cases); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if rs.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("run %s: parse started: %w", rs.RunID, err)
		}
		runs = append(runs, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// FindByDigest returns the ids of runs whose digest matches, oldest first.
func (s *Store) FindByDigest(ctx context.Context, digest string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id FROM runs
		WHERE digest = ?
		ORDER BY started ASC, run_id COLLATE BINARY ASC
	`, digest)
	if err != nil {
		return nil, fmt.Errorf("query digest: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate digest: %w", err)
	}
	return ids, nil
}

// LoadReport reassembles a stored run.
func (s *Store) LoadReport(ctx context.Context, runID string) (*report.Report, error) {
	b := report.NewBuilder()

	var (
		h                    report.Header
		started, impls, meta string
		summary              sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, dialect, bowtie_version, started, implementations, metadata, summary
		FROM runs WHERE run_id = ?
	`, runID).Scan(&h.RunID, &h.Dialect, &h.BowtieVersion, &started, &impls, &meta, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %q: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", runID, err)
	}
	if h.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return nil, fmt.Errorf("load %q: parse started: %w", runID, err)
	}
	if err := unmarshalText("implementations", impls, &h.Implementations); err != nil {
		return nil, fmt.Errorf("load %q: %w", runID, err)
	}
	if err := unmarshalText("metadata", meta, &h.Metadata); err != nil {
		return nil, fmt.Errorf("load %q: %w", runID, err)
	}
	b.SetHeader(h)

	if err := s.loadCases(ctx, runID, b); err != nil {
		return nil, err
	}
	if err := s.loadResults(ctx, runID, b); err != nil {
		return nil, err
	}

	if summary.Valid {
		var sum engine.Summary
		if err := unmarshalText("summary", summary.String, &sum); err != nil {
			return nil, fmt.Errorf("load %q: %w", runID, err)
		}
		b.SetSummary(sum)
	}
	return b.Report()
}

func (s *Store) loadCases(ctx context.Context, runID string, b *report.Builder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, body FROM cases
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq  int64
			body string
			tc   cases.TestCase
		)
		if err := rows.Scan(&seq, &body); err != nil {
			return fmt.Errorf("scan case: %w", err)
		}
		if err := unmarshalText("case", body, &tc); err != nil {
			return fmt.Errorf("seq %d: %w", seq, err)
		}
		if err := b.AddCase(cases.SeqCase{Seq: cases.Seq(seq), Case: tc}); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cases: %w", err)
	}
	return nil
}

func (s *Store) loadResults(ctx context.Context, runID string, b *report.Builder) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM results
		WHERE run_id = ?
		ORDER BY seq ASC, implementation COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			body string
			sr   result.SeqResult
		)
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("scan result: %w", err)
		}
		if err := unmarshalText("result", body, &sr); err != nil {
			return err
		}
		if err := b.AddResult(sr); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate results: %w", err)
	}
	return nil
}
