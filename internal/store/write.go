package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/bowtie/internal/report"
)

// SaveReport writes a whole run in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency - saving the same run id twice
// keeps the first copy.
//
// The report's digest is stored alongside so equal runs can be found
// without loading them.
func (s *Store) SaveReport(ctx context.Context, r *report.Report) error {
	if r.Header.RunID == "" {
		return fmt.Errorf("save report: %w", ErrNoRunID)
	}

	digest, err := report.Digest(r)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	impls, err := marshalText("implementations", r.Header.Implementations)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	metadata := r.Header.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	meta, err := marshalText("metadata", metadata)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	var summary sql.NullString
	if r.Summary != nil {
		text, err := marshalText("summary", r.Summary)
		if err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		summary = sql.NullString{String: text, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, dialect, bowtie_version, started, implementations, metadata, summary, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO NOTHING
	`,
		r.Header.RunID,
		r.Header.Dialect,
		r.Header.BowtieVersion,
		r.Header.Started.UTC().Format(time.RFC3339Nano),
		impls,
		meta,
		summary,
		digest,
	)
	if err != nil {
		return fmt.Errorf("save report: insert run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for _, seq := range r.Seqs() {
		cr := r.Cases[seq]
		body, err := marshalText("case", cr.Case)
		if err != nil {
			return fmt.Errorf("save report: seq %d: %w", seq, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cases (run_id, seq, description, body)
			VALUES (?, ?, ?, ?)
		`, r.Header.RunID, int64(seq), cr.Case.Description, body); err != nil {
			return fmt.Errorf("save report: insert case %d: %w", seq, err)
		}

		for id, sr := range cr.Results {
			body, err := marshalText("result", sr)
			if err != nil {
				return fmt.Errorf("save report: seq %d %s: %w", seq, id, err)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO results (run_id, seq, implementation, body)
				VALUES (?, ?, ?, ?)
			`, r.Header.RunID, int64(seq), id, body); err != nil {
				return fmt.Errorf("save report: insert result %d %s: %w", seq, id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save report: commit: %w", err)
	}
	return nil
}

// DeleteRun removes a run with its cases and results.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("delete run %q: %w", runID, ErrRunNotFound)
	}
	return nil
}
