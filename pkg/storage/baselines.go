package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zen-systems/helmsman/pkg/baseline"
)

// BaselineStore implements baseline.Store over the baselines table. The
// applied flag marks the current version; Publish and SetCurrent flip it
// inside one transaction so readers never observe two current versions.
type BaselineStore struct {
	db *sql.DB
}

const baselineColumns = "version, checksum, applied, parameters, lineage, created_at"

// EnsureSeed publishes seed (or baseline.Default when nil) if the table
// is empty. Opening an existing database leaves its history untouched.
func (s *BaselineStore) EnsureSeed(ctx context.Context, seed *baseline.Baseline) error {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM baselines").Scan(&n); err != nil {
		return fmt.Errorf("count baselines: %w", err)
	}
	if n > 0 {
		return nil
	}
	if seed == nil {
		seed = baseline.Default()
	}
	return s.Publish(ctx, seed)
}

// GetCurrent returns the version with the applied flag set.
func (s *BaselineStore) GetCurrent(ctx context.Context) (*baseline.Baseline, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+baselineColumns+" FROM baselines WHERE applied = 1")
	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &baseline.VersionNotFoundError{Version: "current"}
	}
	return b, err
}

// Get returns a stored version.
func (s *BaselineStore) Get(ctx context.Context, version string) (*baseline.Baseline, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+baselineColumns+" FROM baselines WHERE version = ?", version)
	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &baseline.VersionNotFoundError{Version: version}
	}
	return b, err
}

// History returns stored versions in reverse publish order (newest
// first), up to limit (0 = all).
func (s *BaselineStore) History(ctx context.Context, limit int) ([]*baseline.Baseline, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+baselineColumns+" FROM baselines ORDER BY rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query baselines: %w", err)
	}
	defer rows.Close()

	var out []*baseline.Baseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Publish validates the baseline, stamps checksum and creation time if
// missing, appends it, and flips the applied flag to it atomically.
func (s *BaselineStore) Publish(ctx context.Context, b *baseline.Baseline) error {
	if err := b.Validate(); err != nil {
		return err
	}

	stored := b.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.Checksum == "" {
		stored.Checksum = stored.ComputeChecksum()
	}

	parameters, lineage, err := encodeBaseline(stored)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM baselines WHERE version = ?", stored.Version).Scan(&exists); err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists > 0 {
		return &baseline.ConfigError{Field: "version", Reason: "version " + stored.Version + " already published"}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE baselines SET applied = 0 WHERE applied = 1"); err != nil {
		return fmt.Errorf("clear applied flag: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO baselines ("+baselineColumns+") VALUES (?, ?, 1, ?, ?, ?)",
		stored.Version, stored.Checksum, parameters, lineage,
		stored.CreatedAt.Format(timeFormat)); err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}
	return tx.Commit()
}

// SetCurrent repoints the applied flag to an existing version. Used by
// rollback; no new version is written.
func (s *BaselineStore) SetCurrent(ctx context.Context, version string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin repoint: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM baselines WHERE version = ?", version).Scan(&exists); err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return &baseline.VersionNotFoundError{Version: version}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE baselines SET applied = 0 WHERE applied = 1"); err != nil {
		return fmt.Errorf("clear applied flag: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE baselines SET applied = 1 WHERE version = ?", version); err != nil {
		return fmt.Errorf("set applied flag: %w", err)
	}
	return tx.Commit()
}

func encodeBaseline(b *baseline.Baseline) (parameters, lineage string, err error) {
	params := b.Clone()
	params.Lineage = nil
	pj, err := json.Marshal(params)
	if err != nil {
		return "", "", fmt.Errorf("marshal parameters: %w", err)
	}
	lin := b.Lineage
	if lin == nil {
		lin = []baseline.LineageEntry{}
	}
	lj, err := json.Marshal(lin)
	if err != nil {
		return "", "", fmt.Errorf("marshal lineage: %w", err)
	}
	return string(pj), string(lj), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBaseline(row rowScanner) (*baseline.Baseline, error) {
	var (
		version, checksum, parameters, lineage, createdAt string
		applied                                           int
	)
	if err := row.Scan(&version, &checksum, &applied, &parameters, &lineage, &createdAt); err != nil {
		return nil, err
	}

	var b baseline.Baseline
	if err := json.Unmarshal([]byte(parameters), &b); err != nil {
		return nil, fmt.Errorf("unmarshal baseline %s: %w", version, err)
	}
	if err := json.Unmarshal([]byte(lineage), &b.Lineage); err != nil {
		return nil, fmt.Errorf("unmarshal lineage %s: %w", version, err)
	}
	b.Version = version
	b.Checksum = checksum
	ts, err := time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %s: %w", version, err)
	}
	b.CreatedAt = ts
	return &b, nil
}
