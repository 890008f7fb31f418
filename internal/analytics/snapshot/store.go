// Package snapshot periodically records SearchStats for fixed windows in
// PostgreSQL so history survives index retention.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/statsgoblin/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/postgres"
)

// Snapshot is the stats of one closed period [PeriodStart, PeriodEnd).
type Snapshot struct {
	PeriodStart time.Time                     `json:"periodStart"`
	PeriodEnd   time.Time                     `json:"periodEnd"`
	Stats       analytics.SearchStatsResponse `json:"stats"`
	CreatedAt   time.Time                     `json:"createdAt"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS search_stats_snapshots (
		period_start TIMESTAMPTZ NOT NULL,
		period_end   TIMESTAMPTZ NOT NULL,
		data         JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (period_start, period_end)
	)`,
	`CREATE INDEX IF NOT EXISTS search_stats_snapshots_start_idx
		ON search_stats_snapshots (period_start DESC)`,
}

// Store persists snapshots in the search_stats_snapshots table.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "snapshot-store"),
	}
}

// EnsureSchema creates the table and index if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating snapshot schema: %w", err)
			}
		}
		return nil
	})
}

// Save upserts snap keyed by its period, so rerunning a window replaces the
// earlier row.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO search_stats_snapshots (period_start, period_end, data)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (period_start, period_end)
		 DO UPDATE SET data = EXCLUDED.data, created_at = NOW()`,
		snap.PeriodStart.UTC(), snap.PeriodEnd.UTC(), data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", snap.PeriodStart.Format(time.RFC3339), err)
	}
	s.logger.Info("snapshot saved",
		"period_start", snap.PeriodStart,
		"total_searches", snap.Stats.TotalSearches,
	)
	return nil
}

// List returns up to limit snapshots, newest period first.
func (s *Store) List(ctx context.Context, limit int) ([]Snapshot, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT period_start, period_end, data, created_at
		 FROM search_stats_snapshots
		 ORDER BY period_start DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		var (
			snap Snapshot
			data []byte
		)
		if err := rows.Scan(&snap.PeriodStart, &snap.PeriodEnd, &data, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "period_start", snap.PeriodStart, "error", err)
			continue
		}
		snap.PeriodStart = snap.PeriodStart.UTC()
		snap.PeriodEnd = snap.PeriodEnd.UTC()
		snap.CreatedAt = snap.CreatedAt.UTC()
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
