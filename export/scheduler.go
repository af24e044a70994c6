package export

import (
	"context"
	"log/slog"
	"time"

	"stakevault/core"
)

// Source produces the snapshot to export.
type Source interface {
	Snapshot(ctx context.Context) (*core.Snapshot, error)
}

// Scheduler exports a snapshot on a fixed interval.
type Scheduler struct {
	source   Source
	dir      string
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(source Source, dir string, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{source: source, dir: dir, interval: interval, logger: logger}
}

// RunOnce takes and writes a single snapshot.
func (s *Scheduler) RunOnce(ctx context.Context) (*Manifest, error) {
	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	manifest, err := WriteSnapshot(s.dir, snap)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "ledger exported",
		slog.String("dir", manifest.Dir),
		slog.String("state_root", manifest.StateRoot),
		slog.Int("accounts", manifest.Files[AccountsFile]),
		slog.Int("claims", manifest.Files[ClaimsFile]))
	return manifest, nil
}

// Start exports every interval until ctx is cancelled. A non-positive
// interval returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.source == nil || s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.WarnContext(ctx, "ledger export failed", slog.Any("error", err))
			}
		}
	}
}
