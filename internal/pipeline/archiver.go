package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hfchan/whalebot/internal/config"
	"github.com/hfchan/whalebot/internal/domain"
)

// Archiver moves aged audit rows and long-resolved positions from the
// database to S3 cold storage on a fixed interval.
type Archiver struct {
	blob   domain.Archiver
	cfg    config.ArchiveConfig
	logger *slog.Logger
}

func NewArchiver(blob domain.Archiver, cfg config.ArchiveConfig, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:   blob,
		cfg:    cfg,
		logger: logger.With("component", "archiver"),
	}
}

// Run executes one archive pass.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.cfg.RetentionDays) * 24 * time.Hour)

	audits, err := a.blob.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive audit before %v: %w", cutoff, err)
	}

	positions, err := a.blob.ArchivePositions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archive positions before %v: %w", cutoff, err)
	}

	a.logger.Info("archive pass complete",
		"cutoff", cutoff,
		"audit_rows", audits,
		"positions", positions)
	return nil
}

// RunLoop archives on the configured interval until ctx is cancelled.
func (a *Archiver) RunLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive pass failed", "error", err)
			}
		}
	}
}
