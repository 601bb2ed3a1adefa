package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hfchan/whalebot/internal/domain"
)

const archivePageSize = 1000

// ArchiveImpl implements domain.Archiver by paging old rows out of the
// database, serializing them to JSONL, and uploading the batch to S3.
//
// Audit rows are deleted after the upload succeeds, so the blob is the
// only remaining copy. Resolved positions are copied but kept in the
// database; they back the status endpoint's win/loss counters.
type ArchiveImpl struct {
	writer    domain.BlobWriter
	audit     domain.AuditStore
	positions domain.PositionStore
	now       func() time.Time
}

func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, positions domain.PositionStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:    writer,
		audit:     audit,
		positions: positions,
		now:       time.Now,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveAudit uploads audit rows older than the cutoff and prunes them
// from the database once the upload succeeds.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		rows, err := a.audit.ListBefore(ctx, before, domain.ListOpts{Limit: archivePageSize})
		if err != nil {
			return total, fmt.Errorf("s3blob: list audit rows: %w", err)
		}
		if len(rows) == 0 {
			return total, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return total, fmt.Errorf("s3blob: encode audit row %d: %w", row.ID, err)
			}
		}

		path := a.batchPath("audit", rows[len(rows)-1].CreatedAt)
		if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
			return total, err
		}

		// Prune only up to the batch boundary so rows never vanish
		// before their blob exists.
		deleted, err := a.audit.DeleteBefore(ctx, rows[len(rows)-1].CreatedAt.Add(time.Millisecond))
		if err != nil {
			return total, fmt.Errorf("s3blob: prune audit rows: %w", err)
		}
		total += deleted
		if len(rows) < archivePageSize {
			return total, nil
		}
	}
}

// ArchivePositions uploads resolved positions older than the cutoff.
func (a *ArchiveImpl) ArchivePositions(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	offset := 0
	for {
		rows, err := a.positions.ListResolvedBefore(ctx, before, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return total, fmt.Errorf("s3blob: list resolved positions: %w", err)
		}
		if len(rows) == 0 {
			return total, nil
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		for _, pos := range rows {
			if err := enc.Encode(pos); err != nil {
				return total, fmt.Errorf("s3blob: encode position %s: %w", pos.ID, err)
			}
		}

		path := a.batchPath("positions", a.now().UTC())
		if err := a.writer.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
			return total, err
		}

		total += int64(len(rows))
		if len(rows) < archivePageSize {
			return total, nil
		}
		offset += archivePageSize
	}
}

func (a *ArchiveImpl) batchPath(kind string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s-%d.jsonl",
		kind, t.UTC().Format("2006/01"), t.UTC().Format("20060102T150405"), t.UnixNano()%1000)
}
