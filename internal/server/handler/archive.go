package handler

import (
	"log/slog"
	"net/http"

	"github.com/hfchan/whalebot/internal/domain"
)

// ArchiveHandler lists the cold-storage batches, so an operator can
// check what has been exported without S3 credentials at hand.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logger.With("handler", "archive"),
	}
}

// List returns archived batch metadata, optionally filtered by the
// ?prefix= query parameter ("audit/" or "positions/").
// GET /api/archives
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.Error("archive list failed", "prefix", prefix, "error", err)
		writeError(w, http.StatusBadGateway, "archive storage unavailable")
		return
	}

	out := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		out = append(out, map[string]any{
			"path":          info.Path,
			"size":          info.Size,
			"last_modified": info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(out),
		"batches": out,
	})
}
