package http

import (
	"net/http"

	"github.com/runlens/runlens/internal/service"
)

// handleIngestBatch accepts {post: [...], patch: [...]} and applies each item
// independently. The response enumerates per-item failures; the request as a
// whole is accepted whenever the store was reachable for at least the
// well-formed items.
func (h *Handlers) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	batch, ok := readJSON[service.Batch](w, r)
	if !ok {
		return
	}

	if len(batch.Post) == 0 && len(batch.Patch) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one post or patch")
		return
	}

	res, err := h.Ingest.Apply(r.Context(), &batch)
	if err != nil {
		writeDomainError(w, err, "batch rejected")
		return
	}

	writeJSON(w, http.StatusAccepted, res)
}
