package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/port/runstore"
)

// handleListRoots serves the filtered, paginated root-run listing.
func (h *Handlers) handleListRoots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := runstore.Filter{
		Project: q.Get("project"),
		Status:  run.Status(q.Get("status")),
		Search:  q.Get("search"),
	}

	var ok bool
	if f.StartTimeGte, ok = parseTimeParam(w, q.Get("start_time_gte"), "start_time_gte"); !ok {
		return
	}
	if f.StartTimeLte, ok = parseTimeParam(w, q.Get("start_time_lte"), "start_time_lte"); !ok {
		return
	}

	p := runstore.Page{
		Limit:  parseIntParam(q.Get("limit"), 50),
		Offset: parseIntParam(q.Get("offset"), 0),
	}

	list, err := h.Query.ListRoots(r.Context(), f, p)
	if err != nil {
		writeDomainError(w, err, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleHierarchy serves the resolved run tree. An unknown root id is a 404,
// distinct from a known root with no children.
func (h *Handlers) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	tree, err := h.Query.Hierarchy(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// handleSummary serves the aggregate dashboard snapshot.
func (h *Handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Query.Summary(r.Context())
	if err != nil {
		writeDomainError(w, err, "summary failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func parseTimeParam(w http.ResponseWriter, value, name string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be RFC 3339")
		return nil, false
	}
	return &t, true
}

func parseIntParam(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
