package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	rlhttp "github.com/runlens/runlens/internal/adapter/http"
	"github.com/runlens/runlens/internal/adapter/memory"
	"github.com/runlens/runlens/internal/bus"
	"github.com/runlens/runlens/internal/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	store := memory.NewStore()
	b := bus.New(128)
	t.Cleanup(b.Close)

	stats := service.NewStatsService(store, nil, time.Second)
	hierarchy := service.NewHierarchyService(store, 0, 0)
	query := service.NewQueryService(store, hierarchy, stats)
	ingest := service.NewIngestService(store, b, stats, nil)

	r := chi.NewRouter()
	rlhttp.MountRoutes(r, &rlhttp.Handlers{Ingest: ingest, Query: query})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func postBatch(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	resp, err := http.Post(srv.URL+"/api/v1/runs/batch", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post batch: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, decoded
}

func getJSON(t *testing.T, srv *httptest.Server, path string, out any) *http.Response {
	t.Helper()

	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp
}

func TestIngestBatch_Accepted(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postBatch(t, srv, `{
		"post": [
			{"id": "r1", "name": "session", "run_type": "chain", "project_name": "demo", "start_time": "2025-06-01T10:00:00Z"}
		]
	}`)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if string(body["applied"]) != "1" {
		t.Fatalf("expected applied=1, got %s", body["applied"])
	}
}

func TestIngestBatch_PartialFailureStillAccepted(t *testing.T) {
	srv := newTestServer(t)

	resp, body := postBatch(t, srv, `{
		"post": [
			{"id": "ok", "start_time": "2025-06-01T10:00:00Z"},
			{"id": "no-start"}
		]
	}`)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202 for partial failure, got %d", resp.StatusCode)
	}
	if string(body["applied"]) != "1" {
		t.Fatalf("expected applied=1, got %s", body["applied"])
	}

	var failed []struct {
		ID     string `json:"id"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body["failed"], &failed); err != nil {
		t.Fatalf("decode failed list: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "no-start" || failed[0].Reason == "" {
		t.Fatalf("unexpected failure list: %+v", failed)
	}
}

func TestIngestBatch_EmptyBatchRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postBatch(t, srv, `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestIngestBatch_MalformedJSON(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postBatch(t, srv, `{"post": [`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListRoots_FiltersAndPagination(t *testing.T) {
	srv := newTestServer(t)

	var posts []string
	for i := range 5 {
		posts = append(posts, fmt.Sprintf(
			`{"id": "root-%d", "name": "session %d", "project_name": "demo", "start_time": "2025-06-01T10:0%d:00Z"}`, i, i, i))
	}
	posts = append(posts,
		`{"id": "child", "parent_run_id": "root-0", "start_time": "2025-06-01T10:00:30Z"}`,
		`{"id": "other", "name": "unrelated", "project_name": "misc", "start_time": "2025-06-01T11:00:00Z"}`)
	postBatch(t, srv, `{"post": [`+strings.Join(posts, ",")+`]}`)

	var list struct {
		Runs []struct {
			ID string `json:"id"`
		} `json:"runs"`
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	}

	resp := getJSON(t, srv, "/api/v1/runs?project=demo&limit=3", &list)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if list.Total != 5 || len(list.Runs) != 3 || !list.HasMore {
		t.Fatalf("unexpected page: %+v", list)
	}
	// Newest first.
	if list.Runs[0].ID != "root-4" {
		t.Fatalf("expected newest root first, got %s", list.Runs[0].ID)
	}
	for _, r := range list.Runs {
		if r.ID == "child" {
			t.Fatal("child run leaked into root listing")
		}
	}

	resp = getJSON(t, srv, "/api/v1/runs?search=unrelated", &list)
	if resp.StatusCode != http.StatusOK || list.Total != 1 || list.Runs[0].ID != "other" {
		t.Fatalf("search filter failed: %+v", list)
	}
}

func TestListRoots_BadTimeParam(t *testing.T) {
	srv := newTestServer(t)

	resp := getJSON(t, srv, "/api/v1/runs?start_time_gte=yesterday", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", resp.StatusCode)
	}
}

func TestHierarchy_ResolvesTree(t *testing.T) {
	srv := newTestServer(t)

	postBatch(t, srv, `{"post": [
		{"id": "root", "name": "session", "start_time": "2025-06-01T10:00:00Z"},
		{"id": "a", "parent_run_id": "root", "start_time": "2025-06-01T10:00:01Z"},
		{"id": "b", "parent_run_id": "root", "start_time": "2025-06-01T10:00:02Z"},
		{"id": "a1", "parent_run_id": "a", "start_time": "2025-06-01T10:00:03Z"}
	]}`)

	var tree struct {
		RootRunID string `json:"root_run_id"`
		TotalRuns int    `json:"total_runs"`
		MaxDepth  int    `json:"max_depth"`
		Hierarchy struct {
			Children []struct {
				Run struct {
					ID string `json:"id"`
				} `json:"run"`
			} `json:"children"`
		} `json:"hierarchy"`
	}

	resp := getJSON(t, srv, "/api/v1/runs/root/hierarchy", &tree)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if tree.RootRunID != "root" || tree.TotalRuns != 4 || tree.MaxDepth != 3 {
		t.Fatalf("unexpected tree: %+v", tree)
	}
	if len(tree.Hierarchy.Children) != 2 || tree.Hierarchy.Children[0].Run.ID != "a" {
		t.Fatalf("unexpected children: %+v", tree.Hierarchy.Children)
	}
}

func TestHierarchy_UnknownRootIs404(t *testing.T) {
	srv := newTestServer(t)

	resp := getJSON(t, srv, "/api/v1/runs/ghost/hierarchy", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t)

	now := time.Now().UTC().Format(time.RFC3339)
	postBatch(t, srv, fmt.Sprintf(`{
		"post": [{"id": "r1", "project_name": "demo", "run_type": "chain", "start_time": %q}],
		"patch": [{"id": "r1", "end_time": %q}]
	}`, now, now))

	var sum struct {
		Stats struct {
			TotalRuns int            `json:"total_runs"`
			ByStatus  map[string]int `json:"by_status"`
			Recent    int            `json:"recent_runs"`
		} `json:"stats"`
		RecentProjects []struct {
			Project string `json:"project"`
		} `json:"recent_projects"`
	}

	resp := getJSON(t, srv, "/api/v1/dashboard/summary", &sum)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if sum.Stats.TotalRuns != 1 || sum.Stats.ByStatus["completed"] != 1 {
		t.Fatalf("unexpected stats: %+v", sum.Stats)
	}
	if sum.Stats.Recent != 1 {
		t.Fatalf("expected 1 recent run, got %d", sum.Stats.Recent)
	}
	if len(sum.RecentProjects) != 1 || sum.RecentProjects[0].Project != "demo" {
		t.Fatalf("unexpected projects: %+v", sum.RecentProjects)
	}
}

func TestPatchCompletesRunEndToEnd(t *testing.T) {
	srv := newTestServer(t)

	postBatch(t, srv, `{"post": [{"id": "r1", "name": "session", "start_time": "2025-06-01T10:00:00Z", "inputs": {"q": "hi"}}]}`)
	postBatch(t, srv, `{"patch": [{"id": "r1", "end_time": "2025-06-01T10:00:09Z", "outputs": {"a": "done"}}]}`)

	var list struct {
		Runs []struct {
			ID         string         `json:"id"`
			Status     string         `json:"status"`
			DurationMS *int64         `json:"duration_ms"`
			Inputs     map[string]any `json:"inputs"`
			Outputs    map[string]any `json:"outputs"`
		} `json:"runs"`
	}
	getJSON(t, srv, "/api/v1/runs", &list)

	if len(list.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(list.Runs))
	}
	got := list.Runs[0]
	if got.Status != "completed" {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.DurationMS == nil || *got.DurationMS != 9000 {
		t.Fatalf("unexpected duration: %v", got.DurationMS)
	}
	if got.Inputs["q"] != "hi" || got.Outputs["a"] != "done" {
		t.Fatalf("merge lost fields: %+v", got)
	}
}
