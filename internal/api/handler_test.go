package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mkoval/storecheck/internal/compare"
	"github.com/mkoval/storecheck/internal/inspect"
	"github.com/mkoval/storecheck/internal/repair"
	"github.com/mkoval/storecheck/internal/store"
)

// fakeService returns canned inspection results.
type fakeService struct {
	result inspect.Result
	health map[string]store.Health
}

func (f *fakeService) Inspect(ctx context.Context, id string) inspect.Result {
	res := f.result
	res.RecordID = id
	res.Report.RecordID = id
	return res
}

func (f *fakeService) Diff(ctx context.Context, id string) compare.Report {
	return f.Inspect(ctx, id).Report
}

func (f *fakeService) Batch(ctx context.Context, ids []string) []inspect.BatchResult {
	out := make([]inspect.BatchResult, len(ids))
	for i, id := range ids {
		out[i] = inspect.BatchResult{RecordID: id, Result: f.Inspect(ctx, id)}
	}
	return out
}

func (f *fakeService) Health(ctx context.Context) map[string]store.Health {
	return f.health
}

func testService() *fakeService {
	return &fakeService{
		result: inspect.Result{
			InspectionID: "insp-1",
			Snapshots: []store.Snapshot{
				{Store: "postgres", Family: store.FamilyRelational, Found: true, Checksum: "aaa"},
				{Store: "redis", Family: store.FamilyKV, Found: true, Checksum: "aaa"},
			},
			Report: compare.Report{Status: compare.StatusOK},
		},
		health: map[string]store.Health{
			"postgres": {OK: true},
			"redis":    {OK: false, Detail: "connection refused"},
		},
	}
}

func newTestHandler(deps Deps) http.Handler {
	if deps.Inspector == nil {
		deps.Inspector = testService()
	}
	if deps.Env == "" {
		deps.Env = "dev"
	}
	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(deps)
}

func doRequest(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestInspectRoute(t *testing.T) {
	h := newTestHandler(Deps{})
	w := doRequest(t, h, http.MethodGet, "/inspect/doc-1", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var res inspect.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.RecordID != "doc-1" || len(res.Snapshots) != 2 {
		t.Errorf("result = %+v", res)
	}
}

func TestDiffRouteOmitsSnapshots(t *testing.T) {
	h := newTestHandler(Deps{})
	w := doRequest(t, h, http.MethodGet, "/diff/doc-1", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := body["snapshots"]; ok {
		t.Error("diff response carries raw snapshots")
	}
	if body["status"] != "OK" {
		t.Errorf("status = %v", body["status"])
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestHandler(Deps{Token: "sekrit"})

	if w := doRequest(t, h, http.MethodGet, "/inspect/doc-1", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/inspect/doc-1", "wrong", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/inspect/doc-1", "sekrit", ""); w.Code != http.StatusOK {
		t.Errorf("good token: status = %d, want 200", w.Code)
	}
	// Health stays open for probes.
	if w := doRequest(t, h, http.MethodGet, "/health", "", ""); w.Code != http.StatusOK {
		t.Errorf("health: status = %d, want 200", w.Code)
	}
}

func TestEnvMismatchRejected(t *testing.T) {
	h := newTestHandler(Deps{Env: "prod"})

	if w := doRequest(t, h, http.MethodGet, "/inspect/doc-1?env=dev", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("mismatched env: status = %d, want 400", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/inspect/doc-1?env=prod", "", ""); w.Code != http.StatusOK {
		t.Errorf("matching env: status = %d, want 200", w.Code)
	}
	if w := doRequest(t, h, http.MethodGet, "/inspect/doc-1", "", ""); w.Code != http.StatusOK {
		t.Errorf("no env param: status = %d, want 200", w.Code)
	}
}

func TestBatchRoute(t *testing.T) {
	h := newTestHandler(Deps{})
	w := doRequest(t, h, http.MethodPost, "/batch", "", `{"ids":["doc-1","doc-2"]}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []inspect.BatchResult `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].RecordID != "doc-1" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestBatchRejectsBadRequests(t *testing.T) {
	h := newTestHandler(Deps{})

	if w := doRequest(t, h, http.MethodPost, "/batch", "", `{"ids":[]}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty ids: status = %d, want 400", w.Code)
	}
	if w := doRequest(t, h, http.MethodPost, "/batch", "", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", w.Code)
	}

	ids := make([]string, 501)
	for i := range ids {
		ids[i] = "doc"
	}
	body, _ := json.Marshal(map[string]any{"ids": ids})
	if w := doRequest(t, h, http.MethodPost, "/batch", "", string(body)); w.Code != http.StatusBadRequest {
		t.Errorf("oversized batch: status = %d, want 400", w.Code)
	}
}

func TestHealthRoute(t *testing.T) {
	h := newTestHandler(Deps{})
	w := doRequest(t, h, http.MethodGet, "/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Providers map[string]store.Health `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !body.Providers["postgres"].OK {
		t.Error("postgres should be OK")
	}
	if body.Providers["redis"].OK {
		t.Error("redis should not be OK")
	}
}

func TestRepairPlanRouteHiddenWithoutPlanner(t *testing.T) {
	h := newTestHandler(Deps{})
	if w := doRequest(t, h, http.MethodPost, "/repair/plan", "", `{"id":"doc-1"}`); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without a planner", w.Code)
	}
}

func TestRepairPlanRoute(t *testing.T) {
	svc := testService()
	svc.result.Snapshots = []store.Snapshot{
		{Store: "postgres", Found: true, Checksum: "aaa"},
		{Store: "redis", Found: false},
	}
	h := newTestHandler(Deps{Inspector: svc, Planner: repair.NewPlanner(false)})

	w := doRequest(t, h, http.MethodPost, "/repair/plan", "", `{"id":"doc-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var plan repair.Plan
	if err := json.Unmarshal(w.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decoding plan: %v", err)
	}
	if plan.RecordID != "doc-1" || len(plan.Actions) != 1 {
		t.Errorf("plan = %+v", plan)
	}
	if plan.Actions[0].Op != repair.OpCopy {
		t.Errorf("action = %+v, want copy", plan.Actions[0])
	}
}

func TestErrorShape(t *testing.T) {
	h := newTestHandler(Deps{Token: "sekrit"})
	w := doRequest(t, h, http.MethodGet, "/inspect/doc-1", "", "")

	var resp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error.Type != "authentication_error" || resp.Error.Message == "" {
		t.Errorf("error = %+v", resp.Error)
	}
}
