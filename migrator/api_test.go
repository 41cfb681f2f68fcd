package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/animus-labs/animus-migrate/internal/auditlog"
	"github.com/animus-labs/animus-migrate/internal/generate"
	"github.com/animus-labs/animus-migrate/internal/normalize"
	"github.com/animus-labs/animus-migrate/internal/storage"
)

const createPlanBody = `{
	"legacy": [{"source_id": "S1", "children": [
		{"test_name": "Apariencia"},
		{"test_name": "pH"},
		{"test_name": "Valoración"}
	]}],
	"changes": {
		"modify_or_delete_items": [
			{"index": 1, "affected_name": "pH", "kind": "modify", "text": "Tighten range"},
			{"index": 2, "affected_name": "Valoracion", "kind": "delete", "text": "Replaced by HPLC"}
		],
		"new_items": [{"index": 3, "name": "HPLC", "text": "Add assay"}]
	},
	"proposed": [
		{"test_name": "pH", "method": "USP <791>", "specification": "5.5 - 6.5", "procedure": "25 C"},
		{"test_name": "HPLC", "id": "P-9", "method": "Gradient", "specification": "NMT 0.5%", "procedure": "Inject 10 uL"}
	],
	"destination": {
		"metadata": {"product": "Tablets 10 mg"},
		"tests": [
			{"id": "T-1", "name": "Apariencia", "method": "Visual", "specification": "White tablet", "procedure": "Inspect"},
			{"id": "T-2", "name": "pH", "method": "USP <791>", "specification": "5.0 - 7.0", "procedure": "25 C"},
			{"id": "T-3", "name": "Valoración", "method": "Titration", "specification": "95 - 105%", "procedure": "Titrate"}
		]
	}
}`

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := buildService(storage.NewMemory(), normalize.DefaultProfile(), generate.Carryover{}, auditlog.Discard{}, nil, 2, logger)
	if err != nil {
		t.Fatalf("buildService() err=%v", err)
	}
	mux := http.NewServeMux()
	newMigrationAPI(logger, svc, 0).register(mux)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &body)
	return body.Error
}

func TestCreatePlanReturnsPlan(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/v1/plans", createPlanBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want %d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var resp struct {
		Plan struct {
			PlanID  string `json:"plan_id"`
			Actions []struct {
				Order      int    `json:"order"`
				ActionKind string `json:"action_kind"`
				TargetName string `json:"target_name"`
			} `json:"actions"`
		} `json:"plan"`
		Valid bool `json:"valid"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Valid {
		t.Fatalf("valid=false, want true")
	}
	if resp.Plan.PlanID == "" {
		t.Fatalf("plan_id empty")
	}
	want := []string{"keep", "edit", "delete", "add"}
	if len(resp.Plan.Actions) != len(want) {
		t.Fatalf("actions=%d, want %d", len(resp.Plan.Actions), len(want))
	}
	for i, a := range resp.Plan.Actions {
		if a.ActionKind != want[i] || a.Order != i+1 {
			t.Fatalf("actions[%d]=(%d, %s), want (%d, %s)", i, a.Order, a.ActionKind, i+1, want[i])
		}
	}

	rec = do(t, mux, http.MethodGet, "/v1/plans/current", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get plan status=%d, want %d", rec.Code, http.StatusOK)
	}
	var current struct {
		PlanID string `json:"plan_id"`
	}
	decodeBody(t, rec, &current)
	if current.PlanID != resp.Plan.PlanID {
		t.Fatalf("plan_id=%q, want %q", current.PlanID, resp.Plan.PlanID)
	}
}

func TestCreatePlanRejectsMalformedInput(t *testing.T) {
	mux := newTestMux(t)

	rec := do(t, mux, http.MethodPost, "/v1/plans", `{"legacy": [`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusBadRequest)
	}
	if got := errorCode(t, rec); got != "invalid_json" {
		t.Fatalf("error=%q, want invalid_json", got)
	}

	rec = do(t, mux, http.MethodPost, "/v1/plans", `{"legacy": 42, "changes": {}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d body=%s", rec.Code, http.StatusBadRequest, rec.Body.String())
	}
	if got := errorCode(t, rec); got != "context_invalid" {
		t.Fatalf("error=%q, want context_invalid", got)
	}
}

func TestPlanEndpointsWithoutPlan(t *testing.T) {
	mux := newTestMux(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/plans/current"},
		{http.MethodPost, "/v1/plans/current/actions/0/apply"},
		{http.MethodPost, "/v1/plans/current/apply"},
	} {
		rec := do(t, mux, tc.method, tc.path, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s status=%d, want %d", tc.method, tc.path, rec.Code, http.StatusNotFound)
		}
		if got := errorCode(t, rec); got != "plan_not_found" {
			t.Fatalf("%s %s error=%q, want plan_not_found", tc.method, tc.path, got)
		}
	}
}

func TestApplyActionErrors(t *testing.T) {
	mux := newTestMux(t)
	if rec := do(t, mux, http.MethodPost, "/v1/plans", createPlanBody); rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec := do(t, mux, http.MethodPost, "/v1/plans/current/actions/abc/apply", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusBadRequest)
	}
	rec = do(t, mux, http.MethodPost, "/v1/plans/current/actions/9/apply", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want %d", rec.Code, http.StatusNotFound)
	}
	if got := errorCode(t, rec); got != "plan_index_out_of_range" {
		t.Fatalf("error=%q, want plan_index_out_of_range", got)
	}
}

func TestApplyAndConsolidateFlow(t *testing.T) {
	mux := newTestMux(t)
	if rec := do(t, mux, http.MethodPost, "/v1/plans", createPlanBody); rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec := do(t, mux, http.MethodPost, "/v1/plans/current/actions/1/apply", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("apply status=%d body=%s", rec.Code, rec.Body.String())
	}
	var single actionResult
	decodeBody(t, rec, &single)
	if single.ActionKind != "edit" || single.PatchUnit == nil {
		t.Fatalf("apply result=%+v, want edit with patch unit", single)
	}

	rec = do(t, mux, http.MethodPost, "/v1/plans/current/apply", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("apply all status=%d body=%s", rec.Code, rec.Body.String())
	}
	var all applyAllResponse
	decodeBody(t, rec, &all)
	if all.Applied != 4 || all.Failed != 0 {
		t.Fatalf("applied=%d failed=%d, want 4 and 0: %+v", all.Applied, all.Failed, all.Outcomes)
	}

	rec = do(t, mux, http.MethodPost, "/v1/plans", createPlanBody)
	if rec.Code != http.StatusConflict {
		t.Fatalf("replan status=%d, want %d", rec.Code, http.StatusConflict)
	}
	if got := errorCode(t, rec); got != "patches_pending" {
		t.Fatalf("error=%q, want patches_pending", got)
	}

	rec = do(t, mux, http.MethodGet, "/v1/status", "")
	var st statusResponse
	decodeBody(t, rec, &st)
	if len(st.PendingUnits) != 3 {
		t.Fatalf("pending_units=%v, want 3 units", st.PendingUnits)
	}

	rec = do(t, mux, http.MethodPost, "/v1/consolidations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("consolidate status=%d body=%s", rec.Code, rec.Body.String())
	}
	var cons struct {
		Stats struct {
			Units int `json:"units"`
		} `json:"stats"`
	}
	decodeBody(t, rec, &cons)
	if cons.Stats.Units != 3 {
		t.Fatalf("units=%d, want 3", cons.Stats.Units)
	}

	rec = do(t, mux, http.MethodGet, "/v1/status", "")
	st = statusResponse{}
	decodeBody(t, rec, &st)
	if len(st.PendingUnits) != 0 || st.Tests != 3 {
		t.Fatalf("status=%+v, want no pending units and 3 tests", st)
	}
}
