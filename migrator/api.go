package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/animus-labs/animus-migrate/internal/consolidate"
	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/executor"
	"github.com/animus-labs/animus-migrate/internal/plan"
	"github.com/animus-labs/animus-migrate/internal/platform/httpserver"
	"github.com/animus-labs/animus-migrate/internal/service/migration"
)

type migrationAPI struct {
	logger          *slog.Logger
	svc             *migration.Service
	requestMaxBytes int64
}

func newMigrationAPI(logger *slog.Logger, svc *migration.Service, requestMaxBytes int64) *migrationAPI {
	if requestMaxBytes <= 0 {
		requestMaxBytes = 32 << 20
	}
	return &migrationAPI{logger: logger, svc: svc, requestMaxBytes: requestMaxBytes}
}

func (api *migrationAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/plans", api.handleCreatePlan)
	mux.HandleFunc("GET /v1/plans/current", api.handleGetPlan)
	mux.HandleFunc("POST /v1/plans/current/actions/{index}/apply", api.handleApplyAction)
	mux.HandleFunc("POST /v1/plans/current/apply", api.handleApplyAll)
	mux.HandleFunc("POST /v1/consolidations", api.handleConsolidate)
	mux.HandleFunc("GET /v1/status", api.handleStatus)
}

type createPlanRequest struct {
	Legacy      json.RawMessage  `json:"legacy"`
	Changes     json.RawMessage  `json:"changes"`
	Proposed    json.RawMessage  `json:"proposed,omitempty"`
	Reference   json.RawMessage  `json:"reference,omitempty"`
	Destination *domain.Document `json:"destination,omitempty"`
}

type createPlanResponse struct {
	Plan  json.RawMessage `json:"plan"`
	Valid bool            `json:"valid"`
}

func (api *migrationAPI) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := httpserver.DecodeJSON(r, api.requestMaxBytes, &req); err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_json", err)
		return
	}
	res, err := api.svc.Plan(r.Context(), migration.PlanInput{
		Legacy:      nonNull(req.Legacy),
		Changes:     nonNull(req.Changes),
		Proposed:    nonNull(req.Proposed),
		Reference:   nonNull(req.Reference),
		Destination: req.Destination,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	raw, err := plan.MarshalPlan(res.Plan)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, createPlanResponse{Plan: raw, Valid: res.Valid})
}

func (api *migrationAPI) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := api.svc.CurrentPlan(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	raw, err := plan.MarshalPlan(p)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, json.RawMessage(raw))
}

type actionResult struct {
	ActionIndex  int               `json:"action_index"`
	ActionKind   string            `json:"action_kind"`
	TargetID     string            `json:"target_id"`
	TargetName   string            `json:"target_name"`
	PatchUnit    *domain.PatchUnit `json:"patch_unit,omitempty"`
	Placeholders []string          `json:"placeholders,omitempty"`
	Notes        string            `json:"notes,omitempty"`
}

func actionResultFrom(res executor.Result) actionResult {
	return actionResult{
		ActionIndex:  res.ActionIndex,
		ActionKind:   string(res.ActionKind),
		TargetID:     res.TargetID,
		TargetName:   res.TargetName,
		PatchUnit:    res.Unit,
		Placeholders: res.Placeholders,
		Notes:        res.Notes,
	}
}

func (api *migrationAPI) handleApplyAction(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(strings.TrimSpace(r.PathValue("index")))
	if err != nil {
		httpserver.WriteError(w, r, http.StatusBadRequest, "invalid_index", err)
		return
	}
	res, err := api.svc.Apply(r.Context(), index)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, actionResultFrom(res))
}

type applyOutcome struct {
	ActionIndex int           `json:"action_index"`
	Status      string        `json:"status"`
	Result      *actionResult `json:"result,omitempty"`
	ErrorCode   string        `json:"error_code,omitempty"`
	Error       string        `json:"error,omitempty"`
}

type applyAllResponse struct {
	Outcomes []applyOutcome `json:"outcomes"`
	Applied  int            `json:"applied"`
	Failed   int            `json:"failed"`
}

func (api *migrationAPI) handleApplyAll(w http.ResponseWriter, r *http.Request) {
	outcomes, err := api.svc.ApplyAll(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	resp := applyAllResponse{Outcomes: make([]applyOutcome, 0, len(outcomes))}
	for _, o := range outcomes {
		out := applyOutcome{ActionIndex: o.ActionIndex, Status: "applied"}
		if o.Err != nil {
			_, code := statusFor(o.Err)
			out.Status = "failed"
			out.ErrorCode = code
			out.Error = o.Err.Error()
			resp.Failed++
		} else {
			res := actionResultFrom(o.Result)
			out.Result = &res
			resp.Applied++
		}
		resp.Outcomes = append(resp.Outcomes, out)
	}
	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (api *migrationAPI) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	stats, err := api.svc.Consolidate(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, struct {
		Stats consolidate.Stats `json:"stats"`
	}{Stats: stats})
}

type statusResponse struct {
	PlanID       string         `json:"plan_id,omitempty"`
	Actions      int            `json:"actions"`
	Counts       map[string]int `json:"counts"`
	Warnings     []string       `json:"warnings"`
	PendingUnits []int          `json:"pending_units"`
	Tests        int            `json:"tests"`
}

func (api *migrationAPI) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := api.svc.Status(r.Context())
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	counts := make(map[string]int, len(st.Counts))
	for k, v := range st.Counts {
		counts[string(k)] = v
	}
	httpserver.WriteJSON(w, http.StatusOK, statusResponse{
		PlanID:       st.PlanID,
		Actions:      st.Actions,
		Counts:       counts,
		Warnings:     st.Warnings,
		PendingUnits: st.PendingUnits,
		Tests:        st.Tests,
	})
}

func (api *migrationAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		api.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	httpserver.WriteError(w, r, status, code, err)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, migration.ErrNoPlan):
		return http.StatusNotFound, "plan_not_found"
	case errors.Is(err, migration.ErrPendingPatches):
		return http.StatusConflict, "patches_pending"
	case errors.Is(err, domain.ErrContextInvalid):
		return http.StatusBadRequest, "context_invalid"
	case errors.Is(err, domain.ErrPlanIndexOutOfRange):
		return http.StatusNotFound, "plan_index_out_of_range"
	case errors.Is(err, domain.ErrTargetNotFound):
		return http.StatusConflict, "target_not_found"
	case errors.Is(err, domain.ErrSchemaInvalid):
		return http.StatusUnprocessableEntity, "schema_invalid"
	case errors.Is(err, domain.ErrGenerationFailure):
		return http.StatusBadGateway, "generation_failure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func nonNull(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return raw
}
