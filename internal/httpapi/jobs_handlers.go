package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"leadflow-engine/internal/jobs"
	"leadflow-engine/internal/runner"
)

type JobsHandler struct {
	Runner  *runner.Runner
	Tracker *jobs.Tracker
}

type runReq struct {
	RuleKey string `json:"rule_key"`
	Force   bool   `json:"force"`
}

// Run kicks off a rule asynchronously and returns the job id for polling.
func (h JobsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.RuleKey == "" {
		http.Error(w, "rule_key is required", http.StatusBadRequest)
		return
	}

	job, err := h.Runner.ExecuteRuleAsync(req.RuleKey, req.Force)
	if err != nil {
		switch {
		case errors.Is(err, runner.ErrRuleNotFound):
			WriteError(w, r, http.StatusNotFound, "rule_not_found", err.Error())
		case errors.Is(err, runner.ErrRuleDisabled):
			WriteError(w, r, http.StatusConflict, "rule_disabled", err.Error())
		default:
			WriteError(w, r, http.StatusInternalServerError, "run_failed", err.Error())
		}
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID, "status": job.Status})
}

func (h JobsHandler) Current(w http.ResponseWriter, r *http.Request) {
	job, ok := h.Tracker.Current()
	if !ok {
		WriteError(w, r, http.StatusNotFound, "no_current_job", "no job has run recently")
		return
	}
	writeJSON(w, job)
}

func (h JobsHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "invalid job id", 400)
		return
	}
	job, ok := h.Tracker.Get(id)
	if !ok {
		WriteError(w, r, http.StatusNotFound, "job_not_found", "no job with id "+id)
		return
	}
	writeJSON(w, job)
}

// CancelByPath expects /jobs/{id}/cancel. Cancellation is cooperative: the
// runner notices the flag at its next checkpoint.
func (h JobsHandler) CancelByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	id, ok := strings.CutSuffix(rest, "/cancel")
	if !ok || id == "" || strings.Contains(id, "/") {
		http.Error(w, "not found", 404)
		return
	}
	if !h.Tracker.Cancel(id) {
		WriteError(w, r, http.StatusConflict, "not_cancellable", "job missing or already finished")
		return
	}
	writeJSON(w, map[string]any{"ok": true, "id": id})
}
