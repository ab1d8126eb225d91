package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"leadflow-engine/internal/config"
	"leadflow-engine/internal/jobs"
	"leadflow-engine/internal/state"
)

func testRule() config.Rule {
	return config.Rule{
		Name:    "UK new LTDs",
		Enabled: true,
		Search: config.SearchParams{
			DaysAgo:          30,
			CompanyStatus:    "active",
			CompanyType:      "ltd",
			AllowedCountries: []string{"GB"},
			MaxResults:       50,
		},
	}
}

func newTestDeps(t *testing.T) (Deps, *jobs.Tracker) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	var cfg config.Config
	cfg.App.Port = 38512
	cfg.Rules = map[string]config.Rule{"uk": testRule()}
	if err := config.SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}

	loadCfg := func() (config.Config, error) { return config.Load(path) }
	loaded, err := loadCfg()
	if err != nil {
		t.Fatal(err)
	}

	var cfgVal atomic.Value
	cfgVal.Store(loaded)

	tracker := jobs.NewTracker(state.NewMemory())
	return Deps{
		Tracker:     tracker,
		CfgVal:      &cfgVal,
		UserCfgPath: path,
		LoadCfg:     loadCfg,
	}, tracker
}

func doReq(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRulesCRUD(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	w := doReq(t, mux, http.MethodGet, "/rules", "")
	if w.Code != 200 {
		t.Fatalf("GET /rules status=%d body=%s", w.Code, w.Body)
	}
	var rules map[string]config.Rule
	if err := json.Unmarshal(w.Body.Bytes(), &rules); err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules["uk"].Name != "UK new LTDs" {
		t.Fatalf("rules=%v", rules)
	}

	// replace the set with two rules
	second := testRule()
	second.Name = "UK PLCs"
	second.Search.CompanyType = "plc"
	rules["plc"] = second
	body, _ := json.Marshal(rules)

	w = doReq(t, mux, http.MethodPut, "/rules", string(body))
	if w.Code != 200 {
		t.Fatalf("PUT /rules status=%d body=%s", w.Code, w.Body)
	}

	w = doReq(t, mux, http.MethodGet, "/rules/plc", "")
	if w.Code != 200 {
		t.Fatalf("GET /rules/plc status=%d", w.Code)
	}

	// invalid rule set is rejected and not persisted
	bad := map[string]config.Rule{"bad": {Search: config.SearchParams{CompanyStatus: "zombie"}}}
	body, _ = json.Marshal(bad)
	w = doReq(t, mux, http.MethodPut, "/rules", string(body))
	if w.Code != 400 {
		t.Fatalf("invalid PUT status=%d", w.Code)
	}
	if w = doReq(t, mux, http.MethodGet, "/rules/plc", ""); w.Code != 200 {
		t.Fatal("rejected PUT must not clobber the rule set")
	}

	w = doReq(t, mux, http.MethodDelete, "/rules/plc", "")
	if w.Code != 200 {
		t.Fatalf("DELETE status=%d body=%s", w.Code, w.Body)
	}
	if w = doReq(t, mux, http.MethodGet, "/rules/plc", ""); w.Code != 404 {
		t.Fatalf("deleted rule still served: %d", w.Code)
	}

	if w = doReq(t, mux, http.MethodGet, "/rules/nope", ""); w.Code != 404 {
		t.Fatalf("missing rule status=%d", w.Code)
	}
}

func TestRuleStats(t *testing.T) {
	deps, tracker := newTestDeps(t)
	mux := NewMux(deps)

	tracker.RecordExecution(jobs.ExecutionRecord{RuleKey: "uk", Status: jobs.StatusCompleted, CompaniesFound: 3})

	w := doReq(t, mux, http.MethodGet, "/rules/uk/stats", "")
	if w.Code != 200 {
		t.Fatalf("status=%d", w.Code)
	}
	var resp struct {
		Stats   jobs.SummaryStats      `json:"stats"`
		History []jobs.ExecutionRecord `json:"history"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Stats.TotalExecutions != 1 || len(resp.History) != 1 {
		t.Fatalf("resp=%+v", resp)
	}
}

func TestJobsEndpoints(t *testing.T) {
	deps, tracker := newTestDeps(t)
	mux := NewMux(deps)

	if w := doReq(t, mux, http.MethodGet, "/jobs/current", ""); w.Code != 404 {
		t.Fatalf("empty current status=%d", w.Code)
	}

	job := tracker.Start("uk", false)

	w := doReq(t, mux, http.MethodGet, "/jobs/current", "")
	if w.Code != 200 {
		t.Fatalf("current status=%d", w.Code)
	}
	var got jobs.Job
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != job.ID || got.Status != jobs.StatusRunning {
		t.Fatalf("got=%+v", got)
	}

	if w = doReq(t, mux, http.MethodGet, "/jobs/"+job.ID, ""); w.Code != 200 {
		t.Fatalf("get by id status=%d", w.Code)
	}

	if w = doReq(t, mux, http.MethodPost, "/jobs/"+job.ID+"/cancel", ""); w.Code != 200 {
		t.Fatalf("cancel status=%d body=%s", w.Code, w.Body)
	}
	if !tracker.IsCancelled(job.ID) {
		t.Fatal("cancel flag not set")
	}

	tracker.Finish(job.ID, jobs.StatusCancelled, nil, "")
	if w = doReq(t, mux, http.MethodPost, "/jobs/"+job.ID+"/cancel", ""); w.Code != http.StatusConflict {
		t.Fatalf("cancel of finished job status=%d", w.Code)
	}

	if w = doReq(t, mux, http.MethodGet, "/jobs/job_missing_0", ""); w.Code != 404 {
		t.Fatalf("missing job status=%d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	if w := doReq(t, mux, http.MethodDelete, "/run", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	deps, _ := newTestDeps(t)
	mux := NewMux(deps)

	w := doReq(t, mux, http.MethodGet, "/health", "")
	if w.Code != 200 || !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
}
