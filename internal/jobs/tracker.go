// Package jobs tracks rule-run lifecycle in the state store: one record per
// job, a single last-write-wins "current job" pointer, per-rule execution
// history and rolling summary stats.
package jobs

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"leadflow-engine/internal/state"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "completed_partial"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

const (
	jobTTL       = time.Hour
	executionTTL = 24 * time.Hour
	historyTTL   = 30 * 24 * time.Hour
	lastRunTTL   = 7 * 24 * time.Hour

	historyCap = 50
)

type Progress struct {
	CompaniesFound     int    `json:"companies_found"`
	CompaniesProcessed int    `json:"companies_processed"`
	ContactsFound      int    `json:"contacts_found"`
	CurrentCompany     string `json:"current_company,omitempty"`
}

type Job struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	RuleKey     string    `json:"rule_key,omitempty"` // empty = "all due rules"
	Force       bool      `json:"force"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Progress    Progress  `json:"progress"`
	Cancelled   bool      `json:"cancelled"`
	Result      *Result   `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Result is the terminal payload surfaced to the UI and webhook.
type Result struct {
	CompaniesFound   int    `json:"companies_found"`
	ContactsFound    int    `json:"contacts_found"`
	ContactsAdded    int    `json:"contacts_added"`
	ExecutionTimeMS  int64  `json:"execution_time_ms"`
	ListName         string `json:"list_name,omitempty"`
	RateLimitReached bool   `json:"rate_limit_reached"`
	PartialExecution bool   `json:"partial_execution"`
}

type ExecutionRecord struct {
	JobID            string    `json:"job_id"`
	RuleKey          string    `json:"rule_key"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	DurationMS       int64     `json:"duration_ms"`
	CompaniesFound   int       `json:"companies_found"`
	ContactsFound    int       `json:"contacts_found"`
	ContactsAdded    int       `json:"contacts_added"`
	RateLimitReached bool      `json:"rate_limit_reached"`
	PartialExecution bool      `json:"partial_execution"`
	Error            string    `json:"error,omitempty"`
}

type SummaryStats struct {
	TotalExecutions      int       `json:"total_executions"`
	SuccessfulExecutions int       `json:"successful_executions"`
	FailedExecutions     int       `json:"failed_executions"`
	TotalCompanies       int       `json:"total_companies"`
	TotalContacts        int       `json:"total_contacts"`
	TotalAdded           int       `json:"total_added"`
	AvgDurationMS        int64     `json:"avg_duration_ms"`
	LastRun              time.Time `json:"last_run"`
	LastSuccess          time.Time `json:"last_success,omitempty"`
}

type Tracker struct {
	store state.Store
	now   func() time.Time
}

func NewTracker(store state.Store) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// NewTrackerAt is NewTracker with an injected clock.
func NewTrackerAt(store state.Store, now func() time.Time) *Tracker {
	return &Tracker{store: store, now: now}
}

func jobKey(id string) string      { return "job:" + id }
func historyKey(rule string) string { return "rule:history:" + rule }
func statsKey(rule string) string   { return "rule:stats:" + rule }
func lastRunKey(rule string) string { return "rule:lastrun:" + rule }

func newJobID(now time.Time) string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("job_%s_%d", hex.EncodeToString(b[:]), now.Unix())
}

// Start creates a running job and makes it the current one (last writer wins).
func (t *Tracker) Start(ruleKey string, force bool) Job {
	j := Job{
		ID:        newJobID(t.now()),
		Status:    StatusRunning,
		RuleKey:   ruleKey,
		Force:     force,
		StartedAt: t.now(),
	}
	t.put(j)
	t.store.Put("job:current", []byte(j.ID), jobTTL)
	return j
}

func (t *Tracker) Get(id string) (Job, bool) {
	var j Job
	ok := state.GetJSON(t.store, jobKey(id), &j)
	return j, ok
}

// Current returns the most recently started job, if it hasn't expired.
func (t *Tracker) Current() (Job, bool) {
	id, ok := t.store.Get("job:current")
	if !ok {
		return Job{}, false
	}
	return t.Get(string(id))
}

func (t *Tracker) put(j Job) {
	state.PutJSON(t.store, jobKey(j.ID), j, jobTTL)
}

func terminal(status string) bool {
	return status == StatusCompleted || status == StatusPartial ||
		status == StatusFailed || status == StatusCancelled
}

// SetProgress updates counters on a running job. No-op once terminal.
func (t *Tracker) SetProgress(id string, p Progress) {
	j, ok := t.Get(id)
	if !ok || terminal(j.Status) {
		return
	}
	j.Progress = p
	t.put(j)
}

// Cancel flags the job for cooperative cancellation. The runner observes the
// flag at its checkpoints; in-flight calls are never interrupted.
func (t *Tracker) Cancel(id string) bool {
	j, ok := t.Get(id)
	if !ok || terminal(j.Status) {
		return false
	}
	j.Cancelled = true
	t.put(j)
	return true
}

func (t *Tracker) IsCancelled(id string) bool {
	j, ok := t.Get(id)
	return ok && j.Cancelled
}

// Finish moves the job to a terminal status. A job already terminal is never
// re-transitioned.
func (t *Tracker) Finish(id, status string, res *Result, errMsg string) {
	j, ok := t.Get(id)
	if !ok || terminal(j.Status) {
		return
	}
	j.Status = status
	j.CompletedAt = t.now()
	j.Result = res
	j.Error = errMsg
	t.put(j)
	if res != nil {
		state.PutJSON(t.store, "execution:"+id, j, executionTTL)
	}
}

// SetLastRun stamps the rule's last-run marker.
func (t *Tracker) SetLastRun(ruleKey string, at time.Time) {
	state.PutJSON(t.store, lastRunKey(ruleKey), at, lastRunTTL)
}

func (t *Tracker) LastRun(ruleKey string) *time.Time {
	var at time.Time
	if !state.GetJSON(t.store, lastRunKey(ruleKey), &at) {
		return nil
	}
	return &at
}

// RecordExecution appends to the rule's bounded history and folds the run
// into its summary stats. Append-only: past entries are never rewritten.
func (t *Tracker) RecordExecution(rec ExecutionRecord) {
	var hist []ExecutionRecord
	state.GetJSON(t.store, historyKey(rec.RuleKey), &hist)
	hist = append(hist, rec)
	if len(hist) > historyCap {
		hist = hist[len(hist)-historyCap:]
	}
	state.PutJSON(t.store, historyKey(rec.RuleKey), hist, historyTTL)

	var st SummaryStats
	state.GetJSON(t.store, statsKey(rec.RuleKey), &st)

	// running average over all recorded executions
	total := st.AvgDurationMS*int64(st.TotalExecutions) + rec.DurationMS
	st.TotalExecutions++
	st.AvgDurationMS = total / int64(st.TotalExecutions)

	st.TotalCompanies += rec.CompaniesFound
	st.TotalContacts += rec.ContactsFound
	st.TotalAdded += rec.ContactsAdded
	st.LastRun = rec.StartedAt

	switch rec.Status {
	case StatusCompleted, StatusPartial:
		st.SuccessfulExecutions++
		st.LastSuccess = rec.StartedAt
	case StatusFailed:
		st.FailedExecutions++
	}
	state.PutJSON(t.store, statsKey(rec.RuleKey), st, historyTTL)
}

func (t *Tracker) History(ruleKey string) []ExecutionRecord {
	var hist []ExecutionRecord
	state.GetJSON(t.store, historyKey(ruleKey), &hist)
	return hist
}

func (t *Tracker) Stats(ruleKey string) SummaryStats {
	var st SummaryStats
	state.GetJSON(t.store, statsKey(ruleKey), &st)
	return st
}
