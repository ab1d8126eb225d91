// Package runner drives a rule end to end: registry search, per-company
// people discovery and enrichment, outreach upload, webhook notification —
// with rate-limit pauses, cooperative cancellation and partial outcomes.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"leadflow-engine/internal/config"
	"leadflow-engine/internal/domain"
	"leadflow-engine/internal/events"
	"leadflow-engine/internal/jobs"
	"leadflow-engine/internal/registry"
	"leadflow-engine/internal/schedule"
	"leadflow-engine/internal/state"
	"leadflow-engine/internal/webhook"
)

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleDisabled = errors.New("rule disabled (use force to run anyway)")
)

// RuleSource is a read-only snapshot of the rule config.
type RuleSource interface {
	GetRule(key string) (config.Rule, bool)
	AllRules() map[string]config.Rule
}

type RegistryAPI interface {
	SearchCompanies(ctx context.Context, f registry.SearchFilters, maxResults int) []domain.Company
	CheckConfirmationStatement(ctx context.Context, co domain.Company, maxPages int) (registry.Verdict, error)
}

type EnrichAPI interface {
	FindPeople(ctx context.Context, companyName string) ([]domain.Person, error)
	EnrichPeople(ctx context.Context, people []domain.Person) ([]domain.Contact, error)
	HourlyLimitApproaching(hourlyThreshold, minuteThreshold int) (bool, string)
	DynamicMaxResults() int
	ScrapeWebsiteEmails(ctx context.Context, url string) ([]string, error)
}

type OutreachAPI interface {
	GetOrCreateList(ctx context.Context, name string) (string, error)
	UploadContacts(ctx context.Context, listID string, contacts []domain.Contact) int
}

type NotifierAPI interface {
	Send(ctx context.Context, url, secret string, payload any) (webhook.Result, error)
}

type Options struct {
	InterCompanyDelay   time.Duration
	Cooldown            time.Duration
	RateLimitErrorLimit int // 429s in the trailing window before a cooldown
	HourlyStopThreshold int
	MinuteStopThreshold int
	MaxConcurrentRuns   int
	ConfirmationPages   int
}

func DefaultOptions() Options {
	return Options{
		InterCompanyDelay:   2 * time.Second,
		Cooldown:            300 * time.Second,
		RateLimitErrorLimit: 5,
		HourlyStopThreshold: 10,
		MinuteStopThreshold: 3,
		MaxConcurrentRuns:   3,
		ConfirmationPages:   3,
	}
}

// Outcome is the terminal record of one rule run.
type Outcome struct {
	JobID              string           `json:"job_id"`
	RuleKey            string           `json:"rule_key"`
	Status             string           `json:"status"`
	CompaniesFound     int              `json:"companies_found"`
	CompaniesProcessed int              `json:"companies_processed"`
	ContactsFound      int              `json:"contacts_found"`
	ContactsAdded      int              `json:"contacts_added"`
	RateLimitReached   bool             `json:"rate_limit_reached"`
	PartialExecution   bool             `json:"partial_execution"`
	DurationMS         int64            `json:"duration_ms"`
	ListName           string           `json:"list_name,omitempty"`
	Error              string           `json:"error,omitempty"`
	Contacts           []domain.Contact `json:"contacts,omitempty"`
}

type Runner struct {
	Rules    RuleSource
	Registry RegistryAPI
	Enrich   EnrichAPI
	Outreach OutreachAPI
	Notifier NotifierAPI
	Tracker  *jobs.Tracker
	Store    state.Store
	Hub      *events.Hub
	Opts     Options

	// injectable for tests
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration)
}

func New(rules RuleSource, reg RegistryAPI, enr EnrichAPI, out OutreachAPI, not NotifierAPI,
	tracker *jobs.Tracker, store state.Store, hub *events.Hub, opts Options) *Runner {
	return &Runner{
		Rules:    rules,
		Registry: reg,
		Enrich:   enr,
		Outreach: out,
		Notifier: not,
		Tracker:  tracker,
		Store:    store,
		Hub:      hub,
		Opts:     opts,
		Now:      time.Now,
		Sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *Runner) publish(jobID, typ string, data any) {
	if r.Hub != nil {
		r.Hub.Publish(events.MakeEvent(jobID, typ, data))
	}
}

func (r *Runner) lookupRule(key string, force bool) (config.Rule, error) {
	rule, ok := r.Rules.GetRule(key)
	if !ok {
		return config.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, key)
	}
	if !rule.Enabled && !force {
		return config.Rule{}, fmt.Errorf("%w: %s", ErrRuleDisabled, key)
	}
	return rule, nil
}

// ExecuteRule runs one rule to a terminal outcome. Configuration errors
// (unknown key, disabled without force) surface immediately without
// creating a job; everything past that point ends in a terminal job record.
func (r *Runner) ExecuteRule(ctx context.Context, key string, force bool) (Outcome, error) {
	rule, err := r.lookupRule(key, force)
	if err != nil {
		return Outcome{}, err
	}
	job := r.Tracker.Start(key, force)
	return r.execute(ctx, job, rule, key), nil
}

// ExecuteRuleAsync starts the job, then runs it detached from the caller's
// request. Cancellation happens through the tracker flag, not the context.
func (r *Runner) ExecuteRuleAsync(key string, force bool) (jobs.Job, error) {
	rule, err := r.lookupRule(key, force)
	if err != nil {
		return jobs.Job{}, err
	}
	job := r.Tracker.Start(key, force)
	go r.execute(context.Background(), job, rule, key)
	return job, nil
}

func (r *Runner) execute(ctx context.Context, job jobs.Job, rule config.Rule, key string) (out Outcome) {
	start := r.Now()
	log.Printf("[runner] rule=%s job=%s starting (force=%v)", key, job.ID, job.Force)
	r.publish(job.ID, events.TypeRunStarted, map[string]any{"rule_key": key})

	// A panic must still leave a terminal job record; detached runs have no
	// other failure path back to the tracker.
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[runner] rule=%s job=%s panicked: %v", key, job.ID, rec)
			out = Outcome{
				JobID:   job.ID,
				RuleKey: key,
				Status:  jobs.StatusFailed,
				Error:   fmt.Sprintf("panic: %v", rec),
			}
			out.DurationMS = r.Now().Sub(start).Milliseconds()
			r.finalize(job, key, start, out)
		}
	}()

	out = r.run(ctx, job, rule, key)
	out.DurationMS = r.Now().Sub(start).Milliseconds()
	r.finalize(job, key, start, out)
	return out
}

// finalize moves the job to its terminal state and emits the closing event.
func (r *Runner) finalize(job jobs.Job, key string, start time.Time, out Outcome) {
	res := &jobs.Result{
		CompaniesFound:   out.CompaniesFound,
		ContactsFound:    out.ContactsFound,
		ContactsAdded:    out.ContactsAdded,
		ExecutionTimeMS:  out.DurationMS,
		ListName:         out.ListName,
		RateLimitReached: out.RateLimitReached,
		PartialExecution: out.PartialExecution,
	}
	r.Tracker.Finish(job.ID, out.Status, res, out.Error)

	if out.Status != jobs.StatusCancelled {
		r.Tracker.SetLastRun(key, start)
	}
	r.Tracker.RecordExecution(jobs.ExecutionRecord{
		JobID:            job.ID,
		RuleKey:          key,
		Status:           out.Status,
		StartedAt:        start,
		DurationMS:       out.DurationMS,
		CompaniesFound:   out.CompaniesFound,
		ContactsFound:    out.ContactsFound,
		ContactsAdded:    out.ContactsAdded,
		RateLimitReached: out.RateLimitReached,
		PartialExecution: out.PartialExecution,
		Error:            out.Error,
	})

	typ := events.TypeRunFinished
	if out.Status == jobs.StatusFailed {
		typ = events.TypeRunFailed
	}
	r.publish(job.ID, typ, out)
	log.Printf("[runner] rule=%s job=%s %s: companies=%d contacts=%d added=%d in %dms",
		key, job.ID, out.Status, out.CompaniesFound, out.ContactsFound, out.ContactsAdded, out.DurationMS)
}

func (r *Runner) run(ctx context.Context, job jobs.Job, rule config.Rule, key string) Outcome {
	out := Outcome{JobID: job.ID, RuleKey: key, Status: jobs.StatusCompleted}

	maxResults := rule.Search.MaxResults
	if maxResults <= 0 {
		maxResults = r.Enrich.DynamicMaxResults()
		log.Printf("[runner] rule=%s dynamic max_results=%d", key, maxResults)
	}

	now := r.Now()
	filters := registry.SearchFilters{
		IncorporatedFrom: now.AddDate(0, 0, -rule.Search.EffectiveDaysAgo()),
		IncorporatedTo:   now,
		CompanyStatus:    rule.Search.CompanyStatus,
		CompanyType:      rule.Search.CompanyType,
	}

	// fail-soft search: nil means zero companies, never a failed rule
	companies := r.Registry.SearchCompanies(ctx, filters, maxResults)
	companies = filterByCountry(companies, rule.Search.AllowedCountries)
	out.CompaniesFound = len(companies)
	r.Tracker.SetProgress(job.ID, jobs.Progress{CompaniesFound: len(companies)})

	errWindow := newErrorWindow(r.Store, "apollo", r.Now)
	var contacts []domain.Contact

	for i, co := range companies {
		if r.Tracker.IsCancelled(job.ID) || ctx.Err() != nil {
			log.Printf("[runner] rule=%s job=%s cancelled after %d/%d companies", key, job.ID, i, len(companies))
			out.Status = jobs.StatusCancelled
			out.ContactsFound = len(contacts)
			out.Contacts = contacts
			return out
		}

		if errWindow.Count() >= r.Opts.RateLimitErrorLimit {
			log.Printf("[runner] rule=%s too many 429s, cooling down %s", key, r.Opts.Cooldown)
			r.Sleep(ctx, r.Opts.Cooldown)
			errWindow.Reset()
		}

		r.Tracker.SetProgress(job.ID, jobs.Progress{
			CompaniesFound:     len(companies),
			CompaniesProcessed: i,
			ContactsFound:      len(contacts),
			CurrentCompany:     co.Title,
		})

		found := r.processCompany(ctx, rule, co, errWindow)
		contacts = append(contacts, found...)
		out.CompaniesProcessed = i + 1

		r.publish(job.ID, events.TypeCompanyProcessed, map[string]any{
			"company": co.Title, "contacts": len(found),
		})

		if stop, reason := r.Enrich.HourlyLimitApproaching(r.Opts.HourlyStopThreshold, r.Opts.MinuteStopThreshold); stop {
			// quota fired on the last company: nothing was skipped, so the
			// run completed normally
			if i < len(companies)-1 {
				log.Printf("[runner] rule=%s stopping early: %s", key, reason)
				out.RateLimitReached = true
				out.PartialExecution = true
				out.Status = jobs.StatusPartial
			}
			break
		}

		if i < len(companies)-1 {
			r.Sleep(ctx, r.Opts.InterCompanyDelay)
		}
	}

	out.ContactsFound = len(contacts)
	out.Contacts = contacts
	r.Tracker.SetProgress(job.ID, jobs.Progress{
		CompaniesFound:     out.CompaniesFound,
		CompaniesProcessed: out.CompaniesProcessed,
		ContactsFound:      out.ContactsFound,
	})

	// upload and webhook are best-effort: neither changes the rule verdict
	if rule.Instantly.Enabled && len(contacts) > 0 {
		out.ListName = rule.Instantly.LeadListName
		listID, err := r.Outreach.GetOrCreateList(ctx, rule.Instantly.LeadListName)
		if err != nil {
			log.Printf("[runner] rule=%s lead list %q: %v", key, rule.Instantly.LeadListName, err)
		} else {
			out.ContactsAdded = r.Outreach.UploadContacts(ctx, listID, contacts)
		}
	}

	if rule.Webhook.Enabled {
		payload := buildWebhookPayload(rule, key, out, r.Now())
		res, err := r.Notifier.Send(ctx, rule.Webhook.URL, rule.Webhook.Secret, payload)
		if err != nil {
			log.Printf("[runner] rule=%s webhook config error: %v", key, err)
		} else if !res.Success {
			log.Printf("[runner] rule=%s webhook delivery failed: status=%d %s", key, res.StatusCode, res.Error)
		}
	}

	return out
}

// processCompany never fails the run: every error is logged, classified and
// skipped. Returns whatever contacts the company yielded.
func (r *Runner) processCompany(ctx context.Context, rule config.Rule, co domain.Company, ew *errorWindow) []domain.Contact {
	if rule.Search.CheckConfirmationStatement {
		verdict, err := r.Registry.CheckConfirmationStatement(ctx, co, r.Opts.ConfirmationPages)
		if err != nil {
			log.Printf("[runner] company=%s confirmation check failed, skipping: %v", co.CompanyNumber, err)
			r.noteRateLimit(err, ew)
			return nil
		}
		if !verdict.Missing {
			// only overdue companies are leads for these rules
			return nil
		}
	}

	people, err := r.Enrich.FindPeople(ctx, co.Title)
	if err != nil {
		log.Printf("[runner] company=%q people search failed, skipping: %v", co.Title, err)
		r.noteRateLimit(err, ew)
		return nil
	}
	if len(people) == 0 {
		return nil
	}

	contacts, err := r.Enrich.EnrichPeople(ctx, people)
	if err != nil {
		log.Printf("[runner] company=%q enrichment failed, skipping: %v", co.Title, err)
		r.noteRateLimit(err, ew)
		return nil
	}

	if len(contacts) == 0 && rule.Instantly.EnableEnrichment {
		contacts = r.websiteFallback(ctx, co, people)
	}

	for i := range contacts {
		if contacts[i].CompanyName == "" {
			contacts[i].CompanyName = co.Title
		}
	}
	return contacts
}

// websiteFallback scrapes the organization homepage when the API enriched
// nobody. Best-effort only.
func (r *Runner) websiteFallback(ctx context.Context, co domain.Company, people []domain.Person) []domain.Contact {
	site := ""
	for _, p := range people {
		if p.OrganizationWebsite != "" {
			site = p.OrganizationWebsite
			break
		}
	}
	if site == "" {
		return nil
	}

	emails, err := r.Enrich.ScrapeWebsiteEmails(ctx, site)
	if err != nil {
		log.Printf("[runner] company=%q website scrape failed: %v", co.Title, err)
		return nil
	}

	var out []domain.Contact
	for _, addr := range emails {
		out = append(out, domain.Contact{
			Email:       addr,
			CompanyName: co.Title,
			Source:      "website",
		})
	}
	if len(out) > 0 {
		log.Printf("[runner] company=%q website fallback found %d emails", co.Title, len(out))
	}
	return out
}

func (r *Runner) noteRateLimit(err error, ew *errorWindow) {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		ew.Record()
	}
}

func filterByCountry(companies []domain.Company, allowed []string) []domain.Company {
	if len(allowed) == 0 {
		return companies
	}
	set := make(map[string]bool, len(allowed))
	for _, c := range allowed {
		set[registry.NormalizeCountry(c)] = true
	}
	var out []domain.Company
	for _, co := range companies {
		if set[registry.NormalizeCountry(co.Address.Country)] {
			out = append(out, co)
		}
	}
	return out
}

func buildWebhookPayload(rule config.Rule, key string, out Outcome, now time.Time) map[string]any {
	contacts := out.Contacts
	if contacts == nil {
		contacts = []domain.Contact{}
	}
	return map[string]any{
		"event":     "rule_executed",
		"timestamp": now.UTC().Format(time.RFC3339),
		"rule": map[string]any{
			"key":         key,
			"name":        rule.Name,
			"description": rule.Description,
		},
		"results": map[string]any{
			"companies_found":    out.CompaniesFound,
			"contacts_found":     out.ContactsFound,
			"contacts_added":     out.ContactsAdded,
			"execution_time_ms":  out.DurationMS,
			"list_name":          out.ListName,
			"rate_limit_reached": out.RateLimitReached,
			"partial_execution":  out.PartialExecution,
		},
		"search_parameters": rule.Search,
		"contacts":          contacts,
	}
}

// IsDue applies the schedule predicate using the tracker's last-run marker.
func (r *Runner) IsDue(key string, rule config.Rule) bool {
	return schedule.Due(rule.Schedule, r.Tracker.LastRun(key), r.Now())
}
