package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"leadflow-engine/internal/config"
	"leadflow-engine/internal/enrich"
	"leadflow-engine/internal/events"
	"leadflow-engine/internal/httpapi"
	"leadflow-engine/internal/jobs"
	"leadflow-engine/internal/outreach"
	"leadflow-engine/internal/ratelimit"
	"leadflow-engine/internal/registry"
	"leadflow-engine/internal/runner"
	"leadflow-engine/internal/secrets"
	"leadflow-engine/internal/state"
	"leadflow-engine/internal/webhook"
)

// cfgRules adapts the atomic config snapshot to the runner's rule source, so
// rule edits through the API take effect on the next run without a restart.
type cfgRules struct {
	v *atomic.Value
}

func (c cfgRules) GetRule(key string) (config.Rule, bool) {
	return c.v.Load().(config.Config).GetRule(key)
}

func (c cfgRules) AllRules() map[string]config.Rule {
	return c.v.Load().(config.Config).AllRules()
}

type app struct {
	dataDir     string
	userCfgPath string
	cfgVal      *atomic.Value // stores config.Config
	store       state.Store
	closeStore  func()
	hub         *events.Hub
	tracker     *jobs.Tracker
	runner      *runner.Runner
}

func (a *app) cfg() config.Config { return a.cfgVal.Load().(config.Config) }

func (a *app) loadCfg() (config.Config, error) {
	return config.Load(a.userCfgPath)
}

func buildApp() (*app, error) {
	// Engine data dir: use env if provided (the desktop shell passes one),
	// else local folder.
	dataDir := os.Getenv("LEADFLOW_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		return nil, fmt.Errorf("config bootstrap failed: %w", err)
	}

	cfg, err := config.Load(userCfgPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", userCfgPath, err)
	}
	var cfgVal atomic.Value
	cfgVal.Store(cfg)

	var store state.Store
	closeStore := func() {}
	switch cfg.State.Backend {
	case "memory":
		store = state.NewMemory()
	default:
		path := cfg.State.Path
		if path == "" {
			path = filepath.Join(dataDir, "leadflow.db")
		}
		db, err := state.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("state store open failed (%s): %w", path, err)
		}
		store = db
		closeStore = func() { _ = db.Close() }
	}

	chKey, err := secrets.APIKey(secrets.AccountCompaniesHouse, cfg.CompaniesHouse.APIKey)
	if err != nil {
		log.Printf("[engine] companies house: %v", err)
	}
	apolloKey, err := secrets.APIKey(secrets.AccountApollo, cfg.Apollo.APIKey)
	if err != nil {
		log.Printf("[engine] apollo: %v", err)
	}
	instantlyKey, err := secrets.APIKey(secrets.AccountInstantly, cfg.Instantly.APIKey)
	if err != nil {
		log.Printf("[engine] instantly: %v", err)
	}

	minInterval := time.Duration(cfg.Runner.MinIntervalMS) * time.Millisecond
	gate := ratelimit.NewGate(minInterval, store)
	gate.SetMinuteLimit("apollo", cfg.Apollo.PerMinuteLimit)

	reg := registry.New(chKey, cfg.CompaniesHouse.BaseURL, gate)
	enr := enrich.New(apolloKey, cfg.Apollo.BaseURL, gate, store, enrich.QuotaConfig{
		PerMinute:    cfg.Apollo.PerMinuteLimit,
		Hourly:       cfg.Apollo.HourlyLimit,
		Daily:        cfg.Apollo.DailyLimit,
		SafetyMargin: cfg.Apollo.SafetyMargin,
	})
	out := outreach.New(instantlyKey, cfg.Instantly.BaseURL, gate)
	notifier := webhook.New()

	hub := events.NewHub()
	tracker := jobs.NewTracker(store)

	opts := runner.Options{
		InterCompanyDelay:   time.Duration(cfg.Runner.InterCompanyDelaySecs) * time.Second,
		Cooldown:            time.Duration(cfg.Runner.CooldownSecs) * time.Second,
		RateLimitErrorLimit: cfg.Runner.RateLimitErrorLimit,
		HourlyStopThreshold: cfg.Runner.HourlyStopThreshold,
		MinuteStopThreshold: cfg.Runner.MinuteStopThreshold,
		MaxConcurrentRuns:   cfg.Runner.MaxConcurrentRuleRuns,
		ConfirmationPages:   runner.DefaultOptions().ConfirmationPages,
	}

	a := &app{
		dataDir:     dataDir,
		userCfgPath: userCfgPath,
		cfgVal:      &cfgVal,
		store:       store,
		closeStore:  closeStore,
		hub:         hub,
		tracker:     tracker,
	}
	a.runner = runner.New(cfgRules{&cfgVal}, reg, enr, out, notifier, tracker, store, hub, opts)
	return a, nil
}

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	a, err := buildApp()
	if err != nil {
		log.Fatal(err)
	}
	defer a.closeStore()

	switch cmd {
	case "serve":
		if err := serve(a); err != nil {
			log.Fatal(err)
		}
	case "run":
		os.Exit(runCmd(a, args))
	case "rules":
		os.Exit(rulesCmd(a, args))
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want serve, run or rules)\n", cmd)
		os.Exit(2)
	}
}

func serve(a *app) error {
	deps := httpapi.Deps{
		Runner:      a.runner,
		Tracker:     a.tracker,
		Hub:         a.hub,
		CfgVal:      a.cfgVal,
		UserCfgPath: a.userCfgPath,
		LoadCfg:     a.loadCfg,
	}
	mux := httpapi.NewMux(deps)

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg().App.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.RequestID, httpapi.Recover, httpapi.AccessLog, httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}

	token, err := randomToken(16)
	if err != nil {
		return err
	}
	mux.HandleFunc("/shutdown", shutdownHandler(&token, srv))
	log.Printf("[engine] shutdown token: %s", token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduleLoop(ctx, a)
	go sweepLoop(ctx, a.store)

	log.Printf("[engine] listening on http://%s (config=%s)", addr, a.userCfgPath)
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// scheduleLoop wakes periodically and runs whatever rules are due.
func scheduleLoop(ctx context.Context, a *app) {
	interval := time.Duration(a.cfg().Runner.ScheduleCheckSecs) * time.Second
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.runner.ExecuteScheduled(ctx)
		}
	}
}

// sweepLoop evicts expired state entries so the sqlite file doesn't grow
// unbounded. Memory stores evict lazily and ignore the sweep.
func sweepLoop(ctx context.Context, store state.Store) {
	s, ok := store.(*state.SQLite)
	if !ok {
		return
	}
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}
