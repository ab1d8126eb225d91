package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"

	"leadflow-engine/internal/config"
	"leadflow-engine/internal/jobs"
)

type RulesHandler struct {
	CfgVal      *atomic.Value // stores config.Config
	UserCfgPath string
	LoadCfg     func() (config.Config, error)
	Tracker     *jobs.Tracker
}

func (h RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	cfg := h.CfgVal.Load().(config.Config)
	writeJSON(w, cfg.Rules)
}

// Put replaces the whole rule set, persists it atomically and reloads the
// running config.
func (h RulesHandler) Put(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var incoming map[string]config.Rule
	if err := dec.Decode(&incoming); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), 400)
		return
	}
	if dec.More() {
		http.Error(w, "invalid JSON: trailing data", 400)
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	cfg.Rules = incoming

	normalized, vr := config.NormalizeAndValidate(cfg)
	if !vr.OK() {
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}

	if err := config.SaveAtomic(h.UserCfgPath, normalized); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	saved, err := h.LoadCfg()
	if err != nil {
		http.Error(w, "saved but reload failed: "+err.Error(), 500)
		return
	}
	h.CfgVal.Store(saved)
	writeJSON(w, saved.Rules)
}

// GetByPath serves /rules/{key} and /rules/{key}/stats.
func (h RulesHandler) GetByPath(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/rules/")
	key, sub, _ := strings.Cut(rest, "/")
	if key == "" {
		http.Error(w, "missing rule key", 400)
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	rule, ok := cfg.GetRule(key)
	if !ok {
		WriteError(w, r, http.StatusNotFound, "rule_not_found", "no rule with key "+key)
		return
	}

	switch sub {
	case "":
		writeJSON(w, rule)
	case "stats":
		writeJSON(w, map[string]any{
			"stats":   h.Tracker.Stats(key),
			"history": h.Tracker.History(key),
		})
	default:
		http.Error(w, "not found", 404)
	}
}

func (h RulesHandler) DeleteByPath(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/rules/")
	if key == "" || strings.Contains(key, "/") {
		http.Error(w, "invalid rule key", 400)
		return
	}

	cfg := h.CfgVal.Load().(config.Config)
	if _, ok := cfg.Rules[key]; !ok {
		WriteError(w, r, http.StatusNotFound, "rule_not_found", "no rule with key "+key)
		return
	}

	rules := make(map[string]config.Rule, len(cfg.Rules))
	for k, v := range cfg.Rules {
		if k != key {
			rules[k] = v
		}
	}
	cfg.Rules = rules

	if err := config.SaveAtomic(h.UserCfgPath, cfg); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	saved, err := h.LoadCfg()
	if err != nil {
		http.Error(w, "saved but reload failed: "+err.Error(), 500)
		return
	}
	h.CfgVal.Store(saved)
	writeJSON(w, map[string]any{"ok": true, "key": key})
}
