package httpapi

import "net/http"

// NewMux returns the raw mux so main() can still attach /shutdown (needs srv+token).
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Rules
	rh := RulesHandler{
		CfgVal:      d.CfgVal,
		UserCfgPath: d.UserCfgPath,
		LoadCfg:     d.LoadCfg,
		Tracker:     d.Tracker,
	}
	mux.HandleFunc("/rules", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: rh.List,
		http.MethodPut: rh.Put,
	}))
	mux.HandleFunc("/rules/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:    rh.GetByPath, // /rules/{key} and /rules/{key}/stats
		http.MethodDelete: rh.DeleteByPath,
	}))

	// Runs and jobs
	jh := JobsHandler{Runner: d.Runner, Tracker: d.Tracker}
	mux.HandleFunc("/run", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: jh.Run,
	}))
	mux.HandleFunc("/jobs/current", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: jh.Current,
	}))
	mux.HandleFunc("/jobs/", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  jh.GetByPath,    // /jobs/{id}
		http.MethodPost: jh.CancelByPath, // /jobs/{id}/cancel
	}))

	// Secrets (use cfgVal, NOT a snapshot cfg)
	sh := SecretsHandler{}
	mux.HandleFunc("/secrets/", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetByPath, // /secrets/{provider}
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	hh := HealthHandler{}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	return mux
}
