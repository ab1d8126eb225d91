package runner

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"leadflow-engine/internal/jobs"
)

// ExecuteScheduled runs every due rule as an independent worker. Per-rule
// failures are captured in the outcome map; one bad rule never aborts the
// batch.
func (r *Runner) ExecuteScheduled(ctx context.Context) map[string]Outcome {
	rules := r.Rules.AllRules()

	var mu sync.Mutex
	outcomes := make(map[string]Outcome)

	g, gctx := errgroup.WithContext(ctx)
	limit := r.Opts.MaxConcurrentRuns
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for key, rule := range rules {
		if !r.IsDue(key, rule) {
			continue
		}
		key := key
		g.Go(func() error {
			out, err := r.ExecuteRule(gctx, key, false)
			if err != nil {
				log.Printf("[runner] scheduled rule=%s failed: %v", key, err)
				out = Outcome{RuleKey: key, Status: jobs.StatusFailed, Error: err.Error()}
			}
			mu.Lock()
			outcomes[key] = out
			mu.Unlock()
			return nil // best-effort: don't cancel sibling rules
		})
	}
	_ = g.Wait()

	if len(outcomes) > 0 {
		log.Printf("[runner] scheduled pass executed %d rule(s)", len(outcomes))
	}
	return outcomes
}
