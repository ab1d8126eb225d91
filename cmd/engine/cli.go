package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"leadflow-engine/internal/config"
	"leadflow-engine/internal/jobs"
	"leadflow-engine/internal/runner"
)

// runCmd executes rules from the command line and reports counters on
// stdout. Partial outcomes still exit 0; config and orchestration errors
// exit non-zero.
func runCmd(a *app, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	ruleKey := fs.String("rule", "", "run this rule only")
	force := fs.Bool("force", false, "run even if the rule is disabled or not due")
	list := fs.Bool("list", false, "list due rules and exit")
	_ = fs.Parse(args)

	ctx := context.Background()

	if *list {
		var due []string
		for key, rule := range a.runner.Rules.AllRules() {
			if a.runner.IsDue(key, rule) {
				due = append(due, key)
			}
		}
		sort.Strings(due)
		if len(due) == 0 {
			fmt.Println("no rules due")
			return 0
		}
		for _, key := range due {
			fmt.Println(key)
		}
		return 0
	}

	if *ruleKey != "" {
		out, err := a.runner.ExecuteRule(ctx, *ruleKey, *force)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		printOutcome(*ruleKey, out)
		if out.Status == jobs.StatusFailed {
			return 1
		}
		return 0
	}

	outcomes := a.runner.ExecuteScheduled(ctx)
	if len(outcomes) == 0 {
		fmt.Println("no rules due")
		return 0
	}

	keys := make([]string, 0, len(outcomes))
	for key := range outcomes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	code := 0
	for _, key := range keys {
		printOutcome(key, outcomes[key])
		if outcomes[key].Status == jobs.StatusFailed {
			code = 1
		}
	}
	return code
}

func printOutcome(key string, out runner.Outcome) {
	fmt.Printf("%s: %s companies=%d contacts=%d added=%d in %dms",
		key, out.Status, out.CompaniesFound, out.ContactsFound, out.ContactsAdded, out.DurationMS)
	if out.RateLimitReached {
		fmt.Print(" (rate limit reached)")
	}
	if out.Error != "" {
		fmt.Printf(" error=%s", out.Error)
	}
	fmt.Println()
}

func rulesCmd(a *app, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: engine rules list|show|stats|test <key>")
		return 2
	}
	sub := args[0]
	args = args[1:]

	switch sub {
	case "list":
		rules := a.cfg().AllRules()
		keys := make([]string, 0, len(rules))
		for key := range rules {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			r := rules[key]
			state := "disabled"
			if r.Enabled {
				state = "enabled"
			}
			sched := "manual"
			if r.Schedule.Enabled {
				sched = r.Schedule.Frequency + " " + r.Schedule.Time
			}
			fmt.Printf("%-20s %-10s %-16s %s\n", key, state, sched, r.Name)
		}
		return 0

	case "show":
		rule, ok, code := ruleArg(a, args)
		if !ok {
			return code
		}
		b, err := yaml.Marshal(rule)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(b))
		return 0

	case "stats":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "usage: engine rules stats <key>")
			return 2
		}
		key := args[0]
		st := a.tracker.Stats(key)
		fmt.Printf("executions: %d (ok=%d failed=%d)\n", st.TotalExecutions, st.SuccessfulExecutions, st.FailedExecutions)
		fmt.Printf("totals:     companies=%d contacts=%d added=%d\n", st.TotalCompanies, st.TotalContacts, st.TotalAdded)
		fmt.Printf("avg time:   %dms\n", st.AvgDurationMS)
		if !st.LastRun.IsZero() {
			fmt.Printf("last run:   %s\n", st.LastRun.Format(time.RFC3339))
		}
		if !st.LastSuccess.IsZero() {
			fmt.Printf("last ok:    %s\n", st.LastSuccess.Format(time.RFC3339))
		}
		return 0

	case "test":
		rule, ok, code := ruleArg(a, args)
		if !ok {
			return code
		}
		key := args[0]
		fmt.Printf("rule:    %s (%s)\n", key, rule.Name)
		fmt.Printf("enabled: %v\n", rule.Enabled)
		fmt.Printf("search:  last %d days, status=%s type=%s countries=%s\n",
			rule.Search.EffectiveDaysAgo(), rule.Search.CompanyStatus, rule.Search.CompanyType,
			strings.Join(rule.Search.AllowedCountries, ","))
		if rule.Schedule.Enabled {
			fmt.Printf("due now: %v\n", a.runner.IsDue(key, rule))
		} else {
			fmt.Println("due now: no schedule (manual only)")
		}
		if last := a.tracker.LastRun(key); last != nil {
			fmt.Printf("last run: %s\n", last.Format(time.RFC3339))
		}
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (want list, show, stats or test)\n", sub)
		return 2
	}
}

func ruleArg(a *app, args []string) (rule config.Rule, ok bool, code int) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: engine rules <subcommand> <key>")
		return config.Rule{}, false, 2
	}
	r, found := a.cfg().GetRule(args[0])
	if !found {
		fmt.Fprintf(os.Stderr, "no rule with key %q\n", args[0])
		return config.Rule{}, false, 1
	}
	return r, true, 0
}
