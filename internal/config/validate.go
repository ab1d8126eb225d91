package config

import (
	"fmt"
	"regexp"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

var timeOfDayRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

var validStatuses = map[string]bool{"": true, "active": true, "dissolved": true, "liquidation": true}
var validTypes = map[string]bool{"": true, "ltd": true, "plc": true, "llp": true, "partnership": true}
var validFrequencies = map[string]bool{"daily": true, "weekly": true, "monthly": true}

// NormalizeAndValidate returns a normalized copy plus everything an admin UI
// should surface before the config is written back.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	out := cfg
	var res Validation

	if out.App.Port < 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 0..65535")
	}
	if out.Apollo.SafetyMargin < 0 || out.Apollo.SafetyMargin > 1 {
		res.addErr("apollo.safety_margin must be within 0..1")
	}
	if out.State.Backend != "" && out.State.Backend != "memory" && out.State.Backend != "sqlite" {
		res.addErr("state.backend must be memory or sqlite")
	}

	normalized := make(map[string]Rule, len(out.Rules))
	for key, r := range out.Rules {
		if strings.TrimSpace(r.Name) == "" {
			r.Name = key
		}

		// countries: trim, upper-case, dedupe
		seen := map[string]bool{}
		var countries []string
		for _, c := range r.Search.AllowedCountries {
			c = strings.ToUpper(strings.TrimSpace(c))
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			countries = append(countries, c)
		}
		r.Search.AllowedCountries = countries

		if len(r.Search.AllowedCountries) == 0 {
			res.addErr("rules.%s.search_parameters.allowed_countries must not be empty", key)
		}
		if !validStatuses[r.Search.CompanyStatus] {
			res.addErr("rules.%s.search_parameters.company_status %q is not one of active|dissolved|liquidation", key, r.Search.CompanyStatus)
		}
		if !validTypes[r.Search.CompanyType] {
			res.addErr("rules.%s.search_parameters.company_type %q is not one of ltd|plc|llp|partnership", key, r.Search.CompanyType)
		}
		if r.Search.MaxResults < 0 || r.Search.MaxResults > 1000 {
			res.addErr("rules.%s.search_parameters.max_results must be 0 (dynamic) or 1..1000", key)
		}
		if r.Search.DaysAgo == 0 && r.Search.MonthsAgo == 0 {
			res.addWarn("rules.%s has neither days_ago nor months_ago; defaulting to 30 days", key)
		}

		if r.Schedule.Enabled {
			if !validFrequencies[r.Schedule.Frequency] {
				res.addErr("rules.%s.schedule.frequency %q is not one of daily|weekly|monthly", key, r.Schedule.Frequency)
			}
			if !timeOfDayRe.MatchString(r.Schedule.Time) {
				res.addErr("rules.%s.schedule.time %q is not HH:MM", key, r.Schedule.Time)
			}
			if r.Schedule.Frequency == "weekly" && (r.Schedule.DayOfWeek < 1 || r.Schedule.DayOfWeek > 7) {
				res.addErr("rules.%s.schedule.day_of_week must be 1..7 for weekly rules", key)
			}
			if r.Schedule.Frequency == "monthly" && (r.Schedule.DayOfMonth < 1 || r.Schedule.DayOfMonth > 31) {
				res.addErr("rules.%s.schedule.day_of_month must be 1..31 for monthly rules", key)
			}
		}

		if r.Instantly.Enabled && strings.TrimSpace(r.Instantly.LeadListName) == "" {
			res.addErr("rules.%s.instantly.lead_list_name is required when instantly.enabled=true", key)
		}
		if r.Webhook.Enabled && strings.TrimSpace(r.Webhook.URL) == "" {
			res.addErr("rules.%s.webhook.url is required when webhook.enabled=true", key)
		}
		if r.Webhook.Enabled && r.Webhook.Secret == "" {
			res.addWarn("rules.%s.webhook has no secret; payloads will be unsigned", key)
		}

		normalized[key] = r
	}
	out.Rules = normalized

	return out, res
}
