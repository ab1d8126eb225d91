package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type SearchParams struct {
	DaysAgo                    int      `yaml:"days_ago" json:"days_ago"`
	MonthsAgo                  int      `yaml:"months_ago,omitempty" json:"months_ago,omitempty"` // legacy, pre days_ago
	CompanyStatus              string   `yaml:"company_status" json:"company_status"`             // active|dissolved|liquidation
	CompanyType                string   `yaml:"company_type" json:"company_type"`                 // ltd|plc|llp|partnership
	AllowedCountries           []string `yaml:"allowed_countries" json:"allowed_countries"`
	MaxResults                 int      `yaml:"max_results" json:"max_results"` // 0 = dynamic quota
	CheckConfirmationStatement bool     `yaml:"check_confirmation_statement" json:"check_confirmation_statement"`
}

type Schedule struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	Frequency  string `yaml:"frequency" json:"frequency"` // daily|weekly|monthly
	Time       string `yaml:"time" json:"time"`           // HH:MM
	DayOfWeek  int    `yaml:"day_of_week,omitempty" json:"day_of_week,omitempty"`   // 1=Monday..7=Sunday
	DayOfMonth int    `yaml:"day_of_month,omitempty" json:"day_of_month,omitempty"` // 1..31
}

type InstantlyBundle struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	LeadListName     string `yaml:"lead_list_name" json:"lead_list_name"`
	EnableEnrichment bool   `yaml:"enable_enrichment" json:"enable_enrichment"`
}

type WebhookBundle struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url"`
	Secret  string `yaml:"secret,omitempty" json:"secret,omitempty"`
}

type Rule struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Enabled     bool            `yaml:"enabled" json:"enabled"`
	Search      SearchParams    `yaml:"search_parameters" json:"search_parameters"`
	Schedule    Schedule        `yaml:"schedule" json:"schedule"`
	Instantly   InstantlyBundle `yaml:"instantly" json:"instantly"`
	Webhook     WebhookBundle   `yaml:"webhook" json:"webhook"`
}

type Config struct {
	App struct {
		Port    int    `yaml:"port" json:"port"`
		DataDir string `yaml:"data_dir" json:"data_dir"`
	} `yaml:"app" json:"app"`

	CompaniesHouse struct {
		APIKey  string `yaml:"api_key" json:"api_key"`
		BaseURL string `yaml:"base_url" json:"base_url"`
	} `yaml:"companies_house" json:"companies_house"`

	Apollo struct {
		APIKey         string  `yaml:"api_key" json:"api_key"`
		BaseURL        string  `yaml:"base_url" json:"base_url"`
		PerMinuteLimit int     `yaml:"per_minute_limit" json:"per_minute_limit"`
		HourlyLimit    int     `yaml:"hourly_limit" json:"hourly_limit"`
		DailyLimit     int     `yaml:"daily_limit" json:"daily_limit"`
		SafetyMargin   float64 `yaml:"safety_margin" json:"safety_margin"` // fraction of plan limit we allow ourselves
	} `yaml:"apollo" json:"apollo"`

	Instantly struct {
		APIKey  string `yaml:"api_key" json:"api_key"`
		BaseURL string `yaml:"base_url" json:"base_url"`
	} `yaml:"instantly" json:"instantly"`

	Runner struct {
		MinIntervalMS          int `yaml:"min_interval_ms" json:"min_interval_ms"`                     // inter-request spacing per API
		InterCompanyDelaySecs  int `yaml:"inter_company_delay_seconds" json:"inter_company_delay_seconds"`
		CooldownSecs           int `yaml:"cooldown_seconds" json:"cooldown_seconds"`                   // pause after repeated 429s
		RateLimitErrorLimit    int `yaml:"rate_limit_error_limit" json:"rate_limit_error_limit"`       // 429s in the trailing window before cooldown
		HourlyStopThreshold    int `yaml:"hourly_stop_threshold" json:"hourly_stop_threshold"`         // remaining hourly quota that triggers early stop
		MinuteStopThreshold    int `yaml:"minute_stop_threshold" json:"minute_stop_threshold"`
		ScheduleCheckSecs      int `yaml:"schedule_check_seconds" json:"schedule_check_seconds"`
		MaxConcurrentRuleRuns  int `yaml:"max_concurrent_rule_runs" json:"max_concurrent_rule_runs"`
	} `yaml:"runner" json:"runner"`

	State struct {
		Backend string `yaml:"backend" json:"backend"` // memory|sqlite
		Path    string `yaml:"path" json:"path"`
	} `yaml:"state" json:"state"`

	Rules map[string]Rule `yaml:"rules" json:"rules"`
}

func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Port == 0 {
		cfg.App.Port = 38512
	}
	if cfg.CompaniesHouse.BaseURL == "" {
		cfg.CompaniesHouse.BaseURL = "https://api.company-information.service.gov.uk"
	}
	if cfg.Apollo.BaseURL == "" {
		cfg.Apollo.BaseURL = "https://api.apollo.io"
	}
	if cfg.Apollo.PerMinuteLimit == 0 {
		cfg.Apollo.PerMinuteLimit = 50
	}
	if cfg.Apollo.HourlyLimit == 0 {
		cfg.Apollo.HourlyLimit = 200
	}
	if cfg.Apollo.DailyLimit == 0 {
		cfg.Apollo.DailyLimit = 600
	}
	if cfg.Apollo.SafetyMargin == 0 {
		cfg.Apollo.SafetyMargin = 0.9
	}
	if cfg.Instantly.BaseURL == "" {
		cfg.Instantly.BaseURL = "https://api.instantly.ai"
	}
	if cfg.Runner.MinIntervalMS == 0 {
		cfg.Runner.MinIntervalMS = 500
	}
	if cfg.Runner.InterCompanyDelaySecs == 0 {
		cfg.Runner.InterCompanyDelaySecs = 2
	}
	if cfg.Runner.CooldownSecs == 0 {
		cfg.Runner.CooldownSecs = 300
	}
	if cfg.Runner.RateLimitErrorLimit == 0 {
		cfg.Runner.RateLimitErrorLimit = 5
	}
	if cfg.Runner.HourlyStopThreshold == 0 {
		cfg.Runner.HourlyStopThreshold = 10
	}
	if cfg.Runner.MinuteStopThreshold == 0 {
		cfg.Runner.MinuteStopThreshold = 3
	}
	if cfg.Runner.ScheduleCheckSecs == 0 {
		cfg.Runner.ScheduleCheckSecs = 60
	}
	if cfg.Runner.MaxConcurrentRuleRuns == 0 {
		cfg.Runner.MaxConcurrentRuleRuns = 3
	}
	if cfg.State.Backend == "" {
		cfg.State.Backend = "sqlite"
	}
}

// GetRule returns the rule for key from this config snapshot.
func (c Config) GetRule(key string) (Rule, bool) {
	r, ok := c.Rules[key]
	return r, ok
}

// AllRules returns a copy so callers can't mutate the snapshot.
func (c Config) AllRules() map[string]Rule {
	out := make(map[string]Rule, len(c.Rules))
	for k, v := range c.Rules {
		out[k] = v
	}
	return out
}

// EffectiveDaysAgo folds the legacy months_ago field into days.
func (p SearchParams) EffectiveDaysAgo() int {
	if p.DaysAgo > 0 {
		return p.DaysAgo
	}
	if p.MonthsAgo > 0 {
		return p.MonthsAgo * 30
	}
	return 30
}
