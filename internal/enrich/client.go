// Package enrich talks to the Apollo API: people search, bulk email
// enrichment, and the quota accounting the orchestrator polls mid-run.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"leadflow-engine/internal/domain"
	"leadflow-engine/internal/ratelimit"
	"leadflow-engine/internal/state"
)

const (
	apiName        = "apollo"
	searchPageSize = 25
	batchSize      = 10
)

// QuotaConfig holds the plan limits and the fraction of them we allow
// ourselves to consume (headroom below the provider's hard ceiling).
type QuotaConfig struct {
	PerMinute    int
	Hourly       int
	Daily        int
	SafetyMargin float64
}

type Client struct {
	hc      *http.Client
	apiKey  string
	baseURL string
	gate    *ratelimit.Gate
	store   state.Store
	quota   QuotaConfig
	now     func() time.Time
}

func New(apiKey, baseURL string, gate *ratelimit.Gate, store state.Store, quota QuotaConfig) *Client {
	if quota.SafetyMargin <= 0 || quota.SafetyMargin > 1 {
		quota.SafetyMargin = 0.9
	}
	return &Client{
		hc:      &http.Client{Timeout: 20 * time.Second},
		apiKey:  apiKey,
		baseURL: baseURL,
		gate:    gate,
		store:   store,
		quota:   quota,
		now:     time.Now,
	}
}

type peopleSearchResponse struct {
	People []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		FirstName    string `json:"first_name"`
		LastName     string `json:"last_name"`
		Title        string `json:"title"`
		LinkedinURL  string `json:"linkedin_url"`
		Organization struct {
			ID         string `json:"id"`
			WebsiteURL string `json:"website_url"`
		} `json:"organization"`
	} `json:"people"`
}

// FindPeople searches for people at the named company. No matches is an
// empty slice, never an error; transport failures propagate.
func (c *Client) FindPeople(ctx context.Context, companyName string) ([]domain.Person, error) {
	body := map[string]any{
		"q_organization_name": companyName,
		"page":                1,
		"per_page":            searchPageSize,
	}

	var resp peopleSearchResponse
	if err := c.postJSON(ctx, "/api/v1/mixed_people/search", body, &resp); err != nil {
		return nil, err
	}

	people := make([]domain.Person, 0, len(resp.People))
	for _, p := range resp.People {
		people = append(people, domain.Person{
			ID:                  p.ID,
			Name:                p.Name,
			FirstName:           p.FirstName,
			LastName:            p.LastName,
			Title:               p.Title,
			OrganizationID:      p.Organization.ID,
			OrganizationWebsite: p.Organization.WebsiteURL,
			LinkedinURL:         p.LinkedinURL,
			CompanyName:         companyName,
		})
	}
	return people, nil
}

type bulkMatchResponse struct {
	Matches []struct {
		Name        string `json:"name"`
		FirstName   string `json:"first_name"`
		LastName    string `json:"last_name"`
		Email       string `json:"email"`
		Title       string `json:"title"`
		LinkedinURL string `json:"linkedin_url"`
	} `json:"matches"`
}

// EnrichPeople bulk-matches people in batches of 10, asking Apollo to reveal
// personal emails, and keeps only matches that came back with one. Entries
// without enough identity data (a display name, or first+last) are excluded
// from the request. Any batch failure aborts the whole call.
func (c *Client) EnrichPeople(ctx context.Context, people []domain.Person) ([]domain.Contact, error) {
	if len(people) == 0 {
		return []domain.Contact{}, nil
	}

	var contacts []domain.Contact
	for start := 0; start < len(people); start += batchSize {
		end := start + batchSize
		if end > len(people) {
			end = len(people)
		}
		batch := people[start:end]

		details := make([]map[string]any, 0, len(batch))
		byName := make(map[string]domain.Person, len(batch))
		for _, p := range batch {
			if !hasIdentity(p) {
				continue
			}
			d := map[string]any{}
			if p.Name != "" {
				d["name"] = p.Name
			}
			if p.FirstName != "" {
				d["first_name"] = p.FirstName
			}
			if p.LastName != "" {
				d["last_name"] = p.LastName
			}
			if p.OrganizationID != "" {
				d["organization_id"] = p.OrganizationID
			}
			details = append(details, d)
			byName[displayName(p)] = p
		}
		if len(details) == 0 {
			continue
		}

		var resp bulkMatchResponse
		path := "/api/v1/people/bulk_match?reveal_personal_emails=true"
		if err := c.postJSON(ctx, path, map[string]any{"details": details}, &resp); err != nil {
			return nil, fmt.Errorf("bulk match: %w", err)
		}

		for _, m := range resp.Matches {
			if m.Email == "" {
				continue
			}
			contact := domain.Contact{
				Name:        m.Name,
				FirstName:   m.FirstName,
				LastName:    m.LastName,
				Email:       m.Email,
				Title:       m.Title,
				LinkedinURL: m.LinkedinURL,
				Source:      "apollo",
			}
			if p, ok := byName[m.Name]; ok {
				contact.CompanyName = p.CompanyName
			}
			contacts = append(contacts, contact)
		}
	}
	return contacts, nil
}

func hasIdentity(p domain.Person) bool {
	return p.Name != "" || (p.FirstName != "" && p.LastName != "")
}

func displayName(p domain.Person) string {
	if p.Name != "" {
		return p.Name
	}
	return p.FirstName + " " + p.LastName
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	if err := c.gate.Wait(ctx, apiName); err != nil {
		return err
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	c.gate.RecordUsage(apiName, path)
	c.recordCall()

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("apollo post: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("apollo status 429 Too Many Requests")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("apollo status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("apollo decode: %w", err)
	}
	return nil
}
