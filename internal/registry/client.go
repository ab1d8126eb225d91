// Package registry talks to the Companies House API: advanced company
// search and confirmation-statement filing checks.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"leadflow-engine/internal/domain"
	"leadflow-engine/internal/ratelimit"
)

const (
	apiName  = "companies_house"
	pageSize = 100
)

type Client struct {
	hc      *http.Client
	apiKey  string
	baseURL string
	gate    *ratelimit.Gate
}

func New(apiKey, baseURL string, gate *ratelimit.Gate) *Client {
	return &Client{
		hc:      &http.Client{Timeout: 15 * time.Second},
		apiKey:  apiKey,
		baseURL: baseURL,
		gate:    gate,
	}
}

type SearchFilters struct {
	IncorporatedFrom time.Time
	IncorporatedTo   time.Time
	CompanyStatus    string // active|dissolved|liquidation, empty = any
	CompanyType      string // ltd|plc|llp|partnership, empty = any
}

type searchPage struct {
	Hits  int              `json:"hits"`
	Items []domain.Company `json:"items"`
}

// SearchCompanies pages through advanced search until maxResults is reached,
// the provider runs out of items, or a short page signals the end.
//
// Fail-soft: transport and decode errors are logged, never returned. An
// error on the first page yields nil ("zero companies found"); an error on
// a later page stops the scan and keeps the pages already fetched.
func (c *Client) SearchCompanies(ctx context.Context, f SearchFilters, maxResults int) []domain.Company {
	if maxResults <= 0 {
		return nil
	}

	var out []domain.Company
	startIndex := 0

	for len(out) < maxResults {
		if startIndex > 0 {
			if err := c.gate.Wait(ctx, apiName); err != nil {
				log.Printf("[registry] search wait: %v", err)
				return out
			}
		}

		page, err := c.searchPage(ctx, f, startIndex)
		if err != nil {
			log.Printf("[registry] search failed at index %d: %v", startIndex, err)
			if startIndex == 0 {
				return nil
			}
			return out
		}

		if len(page.Items) == 0 {
			break
		}
		out = append(out, page.Items...)
		startIndex += len(page.Items)

		if len(page.Items) < pageSize {
			// short page: end of data
			break
		}
	}

	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

func (c *Client) searchPage(ctx context.Context, f SearchFilters, startIndex int) (searchPage, error) {
	q := url.Values{}
	q.Set("incorporated_from", f.IncorporatedFrom.Format("2006-01-02"))
	q.Set("incorporated_to", f.IncorporatedTo.Format("2006-01-02"))
	if f.CompanyStatus != "" {
		q.Set("company_status", f.CompanyStatus)
	}
	if f.CompanyType != "" {
		q.Set("company_type", f.CompanyType)
	}
	q.Set("size", strconv.Itoa(pageSize))
	q.Set("start_index", strconv.Itoa(startIndex))

	var page searchPage
	err := c.getJSON(ctx, "/advanced-search/companies?"+q.Encode(), &page)
	return page, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	// Companies House uses basic auth with the key as username
	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")

	c.gate.RecordUsage(apiName, path)

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("companies house get: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("companies house status 429 Too Many Requests")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("companies house status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("companies house decode: %w", err)
	}
	return nil
}
