// Package outreach uploads contacts to Instantly lead lists.
package outreach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"leadflow-engine/internal/domain"
	"leadflow-engine/internal/ratelimit"
)

const apiName = "instantly"

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

type leadList struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type leadListIndex struct {
	Items []leadList `json:"items"`
}

// GetOrCreateList returns the id of the lead list with the given name,
// creating it only when no case-insensitive exact match exists. Idempotent:
// retries never produce duplicate lists.
func (c *Client) GetOrCreateList(ctx context.Context, name string) (string, error) {
	if err := c.gate.Wait(ctx, apiName); err != nil {
		return "", err
	}

	var idx leadListIndex
	if err := c.doJSON(ctx, http.MethodGet, "/api/v2/lead-lists?limit=100", nil, &idx); err != nil {
		return "", fmt.Errorf("list lead lists: %w", err)
	}
	for _, l := range idx.Items {
		if strings.EqualFold(l.Name, name) {
			return l.ID, nil
		}
	}

	if err := c.gate.Wait(ctx, apiName); err != nil {
		return "", err
	}
	var created leadList
	if err := c.doJSON(ctx, http.MethodPost, "/api/v2/lead-lists", map[string]any{"name": name}, &created); err != nil {
		return "", fmt.Errorf("create lead list %q: %w", name, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("create lead list %q: no id in response", name)
	}
	return created.ID, nil
}

type leadResponse struct {
	ID string `json:"id"`
}

// UploadContacts posts one lead per contact. Failures are logged and
// skipped — a bad contact never sinks the batch. Returns how many the
// provider confirmed (an id in the response).
func (c *Client) UploadContacts(ctx context.Context, listID string, contacts []domain.Contact) int {
	added := 0
	for _, ct := range contacts {
		if err := c.gate.Wait(ctx, apiName); err != nil {
			log.Printf("[instantly] upload wait: %v", err)
			return added
		}

		first, last := splitName(ct)
		body := map[string]any{
			"list_id":      listID,
			"email":        ct.Email,
			"first_name":   first,
			"last_name":    last,
			"company_name": ct.CompanyName,
		}

		var resp leadResponse
		if err := c.doJSON(ctx, http.MethodPost, "/api/v2/leads", body, &resp); err != nil {
			log.Printf("[instantly] upload %s failed: %v", ct.Email, err)
			continue
		}
		if resp.ID == "" {
			log.Printf("[instantly] upload %s: provider returned no id, not counting", ct.Email)
			continue
		}
		added++
	}
	return added
}

// splitName prefers explicit first/last; otherwise the display name splits
// first word vs remainder.
func splitName(ct domain.Contact) (first, last string) {
	if ct.FirstName != "" || ct.LastName != "" {
		return ct.FirstName, ct.LastName
	}
	fields := strings.Fields(ct.Name)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var rdr *bytes.Buffer
	if body != nil {
		rdr = &bytes.Buffer{}
		if err := json.NewEncoder(rdr).Encode(body); err != nil {
			return err
		}
	}

	var req *http.Request
	var err error
	if rdr != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.gate.RecordUsage(apiName, path)

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("instantly %s: %w", method, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("instantly status 429 Too Many Requests")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("instantly status %d", res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("instantly decode: %w", err)
		}
	}
	return nil
}
