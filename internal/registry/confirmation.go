package registry

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sort"
	"strconv"
	"time"

	"leadflow-engine/internal/domain"
)

// confirmation statements are due on the incorporation anniversary with a
// 14-day filing grace period
const confirmationGraceDays = 14

// Verdict is the structured outcome of a confirmation-statement check.
type Verdict struct {
	Missing          bool   `json:"missing"`
	CompanyNumber    string `json:"company_number"`
	CompanyName      string `json:"company_name"`
	Reason           string `json:"reason"`
	LatestFilingDate string `json:"latest_filing_date,omitempty"`
	ExpectedBy       string `json:"expected_by,omitempty"`
	DaysOverdue      int    `json:"days_overdue,omitempty"`
	TotalFilings     int    `json:"total_filings"`
}

type filing struct {
	Date        string `json:"date"` // yyyy-mm-dd
	Category    string `json:"category"`
	Description string `json:"description"`
}

type filingHistoryPage struct {
	TotalCount int      `json:"total_count"`
	Items      []filing `json:"items"`
}

// CheckConfirmationStatement pages the company's confirmation-statement
// filing history (up to maxPages x 100 items) and decides whether the
// statement is missing per the anniversary-plus-grace rule.
//
// Unlike SearchCompanies this is fail-hard: transport errors propagate, and
// the orchestrator skips the company.
func (c *Client) CheckConfirmationStatement(ctx context.Context, co domain.Company, maxPages int) (Verdict, error) {
	if maxPages <= 0 {
		maxPages = 3
	}
	v := Verdict{CompanyNumber: co.CompanyNumber, CompanyName: co.Title}

	filings, err := c.fetchConfirmationFilings(ctx, co.CompanyNumber, maxPages)
	if err != nil {
		return Verdict{}, err
	}
	v.TotalFilings = len(filings)

	return decideVerdict(v, filings, co.DateOfCreation, time.Now().UTC()), nil
}

func (c *Client) fetchConfirmationFilings(ctx context.Context, companyNumber string, maxPages int) ([]filing, error) {
	var filings []filing
	for page := 0; page < maxPages; page++ {
		if err := c.gate.Wait(ctx, apiName); err != nil {
			return nil, err
		}

		q := url.Values{}
		q.Set("category", "confirmation-statement")
		q.Set("items_per_page", strconv.Itoa(pageSize))
		q.Set("start_index", strconv.Itoa(page*pageSize))

		var fh filingHistoryPage
		path := "/company/" + url.PathEscape(companyNumber) + "/filing-history?" + q.Encode()
		if err := c.getJSON(ctx, path, &fh); err != nil {
			return nil, fmt.Errorf("filing history for %s: %w", companyNumber, err)
		}

		filings = append(filings, fh.Items...)
		if len(fh.Items) < pageSize {
			break
		}
	}
	return filings, nil
}

// decideVerdict is the pure decision core, split out for tests.
func decideVerdict(v Verdict, filings []filing, dateOfCreation string, now time.Time) Verdict {
	if len(filings) == 0 {
		v.Missing = true
		v.Reason = "no confirmation statements filed"
		return v
	}

	sort.Slice(filings, func(i, j int) bool { return filings[i].Date > filings[j].Date })
	v.LatestFilingDate = filings[0].Date

	latest, err := time.Parse("2006-01-02", filings[0].Date)
	if err != nil {
		v.Missing = true
		v.Reason = "latest filing date unparsable"
		return v
	}

	incorporated, err := time.Parse("2006-01-02", dateOfCreation)
	if err != nil {
		log.Printf("[registry] company %s has unparsable incorporation date %q", v.CompanyNumber, dateOfCreation)
		v.Reason = "incorporation date unparsable"
		return v
	}

	// most recent anniversary at or before now
	anniversary := time.Date(now.Year(), incorporated.Month(), incorporated.Day(), 0, 0, 0, 0, time.UTC)
	if anniversary.After(now) {
		anniversary = anniversary.AddDate(-1, 0, 0)
	}
	expectedBy := anniversary.AddDate(0, 0, confirmationGraceDays)
	v.ExpectedBy = expectedBy.Format("2006-01-02")

	if now.After(expectedBy) && latest.Before(anniversary) {
		v.Missing = true
		v.Reason = "confirmation statement overdue"
		v.DaysOverdue = int(now.Sub(expectedBy).Hours() / 24)
		return v
	}

	v.Reason = "up to date"
	return v
}
