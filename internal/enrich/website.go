package enrich

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)

// junk addresses that show up in page chrome, not worth uploading
var ignoredEmailPrefixes = []string{"noreply@", "no-reply@", "donotreply@"}

// ScrapeWebsiteEmails is the last-ditch enrichment source: pull visible and
// mailto: addresses off a company homepage when the API finds nobody.
func (c *Client) ScrapeWebsiteEmails(ctx context.Context, rawURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "LeadFlow/1.0 (+local)")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var out []string
	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			return
		}
		for _, p := range ignoredEmailPrefixes {
			if strings.HasPrefix(addr, p) {
				return
			}
		}
		seen[addr] = true
		out = append(out, addr)
	}

	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		add(addr)
	})

	for _, m := range emailRe.FindAllString(doc.Text(), -1) {
		add(m)
	}

	return out, nil
}
