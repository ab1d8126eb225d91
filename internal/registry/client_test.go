package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow-engine/internal/domain"
	"leadflow-engine/internal/ratelimit"
	"leadflow-engine/internal/state"
)

func testGate() *ratelimit.Gate {
	return ratelimit.NewGate(time.Millisecond, state.NewMemory())
}

func testFilters() SearchFilters {
	return SearchFilters{
		IncorporatedFrom: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		IncorporatedTo:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CompanyStatus:    "active",
		CompanyType:      "ltd",
	}
}

func makeItems(n, offset int) []domain.Company {
	out := make([]domain.Company, n)
	for i := range out {
		out[i] = domain.Company{
			CompanyNumber: fmt.Sprintf("%08d", offset+i),
			Title:         fmt.Sprintf("ACME %d LTD", offset+i),
		}
	}
	return out
}

func TestSearchCompaniesPaginates(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		start := r.URL.Query().Get("start_index")
		var items []domain.Company
		switch start {
		case "0":
			items = makeItems(100, 0)
		case "100":
			items = makeItems(40, 100) // short page ends the scan
		default:
			t.Errorf("unexpected start_index %q", start)
		}
		_ = json.NewEncoder(w).Encode(searchPage{Hits: 140, Items: items})
	}))
	defer srv.Close()

	c := New("key", srv.URL, testGate())
	got := c.SearchCompanies(context.Background(), testFilters(), 1000)
	if len(got) != 140 {
		t.Fatalf("got %d companies, want 140", len(got))
	}
	if requests != 2 {
		t.Fatalf("made %d requests, want 2", requests)
	}
}

func TestSearchCompaniesStopsAtMaxResults(t *testing.T) {
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		_ = json.NewEncoder(w).Encode(searchPage{Hits: 9999, Items: makeItems(100, 0)})
	}))
	defer srv.Close()

	c := New("key", srv.URL, testGate())
	got := c.SearchCompanies(context.Background(), testFilters(), 150)
	if len(got) != 150 {
		t.Fatalf("got %d companies, want 150 (capped)", len(got))
	}
	if requests != 2 {
		t.Fatalf("made %d requests, want 2", requests)
	}
}

func TestSearchCompaniesFailSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("key", srv.URL, testGate())
	if got := c.SearchCompanies(context.Background(), testFilters(), 100); got != nil {
		t.Fatalf("expected nil on transport error, got %d companies", len(got))
	}

	// unreachable server behaves the same
	c = New("key", "http://127.0.0.1:1", testGate())
	if got := c.SearchCompanies(context.Background(), testFilters(), 100); got != nil {
		t.Fatalf("expected nil on connect error, got %d companies", len(got))
	}
}

func TestSearchCompaniesKeepsEarlierPagesOnLateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start_index") != "0" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(searchPage{Hits: 9999, Items: makeItems(100, 0)})
	}))
	defer srv.Close()

	c := New("key", srv.URL, testGate())
	got := c.SearchCompanies(context.Background(), testFilters(), 1000)
	if len(got) != 100 {
		t.Fatalf("got %d companies, want the 100 from the first page", len(got))
	}
}

func TestSearchCompaniesSendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		if !ok || user != "my-api-key" {
			t.Errorf("basic auth user=%q ok=%v", user, ok)
		}
		_ = json.NewEncoder(w).Encode(searchPage{Items: makeItems(1, 0)})
	}))
	defer srv.Close()

	c := New("my-api-key", srv.URL, testGate())
	if got := c.SearchCompanies(context.Background(), testFilters(), 10); len(got) != 1 {
		t.Fatalf("got %d companies", len(got))
	}
}
