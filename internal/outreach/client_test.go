package outreach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadflow-engine/internal/domain"
	"leadflow-engine/internal/ratelimit"
	"leadflow-engine/internal/state"
)

func newTestClient(baseURL string) *Client {
	gate := ratelimit.NewGate(time.Millisecond, state.NewMemory())
	return New("key", baseURL, gate)
}

func TestGetOrCreateListIdempotent(t *testing.T) {
	var creates int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(leadListIndex{Items: []leadList{
				{ID: "list-1", Name: "Old Leads"},
				{ID: "list-2", Name: "UK New LTDs"},
			}})
		case r.Method == http.MethodPost:
			creates++
			_ = json.NewEncoder(w).Encode(leadList{ID: "list-new", Name: "whatever"})
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	// case-insensitive exact match, twice, no create calls
	for i := 0; i < 2; i++ {
		id, err := c.GetOrCreateList(context.Background(), "uk new ltds")
		if err != nil {
			t.Fatal(err)
		}
		if id != "list-2" {
			t.Fatalf("id=%q want list-2", id)
		}
	}
	if creates != 0 {
		t.Fatalf("creates=%d want 0", creates)
	}

	// no match: create once
	id, err := c.GetOrCreateList(context.Background(), "Fresh List")
	if err != nil {
		t.Fatal(err)
	}
	if id != "list-new" || creates != 1 {
		t.Fatalf("id=%q creates=%d", id, creates)
	}
}

func TestUploadContactsSkipsFailures(t *testing.T) {
	var uploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads++
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["list_id"] != "list-2" {
			t.Errorf("list_id=%v", body["list_id"])
		}
		switch body["email"] {
		case "bad@x.co":
			http.Error(w, "invalid", http.StatusUnprocessableEntity)
		case "noid@x.co":
			_, _ = w.Write([]byte(`{}`)) // no id: not confirmed
		default:
			_ = json.NewEncoder(w).Encode(leadResponse{ID: "lead-1"})
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	contacts := []domain.Contact{
		{Name: "Ada Lovelace", Email: "ada@x.co", CompanyName: "ACME"},
		{Name: "Bad", Email: "bad@x.co", CompanyName: "ACME"},
		{Name: "No ID", Email: "noid@x.co", CompanyName: "ACME"},
		{FirstName: "Grace", LastName: "Hopper", Email: "grace@x.co", CompanyName: "ACME"},
	}

	added := c.UploadContacts(context.Background(), "list-2", contacts)
	if added != 2 {
		t.Fatalf("added=%d want 2", added)
	}
	if uploads != 4 {
		t.Fatalf("uploads=%d want 4 (failures must not abort the batch)", uploads)
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		in          domain.Contact
		first, last string
	}{
		{domain.Contact{Name: "Ada Lovelace"}, "Ada", "Lovelace"},
		{domain.Contact{Name: "Jean-Luc de la Cruz"}, "Jean-Luc", "de la Cruz"},
		{domain.Contact{Name: "Cher"}, "Cher", ""},
		{domain.Contact{Name: ""}, "", ""},
		{domain.Contact{FirstName: "Grace", LastName: "Hopper", Name: "ignored"}, "Grace", "Hopper"},
	}
	for _, tc := range cases {
		f, l := splitName(tc.in)
		if f != tc.first || l != tc.last {
			t.Errorf("splitName(%+v) = %q/%q want %q/%q", tc.in, f, l, tc.first, tc.last)
		}
	}
}
