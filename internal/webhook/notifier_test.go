package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendSignsExactBodyBytes(t *testing.T) {
	var gotBody []byte
	var gotSig, gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get("X-Webhook-Signature")
		gotTS = r.Header.Get("X-Webhook-Timestamp")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type=%q", ct)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New()
	res, err := n.Send(context.Background(), srv.URL, "s", map[string]int{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || res.StatusCode != 200 {
		t.Fatalf("result %+v", res)
	}

	if string(gotBody) != `{"a":1}` {
		t.Fatalf("body=%q", gotBody)
	}
	// verify independently against the received bytes
	mac := hmac.New(sha256.New, []byte("s"))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Fatalf("signature=%q want %q", gotSig, want)
	}
	if gotTS == "" {
		t.Fatal("missing timestamp header")
	}
}

func TestSendNoSlashEscaping(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := New()
	if _, err := n.Send(context.Background(), srv.URL, "", map[string]string{"url": "https://x.co/a/b"}); err != nil {
		t.Fatal(err)
	}
	if string(gotBody) != `{"url":"https://x.co/a/b"}` {
		t.Fatalf("body=%q, slashes must stay literal", gotBody)
	}
}

func TestSendNoSecretNoSignature(t *testing.T) {
	var hadSig bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadSig = r.Header["X-Webhook-Signature"]
	}))
	defer srv.Close()

	n := New()
	if _, err := n.Send(context.Background(), srv.URL, "", map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if hadSig {
		t.Fatal("signature header sent without a secret")
	}
}

func TestSendProviderFailureIsResultNotError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New()
	res, err := n.Send(context.Background(), srv.URL, "s", map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("provider failure must not error: %v", err)
	}
	if res.Success || res.StatusCode != 500 || res.Error == "" {
		t.Fatalf("result %+v", res)
	}

	// unreachable endpoint: same contract
	res, err = n.Send(context.Background(), "http://127.0.0.1:1/hook", "s", map[string]int{"a": 1})
	if err != nil {
		t.Fatalf("transport failure must not error: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("result %+v", res)
	}
}

func TestSendMissingURL(t *testing.T) {
	n := New()
	if _, err := n.Send(context.Background(), "", "s", nil); err == nil {
		t.Fatal("expected configuration error for empty url")
	}
}
