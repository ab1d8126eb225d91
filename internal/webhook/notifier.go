// Package webhook delivers signed run-result payloads to user-configured
// endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var ErrNoURL = errors.New("webhook enabled but no url configured")

type Result struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Notifier struct {
	hc  *http.Client
	now func() time.Time
}

func New() *Notifier {
	return &Notifier{
		hc:  &http.Client{Timeout: 15 * time.Second},
		now: time.Now,
	}
}

// Send POSTs the payload as JSON. With a secret, the signature header is
// sha256= + HMAC-SHA256 over the exact body bytes sent — one encode pass,
// no re-serialization drift. Provider-side failures come back as a Result,
// never an error; only a missing URL errors.
func (n *Notifier) Send(ctx context.Context, url, secret string, payload any) (Result, error) {
	if url == "" {
		return Result{}, ErrNoURL
	}

	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false) // keep slashes literal for signature parity
	if err := enc.Encode(payload); err != nil {
		return Result{}, fmt.Errorf("encode webhook payload: %w", err)
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(n.now().Unix(), 10))
	if secret != "" {
		req.Header.Set("X-Webhook-Signature", Signature(secret, body))
	}

	res, err := n.hc.Do(req)
	if err != nil {
		return Result{Error: err.Error()}, nil
	}
	defer res.Body.Close()

	out := Result{StatusCode: res.StatusCode}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		out.Success = true
	} else {
		out.Error = "webhook endpoint returned " + res.Status
	}
	return out, nil
}

// Signature computes the sha256=<hex hmac> header value for a body.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
