package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"leadflow-engine/internal/secrets"
)

type SecretsHandler struct{}

type setAPIKeyReq struct {
	APIKey string `json:"api_key"`
}

var providerAccounts = map[string]string{
	"companies_house": secrets.AccountCompaniesHouse,
	"apollo":          secrets.AccountApollo,
	"instantly":       secrets.AccountInstantly,
}

// SetByPath expects /secrets/{provider}.
func (h SecretsHandler) SetByPath(w http.ResponseWriter, r *http.Request) {
	provider := strings.TrimPrefix(r.URL.Path, "/secrets/")
	account, ok := providerAccounts[provider]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	var req setAPIKeyReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if err := secrets.SetAPIKey(account, req.APIKey); err != nil {
		http.Error(w, "failed to store key: "+err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
