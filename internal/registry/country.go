package registry

import "strings"

// registered-office country strings are free text; map the common UK/US
// spellings, pass anything else through upper-cased
var gbSynonyms = map[string]bool{
	"uk":               true,
	"gb":               true,
	"great britain":    true,
	"united kingdom":   true,
	"england":          true,
	"scotland":         true,
	"wales":            true,
	"northern ireland": true,
	"britain":          true,
}

var usSynonyms = map[string]bool{
	"us":                       true,
	"usa":                      true,
	"u.s.":                     true,
	"u.s.a.":                   true,
	"united states":            true,
	"united states of america": true,
	"america":                  true,
}

// NormalizeCountry maps a raw registered-office country string to GB or US,
// case and whitespace insensitive. Unmapped values come back upper-cased.
func NormalizeCountry(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if gbSynonyms[key] {
		return "GB"
	}
	if usSynonyms[key] {
		return "US"
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}
