package domain

// Person is a partial match from the people-search stage. No email yet —
// that only appears after enrichment.
type Person struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
	Title               string `json:"title"`
	OrganizationID      string `json:"organization_id"`
	OrganizationWebsite string `json:"organization_website,omitempty"`
	LinkedinURL         string `json:"linkedin_url"`
	CompanyName         string `json:"company_name"`
}

// Contact is a person promoted by enrichment: it always carries an email.
type Contact struct {
	Name        string `json:"name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Title       string `json:"title,omitempty"`
	LinkedinURL string `json:"linkedin_url,omitempty"`
	CompanyName string `json:"company_name"`
	Source      string `json:"source"` // "apollo" or "website"
}
