package domain

// Company is a registry search hit, shaped after the Companies House
// advanced-search response.
type Company struct {
	CompanyNumber  string  `json:"company_number"`
	Title          string  `json:"company_name"`
	CompanyStatus  string  `json:"company_status"`
	CompanyType    string  `json:"company_type"`
	DateOfCreation string  `json:"date_of_creation"` // yyyy-mm-dd
	Address        Address `json:"registered_office_address"`
}

type Address struct {
	AddressLine1 string `json:"address_line_1,omitempty"`
	Locality     string `json:"locality,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Country      string `json:"country,omitempty"` // raw free text; normalize before comparing
}
