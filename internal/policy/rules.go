package policy

// Version is stamped on every rule set served from the table below.
const Version = "v1.0"

var categoryRules = map[string]CategoryRules{
	"cip": {
		AllowedDocumentTypes: []string{"passport", "drivers_license", "national_id"},
		ExtractionFields: []string{
			"full_name", "dob", "citizenship",
			"address.line1", "address.line2", "address.city", "address.state", "address.postal_code", "address.country",
			"document_number", "issuing_country", "issue_date", "expiry_date",
		},
	},
	"address_verification": {
		AllowedDocumentTypes: []string{"utility_bill", "bank_statement", "rent_agreement"},
		ExtractionFields: []string{
			"full_name",
			"address.line1", "address.line2", "address.city", "address.state", "address.postal_code", "address.country",
			"issue_date",
		},
	},
	"kyb": {
		AllowedDocumentTypes: []string{"certificate_incorporation", "dba", "tax_registration"},
		ExtractionFields: []string{
			"business_name", "registration_id", "incorporation_date",
			"address.line1", "address.line2", "address.city", "address.state", "address.postal_code", "address.country",
		},
	},
	"periodic_refresh": {
		AllowedDocumentTypes: []string{"passport", "drivers_license", "national_id", "utility_bill", "bank_statement"},
		ExtractionFields: []string{
			"full_name", "dob",
			"address.line1", "address.line2", "address.city", "address.state", "address.postal_code", "address.country",
		},
	},
	"edd": {
		AllowedDocumentTypes: []string{"passport", "drivers_license", "national_id", "utility_bill", "bank_statement", "sof_declaration"},
		ExtractionFields: []string{
			"full_name", "dob", "citizenship",
			"address.line1", "address.line2", "address.city", "address.state", "address.postal_code", "address.country",
			"source_of_funds", "source_of_wealth",
		},
	},
}

var categories = []Category{
	{ID: "cip", Title: "CIP", Description: "Customer Identification Program (individual identity verification)"},
	{ID: "address_verification", Title: "Address Verification", Description: "Proof of address verification"},
	{ID: "kyb", Title: "KYB", Description: "Business verification"},
	{ID: "periodic_refresh", Title: "Periodic KYC Refresh", Description: "Periodic verification update"},
	{ID: "edd", Title: "EDD", Description: "Enhanced Due Diligence"},
}

func requiredFormFields(categoryID string) []string {
	switch categoryID {
	case "kyb":
		return []string{"business_name", "registration_id", "country_of_registration", "address"}
	case "edd":
		return []string{"full_name", "dob", "citizenship", "address", "source_of_funds"}
	default:
		return []string{"full_name", "dob", "citizenship", "address"}
	}
}
