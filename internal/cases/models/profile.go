package models

// Address keys are always present after normalization.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// NormalizedProfile is the authoritative customer record used for comparison.
type NormalizedProfile struct {
	CustomerID  string  `json:"customer_id"`
	FullName    string  `json:"full_name"`
	DOB         string  `json:"dob"`
	Citizenship string  `json:"citizenship"`
	Address     Address `json:"address"`
}
