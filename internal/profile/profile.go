// Package profile fetches the authoritative customer record and normalizes it
// into the shape validation compares against.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"kycgate/internal/cases/models"
)

// ErrProfileUnavailable wraps every failure to produce a normalized profile.
var ErrProfileUnavailable = errors.New("customer profile unavailable")

// Provider returns the normalized profile for a customer.
type Provider interface {
	FetchCustomerProfile(ctx context.Context, customerID string) (models.NormalizedProfile, error)
}

// RawAddress is the address block as the customer master service returns it.
type RawAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// RawProfile is the customer master payload before normalization.
type RawProfile struct {
	CustomerID  string     `json:"customer_id"`
	FullName    string     `json:"full_name"`
	DOB         string     `json:"dob"`
	Citizenship string     `json:"citizenship"`
	Address     RawAddress `json:"address"`
}

var dobLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// NormalizeDOB converts any accepted date layout to YYYY-MM-DD. Numeric
// day/month layouts are read day first.
func NormalizeDOB(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date of birth %q", raw)
}

// Normalize trims every field, lower-cases city/state/country and renders
// the DOB as ISO-8601.
func Normalize(raw RawProfile) (models.NormalizedProfile, error) {
	if strings.TrimSpace(raw.CustomerID) == "" {
		return models.NormalizedProfile{}, errors.New("customer_id missing from profile")
	}
	if strings.TrimSpace(raw.FullName) == "" {
		return models.NormalizedProfile{}, errors.New("full_name missing from profile")
	}
	dob, err := NormalizeDOB(raw.DOB)
	if err != nil {
		return models.NormalizedProfile{}, err
	}
	return models.NormalizedProfile{
		CustomerID:  strings.TrimSpace(raw.CustomerID),
		FullName:    strings.TrimSpace(raw.FullName),
		DOB:         dob,
		Citizenship: strings.TrimSpace(raw.Citizenship),
		Address: models.Address{
			Line1:      strings.TrimSpace(raw.Address.Line1),
			Line2:      strings.TrimSpace(raw.Address.Line2),
			City:       strings.ToLower(strings.TrimSpace(raw.Address.City)),
			State:      strings.ToLower(strings.TrimSpace(raw.Address.State)),
			PostalCode: strings.TrimSpace(raw.Address.PostalCode),
			Country:    strings.ToLower(strings.TrimSpace(raw.Address.Country)),
		},
	}, nil
}
