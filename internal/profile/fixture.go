package profile

import (
	"context"
	"fmt"

	"kycgate/internal/cases/models"
)

// FixtureProvider serves one canned profile for every customer. Local
// environments use it so the validation flow runs without the master service.
type FixtureProvider struct {
	raw RawProfile
}

func NewFixtureProvider() *FixtureProvider {
	return &FixtureProvider{raw: RawProfile{
		FullName:    "MANOJ KUMAR SHARMA",
		DOB:         "1983-02-06",
		Citizenship: "INDIAN",
		Address: RawAddress{
			Line1:      "T A 180 STREET NO 3",
			Line2:      "TUGHALAKABAD EXTN",
			City:       "DELHI",
			State:      "DELHI",
			PostalCode: "110019",
			Country:    "INDIA",
		},
	}}
}

// WithRaw replaces the canned record; tests use it to pin a specific profile.
func (p *FixtureProvider) WithRaw(raw RawProfile) *FixtureProvider {
	p.raw = raw
	return p
}

func (p *FixtureProvider) FetchCustomerProfile(ctx context.Context, customerID string) (models.NormalizedProfile, error) {
	if err := ctx.Err(); err != nil {
		return models.NormalizedProfile{}, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	raw := p.raw
	raw.CustomerID = customerID
	normalized, err := Normalize(raw)
	if err != nil {
		return models.NormalizedProfile{}, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	return normalized, nil
}
