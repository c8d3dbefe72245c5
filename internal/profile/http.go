package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kycgate/internal/cases/models"
	"kycgate/pkg/platform/circuit"
)

const defaultTimeout = 8 * time.Second

// HTTPProvider reads profiles from the customer master service.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type HTTPOption func(*HTTPProvider)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.client = c
	}
}

// WithBreaker fails fast while the customer master is unhealthy.
func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(p *HTTPProvider) {
		p.breaker = b
	}
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(p *HTTPProvider) {
		p.logger = logger
	}
}

func NewHTTPProvider(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPProvider {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	p := &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FetchCustomerProfile issues GET {base}/v1/customers/{id}.
func (p *HTTPProvider) FetchCustomerProfile(ctx context.Context, customerID string) (models.NormalizedProfile, error) {
	if p.breaker == nil {
		return p.fetch(ctx, customerID)
	}
	if !p.breaker.Allow() {
		return models.NormalizedProfile{}, fmt.Errorf("%w: circuit %s open", ErrProfileUnavailable, p.breaker.Name())
	}
	normalized, err := p.fetch(ctx, customerID)
	var down *upstreamError
	if errors.As(err, &down) {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "customer master circuit opened", "circuit", p.breaker.Name())
		}
		return normalized, err
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "customer master circuit closed", "circuit", p.breaker.Name())
	}
	return normalized, err
}

// upstreamError marks failures that say the customer master itself is down.
type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

func (p *HTTPProvider) fetch(ctx context.Context, customerID string) (models.NormalizedProfile, error) {
	endpoint := fmt.Sprintf("%s/v1/customers/%s", p.baseURL, url.PathEscape(customerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.NormalizedProfile{}, fmt.Errorf("%w: build request: %v", ErrProfileUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return models.NormalizedProfile{}, &upstreamError{fmt.Errorf("%w: %v", ErrProfileUnavailable, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		p.logger.WarnContext(ctx, "customer master returned non-200",
			"customer_id", customerID,
			"status", resp.StatusCode,
			"body", string(body),
		)
		err := fmt.Errorf("%w: customer master status %d", ErrProfileUnavailable, resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError {
			return models.NormalizedProfile{}, &upstreamError{err}
		}
		return models.NormalizedProfile{}, err
	}

	var raw RawProfile
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return models.NormalizedProfile{}, fmt.Errorf("%w: decode profile: %v", ErrProfileUnavailable, err)
	}
	normalized, err := Normalize(raw)
	if err != nil {
		return models.NormalizedProfile{}, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	return normalized, nil
}
