// Package cache keeps recently fetched customer profiles in Redis so repeated
// validation runs of the same case do not hammer the customer master service.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"kycgate/internal/cases/models"
	"kycgate/internal/profile"
)

var lookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kyc_profile_cache_lookups_total",
	Help: "Customer profile cache lookups by result",
}, []string{"result"}) // hit, miss, error

const keyPrefix = "kyc:profile:"

// DefaultTTL bounds how long profile PII stays in Redis.
const DefaultTTL = 5 * time.Minute

// Cached is a read-through decorator over a profile.Provider. Redis failures
// degrade to a direct fetch; they never fail the lookup.
type Cached struct {
	next   profile.Provider
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Cached)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cached) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cached) {
		c.logger = logger
	}
}

func New(next profile.Provider, client *redis.Client, opts ...Option) *Cached {
	c := &Cached{
		next:   next,
		client: client,
		ttl:    DefaultTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) FetchCustomerProfile(ctx context.Context, customerID string) (models.NormalizedProfile, error) {
	key := keyPrefix + customerID

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p models.NormalizedProfile
		if jsonErr := json.Unmarshal(raw, &p); jsonErr == nil {
			lookups.WithLabelValues("hit").Inc()
			return p, nil
		}
		lookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		lookups.WithLabelValues("miss").Inc()
	default:
		lookups.WithLabelValues("error").Inc()
		c.logger.WarnContext(ctx, "profile cache read failed",
			"customer_id", customerID,
			"error", err,
		)
	}

	p, err := c.next.FetchCustomerProfile(ctx, customerID)
	if err != nil {
		return models.NormalizedProfile{}, err
	}

	if payload, err := json.Marshal(p); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "profile cache write failed",
				"customer_id", customerID,
				"error", err,
			)
		}
	}
	return p, nil
}

// Invalidate drops a cached profile, e.g. after the customer updates master data.
func (c *Cached) Invalidate(ctx context.Context, customerID string) error {
	return c.client.Del(ctx, keyPrefix+customerID).Err()
}
