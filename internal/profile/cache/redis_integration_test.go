//go:build integration

package cache_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"kycgate/internal/cases/models"
	"kycgate/internal/profile"
	"kycgate/internal/profile/cache"
	"kycgate/pkg/testutil/containers"
)

type countingProvider struct {
	inner profile.Provider
	calls atomic.Int32
}

func (c *countingProvider) FetchCustomerProfile(ctx context.Context, customerID string) (models.NormalizedProfile, error) {
	c.calls.Add(1)
	return c.inner.FetchCustomerProfile(ctx, customerID)
}

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestReadThrough() {
	ctx := context.Background()
	inner := &countingProvider{inner: profile.NewFixtureProvider()}
	cached := cache.New(inner, s.redis.Client, cache.WithTTL(time.Minute))

	first, err := cached.FetchCustomerProfile(ctx, "CUST-1")
	s.Require().NoError(err)
	second, err := cached.FetchCustomerProfile(ctx, "CUST-1")
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(int32(1), inner.calls.Load())

	ttl, err := s.redis.Client.TTL(ctx, "kyc:profile:CUST-1").Result()
	s.Require().NoError(err)
	s.LessOrEqual(ttl, time.Minute)

	s.Require().NoError(cached.Invalidate(ctx, "CUST-1"))
	_, err = cached.FetchCustomerProfile(ctx, "CUST-1")
	s.Require().NoError(err)
	s.Equal(int32(2), inner.calls.Load())
}
