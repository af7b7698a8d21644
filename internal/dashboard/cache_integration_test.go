//go:build integration

package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "compliance/pkg/domain"
	"compliance/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = NewRedisCache(s.redis.Client, 2*time.Second)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestMissThenHit() {
	ctx := context.Background()
	tenantID := id.TenantID(uuid.New())

	got, err := s.cache.Get(ctx, tenantID)
	s.Require().NoError(err)
	s.Nil(got)

	stats := &Stats{AccessRequestsCount: 7, OverdueAccessRequests: 2, GeneratedAt: time.Now().UTC().Truncate(time.Second)}
	s.Require().NoError(s.cache.Set(ctx, tenantID, stats))

	got, err = s.cache.Get(ctx, tenantID)
	s.Require().NoError(err)
	s.Equal(stats, got)

	other, err := s.cache.Get(ctx, id.TenantID(uuid.New()))
	s.Require().NoError(err)
	s.Nil(other)
}

func (s *RedisCacheSuite) TestEntriesExpire() {
	ctx := context.Background()
	tenantID := id.TenantID(uuid.New())
	s.Require().NoError(s.cache.Set(ctx, tenantID, &Stats{AccessRequestsCount: 1}))

	ttl, err := s.redis.Client.TTL(ctx, cacheKey(tenantID)).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 2*time.Second)

	s.Eventually(func() bool {
		got, err := s.cache.Get(ctx, tenantID)
		return err == nil && got == nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *RedisCacheSuite) TestServiceUsesCache() {
	ctx := context.Background()
	stub := &countersStub{all: 4}
	svc := NewService(stub, stub, stub, discardLogger(), WithCache(s.cache))

	_, err := svc.GetDashboard(ctx, actor)
	s.Require().NoError(err)
	calls := stub.calls.Load()

	stats, err := svc.GetDashboard(ctx, actor)
	s.Require().NoError(err)
	s.Equal(4, stats.AccessRequestsCount)
	s.Equal(calls, stub.calls.Load())
}
