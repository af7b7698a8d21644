//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"compliance/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedisStore(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestLimitAndReset() {
	ctx := context.Background()
	for i := range 3 {
		res, err := s.store.AllowN(ctx, "tenant:a", 1, 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
	}

	res, err := s.store.AllowN(ctx, "tenant:a", 1, 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Positive(res.RetryAfter)

	other, err := s.store.AllowN(ctx, "tenant:b", 1, 3, time.Minute)
	s.Require().NoError(err)
	s.True(other.Allowed)

	s.Require().NoError(s.store.Reset(ctx, "tenant:a"))
	res, err = s.store.AllowN(ctx, "tenant:a", 1, 3, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed)
}

func (s *RedisStoreSuite) TestKeyExpires() {
	ctx := context.Background()
	_, err := s.store.AllowN(ctx, "tenant:a", 1, 3, time.Minute)
	s.Require().NoError(err)

	ttl, err := s.redis.Client.PTTL(ctx, keyPrefix+"tenant:a").Result()
	s.Require().NoError(err)
	s.Positive(ttl)
	s.LessOrEqual(ttl, time.Minute)
}

func (s *RedisStoreSuite) TestConcurrentCallersShareOneWindow() {
	ctx := context.Background()
	const callers, limit = 25, 10

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.store.AllowN(ctx, "tenant:shared", 1, limit, time.Minute)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(limit), allowed.Load())
}
