package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *redis.Client
	store  *RedisBucketStore
	ctx    context.Context
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mr.Addr()})
	s.store = NewRedisBucketStore(s.client)
	s.ctx = context.Background()
}

func (s *RedisBucketStoreSuite) TearDownTest() {
	_ = s.client.Close()
}

func (s *RedisBucketStoreSuite) TestAllowUpToLimit() {
	key := "ratelimit:client:203.0.113.7"
	for i := range testLimit {
		result, err := s.store.Allow(s.ctx, key, testLimit, testWindow, baseTime.Add(time.Duration(i)*time.Millisecond))
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(testLimit-i-1, result.Remaining)
	}

	result, err := s.store.Allow(s.ctx, key, testLimit, testWindow, baseTime.Add(time.Second))
	s.Require().NoError(err)
	s.False(result.Allowed)
	s.Equal(0, result.Remaining)
	s.Equal(baseTime.Add(testWindow), result.ResetAt)
	s.Equal(59, result.RetryAfter)

	members, err := s.mr.ZMembers(key)
	s.Require().NoError(err)
	s.Len(members, testLimit, "denied requests are not recorded")
}

func (s *RedisBucketStoreSuite) TestWindowBoundary() {
	key := "ratelimit:client:boundary"
	for range testLimit {
		_, err := s.store.Allow(s.ctx, key, testLimit, testWindow, baseTime)
		s.Require().NoError(err)
	}

	result, err := s.store.Allow(s.ctx, key, testLimit, testWindow, baseTime.Add(testWindow-time.Millisecond))
	s.Require().NoError(err)
	s.False(result.Allowed)

	result, err = s.store.Allow(s.ctx, key, testLimit, testWindow, baseTime.Add(testWindow))
	s.Require().NoError(err)
	s.True(result.Allowed)
}

func (s *RedisBucketStoreSuite) TestUnavailable() {
	s.mr.Close()

	_, err := s.store.Allow(s.ctx, "ratelimit:client:down", testLimit, testWindow, baseTime)
	s.Error(err)
}
