package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/campusworks/registry-api/pkg/errors"
)

type mockCacheRepo struct {
	values   map[string]string
	lastTTL  time.Duration
	getErr   error
	patterns []string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{values: map[string]string{}}
}

func (m *mockCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	value, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if p, ok := dest.(*string); ok {
		*p = value
	}
	return nil
}

func (m *mockCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.lastTTL = ttl
	if s, ok := value.(string); ok {
		m.values[key] = s
	}
	return nil
}

func (m *mockCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.patterns = append(m.patterns, pattern)
	return nil
}

func TestCacheServiceGetMissIsNotAnError(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out string
	hit, err := svc.Get(context.Background(), "catalog:v1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheServiceGetHit(t *testing.T) {
	repo := newMockCacheRepo()
	repo.values["catalog:v1"] = "payload"
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out string
	hit, err := svc.Get(context.Background(), "catalog:v1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "payload", out)
}

func TestCacheServiceGetPropagatesRealErrors(t *testing.T) {
	repo := newMockCacheRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	var out string
	hit, err := svc.Get(context.Background(), "catalog:v1", &out)
	require.Error(t, err)
	assert.False(t, hit)
}

func TestCacheServiceSetDefaultsTTL(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, nil, 2*time.Minute, zap.NewNop(), true)

	require.NoError(t, svc.Set(context.Background(), "catalog:v1", "payload", 0))
	assert.Equal(t, 2*time.Minute, repo.lastTTL)
}

func TestCacheServiceInvalidate(t *testing.T) {
	repo := newMockCacheRepo()
	svc := NewCacheService(repo, nil, time.Minute, zap.NewNop(), true)

	require.NoError(t, svc.Invalidate(context.Background(), "catalog:*"))
	assert.Equal(t, []string{"catalog:*"}, repo.patterns)
}

func TestCacheServiceDisabled(t *testing.T) {
	svc := NewCacheService(newMockCacheRepo(), nil, time.Minute, zap.NewNop(), false)
	assert.False(t, svc.Enabled())

	var out string
	hit, err := svc.Get(context.Background(), "catalog:v1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
}
