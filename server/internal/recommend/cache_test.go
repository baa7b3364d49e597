package recommend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotwatch/pilotwatch/pkg/types"
	"github.com/pilotwatch/pilotwatch/server/internal/config"
)

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", types.Recommendation{FlightStatus: types.FlightMonitor})
	rec, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, types.FlightMonitor, rec.FlightStatus)
}

func TestNewCache_Backends(t *testing.T) {
	c, err := NewCache(config.CacheConfig{Backend: "memory", TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	c, err = NewCache(config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	c.Set(context.Background(), "k", types.Recommendation{FlightStatus: types.FlightMonitor})
	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)

	_, err = NewCache(config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}

func TestCacheKey_DependsOnPilotModelAndContent(t *testing.T) {
	r := Request{PilotID: "P001", Age: 30, Gender: types.GenderMale}
	k1 := cacheKey("a", r)
	assert.Equal(t, k1, cacheKey("a", r))
	assert.NotEqual(t, k1, cacheKey("b", r))

	r.Vitals.HeartRateVariability = 40
	assert.NotEqual(t, k1, cacheKey("a", r))

	r2 := r
	r2.PilotID = "P002"
	assert.NotEqual(t, cacheKey("a", r), cacheKey("a", r2))
}
