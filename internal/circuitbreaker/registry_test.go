package circuitbreaker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry(nil, nil)

	cb1 := r.GetOrCreate("coupon")
	cb2 := r.GetOrCreate("coupon")

	assert.Same(t, cb1, cb2)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	r := NewRegistry(nil, nil)

	const goroutines = 32
	breakers := make([]*CircuitBreaker, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			breakers[i] = r.GetOrCreate("reservation")
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, breakers[0], breakers[i])
	}
	assert.Equal(t, 1, r.Count())
}

func TestRegistryGetOrCreateWithConfig(t *testing.T) {
	r := NewRegistry(nil, nil)

	cfg := testConfig()
	cfg.MinimumCalls = 2
	cb := r.GetOrCreateWithConfig("member", cfg)

	// Two failures trip the lowered minimum.
	require.Error(t, fail(cb))
	require.Error(t, fail(cb))
	assert.Equal(t, StateOpen, cb.State())
}

func TestRegistryGetMissing(t *testing.T) {
	r := NewRegistry(nil, nil)
	assert.Nil(t, r.Get("nope"))
}

func TestRegistryResetAll(t *testing.T) {
	r := NewRegistry(nil, nil)

	cb := r.GetOrCreate("svc")
	for i := 0; i < 5; i++ {
		require.Error(t, fail(cb))
	}
	require.Equal(t, StateOpen, cb.State())

	r.ResetAll()
	assert.Equal(t, StateClosed, cb.State())
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry(nil, nil)

	require.NoError(t, succeed(r.GetOrCreate("a")))
	require.Error(t, fail(r.GetOrCreate("b")))

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats["a"].WindowCalls)
	assert.Equal(t, 1, stats["b"].WindowFailures)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.GetOrCreate("svc")
	r.Remove("svc")
	assert.Nil(t, r.Get("svc"))
	assert.Equal(t, 0, r.Count())
}
