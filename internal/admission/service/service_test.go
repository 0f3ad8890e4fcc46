package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgegate/internal/admission/store/window"
	"edgegate/internal/platform/config"
)

func TestCheck(t *testing.T) {
	store := window.NewMemoryStore()
	svc, err := New(store)
	require.NoError(t, err)
	ctx := context.Background()

	policy := config.Policy{Name: "general", Window: time.Minute, Max: 2, AuthenticatedMax: 4}

	t.Run("anonymous ceiling", func(t *testing.T) {
		fp := "1.1.1.1:anonymous"
		for n0 := 0; n0 < 2; n0++ {
			res, err := svc.Check(ctx, fp, policy, false)
			require.NoError(t, err)
			assert.True(t, res.Allowed)
		}
		res, err := svc.Check(ctx, fp, policy, false)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 2, res.Limit)
	})

	t.Run("authenticated callers get the higher ceiling", func(t *testing.T) {
		fp := "1.1.1.1:user-7"
		for i := 0; i < 4; i++ {
			res, err := svc.Check(ctx, fp, policy, true)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "request %d", i+1)
			assert.Equal(t, 4, res.Limit)
		}
		res, err := svc.Check(ctx, fp, policy, true)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
	})

	t.Run("policies have independent budgets", func(t *testing.T) {
		fp := "2.2.2.2:anonymous"
		authPolicy := config.Policy{Name: "auth", Window: time.Minute, Max: 1}

		res, err := svc.Check(ctx, fp, authPolicy, false)
		require.NoError(t, err)
		require.True(t, res.Allowed)
		res, err = svc.Check(ctx, fp, authPolicy, false)
		require.NoError(t, err)
		require.False(t, res.Allowed, "auth budget exhausted")

		res, err = svc.Check(ctx, fp, policy, false)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "general budget untouched")
	})
}

func TestReset(t *testing.T) {
	store := window.NewMemoryStore()
	svc, err := New(store)
	require.NoError(t, err)
	ctx := context.Background()

	policy := config.Policy{Name: "general", Window: time.Minute, Max: 1}
	fp := "3.3.3.3:anonymous"

	_, err = svc.Check(ctx, fp, policy, false)
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, fp, policy))

	res, err := svc.Check(ctx, fp, policy, false)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
