package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrikeService_AddStrike(t *testing.T) {
	svc := NewStrikeService(newTestDB(t))
	ctx := context.Background()

	flag, err := svc.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, flag.Strikes)

	flag, err = svc.AddStrike(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, flag.Strikes)
	require.NotNil(t, flag.LastStrikeAt)

	flag, err = svc.AddStrike(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, flag.Strikes)

	other, err := svc.Get(ctx, "u2")
	require.NoError(t, err)
	assert.Zero(t, other.Strikes)
}
