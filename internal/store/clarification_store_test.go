package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetchat-backend/internal/store"
)

func TestClarificationStore_AskedOncePerQuery(t *testing.T) {
	s := store.NewInMemoryClarificationStore()
	ctx := context.Background()

	asked, err := s.WasAsked(ctx, "total gst for february 2026")
	require.NoError(t, err)
	assert.False(t, asked)

	require.NoError(t, s.MarkAsked(ctx, "total gst for february 2026"))

	asked, err = s.WasAsked(ctx, "total gst for february 2026")
	require.NoError(t, err)
	assert.True(t, asked)

	// Other queries are unaffected.
	asked, err = s.WasAsked(ctx, "net amount by branch")
	require.NoError(t, err)
	assert.False(t, asked)
}

func TestClarificationStore_ConfirmedSeparateFromAsked(t *testing.T) {
	s := store.NewInMemoryClarificationStore()
	ctx := context.Background()

	require.NoError(t, s.MarkConfirmed(ctx, "discount for last week"))

	confirmed, err := s.WasConfirmed(ctx, "discount for last week")
	require.NoError(t, err)
	assert.True(t, confirmed)

	asked, err := s.WasAsked(ctx, "discount for last week")
	require.NoError(t, err)
	assert.False(t, asked)
}
