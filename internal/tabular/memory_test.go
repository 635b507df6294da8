package tabular

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/TabRi/internal/errs"
)

func TestMemStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	require.NoError(t, s.EnsureTable(ctx, "customers", []string{"id", "email"}))
	// idempotent
	require.NoError(t, s.EnsureTable(ctx, "customers", []string{"id", "email"}))

	rows, err := s.ReadAll(ctx, "customers")
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, s.Append(ctx, "customers", []string{"c1", "a@x.com"}))
	require.NoError(t, s.Append(ctx, "customers", []string{"c2", "b@x.com"}))

	rows, err = s.ReadAll(ctx, "customers")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"c1", "a@x.com"}, rows[0])

	require.NoError(t, s.Overwrite(ctx, "customers", 1, []string{"c2", "new@x.com"}))
	rows, _ = s.ReadAll(ctx, "customers")
	assert.Equal(t, "new@x.com", rows[1][1])

	require.NoError(t, s.Delete(ctx, "customers", 0))
	rows, _ = s.ReadAll(ctx, "customers")
	require.Len(t, rows, 1)
	assert.Equal(t, "c2", rows[0][0])

	require.NoError(t, s.Truncate(ctx, "customers"))
	rows, _ = s.ReadAll(ctx, "customers")
	assert.Empty(t, rows)

	assert.NoError(t, s.Close())
}

func TestMemStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.EnsureTable(ctx, "t", []string{"a"}))

	_, err := s.ReadAll(ctx, "missing")
	assert.True(t, errs.IsNotFound(err))

	err = s.Overwrite(ctx, "t", 0, []string{"x"})
	assert.True(t, errs.IsInvalidInput(err))

	err = s.Delete(ctx, "t", -1)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestMemStore_ReadAllReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.EnsureTable(ctx, "t", []string{"a"}))
	require.NoError(t, s.Append(ctx, "t", []string{"original"}))

	rows, err := s.ReadAll(ctx, "t")
	require.NoError(t, err)
	rows[0][0] = "mutated"

	again, err := s.ReadAll(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, "original", again[0][0])
}
