package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/menukit/store"
)

func TestLoadSaveDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Load(ctx, "1234")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Save(ctx, "1234", []byte(`{"history":[]}`)))
	blob, err := s.Load(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, `{"history":[]}`, string(blob))
	assert.Equal(t, 1, s.Len())

	require.NoError(t, s.Delete(ctx, "1234"))
	_, err = s.Load(ctx, "1234")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Delete(ctx, "missing"), "deleting an absent key is fine")
}

func TestCopySemantics(t *testing.T) {
	ctx := context.Background()
	s := New()

	in := []byte("abc")
	require.NoError(t, s.Save(ctx, "k", in))
	in[0] = 'z'

	out, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out), "stored blob must not alias the caller's slice")

	out[0] = 'q'
	again, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}
