package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipckit/jsonipc/api"
)

func TestInsertAndGet(t *testing.T) {
	s := New[string](1, 8)
	tok := s.Insert("a")
	assert.Equal(t, uint32(1), tok.Index)

	v, ok := s.Get(tok)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 1, s.Len())
}

func TestGetUnknownToken(t *testing.T) {
	s := New[string](1, 8)
	_, ok := s.Get(api.Token{Index: 42})
	assert.False(t, ok)
	_, ok = s.Get(api.Token{Index: 0})
	assert.False(t, ok)
}

func TestRemovedTokenMissesBeforeReuse(t *testing.T) {
	s := New[string](1, 8)
	tok := s.Insert("a")

	v, ok := s.Remove(tok)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 0, s.Len())

	_, ok = s.Get(tok)
	assert.False(t, ok, "freed token must not resolve")
	_, ok = s.Remove(tok)
	assert.False(t, ok, "double remove must fail")
}

func TestSlotReuseBumpsGeneration(t *testing.T) {
	s := New[string](1, 8)
	old := s.Insert("a")
	s.Remove(old)

	fresh := s.Insert("b")
	assert.Equal(t, old.Index, fresh.Index, "freed slot should be recycled")
	assert.NotEqual(t, old.Gen, fresh.Gen, "recycled slot must carry a new generation")

	_, ok := s.Get(old)
	assert.False(t, ok, "stale token must not alias the new occupant")

	v, ok := s.Get(fresh)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestGrowthBeyondReservedCapacity(t *testing.T) {
	s := New[int](1, 8)
	toks := make([]api.Token, 0, 100)
	for i := 0; i < 100; i++ {
		toks = append(toks, s.Insert(i))
	}
	require.Equal(t, 100, s.Len())

	for i, tok := range toks {
		v, ok := s.Get(tok)
		require.True(t, ok, "token %d lost after growth", i)
		assert.Equal(t, i, v)
	}
}

func TestRange(t *testing.T) {
	s := New[int](1, 8)
	a := s.Insert(1)
	b := s.Insert(2)
	s.Insert(3)
	s.Remove(b)

	seen := make(map[api.Token]int)
	s.Range(func(tok api.Token, v int) bool {
		seen[tok] = v
		return true
	})
	assert.Len(t, seen, 2)
	assert.Equal(t, 1, seen[a])

	var visits int
	s.Range(func(api.Token, int) bool {
		visits++
		return false
	})
	assert.Equal(t, 1, visits, "Range must stop when fn returns false")
}
