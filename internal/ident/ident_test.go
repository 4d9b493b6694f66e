package ident

import (
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Shape(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := Generate()
		require.NoError(t, err)
		assert.Len(t, id, Length)
		for _, r := range id {
			assert.Contains(t, alphabet, string(r))
		}
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := Generate()
		require.NoError(t, err)
		seen[id] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestGenerateUnique_FirstDrawFree(t *testing.T) {
	calls := 0
	id, err := GenerateUnique(func(string) (bool, error) {
		calls++
		return false, nil
	})
	require.NoError(t, err)
	assert.Len(t, id, Length)
	assert.Equal(t, 1, calls)
}

func TestGenerateUnique_AlwaysTaken(t *testing.T) {
	calls := 0
	_, err := GenerateUnique(func(string) (bool, error) {
		calls++
		return true, nil
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrExhausted))
	assert.Equal(t, 5, calls)
}

func TestGenerateUnique_FreesUpMidway(t *testing.T) {
	calls := 0
	id, err := GenerateUnique(func(string) (bool, error) {
		calls++
		return calls < 3, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, calls)
}

func TestGenerateUnique_PredicateError(t *testing.T) {
	boom := eris.New("registry offline")
	_, err := GenerateUnique(func(string) (bool, error) {
		return false, boom
	})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "registry offline"))
	assert.False(t, eris.Is(err, ErrExhausted))
}
