package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeNumericEquivalence(t *testing.T) {
	// the same logical identifier in every shape it can arrive in
	shapes := []interface{}{42, int64(42), uint(42), float64(42), "42", "42.0", "+42", "042"}

	for _, shape := range shapes {
		key, ok := Normalize(shape)
		require.True(t, ok, "shape %#v must normalize", shape)
		assert.Equal(t, "42", key, "shape %#v", shape)
	}
}

func TestNormalizeOpaqueStrings(t *testing.T) {
	for _, s := range []string{"user-7", "abc", "42abc", "", "in-progress"} {
		key, ok := Normalize(s)
		require.True(t, ok)
		assert.Equal(t, s, key)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []interface{}{42, "42", "3.5", 3.5, "user-7", "007", uint64(9), "abc"}

	for _, in := range inputs {
		once, ok := Normalize(in)
		require.True(t, ok)

		twice, ok := Normalize(once)
		require.True(t, ok)
		assert.Equal(t, once, twice, "input %#v", in)
	}
}

func TestNormalizeRejectsUnusable(t *testing.T) {
	for _, in := range []interface{}{nil, []int{1}, map[string]int{}, struct{}{}} {
		_, ok := Normalize(in)
		assert.False(t, ok, "input %#v", in)
	}
}

func TestNormalizeFractionalFloats(t *testing.T) {
	key, ok := Normalize(3.5)
	require.True(t, ok)
	assert.Equal(t, "3.5", key)

	// fractional values must not collide with their truncation
	other, _ := Normalize(3)
	assert.NotEqual(t, other, key)
}

func TestIsIntegerAndAsInt(t *testing.T) {
	assert.True(t, IsInteger("42"))
	assert.False(t, IsInteger("user-7"))
	assert.False(t, IsInteger("3.5"))

	n, ok := AsInt("42")
	require.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = AsInt("abc")
	assert.False(t, ok)
}

func TestMustNormalizeFallsBack(t *testing.T) {
	assert.Equal(t, "[1 2]", MustNormalize([]int{1, 2}))
	assert.Equal(t, "42", MustNormalize(42))
}
