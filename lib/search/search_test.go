package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixtures() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": 1, "name": "Alice Smith", "status": "in-progress", "age": 30},
		{"id": 2, "name": "Bob Jones", "status": "done", "age": 25},
		{"id": 3, "name": "alice cooper", "status": "in-progress", "age": 41},
		{"id": 4, "name": "Dave", "status": "on-hold", "age": 35},
		{"id": 5, "name": "Eve Smithers", "status": "done"},
	}
}

func TestMatchExactCaseInsensitive(t *testing.T) {
	out := Filter(fixtures(), map[string]interface{}{"name": "ALICE COOPER"}, MatchExact)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out[0]["id"])
}

func TestMatchPartial(t *testing.T) {
	out := Filter(fixtures(), map[string]interface{}{"name": "smith"}, MatchPartial)
	require.Len(t, out, 2)
}

func TestMatchAutoSeparatorMeansPartial(t *testing.T) {
	// "e sm" contains a separator -> substring match
	out := Filter(fixtures(), map[string]interface{}{"name": "e sm"}, MatchAuto)
	require.Len(t, out, 2)
}

func TestMatchAutoStatusTokenMeansExact(t *testing.T) {
	// "in-progress" contains a separator but is a known status token,
	// so it must not match "non-in-progress-ish" values partially
	items := append(fixtures(), map[string]interface{}{"id": 6, "status": "almost-in-progress"})
	out := Filter(items, map[string]interface{}{"status": "in-progress"}, MatchAuto)
	require.Len(t, out, 2)
	for _, item := range out {
		assert.Equal(t, "in-progress", item["status"])
	}
}

func TestMatchAutoPlainStringMeansExact(t *testing.T) {
	out := Filter(fixtures(), map[string]interface{}{"name": "dave"}, MatchAuto)
	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0]["id"])
}

func TestNumericCriteriaCrossType(t *testing.T) {
	// int criterion vs int field, string criterion vs int field
	out := Filter(fixtures(), map[string]interface{}{"age": 30}, MatchAuto)
	require.Len(t, out, 1)

	out = Filter(fixtures(), map[string]interface{}{"age": "30"}, MatchAuto)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0]["id"])
}

func TestMissingFieldNeverMatches(t *testing.T) {
	out := Filter(fixtures(), map[string]interface{}{"nope": "x"}, MatchAuto)
	assert.Empty(t, out)

	// record 5 has no age field
	out = Filter(fixtures(), map[string]interface{}{"age": 25}, MatchAuto)
	require.Len(t, out, 1)
}

func TestApplyOrderingAscendingNumeric(t *testing.T) {
	res := Apply(fixtures(), nil, Options{OrderBy: "age"})
	require.Equal(t, 5, res.Total)

	ages := []interface{}{}
	for _, item := range res.Items {
		ages = append(ages, item["age"])
	}
	// record without age sorts last
	assert.Equal(t, []interface{}{25, 30, 35, 41, nil}, ages)
}

func TestApplyOrderingDescending(t *testing.T) {
	res := Apply(fixtures(), nil, Options{OrderBy: "id", OrderDirection: Descending})
	assert.Equal(t, 5, res.Items[0]["id"])
}

func TestApplyPagination(t *testing.T) {
	res := Apply(fixtures(), nil, Options{OrderBy: "id", Limit: 2, Offset: 2})
	require.Equal(t, 5, res.Total)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 3, res.Items[0]["id"])
	assert.Equal(t, 4, res.Items[1]["id"])
	assert.Equal(t, 2, res.Page)
	assert.Equal(t, 2, res.Limit)
}

func TestApplyOffsetBeyondEnd(t *testing.T) {
	res := Apply(fixtures(), nil, Options{Limit: 2, Offset: 99})
	assert.Equal(t, 5, res.Total)
	assert.Empty(t, res.Items)
}

func TestApplyCriteriaAndPaginationTotalIsMatchCount(t *testing.T) {
	res := Apply(fixtures(), map[string]interface{}{"status": "done"}, Options{Limit: 1})
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Items, 1)
}
