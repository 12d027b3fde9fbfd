package search

import (
	"sort"
	"strings"

	"github.com/shelfdb/shelf/lib/ident"
)

// --------------------------------------------------------------------------
// Match Modes
// --------------------------------------------------------------------------

// MatchMode controls how string-valued criteria are compared. Matching
// semantics are an explicit per-call option rather than something inferred
// from the data.
type MatchMode uint8

const (
	// MatchAuto treats a string criterion containing a separator character
	// as a substring match, unless it equals one of the known status-like
	// tokens; everything else matches exactly. Kept as the default for
	// compatibility with callers relying on the historic behavior.
	MatchAuto MatchMode = iota
	// MatchExact compares strings exactly (case-insensitive).
	MatchExact
	// MatchPartial performs case-insensitive substring matching.
	MatchPartial
)

func (m MatchMode) String() string {
	switch m {
	case MatchAuto:
		return "auto"
	case MatchExact:
		return "exact"
	case MatchPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// separators whose presence makes MatchAuto treat a criterion as partial
const autoSeparators = "-_/ "

// statusTokens are literal values that look separator-ish but are known
// whole-value vocabulary; MatchAuto compares them exactly.
var statusTokens = map[string]struct{}{
	"in-progress": {},
	"on-hold":     {},
	"not-started": {},
	"read-only":   {},
	"read-write":  {},
}

// --------------------------------------------------------------------------
// Options and Result
// --------------------------------------------------------------------------

type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

// Options control ordering, pagination and string matching of a search.
// The zero value means: no ordering, no pagination, MatchAuto.
type Options struct {
	Limit          int       `json:"limit,omitempty"`
	Offset         int       `json:"offset,omitempty"`
	OrderBy        string    `json:"order_by,omitempty"`
	OrderDirection Direction `json:"order_direction,omitempty"`
	Mode           MatchMode `json:"mode,omitempty"`
}

// Result is one page of matching records plus the total match count.
type Result struct {
	Items []map[string]interface{} `json:"items"`
	Total int                      `json:"total"`
	Page  int                      `json:"page,omitempty"`
	Limit int                      `json:"limit,omitempty"`
}

// --------------------------------------------------------------------------
// Searching
// --------------------------------------------------------------------------

// Apply runs criteria, ordering and pagination over a materialized result
// set. It is a linear scan: no index is consulted, which is acceptable at
// the collection sizes this layer targets.
func Apply(items []map[string]interface{}, criteria map[string]interface{}, opts Options) Result {
	matched := filter(items, criteria, opts.Mode)

	if opts.OrderBy != "" {
		orderBy(matched, opts.OrderBy, opts.OrderDirection)
	}

	total := len(matched)

	// pagination
	start := opts.Offset
	if start > total {
		start = total
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	result := Result{
		Items: matched[start:end],
		Total: total,
		Limit: opts.Limit,
	}
	if opts.Limit > 0 {
		result.Page = opts.Offset/opts.Limit + 1
	}
	return result
}

// Filter returns every item matching the criteria, in input order.
func Filter(items []map[string]interface{}, criteria map[string]interface{}, mode MatchMode) []map[string]interface{} {
	return filter(items, criteria, mode)
}

// Matches reports whether a single item satisfies all criteria fields.
func Matches(item, criteria map[string]interface{}, mode MatchMode) bool {
	for field, want := range criteria {
		got, ok := item[field]
		if !ok {
			return false
		}
		if !matchValue(got, want, mode) {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func filter(items []map[string]interface{}, criteria map[string]interface{}, mode MatchMode) []map[string]interface{} {
	if len(criteria) == 0 {
		// no criteria matches everything; copy so pagination never aliases
		// the caller's slice
		out := make([]map[string]interface{}, len(items))
		copy(out, items)
		return out
	}

	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if Matches(item, criteria, mode) {
			out = append(out, item)
		}
	}
	return out
}

// matchValue compares one record field against one criterion value.
func matchValue(got, want interface{}, mode MatchMode) bool {
	wantStr, wantIsStr := want.(string)
	gotStr, gotIsStr := got.(string)

	// String criteria compare case-insensitively, exact or partial
	// depending on the mode.
	if wantIsStr && gotIsStr {
		g := strings.ToLower(gotStr)
		w := strings.ToLower(wantStr)

		switch effectiveMode(mode, w) {
		case MatchPartial:
			return strings.Contains(g, w)
		default:
			return g == w
		}
	}

	// Everything else matches on the normalized representation, so 42,
	// "42" and 42.0 compare equal regardless of codec-dependent types.
	return ident.MustNormalize(got) == ident.MustNormalize(want)
}

// effectiveMode resolves MatchAuto per criterion value.
func effectiveMode(mode MatchMode, wantLower string) MatchMode {
	if mode != MatchAuto {
		return mode
	}
	if _, known := statusTokens[wantLower]; known {
		return MatchExact
	}
	if strings.ContainsAny(wantLower, autoSeparators) {
		return MatchPartial
	}
	return MatchExact
}

// orderBy sorts items in place by one field. Numeric values order
// numerically, strings lexicographically (case-insensitive); items missing
// the field sort last.
func orderBy(items []map[string]interface{}, field string, dir Direction) {
	sort.SliceStable(items, func(i, j int) bool {
		less := compareField(items[i][field], items[j][field])
		if dir == Descending {
			return less > 0
		}
		return less < 0
	})
}

// compareField returns -1, 0 or 1. Missing values (nil) sort after all
// present values in ascending order.
func compareField(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}

	an, aok := asFloat(a)
	bn, bok := asFloat(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}

	as := strings.ToLower(ident.MustNormalize(a))
	bs := strings.ToLower(ident.MustNormalize(b))
	return strings.Compare(as, bs)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
