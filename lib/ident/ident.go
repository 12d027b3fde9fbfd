// Package ident canonicalizes record identifiers into consistent lookup keys.
//
// Identifiers supplied by callers are either numeric or string valued, and the
// same logical identifier may arrive in different shapes: the number 42, the
// string "42", an int64 decoded from one codec and a float64 from another.
// Normalize maps all of these onto one canonical key so that a record stored
// under one shape is found under every other.
//
// Guarantees:
//   - Normalization is idempotent: Normalize(Normalize(x)) == Normalize(x).
//   - A numeric string and its numeric equivalent collide to the same key.
//   - Opaque (non-numeric) strings are passed through unchanged.
package ident

import (
	"fmt"
	"math"
	"strconv"
)

// --------------------------------------------------------------------------
// Normalization
// --------------------------------------------------------------------------

// Normalize converts an identifier value into its canonical string key.
// The boolean return value reports whether the value is a usable identifier
// at all (nil and unsupported types are not).
func Normalize(id interface{}) (key string, ok bool) {
	switch v := id.(type) {
	case nil:
		return "", false
	case string:
		return normalizeString(v), true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int8:
		return strconv.FormatInt(int64(v), 10), true
	case int16:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return normalizeFloat(float64(v)), true
	case float64:
		return normalizeFloat(v), true
	default:
		return "", false
	}
}

// MustNormalize is like Normalize but formats unsupported values with %v
// instead of rejecting them. Used where a best-effort key is preferable to
// an error (e.g. log output).
func MustNormalize(id interface{}) string {
	if key, ok := Normalize(id); ok {
		return key
	}
	return fmt.Sprintf("%v", id)
}

// IsInteger reports whether the canonical key denotes a base-10 integer.
func IsInteger(key string) bool {
	_, err := strconv.ParseInt(key, 10, 64)
	return err == nil
}

// AsInt parses the canonical key as an integer.
func AsInt(key string) (int64, bool) {
	n, err := strconv.ParseInt(key, 10, 64)
	return n, err == nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// normalizeString canonicalizes numeric-looking strings. "42" and "42.0"
// both map to "42"; anything that does not parse as a number is opaque and
// returned unchanged.
func normalizeString(s string) string {
	if s == "" {
		return s
	}

	// Integer strings are already canonical unless they carry a leading
	// zero or sign decoration ("042", "+42").
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}

	// Float strings with an integral value collapse to the integer form.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return normalizeFloat(f)
	}

	return s
}

// normalizeFloat renders integral floats as integers and everything else
// with the shortest round-trippable representation.
func normalizeFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < math.MaxInt64 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
