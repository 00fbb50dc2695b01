// Package utils holds small generic helpers for claim and pointer handling.
package utils

// ClaimStrings reads a JSON claim that may be a single string or a list.
// Non-string list items are skipped.
func ClaimStrings(claim any) []string {
	switch v := claim.(type) {
	case string:
		return []string{v}
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Deref returns *v, or the zero value when v is nil.
func Deref[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}
