package cache

import (
	"net/url"
	"strings"

	"github.com/jithinsankar/fastapi-cached/internal/domain"
)

// BuildKey derives the canonical cache key for an assignment. Parameters
// appear in the given order (the handler's declaration order), each as a
// query-escaped name=value pair joined with "&". Escaping keeps the
// encoding unambiguous, and the result stays readable so users can
// hand-edit entries in the cache file.
func BuildKey(order []string, a domain.Assignment) string {
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(a[name]))
	}
	return strings.Join(parts, "&")
}

// KeyOrder extracts the parameter-name order from specs, for BuildKey.
func KeyOrder(specs []domain.ParameterSpec) []string {
	order := make([]string, len(specs))
	for i, s := range specs {
		order[i] = s.Name
	}
	return order
}

// ParseKey decodes a key back into an assignment, for logging and the show
// command. Order is not recovered; exact-match lookups never need it.
func ParseKey(key string) (domain.Assignment, bool) {
	vals, err := url.ParseQuery(key)
	if err != nil {
		return nil, false
	}

	a := make(domain.Assignment, len(vals))
	for name, vs := range vals {
		if len(vs) != 1 {
			return nil, false
		}
		a[name] = vs[0]
	}
	return a, true
}
