// Package querystring maps the active view and its page to and from the
// browser-visible query string.
package querystring

import (
	"net/url"
	"strconv"
	"strings"

	"postly/internal/view"
)

// Parse parses a raw query string, with or without a leading '?'. Malformed
// pairs are dropped; well-formed ones are kept.
func Parse(raw string) url.Values {
	values, _ := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if values == nil {
		values = url.Values{}
	}
	return values
}

// ValidatePage accepts a base-10 integer >= 1. Anything else yields (1, false).
func ValidatePage(raw string) (int, bool) {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1, false
	}
	return page, true
}

// Decode returns the active view and its page. The boolean reports that the
// page value was invalid and has been coerced to 1, so the caller must correct
// the persisted query string.
func Decode(raw string) (view.Selector, int, bool) {
	values := Parse(raw)
	for _, sel := range view.DecodeOrder() {
		v := values.Get(sel.QueryKey())
		if v == "" {
			continue
		}
		page, ok := ValidatePage(v)
		return sel, page, !ok
	}
	return view.AllPosts, 1, false
}

// Encode returns existing with every page key removed and only sel's key set
// to page. Unrelated parameters are preserved.
func Encode(sel view.Selector, page int, existing url.Values) string {
	if page < 1 {
		page = 1
	}
	values := make(url.Values, len(existing)+1)
	for k, v := range existing {
		values[k] = append([]string(nil), v...)
	}
	for _, s := range view.All() {
		values.Del(s.QueryKey())
	}
	values.Set(sel.QueryKey(), strconv.Itoa(page))
	return values.Encode()
}

// Normalize rewrites every present but invalid page key to "1". It reports
// whether anything changed; applying it twice is a no-op.
func Normalize(raw string) (string, bool) {
	values := Parse(raw)
	changed := false
	for _, sel := range view.All() {
		v := values.Get(sel.QueryKey())
		if v == "" {
			continue
		}
		if _, ok := ValidatePage(v); !ok {
			values.Set(sel.QueryKey(), "1")
			changed = true
		}
	}
	if !changed {
		return strings.TrimPrefix(raw, "?"), false
	}
	return values.Encode(), true
}

// PageKeys returns how many of the four page keys raw carries, empty values
// included.
func PageKeys(raw string) int {
	values := Parse(raw)
	n := 0
	for _, sel := range view.All() {
		if values.Has(sel.QueryKey()) {
			n++
		}
	}
	return n
}
