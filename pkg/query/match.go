package query

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

func (o Options) matches(doc map[string]any) bool {
	for field, f := range o.Filter {
		if f.isZero() {
			continue
		}
		if !f.matches(doc[field]) {
			return false
		}
	}
	return true
}

func (f Filter) matches(v any) bool {
	values := flatten(v)

	if f.Exact != "" && !anyEqual(values, f.Exact) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		found := false
		for _, x := range values {
			if strings.Contains(strings.ToLower(stringify(x)), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != "" && (v == nil || compareValues(v, f.From) < 0) {
		return false
	}
	if f.To != "" && (v == nil || compareValues(v, f.To) > 0) {
		return false
	}
	if len(f.Any) > 0 {
		found := false
		for _, want := range f.Any {
			if anyEqual(values, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, want := range f.All {
		if !anyEqual(values, want) {
			return false
		}
	}
	return true
}

// flatten turns array fields into their members so filters match on
// containment. Linked entries embedded as objects contribute their _id.
func flatten(v any) []any {
	arr, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil
		}
		return []any{idOf(v)}
	}
	out := make([]any, 0, len(arr))
	for _, x := range arr {
		out = append(out, idOf(x))
	}
	return out
}

func idOf(v any) any {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["_id"]; ok {
			return id
		}
	}
	return v
}

func anyEqual(values []any, want string) bool {
	for _, v := range values {
		if equal(v, want) {
			return true
		}
	}
	return false
}

func equal(v any, want string) bool {
	switch x := v.(type) {
	case string:
		return x == want
	case bool:
		b, err := strconv.ParseBool(want)
		return err == nil && b == x
	case float64, json.Number, int, int64:
		f, ok := number(x)
		if !ok {
			return false
		}
		w, err := strconv.ParseFloat(want, 64)
		return err == nil && f == w
	}
	return false
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// asTime parses s as a date when it looks like one. Bare numbers are left
// to numeric comparison.
func asTime(s string) (time.Time, bool) {
	if len(s) < 8 || !strings.ContainsAny(s, "-:/") {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// compareValues orders two field values. nil sorts first. Numbers compare
// numerically, dates chronologically and everything else as strings.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if _, isStr := a.(string); !isStr {
		if fa, ok := number(a); ok {
			if fb, ok := number(b); ok {
				return cmpFloat(fa, fb)
			}
		}
	}

	sa, sb := stringify(a), stringify(b)
	if ta, ok := asTime(sa); ok {
		if tb, ok := asTime(sb); ok {
			return ta.Compare(tb)
		}
	}
	if fa, err := strconv.ParseFloat(sa, 64); err == nil {
		if fb, err := strconv.ParseFloat(sb, 64); err == nil {
			return cmpFloat(fa, fb)
		}
	}
	return strings.Compare(sa, sb)
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
