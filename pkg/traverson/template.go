package traverson

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yosida95/uritemplate/v3"
)

// ExpandTemplate expands an RFC 6570 URI template. Strings without "{" are
// returned unchanged. Parameters may be strings, numbers, booleans, string
// slices, []any, or map[string]string for associative expansion; nil values
// are treated as undefined.
func ExpandTemplate(tmpl string, params map[string]any) (string, error) {
	if !strings.Contains(tmpl, "{") {
		return tmpl, nil
	}

	t, err := uritemplate.New(tmpl)
	if err != nil {
		return "", fmt.Errorf("invalid URI template %q: %w", tmpl, err)
	}

	values := uritemplate.Values{}
	for name, v := range params {
		if val, ok := templateValue(v); ok {
			values.Set(name, val)
		}
	}

	expanded, err := t.Expand(values)
	if err != nil {
		return "", fmt.Errorf("error expanding URI template %q: %w", tmpl, err)
	}
	return expanded, nil
}

// TemplateVarnames lists the variables a template declares.
func TemplateVarnames(tmpl string) []string {
	if !strings.Contains(tmpl, "{") {
		return nil
	}
	t, err := uritemplate.New(tmpl)
	if err != nil {
		return nil
	}
	return t.Varnames()
}

func templateValue(v any) (uritemplate.Value, bool) {
	switch tv := v.(type) {
	case nil:
		return uritemplate.Value{}, false
	case string:
		return uritemplate.String(tv), true
	case bool:
		return uritemplate.String(strconv.FormatBool(tv)), true
	case int:
		return uritemplate.String(strconv.Itoa(tv)), true
	case int64:
		return uritemplate.String(strconv.FormatInt(tv, 10)), true
	case float64:
		return uritemplate.String(strconv.FormatFloat(tv, 'f', -1, 64)), true
	case []string:
		return uritemplate.List(tv...), true
	case []any:
		items := make([]string, 0, len(tv))
		for _, item := range tv {
			items = append(items, fmt.Sprint(item))
		}
		return uritemplate.List(items...), true
	case map[string]string:
		keys := make([]string, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(tv)*2)
		for _, k := range keys {
			kv = append(kv, k, tv[k])
		}
		return uritemplate.KV(kv...), true
	case fmt.Stringer:
		return uritemplate.String(tv.String()), true
	}
	return uritemplate.String(fmt.Sprint(v)), true
}
