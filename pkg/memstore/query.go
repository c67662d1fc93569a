package memstore

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/dmitrymomot/searchkit/pkg/repository"
)

// defaultSize mirrors the default page size of search engines.
const defaultSize = 10

type predicate func(id string, source map[string]any) bool

type parsedQuery struct {
	match predicate
	from  int
	size  int
}

// parseQuery accepts nil (match all), a Filter, a search body as
// map[string]any, or the same body as a JSON string or []byte. The body
// supports from, size and a query built of match_all, term, terms, match, ids,
// exists, range and bool clauses.
func parseQuery(query any) (parsedQuery, error) {
	q := parsedQuery{size: defaultSize}
	switch v := query.(type) {
	case nil:
		return q, nil
	case Filter:
		q.match = func(_ string, src map[string]any) bool { return v(src) }
		q.size = -1
		return q, nil
	case func(map[string]any) bool:
		return parseQuery(Filter(v))
	case string:
		return parseQuery([]byte(v))
	case []byte:
		body, err := repository.DecodeBody(v)
		if err != nil {
			return q, queryError("malformed query body: %v", err)
		}
		return parseQuery(body)
	case map[string]any:
		return parseBody(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return q, queryError("query of type %T cannot be encoded", query)
		}
		return parseQuery(raw)
	}
}

func parseBody(body map[string]any) (parsedQuery, error) {
	q := parsedQuery{size: defaultSize}
	if from, ok := asFloat(body["from"]); ok {
		if from < 0 {
			return q, queryError("[from] parameter cannot be negative, found [%v]", from)
		}
		q.from = int(from)
	}
	if size, ok := asFloat(body["size"]); ok {
		q.size = int(size)
	}
	if clause, ok := body["query"]; ok {
		m, err := compile(clause)
		if err != nil {
			return q, err
		}
		q.match = m
	}
	return q, nil
}

func compile(clause any) (predicate, error) {
	c, ok := clause.(map[string]any)
	if !ok || len(c) != 1 {
		return nil, queryError("query clause must be an object with exactly one key")
	}
	for kind, arg := range c {
		switch kind {
		case "match_all":
			return func(string, map[string]any) bool { return true }, nil
		case "match_none":
			return func(string, map[string]any) bool { return false }, nil
		case "term":
			field, want, err := fieldArg(arg, "value")
			if err != nil {
				return nil, err
			}
			return func(_ string, src map[string]any) bool {
				return anyValue(lookup(src, field), func(v any) bool { return equal(v, want) })
			}, nil
		case "terms":
			field, want, err := fieldArg(arg, "")
			if err != nil {
				return nil, err
			}
			values, ok := want.([]any)
			if !ok {
				return nil, queryError("terms on [%s] requires an array", field)
			}
			return func(_ string, src map[string]any) bool {
				return anyValue(lookup(src, field), func(v any) bool {
					return slices.ContainsFunc(values, func(w any) bool { return equal(v, w) })
				})
			}, nil
		case "match":
			field, want, err := fieldArg(arg, "query")
			if err != nil {
				return nil, err
			}
			tokens := strings.Fields(strings.ToLower(fmt.Sprint(want)))
			return func(_ string, src map[string]any) bool {
				return anyValue(lookup(src, field), func(v any) bool {
					text := strings.ToLower(fmt.Sprint(v))
					return slices.ContainsFunc(tokens, func(t string) bool { return strings.Contains(text, t) })
				})
			}, nil
		case "ids":
			m, _ := arg.(map[string]any)
			values, _ := m["values"].([]any)
			return func(id string, _ map[string]any) bool {
				return slices.ContainsFunc(values, func(v any) bool { return fmt.Sprint(v) == id })
			}, nil
		case "exists":
			m, _ := arg.(map[string]any)
			field, _ := m["field"].(string)
			if field == "" {
				return nil, queryError("exists requires a field")
			}
			return func(_ string, src map[string]any) bool { return lookup(src, field) != nil }, nil
		case "range":
			return compileRange(arg)
		case "bool":
			return compileBool(arg)
		default:
			return nil, queryError("unknown query [%s]", kind)
		}
	}
	return nil, queryError("empty query clause")
}

func compileRange(arg any) (predicate, error) {
	field, bounds, err := fieldArg(arg, "")
	if err != nil {
		return nil, err
	}
	b, ok := bounds.(map[string]any)
	if !ok {
		return nil, queryError("range on [%s] requires an object", field)
	}
	type bound struct {
		op    string
		value float64
	}
	var checks []bound
	for op, raw := range b {
		v, ok := asFloat(raw)
		if !ok {
			return nil, queryError("range bound [%s] on [%s] must be numeric", op, field)
		}
		checks = append(checks, bound{op: op, value: v})
	}
	return func(_ string, src map[string]any) bool {
		v, ok := asFloat(lookup(src, field))
		if !ok {
			return false
		}
		for _, c := range checks {
			switch c.op {
			case "gt":
				ok = v > c.value
			case "gte":
				ok = v >= c.value
			case "lt":
				ok = v < c.value
			case "lte":
				ok = v <= c.value
			}
			if !ok {
				return false
			}
		}
		return true
	}, nil
}

func compileBool(arg any) (predicate, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return nil, queryError("bool requires an object")
	}
	compileAll := func(key string) ([]predicate, error) {
		raw, ok := m[key]
		if !ok {
			return nil, nil
		}
		list, ok := raw.([]any)
		if !ok {
			list = []any{raw}
		}
		out := make([]predicate, 0, len(list))
		for _, c := range list {
			p, err := compile(c)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}

	must, err := compileAll("must")
	if err != nil {
		return nil, err
	}
	filter, err := compileAll("filter")
	if err != nil {
		return nil, err
	}
	should, err := compileAll("should")
	if err != nil {
		return nil, err
	}
	mustNot, err := compileAll("must_not")
	if err != nil {
		return nil, err
	}
	must = append(must, filter...)

	return func(id string, src map[string]any) bool {
		for _, p := range must {
			if !p(id, src) {
				return false
			}
		}
		for _, p := range mustNot {
			if p(id, src) {
				return false
			}
		}
		if len(should) > 0 && len(must) == 0 {
			return slices.ContainsFunc(should, func(p predicate) bool { return p(id, src) })
		}
		return true
	}, nil
}

// fieldArg unpacks {"field": value} or {"field": {key: value}}.
func fieldArg(arg any, key string) (string, any, error) {
	m, ok := arg.(map[string]any)
	if !ok || len(m) != 1 {
		return "", nil, queryError("expected an object with a single field")
	}
	for field, v := range m {
		if key != "" {
			if inner, ok := v.(map[string]any); ok {
				if val, ok := inner[key]; ok {
					return field, val, nil
				}
			}
		}
		return field, v, nil
	}
	return "", nil, queryError("missing field")
}

// lookup resolves dotted paths such as "author.name".
func lookup(src map[string]any, path string) any {
	var cur any = src
	for part := range strings.SplitSeq(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

// anyValue applies fn to v or, for arrays, to each element.
func anyValue(v any, fn func(any) bool) bool {
	if list, ok := v.([]any); ok {
		return slices.ContainsFunc(list, fn)
	}
	return v != nil && fn(v)
}

func equal(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
