package graphile

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// sqlValue converts a coerced GraphQL input value into something pgx
// encodes for the column's type.
func sqlValue(col *Column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	if col.IsArray() {
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		return arrayValue(col, items)
	}

	return scalarValue(col.ElementType(), v)
}

func scalarValue(pgType string, v any) (any, error) {
	switch pgType {
	case "int2", "int4", "int8":
		return toInt64(v)
	case "float4", "float8":
		return toFloat64(v)
	case "bool":
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected a boolean, got %T", v)
	case "json", "jsonb":
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding json value: %w", err)
		}
		return string(raw), nil
	default:
		// Text format encoding lets Postgres parse numerics, uuids and
		// timestamps itself.
		return toString(v), nil
	}
}

func arrayValue(col *Column, items []any) (any, error) {
	switch col.ElementType() {
	case "int2", "int4", "int8":
		out := make([]*int64, len(items))
		for i, item := range items {
			if item == nil {
				continue
			}
			n, err := toInt64(item)
			if err != nil {
				return nil, err
			}
			out[i] = &n
		}
		return out, nil
	case "float4", "float8":
		out := make([]*float64, len(items))
		for i, item := range items {
			if item == nil {
				continue
			}
			f, err := toFloat64(item)
			if err != nil {
				return nil, err
			}
			out[i] = &f
		}
		return out, nil
	case "bool":
		out := make([]*bool, len(items))
		for i, item := range items {
			if b, ok := item.(bool); ok {
				out[i] = &b
			}
		}
		return out, nil
	default:
		out := make([]*string, len(items))
		for i, item := range items {
			if item == nil {
				continue
			}
			s := toString(item)
			out[i] = &s
		}
		return out, nil
	}
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("expected an integer, got %v", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("expected an integer, got %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("expected a number, got %T", v)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return fmt.Sprint(v)
}

// outputValue shapes a decoded JSON column value for its GraphQL scalar.
// BigInt and BigFloat travel as strings so no precision is lost.
func outputValue(f *fieldInfo, v any) any {
	if v == nil {
		return nil
	}
	if f.Scalar != "BigInt" && f.Scalar != "BigFloat" {
		return v
	}
	if items, ok := v.([]any); ok {
		out := make([]any, len(items))
		for i, item := range items {
			if item != nil {
				out[i] = toString(item)
			}
		}
		return out
	}
	return toString(v)
}
