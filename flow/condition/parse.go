package condition

import (
	"strconv"
	"strings"
)

// stringFormOps are the comparison operators accepted by the string surface
// form, longest first so ">=" is not tokenized as ">".
var stringFormOps = []string{">=", "<=", "==", "!=", ">", "<"}

// Parse converts any accepted surface form into the condition tree.
// Structural defects (missing field/operator/value on a leaf, an unknown
// logical operator, a malformed string form) return an EvaluationError.
func Parse(raw any) (Condition, error) {
	switch v := raw.(type) {
	case nil:
		return nil, evalErrorf("condition is nil")
	case Condition:
		return v, nil
	case string:
		return parseString(v)
	case []any:
		return parseList(v)
	case []map[string]any:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
		return parseList(items)
	case map[string]any:
		return parseMap(v)
	default:
		return nil, evalErrorf("unsupported condition form %T", raw)
	}
}

// parseList treats a bare list as an implicit AND over its elements.
func parseList(items []any) (Condition, error) {
	children := make(And, 0, len(items))
	for _, item := range items {
		child, err := Parse(item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// parseMap handles both map forms: a composite (carries "conditions") and a
// leaf (carries "field"). A composite's operator defaults to AND.
func parseMap(m map[string]any) (Condition, error) {
	if rawChildren, ok := m["conditions"]; ok {
		items, ok := rawChildren.([]any)
		if !ok {
			return nil, evalErrorf("composite conditions must be a list, got %T", rawChildren)
		}
		children := make([]Condition, 0, len(items))
		for _, item := range items {
			child, err := Parse(item)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}

		op := "AND"
		if rawOp, ok := m["operator"]; ok {
			s, ok := rawOp.(string)
			if !ok {
				return nil, evalErrorf("logical operator must be a string, got %T", rawOp)
			}
			op = strings.ToUpper(strings.TrimSpace(s))
		}
		switch op {
		case "AND", "":
			return And(children), nil
		case "OR":
			return Or(children), nil
		case "NOT":
			return Not{Inner: And(children)}, nil
		default:
			return nil, evalErrorf("unknown logical operator %q", op)
		}
	}

	field, hasField := m["field"]
	operator, hasOp := m["operator"]
	value, hasValue := m["value"]
	if !hasField {
		return nil, evalErrorf("leaf condition missing field")
	}
	if !hasOp {
		return nil, evalErrorf("leaf condition missing operator")
	}
	if !hasValue {
		return nil, evalErrorf("leaf condition missing value")
	}

	fieldStr, ok := field.(string)
	if !ok || strings.TrimSpace(fieldStr) == "" {
		return nil, evalErrorf("leaf condition field must be a non-empty string")
	}
	opStr, ok := operator.(string)
	if !ok || strings.TrimSpace(opStr) == "" {
		return nil, evalErrorf("leaf condition operator must be a non-empty string")
	}

	return Leaf{Field: fieldStr, Operator: opStr, Value: value}, nil
}

// parseString parses the "<field> <op> <literal>" form with a one-pass
// tokenizer. The literal is parsed as a number, a boolean, or a (possibly
// quoted) string.
func parseString(s string) (Condition, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, evalErrorf("empty condition string")
	}

	for _, op := range stringFormOps {
		idx := strings.Index(trimmed, op)
		if idx <= 0 {
			continue
		}
		field := strings.TrimSpace(trimmed[:idx])
		literal := strings.TrimSpace(trimmed[idx+len(op):])
		if field == "" || literal == "" {
			return nil, evalErrorf("malformed condition string %q", s)
		}
		return Leaf{Field: field, Operator: op, Value: parseLiteral(literal)}, nil
	}
	return nil, evalErrorf("no comparison operator in condition string %q", s)
}

func parseLiteral(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
