package condition

import (
	"fmt"
	"strings"
)

// ValidationResult aggregates the outcome of a structural validation pass.
// Errors make the subject invalid; warnings do not.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Merge folds another result into this one.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Valid = r.Valid && other.Valid
}

// Validate recursively walks a surface-form condition and collects
// structural errors (empty operator or field, empty conditions array under a
// composite, malformed string form) and warnings (unknown leaf operator
// name). Unlike Evaluate it never stops at the first defect.
func Validate(raw any) ValidationResult {
	result := ValidationResult{Valid: true}
	validateNode(raw, "", &result)
	return result
}

func validateNode(raw any, path string, result *ValidationResult) {
	switch v := raw.(type) {
	case nil:
		result.addError("%scondition is nil", prefix(path))
	case string:
		if _, err := parseString(v); err != nil {
			result.addError("%smalformed condition string %q", prefix(path), v)
		}
	case []any:
		if len(v) == 0 {
			result.addError("%scondition list is empty", prefix(path))
			return
		}
		for i, item := range v {
			validateNode(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	case []map[string]any:
		if len(v) == 0 {
			result.addError("%scondition list is empty", prefix(path))
			return
		}
		for i, item := range v {
			validateNode(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	case map[string]any:
		validateMap(v, path, result)
	case Condition:
		validateTree(v, path, result)
	default:
		result.addError("%sunsupported condition form %T", prefix(path), raw)
	}
}

func validateMap(m map[string]any, path string, result *ValidationResult) {
	if rawChildren, ok := m["conditions"]; ok {
		if rawOp, hasOp := m["operator"]; hasOp {
			s, ok := rawOp.(string)
			if !ok || strings.TrimSpace(s) == "" {
				result.addError("%scomposite operator is empty", prefix(path))
			} else {
				switch strings.ToUpper(strings.TrimSpace(s)) {
				case "AND", "OR", "NOT":
				default:
					result.addError("%sunknown logical operator %q", prefix(path), s)
				}
			}
		}

		items, ok := rawChildren.([]any)
		if !ok {
			if typed, isTyped := rawChildren.([]map[string]any); isTyped {
				items = make([]any, len(typed))
				for i, t := range typed {
					items[i] = t
				}
			} else {
				result.addError("%scomposite conditions must be a list, got %T", prefix(path), rawChildren)
				return
			}
		}
		if len(items) == 0 {
			result.addError("%scomposite has an empty conditions array", prefix(path))
			return
		}
		for i, item := range items {
			validateNode(item, fmt.Sprintf("%s.conditions[%d]", path, i), result)
		}
		return
	}

	field, _ := m["field"].(string)
	if strings.TrimSpace(field) == "" {
		result.addError("%sleaf field is empty", prefix(path))
	}
	op, _ := m["operator"].(string)
	if strings.TrimSpace(op) == "" {
		result.addError("%sleaf operator is empty", prefix(path))
	} else if normalizeOperator(op) == "" {
		result.addWarning("%sunknown operator %q", prefix(path), op)
	}
	if _, hasValue := m["value"]; !hasValue {
		result.addError("%sleaf is missing a value", prefix(path))
	}
}

// validateTree covers already-parsed trees so callers can validate either
// representation.
func validateTree(c Condition, path string, result *ValidationResult) {
	switch v := c.(type) {
	case And:
		for i, child := range v {
			validateTree(child, fmt.Sprintf("%s[%d]", path, i), result)
		}
	case Or:
		for i, child := range v {
			validateTree(child, fmt.Sprintf("%s[%d]", path, i), result)
		}
	case Not:
		validateTree(v.Inner, path+".not", result)
	case Leaf:
		if strings.TrimSpace(v.Field) == "" {
			result.addError("%sleaf field is empty", prefix(path))
		}
		if strings.TrimSpace(v.Operator) == "" {
			result.addError("%sleaf operator is empty", prefix(path))
		} else if normalizeOperator(v.Operator) == "" {
			result.addWarning("%sunknown operator %q", prefix(path), v.Operator)
		}
		if v.Value == nil {
			result.addError("%sleaf is missing a value", prefix(path))
		}
	default:
		result.addError("%sunknown condition node %T", prefix(path), c)
	}
}

func prefix(path string) string {
	if path == "" {
		return ""
	}
	return path + ": "
}
