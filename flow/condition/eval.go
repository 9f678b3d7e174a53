package condition

import (
	"strings"

	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// Synthetic fields are consulted against the record itself rather than its
// metrics map. Only deviceId supports operators (eq and contains); the others
// never match and never error.
const (
	fieldDeviceID  = "deviceId"
	fieldTimestamp = "timestamp"
	fieldLocation  = "location"
)

// Evaluate walks the condition tree against a telemetry record.
//
// Boolean semantics:
//   - And([]) is true, Or([]) is false; both short-circuit left to right.
//   - A leaf over an unknown field is false, never an error.
//   - A structural defect or operator misuse fails the whole evaluation
//     with an EvaluationError.
//
// A nil record is treated as a record with no fields: every leaf is false.
func Evaluate(c Condition, record *telemetry.Data) (bool, error) {
	switch v := c.(type) {
	case nil:
		return false, evalErrorf("condition is nil")
	case And:
		for _, child := range v {
			ok, err := Evaluate(child, record)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case Or:
		for _, child := range v {
			ok, err := Evaluate(child, record)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := Evaluate(v.Inner, record)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case Leaf:
		return evaluateLeaf(v, record)
	default:
		return false, evalErrorf("unknown condition node %T", c)
	}
}

// EvaluateRaw parses a surface-form condition and evaluates it in one call.
func EvaluateRaw(raw any, record *telemetry.Data) (bool, error) {
	c, err := Parse(raw)
	if err != nil {
		return false, err
	}
	return Evaluate(c, record)
}

// normalizeOperator folds the case-insensitive operator aliases onto
// canonical names.
func normalizeOperator(op string) string {
	switch strings.ToLower(strings.TrimSpace(op)) {
	case "eq", "equals", "==":
		return "eq"
	case "ne", "not_equals", "!=":
		return "ne"
	case "gt", ">":
		return "gt"
	case "gte", ">=":
		return "gte"
	case "lt", "<":
		return "lt"
	case "lte", "<=":
		return "lte"
	case "contains":
		return "contains"
	case "in":
		return "in"
	case "between":
		return "between"
	default:
		return ""
	}
}

func evaluateLeaf(leaf Leaf, record *telemetry.Data) (bool, error) {
	if strings.TrimSpace(leaf.Field) == "" {
		return false, evalErrorf("leaf condition missing field")
	}
	op := normalizeOperator(leaf.Operator)
	if op == "" {
		return false, evalErrorf("unknown operator %q", leaf.Operator)
	}
	if leaf.Value == nil {
		return false, evalErrorf("leaf condition missing value")
	}
	if record == nil {
		return false, nil
	}

	switch leaf.Field {
	case fieldDeviceID:
		return evaluateDeviceID(op, leaf.Value, record), nil
	case fieldTimestamp, fieldLocation:
		// Placeholder synthetic fields: unsupported, never an error.
		return false, nil
	}

	metric, ok := record.Metric(leaf.Field)
	if !ok {
		return false, nil
	}
	return evaluateMetric(op, metric, leaf.Value)
}

func evaluateDeviceID(op string, literal any, record *telemetry.Data) bool {
	want, ok := literal.(string)
	if !ok {
		return false
	}
	have := string(record.DeviceID())
	switch op {
	case "eq":
		return have == want
	case "contains":
		return strings.Contains(have, want)
	default:
		return false
	}
}

// evaluateMetric applies a leaf operator to a metric reading.
//
// Type compatibility follows the operator: numeric comparisons need a
// numeric metric and numeric literal, contains needs strings, between needs
// a numeric metric and a {min, max} literal, in needs a list literal. A
// literal of the wrong shape is a defect in the condition and errors; a
// metric of the wrong kind simply does not match.
func evaluateMetric(op string, metric telemetry.MetricValue, literal any) (bool, error) {
	switch op {
	case "gt", "gte", "lt", "lte":
		want, ok := toFloat(literal)
		if !ok {
			return false, evalErrorf("operator %q requires a numeric value, got %T", op, literal)
		}
		have, err := metric.AsNumeric()
		if err != nil {
			return false, nil
		}
		switch op {
		case "gt":
			return have > want, nil
		case "gte":
			return have >= want, nil
		case "lt":
			return have < want, nil
		default:
			return have <= want, nil
		}

	case "eq":
		return metricEquals(metric, literal), nil
	case "ne":
		return !metricEquals(metric, literal), nil

	case "contains":
		want, ok := literal.(string)
		if !ok {
			return false, evalErrorf("contains requires a string value, got %T", literal)
		}
		have, err := metric.AsText()
		if err != nil {
			return false, nil
		}
		return strings.Contains(have, want), nil

	case "in":
		items, ok := literal.([]any)
		if !ok {
			return false, evalErrorf("in requires a list value, got %T", literal)
		}
		for _, item := range items {
			if metricEquals(metric, item) {
				return true, nil
			}
		}
		return false, nil

	case "between":
		min, max, ok := toRange(literal)
		if !ok {
			return false, evalErrorf("between requires a numeric {min, max} value, got %v", literal)
		}
		have, err := metric.AsNumeric()
		if err != nil {
			return false, nil
		}
		return have >= min && have <= max, nil

	default:
		return false, evalErrorf("unknown operator %q", op)
	}
}

// metricEquals compares a metric reading against a literal of any supported
// type. Mismatched kinds do not match.
func metricEquals(metric telemetry.MetricValue, literal any) bool {
	switch metric.Kind() {
	case telemetry.KindNumeric:
		want, ok := toFloat(literal)
		if !ok {
			return false
		}
		have, _ := metric.AsNumeric()
		return have == want
	case telemetry.KindString:
		want, ok := literal.(string)
		if !ok {
			return false
		}
		have, _ := metric.AsText()
		return have == want
	case telemetry.KindBool:
		want, ok := literal.(bool)
		if !ok {
			return false
		}
		have, _ := metric.AsBool()
		return have == want
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// toRange extracts the inclusive bounds of a between literal. Both a
// {"min": x, "max": y} map and a two-element list are accepted.
func toRange(v any) (min, max float64, ok bool) {
	switch r := v.(type) {
	case map[string]any:
		lo, okLo := toFloat(r["min"])
		hi, okHi := toFloat(r["max"])
		return lo, hi, okLo && okHi
	case []any:
		if len(r) != 2 {
			return 0, 0, false
		}
		lo, okLo := toFloat(r[0])
		hi, okHi := toFloat(r[1])
		return lo, hi, okLo && okHi
	default:
		return 0, 0, false
	}
}
