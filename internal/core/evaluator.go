package core

import (
	"math"
	"reflect"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const bucketCount = 10000

// Evaluate resolves toggle for user. Disabled toggles serve DisabledServe;
// otherwise the first matching rule wins, falling back to DefaultServe.
func Evaluate(toggle Toggle, user UserContext) Result {
	version := toggle.Version

	if toggle.Static {
		return serve(toggle, toggle.DefaultServe, nil, &version, ReasonStatic)
	}

	if toggle.Disabled {
		return serve(toggle, toggle.DisabledServe, nil, &version, ReasonDisabled)
	}

	for i, rule := range toggle.Rules {
		if evaluateRule(toggle.Key, rule, user) {
			index := i
			return serve(toggle, rule.Serve, &index, &version, ReasonRuleMatch)
		}
	}

	return serve(toggle, toggle.DefaultServe, nil, &version, ReasonDefault)
}

// Bucket returns the stable rollout bucket in [0, 10000) for a toggle and
// user key pair. It depends on nothing but the two keys.
func Bucket(toggleKey, userKey string) int {
	return int(xxhash.Sum64String(toggleKey+"/"+userKey) % bucketCount)
}

func serve(toggle Toggle, variation int, ruleIndex *int, version *uint64, reason Reason) Result {
	if variation < 0 || variation >= len(toggle.Variations) {
		return Result{RuleIndex: ruleIndex, Version: version, Reason: ReasonError}
	}

	return Result{
		Value:     toggle.Variations[variation],
		RuleIndex: ruleIndex,
		Version:   version,
		Reason:    reason,
	}
}

func evaluateRule(toggleKey string, rule Rule, user UserContext) bool {
	if rule.Operator == OperatorPercentage {
		percentage, ok := asPercentage(rule.Value)
		if !ok {
			return false
		}
		return float64(Bucket(toggleKey, user.Key)) < percentage*bucketCount/100
	}

	if user.Attributes == nil {
		return false
	}

	attributeValue, ok := user.Attributes[rule.Attribute]
	if !ok {
		return false
	}

	switch rule.Operator {
	case OperatorEquals:
		return attributeEquals(attributeValue, rule.Value)
	case OperatorIn:
		return attributeIn(attributeValue, rule.Value)
	default:
		return false
	}
}

func attributeIn(value string, ruleValue any) bool {
	values := reflect.ValueOf(ruleValue)
	if !values.IsValid() {
		return false
	}

	if values.Kind() != reflect.Slice && values.Kind() != reflect.Array {
		return false
	}

	for i := 0; i < values.Len(); i++ {
		if attributeEquals(value, values.Index(i).Interface()) {
			return true
		}
	}

	return false
}

// attributeEquals compares a string attribute to a rule operand, parsing the
// attribute when the operand is numeric or boolean.
func attributeEquals(attribute string, ruleValue any) bool {
	switch operand := ruleValue.(type) {
	case string:
		return attribute == operand
	case bool:
		parsed, err := strconv.ParseBool(attribute)
		return err == nil && parsed == operand
	}

	if operand, ok := asInt64(ruleValue); ok {
		parsed, err := strconv.ParseInt(attribute, 10, 64)
		if err == nil {
			return parsed == operand
		}
		f, err := strconv.ParseFloat(attribute, 64)
		return err == nil && floatEqualsInt64(f, operand)
	}

	if operand, ok := asUint64(ruleValue); ok {
		parsed, err := strconv.ParseUint(attribute, 10, 64)
		if err == nil {
			return parsed == operand
		}
		f, err := strconv.ParseFloat(attribute, 64)
		return err == nil && floatEqualsUint64(f, operand)
	}

	if operand, ok := asFloat64(ruleValue); ok {
		parsed, err := strconv.ParseFloat(attribute, 64)
		return err == nil && parsed == operand
	}

	return false
}

func asPercentage(value any) (float64, bool) {
	var percentage float64
	if n, ok := asFloat64(value); ok {
		percentage = n
	} else if n, ok := asInt64(value); ok {
		percentage = float64(n)
	} else if n, ok := asUint64(value); ok {
		percentage = float64(n)
	} else {
		return 0, false
	}

	if math.IsNaN(percentage) || percentage < 0 || percentage > 100 {
		return 0, false
	}

	return percentage, true
}

func asInt64(value any) (int64, bool) {
	switch number := value.(type) {
	case int:
		return int64(number), true
	case int8:
		return int64(number), true
	case int16:
		return int64(number), true
	case int32:
		return int64(number), true
	case int64:
		return number, true
	default:
		return 0, false
	}
}

func asUint64(value any) (uint64, bool) {
	switch number := value.(type) {
	case uint:
		return uint64(number), true
	case uint8:
		return uint64(number), true
	case uint16:
		return uint64(number), true
	case uint32:
		return uint64(number), true
	case uint64:
		return number, true
	default:
		return 0, false
	}
}

func asFloat64(value any) (float64, bool) {
	switch number := value.(type) {
	case float32:
		return float64(number), true
	case float64:
		return number, true
	default:
		return 0, false
	}
}

func floatEqualsInt64(left float64, right int64) bool {
	if !isWholeFinite(left) {
		return false
	}

	if left < float64(math.MinInt64) || left > float64(math.MaxInt64) {
		return false
	}

	converted := int64(left)
	return float64(converted) == left && converted == right
}

func floatEqualsUint64(left float64, right uint64) bool {
	if !isWholeFinite(left) {
		return false
	}

	if left < 0 || left > float64(math.MaxUint64) {
		return false
	}

	converted := uint64(left)
	return float64(converted) == left && converted == right
}

func isWholeFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0) && math.Trunc(value) == value
}
