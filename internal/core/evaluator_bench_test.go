package core

import (
	"fmt"
	"testing"
)

func BenchmarkEvaluate_NoRules(b *testing.B) {
	toggle := Toggle{
		Key:        "feature-no-rules",
		Variations: []any{false, true},
	}
	user := UserContext{
		Key:        "user-42",
		Attributes: map[string]string{"country": "US", "plan": "pro"},
	}

	b.ResetTimer()
	for b.Loop() {
		Evaluate(toggle, user)
	}
}

func BenchmarkEvaluate_ManyRules(b *testing.B) {
	rules := make([]Rule, 15)
	for i := range rules {
		rules[i] = Rule{
			Attribute: fmt.Sprintf("attr-%d", i),
			Operator:  OperatorEquals,
			Value:     fmt.Sprintf("val-%d", i),
			Serve:     1,
		}
	}

	toggle := Toggle{
		Key:        "feature-many-rules",
		Variations: []any{false, true},
		Rules:      rules,
	}

	b.Run("MatchFirst", func(b *testing.B) {
		user := UserContext{Attributes: map[string]string{"attr-0": "val-0"}}
		b.ResetTimer()
		for b.Loop() {
			Evaluate(toggle, user)
		}
	})

	b.Run("MatchLast", func(b *testing.B) {
		user := UserContext{Attributes: map[string]string{"attr-14": "val-14"}}
		b.ResetTimer()
		for b.Loop() {
			Evaluate(toggle, user)
		}
	})

	b.Run("NoMatch", func(b *testing.B) {
		user := UserContext{Attributes: map[string]string{"country": "XX"}}
		b.ResetTimer()
		for b.Loop() {
			Evaluate(toggle, user)
		}
	})
}

func BenchmarkEvaluate_Percentage(b *testing.B) {
	toggle := Toggle{
		Key:        "rollout",
		Variations: []any{false, true},
		Rules:      []Rule{{Operator: OperatorPercentage, Value: 25.0, Serve: 1}},
	}
	user := UserContext{Key: "user-42"}

	b.ResetTimer()
	for b.Loop() {
		Evaluate(toggle, user)
	}
}
