package core

import "testing"

func FuzzAttributeEquals(f *testing.F) {
	f.Add("1", int64(1), uint64(1), float64(1))
	f.Add("-1", int64(-1), uint64(2), float64(-1))
	f.Add("9007199254740993", int64(9007199254740993), uint64(9007199254740992), float64(9007199254740992))
	f.Add("true", int64(0), uint64(0), float64(0.5))

	f.Fuzz(func(t *testing.T, attribute string, i int64, u uint64, fl float64) {
		if attributeEquals(attribute, attribute) != true {
			t.Fatalf("attributeEquals(%q, %q) = false, want true", attribute, attribute)
		}

		_ = attributeEquals(attribute, i)
		_ = attributeEquals(attribute, u)
		_ = attributeEquals(attribute, fl)

		operator := OperatorEquals
		switch u % 4 {
		case 1:
			operator = OperatorIn
		case 2:
			operator = OperatorPercentage
		case 3:
			operator = Operator("unknown")
		}

		toggle := Toggle{
			Key:          "fuzz-toggle",
			Disabled:     u%11 == 0,
			Variations:   []any{false, true},
			DefaultServe: int(i % 3),
			Rules: []Rule{
				{Attribute: "attr", Operator: operator, Value: []any{attribute, i, u, fl}, Serve: int(u % 3)},
				{Attribute: "attr", Operator: operator, Value: fl, Serve: 1},
			},
		}

		result := Evaluate(toggle, UserContext{
			Key:        attribute,
			Attributes: map[string]string{"attr": attribute},
		})
		if result.Reason == ReasonRuleMatch && result.RuleIndex == nil {
			t.Fatal("rule match without rule index")
		}
		if Bucket(toggle.Key, attribute) != Bucket(toggle.Key, attribute) {
			t.Fatal("Bucket() is not stable")
		}
	})
}
