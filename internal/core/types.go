package core

type Operator string

const (
	OperatorEquals     Operator = "equals"
	OperatorIn         Operator = "in"
	OperatorPercentage Operator = "percentage"
)

type Reason string

const (
	ReasonDefault   Reason = "default"
	ReasonRuleMatch Reason = "rule match"
	ReasonDisabled  Reason = "disabled"
	ReasonNotFound  Reason = "flag not found"
	ReasonWrongType Reason = "wrong type"
	ReasonError     Reason = "error"
	// ReasonStatic marks values injected in test mode rather than evaluated.
	ReasonStatic Reason = "static"
)

// Rule maps a predicate over user attributes to a variation index.
// Percentage rules ignore Attribute and bucket on the user key; Value is the
// rollout percentage in [0, 100].
type Rule struct {
	Attribute string   `json:"attribute,omitempty"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
	Serve     int      `json:"serve"`
}

type Toggle struct {
	Key           string `json:"key"`
	Version       uint64 `json:"version"`
	Disabled      bool   `json:"disabled,omitempty"`
	Variations    []any  `json:"variations"`
	Rules         []Rule `json:"rules,omitempty"`
	DefaultServe  int    `json:"default_serve"`
	DisabledServe int    `json:"disabled_serve"`
	Static        bool   `json:"-"`
}

// Snapshot is an immutable, versioned set of toggles. It is replaced
// wholesale and never mutated after publication.
type Snapshot struct {
	Version uint64            `json:"version"`
	Toggles map[string]Toggle `json:"toggles"`
}

// EmptySnapshot is what a store serves before the first successful sync.
func EmptySnapshot() *Snapshot {
	return &Snapshot{Toggles: map[string]Toggle{}}
}

type UserContext struct {
	Key        string
	Attributes map[string]string
}

// Result is the untyped outcome of evaluating one toggle.
type Result struct {
	Value     any
	RuleIndex *int
	Version   *uint64
	Reason    Reason
}
