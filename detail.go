package flagprobe

import (
	"github.com/matt-riley/flagprobe/internal/core"
	"github.com/matt-riley/flagprobe/internal/events"
)

// Reason explains how a value was chosen.
type Reason = core.Reason

const (
	ReasonDefault   = core.ReasonDefault
	ReasonRuleMatch = core.ReasonRuleMatch
	ReasonDisabled  = core.ReasonDisabled
	ReasonNotFound  = core.ReasonNotFound
	ReasonWrongType = core.ReasonWrongType
	ReasonError     = core.ReasonError
	ReasonStatic    = core.ReasonStatic
)

// Detail is a served value together with its explanation. RuleIndex is nil
// unless a targeting rule matched; Version is nil when no toggle was
// evaluated.
type Detail[T any] struct {
	Value     T
	RuleIndex *int
	Version   *uint64
	Reason    Reason
}

// AccessEvent is reported to the EventSink for every evaluated toggle.
type AccessEvent = events.AccessEvent

// EventSink receives batches of access events.
type EventSink = events.Sink

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc = events.SinkFunc
