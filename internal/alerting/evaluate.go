package alerting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleState is the durable per-rule record used for edge detection between
// runs. LastTriggered reflects whether the condition held as of the most
// recent evaluation that had data for the rule's (days, type) key.
type RuleState struct {
	LastTriggered  bool             `json:"last_triggered"`
	LastNotifiedAt *time.Time       `json:"last_notified_at,omitempty"`
	LastRate       *decimal.Decimal `json:"last_rate,omitempty"`
}

// EventKind distinguishes threshold crossings from clearances.
type EventKind string

const (
	EventTriggered EventKind = "triggered"
	EventCleared   EventKind = "cleared"
)

// Event is one notification-worthy transition.
type Event struct {
	ID         string
	Kind       EventKind
	Rule       Rule
	Rate       decimal.Decimal
	CapturedAt time.Time
}

// Evaluate applies every enabled rule to the snapshot and returns the events
// to notify plus the updated state map. It is edge-triggered: a rule emits
// only on the false→true transition relative to its prior state, so a
// condition that keeps holding across consecutive runs notifies exactly once.
// A true→false transition updates state silently unless the rule opts into
// NotifyOnClear. Rules whose (days, type) key is absent from the snapshot
// carry their prior state forward untouched.
//
// Evaluate has no I/O and never fails on validated input; each rule's outcome
// depends only on its own prior state and the snapshot, so evaluation order
// is irrelevant.
func Evaluate(snap Snapshot, rules []Rule, prior map[string]RuleState, now time.Time) ([]Event, map[string]RuleState) {
	next := make(map[string]RuleState, len(prior))
	for id, st := range prior {
		next[id] = st
	}

	var events []Event
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		rate, ok := snap.Rate(rule.Days, rule.Type)
		if !ok {
			// Missing data is a defined no-op, not a condition change.
			continue
		}

		id := rule.ID()
		st := prior[id]
		holds := rule.Condition.Holds(rate, rule.TargetRate)

		observed := rate
		updated := RuleState{
			LastTriggered:  holds,
			LastNotifiedAt: st.LastNotifiedAt,
			LastRate:       &observed,
		}

		switch {
		case holds && !st.LastTriggered:
			events = append(events, newEvent(EventTriggered, rule, rate, snap.CapturedAt))
			notified := now
			updated.LastNotifiedAt = &notified
		case !holds && st.LastTriggered && rule.NotifyOnClear:
			events = append(events, newEvent(EventCleared, rule, rate, snap.CapturedAt))
			notified := now
			updated.LastNotifiedAt = &notified
		}

		next[id] = updated
	}

	return events, next
}

func newEvent(kind EventKind, rule Rule, rate decimal.Decimal, capturedAt time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Rule:       rule,
		Rate:       rate,
		CapturedAt: capturedAt,
	}
}
