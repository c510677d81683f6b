package alerting

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RateType selects which side of a caución quote a rule watches.
type RateType string

const (
	RateColocador RateType = "colocador" // lender rate
	RateTomador   RateType = "tomador"   // borrower rate
)

// ParseRateType validates a configured rate type.
func ParseRateType(v string) (RateType, error) {
	switch RateType(v) {
	case RateColocador, RateTomador:
		return RateType(v), nil
	}
	return "", fmt.Errorf("unknown rate type %q (expected colocador or tomador)", v)
}

// Condition is a threshold comparator.
type Condition string

const (
	CondGTE Condition = ">="
	CondLTE Condition = "<="
	CondGT  Condition = ">"
	CondLT  Condition = "<"
	CondEQ  Condition = "=="
)

// ParseCondition validates a configured comparator.
func ParseCondition(v string) (Condition, error) {
	switch Condition(v) {
	case CondGTE, CondLTE, CondGT, CondLT, CondEQ:
		return Condition(v), nil
	}
	return "", fmt.Errorf("unknown condition %q (expected >=, <=, >, < or ==)", v)
}

// Holds reports whether rate satisfies the comparator against target.
// Comparisons are exact decimal comparisons; == requires exact equality at
// the rule's configured precision, which on a continuously varying rate
// rarely fires and is left to the rule author.
func (c Condition) Holds(rate, target decimal.Decimal) bool {
	switch c {
	case CondGTE:
		return rate.GreaterThanOrEqual(target)
	case CondLTE:
		return rate.LessThanOrEqual(target)
	case CondGT:
		return rate.GreaterThan(target)
	case CondLT:
		return rate.LessThan(target)
	case CondEQ:
		return rate.Equal(target)
	}
	return false
}

// Rule is one validated threshold watch. Rules are parsed from configuration
// at startup and never mutated during a run.
type Rule struct {
	Symbol        string
	Days          int
	Type          RateType
	Condition     Condition
	TargetRate    decimal.Decimal
	Enabled       bool
	NotifyOnClear bool
	Description   string
}

// ID returns the identity used to key persisted state. An explicit symbol
// wins; otherwise the identity derives from the comparands, so editing any of
// them re-keys (and therefore re-arms) the rule.
func (r Rule) ID() string {
	if r.Symbol != "" {
		return r.Symbol
	}
	return fmt.Sprintf("%dd-%s%s%s", r.Days, r.Type, r.Condition, r.TargetRate.String())
}

// Validate checks the rule invariants.
func (r Rule) Validate() error {
	if r.Days <= 0 {
		return fmt.Errorf("rule %s: days must be greater than zero", r.ID())
	}
	if _, err := ParseRateType(string(r.Type)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID(), err)
	}
	if _, err := ParseCondition(string(r.Condition)); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID(), err)
	}
	return nil
}

// Describe returns the configured description, or a generated one.
func (r Rule) Describe() string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("caución %dd %s %s %s%%", r.Days, r.Type, r.Condition, r.TargetRate.String())
}
