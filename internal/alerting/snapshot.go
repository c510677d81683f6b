package alerting

import (
	"time"

	"github.com/shopspring/decimal"
)

// Key addresses one quoted rate inside a snapshot.
type Key struct {
	Days int
	Type RateType
}

// Snapshot holds one poll's worth of caución rates. At most one rate exists
// per (days, type) key. Snapshots are read-only after the fetch and are
// discarded once evaluated; only derived rule state persists.
type Snapshot struct {
	Rates      map[Key]decimal.Decimal
	CapturedAt time.Time
}

// NewSnapshot constructs an empty snapshot captured at the given time.
func NewSnapshot(capturedAt time.Time) Snapshot {
	return Snapshot{Rates: make(map[Key]decimal.Decimal), CapturedAt: capturedAt}
}

// Set records the rate for a (days, type) key, replacing any earlier value.
func (s Snapshot) Set(days int, t RateType, rate decimal.Decimal) {
	s.Rates[Key{Days: days, Type: t}] = rate
}

// Rate looks up the rate for a (days, type) key.
func (s Snapshot) Rate(days int, t RateType) (decimal.Decimal, bool) {
	rate, ok := s.Rates[Key{Days: days, Type: t}]
	return rate, ok
}

// Len reports how many rates the snapshot carries.
func (s Snapshot) Len() int {
	return len(s.Rates)
}
