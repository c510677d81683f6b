package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateObservation is one persisted caución rate reading.
type RateObservation struct {
	CapturedAt time.Time
	Days       int
	RateType   string
	Rate       decimal.Decimal
	CreatedAt  time.Time
}

// AlertRecord captures an emitted alert event for auditing.
type AlertRecord struct {
	ID         int64
	EventID    string
	RuleID     string
	Kind       string
	Days       int
	RateType   string
	Rate       decimal.Decimal
	TargetRate decimal.Decimal
	Condition  string
	CreatedAt  time.Time
}
