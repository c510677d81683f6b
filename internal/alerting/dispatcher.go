package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DeliveryResult records the outcome of one notification attempt.
type DeliveryResult struct {
	EventID string
	RuleID  string
	Err     error
}

// Dispatcher renders fired events and hands them to the notifier one by one.
// It only reads event data; rule state is owned by the evaluator and is not
// affected by delivery outcomes.
type Dispatcher struct {
	notifier Notifier
	logger   zerolog.Logger
}

// NewDispatcher wires a notifier into a Dispatcher.
func NewDispatcher(notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch attempts delivery for every event independently. A failed send
// never aborts the remaining events; each outcome is reported in the returned
// slice so the caller can observe partial success.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(events))
	for _, ev := range events {
		err := d.notifier.Notify(ctx, RenderEvent(ev))
		if err != nil {
			d.logger.Error().Err(err).
				Str("rule_id", ev.Rule.ID()).
				Str("event_id", ev.ID).
				Msg("failed to deliver alert")
		} else {
			d.logger.Info().
				Str("rule_id", ev.Rule.ID()).
				Str("event_id", ev.ID).
				Str("kind", string(ev.Kind)).
				Msg("alert delivered")
		}
		results = append(results, DeliveryResult{EventID: ev.ID, RuleID: ev.Rule.ID(), Err: err})
	}
	return results
}

// RenderEvent builds the HTML message body for one event.
func RenderEvent(ev Event) string {
	builder := strings.Builder{}
	switch ev.Kind {
	case EventCleared:
		builder.WriteString("<b>Caución Alert Cleared</b>\n")
	default:
		builder.WriteString("<b>Caución Rate Alert</b>\n")
	}
	builder.WriteString(fmt.Sprintf("Plazo: %d day(s)\n", ev.Rule.Days))
	builder.WriteString(fmt.Sprintf("Type: %s\n", rateTypeLabel(ev.Rule.Type)))
	builder.WriteString(fmt.Sprintf("Current: %s%%\n", ev.Rate.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Target: %s %s%%\n", ev.Rule.Condition, ev.Rule.TargetRate.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", ev.CapturedAt.UTC().Format(time.RFC3339)))
	if ev.Rule.Description != "" {
		builder.WriteString(fmt.Sprintf("\n<i>%s</i>", ev.Rule.Description))
	}
	return builder.String()
}

// RenderError builds the message body for a fatal run failure.
func RenderError(err error) string {
	return fmt.Sprintf("<b>Caución Checker Error</b>\n\n%s", err)
}

// RenderStartup builds the watch-mode startup message.
func RenderStartup() string {
	return "<b>Caución Rate Checker Started</b>\n\nMonitoring rates..."
}

func rateTypeLabel(t RateType) string {
	switch t {
	case RateColocador:
		return "colocador (lender)"
	case RateTomador:
		return "tomador (borrower)"
	}
	return string(t)
}
