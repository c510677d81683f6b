package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"caucion-alerts/internal/alerting"
	"caucion-alerts/internal/fetcher"
	"caucion-alerts/internal/storage"
)

// Service orchestrates one check run: lock state, fetch a snapshot, evaluate
// the rules, dispatch fired events, persist the updated state.
type Service struct {
	rules      []alerting.Rule
	fetcher    fetcher.RateFetcher
	states     storage.StateStore
	dispatcher *alerting.Dispatcher
	history    storage.ObservationStore
	alertLog   storage.AlertLogStore
	logger     zerolog.Logger
}

// New constructs the checker service. history and alertLog may be nil when
// no database is configured; dispatcher may be nil when notifications are
// disabled.
func New(rules []alerting.Rule, f fetcher.RateFetcher, states storage.StateStore, dispatcher *alerting.Dispatcher, history storage.ObservationStore, alertLog storage.AlertLogStore, logger zerolog.Logger) *Service {
	return &Service{
		rules:      rules,
		fetcher:    f,
		states:     states,
		dispatcher: dispatcher,
		history:    history,
		alertLog:   alertLog,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// RunCheck executes a single run. The state lock is held for the whole run
// so an overlapping invocation fails cleanly instead of interleaving load
// and save. Delivery failures are logged per event and do not fail the run;
// state is persisted for every evaluated rule regardless.
func (s *Service) RunCheck(ctx context.Context) error {
	release, err := s.states.Acquire()
	if err != nil {
		return fmt.Errorf("acquire state lock: %w", err)
	}
	defer release()

	prior, err := s.states.Load()
	if err != nil {
		return fmt.Errorf("load alert state: %w", err)
	}

	snap, err := s.fetcher.FetchRates(ctx)
	if err != nil {
		return fmt.Errorf("fetch rates: %w", err)
	}

	events, next := alerting.Evaluate(snap, s.rules, prior, time.Now().UTC())
	s.logger.Info().
		Int("rules", len(s.rules)).
		Int("rates", snap.Len()).
		Int("events", len(events)).
		Msg("evaluation complete")

	var results []alerting.DeliveryResult
	if s.dispatcher != nil {
		results = s.dispatcher.Dispatch(ctx, events)
	} else if len(events) > 0 {
		s.logger.Warn().Int("events", len(events)).Msg("no notifier configured; events logged only")
	}

	// Delivery outcomes never feed back into rule state: a failed send
	// re-fires on the next crossing, not on the next run.
	if err := s.states.Save(next); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}

	s.recordHistory(ctx, snap, events)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.Error().
			Int("failed", failed).
			Int("delivered", len(results)-failed).
			Msg("some alert deliveries failed")
	}

	return nil
}

func (s *Service) recordHistory(ctx context.Context, snap alerting.Snapshot, events []alerting.Event) {
	if s.history != nil {
		observations := make([]storage.RateObservation, 0, snap.Len())
		for key, rate := range snap.Rates {
			observations = append(observations, storage.RateObservation{
				CapturedAt: snap.CapturedAt,
				Days:       key.Days,
				RateType:   string(key.Type),
				Rate:       rate,
			})
		}
		if err := s.history.UpsertObservations(ctx, observations); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist rate observations")
		}
	}

	if s.alertLog != nil {
		for _, ev := range events {
			record := storage.AlertRecord{
				EventID:    ev.ID,
				RuleID:     ev.Rule.ID(),
				Kind:       string(ev.Kind),
				Days:       ev.Rule.Days,
				RateType:   string(ev.Rule.Type),
				Rate:       ev.Rate,
				TargetRate: ev.Rule.TargetRate,
				Condition:  string(ev.Rule.Condition),
			}
			if _, err := s.alertLog.InsertAlert(ctx, record); err != nil {
				s.logger.Error().Err(err).Str("rule_id", record.RuleID).Msg("failed to persist alert record")
			}
		}
	}
}
