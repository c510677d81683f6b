package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertObservationSQL = `INSERT INTO rate_observations (
        captured_at,
        days,
        rate_type,
        rate
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (captured_at, days, rate_type) DO UPDATE
    SET rate = EXCLUDED.rate;`

	listObservationsBetweenSQL = `SELECT
        captured_at,
        days,
        rate_type,
        rate,
        created_at
    FROM rate_observations
    WHERE days = $1
      AND rate_type = $2
      AND captured_at >= $3
      AND captured_at < $4
    ORDER BY captured_at;`

	listRecentObservationsSQL = `SELECT
        captured_at,
        days,
        rate_type,
        rate,
        created_at
    FROM rate_observations
    ORDER BY captured_at DESC
    LIMIT $1;`

	countObservationsSQL = `SELECT COUNT(*) FROM rate_observations;`

	insertAlertSQL = `INSERT INTO alerts (
        event_id,
        rule_id,
        kind,
        days,
        rate_type,
        rate,
        target_rate,
        condition
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        event_id,
        rule_id,
        kind,
        days,
        rate_type,
        rate,
        target_rate,
        condition,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`
)

// ObservationStore defines operations for rate history persistence.
type ObservationStore interface {
	UpsertObservations(ctx context.Context, observations []RateObservation) error
	ListObservationsBetween(ctx context.Context, days int, rateType string, from, to time.Time) ([]RateObservation, error)
	ListRecentObservations(ctx context.Context, limit int) ([]RateObservation, error)
	CountObservations(ctx context.Context) (int64, error)
}

// AlertLogStore defines operations for the alert audit log.
type AlertLogStore interface {
	InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Store aggregates access to rate observations and the alert log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertObservations persists one run's worth of rate readings.
func (s *Store) UpsertObservations(ctx context.Context, observations []RateObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, obs := range observations {
		if _, execErr := pool.Exec(ctx, upsertObservationSQL,
			obs.CapturedAt,
			obs.Days,
			obs.RateType,
			obs.Rate.String(),
		); execErr != nil {
			return fmt.Errorf("upsert rate observation: %w", execErr)
		}
	}
	return nil
}

// ListObservationsBetween lists readings for one (days, type) pair within a window.
func (s *Store) ListObservationsBetween(ctx context.Context, days int, rateType string, from, to time.Time) ([]RateObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, days, rateType, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]RateObservation, 0)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// ListRecentObservations lists the most recent readings ordered by descending capture time.
func (s *Store) ListRecentObservations(ctx context.Context, limit int) ([]RateObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]RateObservation, 0, limit)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// CountObservations counts stored readings.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

// InsertAlert persists an alert emission.
func (s *Store) InsertAlert(ctx context.Context, alert AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.EventID,
		alert.RuleID,
		alert.Kind,
		alert.Days,
		alert.RateType,
		alert.Rate.String(),
		alert.TargetRate.String(),
		alert.Condition,
	)

	rec := alert
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent audit rows.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		var rateStr, targetStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.RuleID,
			&rec.Kind,
			&rec.Days,
			&rec.RateType,
			&rateStr,
			&targetStr,
			&rec.Condition,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.Rate, convErr = decimal.NewFromString(rateStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse rate: %w", convErr)
		}
		rec.TargetRate, convErr = decimal.NewFromString(targetStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse target rate: %w", convErr)
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical audit rows.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanObservation(rows pgx.Rows) (RateObservation, error) {
	var (
		capturedAt time.Time
		days       int
		rateType   string
		rateStr    string
		createdAt  time.Time
	)

	if err := rows.Scan(&capturedAt, &days, &rateType, &rateStr, &createdAt); err != nil {
		return RateObservation{}, err
	}

	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return RateObservation{}, fmt.Errorf("parse rate: %w", err)
	}

	return RateObservation{
		CapturedAt: capturedAt,
		Days:       days,
		RateType:   rateType,
		Rate:       rate,
		CreatedAt:  createdAt,
	}, nil
}
