package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// profileStore is the external collaborator contract: history reads,
// estimator-state reads, atomic commits, and active-profile listing. The
// engine consumes this interface; pgStore is the production implementation
// and tests substitute in-memory fakes.
type profileStore interface {
	GetProgressHistory(ctx context.Context, profileID uuid.UUID, since time.Time) ([]ProgressObservation, error)
	GetEstimatorState(ctx context.Context, profileID uuid.UUID) (*EstimatorState, error)
	GetProfileBaseline(ctx context.Context, profileID uuid.UUID) (ProfileBaseline, error)
	CommitEstimatorUpdate(ctx context.Context, profileID uuid.UUID, newState EstimatorState, meta UpdateMetadata) error
	ListActiveProfiles(ctx context.Context, activityWindow time.Duration) ([]uuid.UUID, error)
	UpsertProgress(ctx context.Context, profileID uuid.UUID, obs ProgressObservation) (ProgressObservation, error)
}

// pgStore implements profileStore on a pgx connection pool.
type pgStore struct {
	db *pgxpool.Pool
}

// GetProgressHistory returns the profile's observations on or after since,
// date-ascending. An empty slice (not nil) is returned when there are none.
func (s *pgStore) GetProgressHistory(ctx context.Context, profileID uuid.UUID, since time.Time) ([]ProgressObservation, error) {
	obs, err := queryMany[ProgressObservation](s.db, ctx,
		`SELECT date, weight_kg, calories_consumed, calories_burned_bmr, calories_burned_active
		 FROM progress_log
		 WHERE user_id = @userID AND date >= @since
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": profileID, "since": since.Format("2006-01-02")})
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs = []ProgressObservation{}
	}
	return obs, nil
}

// GetEstimatorState returns the profile's persisted filter state, or nil when
// none exists yet (the caller seeds a baseline prior in that case).
func (s *pgStore) GetEstimatorState(ctx context.Context, profileID uuid.UUID) (*EstimatorState, error) {
	state, err := queryOne[EstimatorState](s.db, ctx,
		`SELECT tdee_estimate_kcal, variance, last_update_date, version
		 FROM estimator_state WHERE user_id = @userID`,
		pgx.NamedArgs{"userID": profileID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// GetProfileBaseline returns the attributes the baseline prior is derived
// from. Every user row carries them (schema defaults), so pgx.ErrNoRows here
// means the profile itself does not exist.
func (s *pgStore) GetProfileBaseline(ctx context.Context, profileID uuid.UUID) (ProfileBaseline, error) {
	return queryOne[ProfileBaseline](s.db, ctx,
		`SELECT sex, age_years, height_cm, activity_level
		 FROM users WHERE id = @userID`,
		pgx.NamedArgs{"userID": profileID})
}

// CommitEstimatorUpdate writes the new state atomically. Updates are a
// compare-and-swap on the version column: losing a race with a concurrent
// writer (ad-hoc update vs. batch run) returns ErrVersionConflict instead of
// silently clobbering. First-time states insert at version 1.
func (s *pgStore) CommitEstimatorUpdate(ctx context.Context, profileID uuid.UUID, newState EstimatorState, meta UpdateMetadata) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO estimator_state
			(user_id, tdee_estimate_kcal, variance, last_update_date, version,
			 previous_tdee, updated_at, confidence)
		 VALUES (@userID, @tdee, @variance, @lastUpdate, 1, @previousTDEE, @updatedAt, @confidence)
		 ON CONFLICT (user_id) DO UPDATE SET
			tdee_estimate_kcal = EXCLUDED.tdee_estimate_kcal,
			variance           = EXCLUDED.variance,
			last_update_date   = EXCLUDED.last_update_date,
			version            = estimator_state.version + 1,
			previous_tdee      = EXCLUDED.previous_tdee,
			updated_at         = EXCLUDED.updated_at,
			confidence         = EXCLUDED.confidence
		 WHERE estimator_state.version = @version`,
		pgx.NamedArgs{
			"userID":       profileID,
			"tdee":         newState.TDEEEstimateKcal,
			"variance":     newState.Variance,
			"lastUpdate":   newState.LastUpdateDate.Time.Format("2006-01-02"),
			"version":      newState.Version,
			"previousTDEE": meta.PreviousTDEE,
			"updatedAt":    meta.UpdatedAt,
			"confidence":   meta.Confidence,
		})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// ListActiveProfiles returns profiles with at least one observation inside
// the activity window. Used by the recalculation trigger to build its
// eligible set.
func (s *pgStore) ListActiveProfiles(ctx context.Context, activityWindow time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().UTC().Add(-activityWindow).Format("2006-01-02")
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT user_id FROM progress_log WHERE date >= @cutoff`,
		pgx.NamedArgs{"cutoff": cutoff})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpsertProgress creates or replaces the observation for the given date.
// The UNIQUE(user_id, date) constraint means logging the same day twice
// updates in place.
func (s *pgStore) UpsertProgress(ctx context.Context, profileID uuid.UUID, obs ProgressObservation) (ProgressObservation, error) {
	return queryOne[ProgressObservation](s.db, ctx,
		`INSERT INTO progress_log
			(user_id, date, weight_kg, calories_consumed, calories_burned_bmr, calories_burned_active)
		 VALUES (@userID, @date, @weightKG, @consumed, @bmr, @active)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			weight_kg              = EXCLUDED.weight_kg,
			calories_consumed      = EXCLUDED.calories_consumed,
			calories_burned_bmr    = EXCLUDED.calories_burned_bmr,
			calories_burned_active = EXCLUDED.calories_burned_active
		 RETURNING date, weight_kg, calories_consumed, calories_burned_bmr, calories_burned_active`,
		pgx.NamedArgs{
			"userID":   profileID,
			"date":     obs.Date.Time.Format("2006-01-02"),
			"weightKG": obs.WeightKG,
			"consumed": obs.CaloriesConsumed,
			"bmr":      obs.CaloriesBurnedBMR,
			"active":   obs.CaloriesBurnedActive,
		})
}
