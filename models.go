package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format("2006-01-02") + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil
// so that *DateOnly pointer fields can be set to nil by pgx's NULL handling.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. AuthToken and Password are hidden from JSON responses.
type user struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Email     string     `json:"email" db:"email"`
	AuthToken string     `json:"-" db:"auth_token"`
	Password  string     `json:"-" db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// ProfileBaseline carries the user attributes the BMR-derived baseline prior
// is computed from when a profile has no estimator state yet. Weight is not
// here — the latest weigh-in from the progress log is used instead, since the
// profile attributes are set once at account creation.
type ProfileBaseline struct {
	Sex           string  `db:"sex"`
	AgeYears      int     `db:"age_years"`
	HeightCM      float64 `db:"height_cm"`
	ActivityLevel string  `db:"activity_level"`
}

// ProgressObservation is one user-day of logged progress: morning weight plus
// the day's calorie totals. Maps to progress_log; one row per user per date.
// This engine only reads these — the recording flow owns the writes.
type ProgressObservation struct {
	Date                 DateOnly `json:"date" db:"date"`
	WeightKG             float64  `json:"weight_kg" db:"weight_kg"`
	CaloriesConsumed     float64  `json:"calories_consumed" db:"calories_consumed"`
	CaloriesBurnedBMR    float64  `json:"calories_burned_bmr" db:"calories_burned_bmr"`
	CaloriesBurnedActive float64  `json:"calories_burned_active" db:"calories_burned_active"`
}

// EstimatorState is the Kalman filter's belief about one user's daily energy
// expenditure. It is an explicit value passed into and out of updateEstimate;
// persistence and per-profile mutual exclusion belong to the store (the
// Version field carries the store's optimistic-concurrency token).
type EstimatorState struct {
	TDEEEstimateKcal float64  `json:"tdee_estimate_kcal" db:"tdee_estimate_kcal"`
	Variance         float64  `json:"variance" db:"variance"`
	LastUpdateDate   DateOnly `json:"last_update_date" db:"last_update_date"`
	Version          int64    `json:"-" db:"version"`
}

// EnergyObservation is the aggregated input to one Kalman update: how many
// days elapsed since the prior estimate, the net weight change across them,
// and the mean daily intake over the same span.
type EnergyObservation struct {
	ElapsedDays               int
	WeightDeltaKG             float64
	MeanDailyCaloriesConsumed float64
}

// UpdateMetadata accompanies a committed estimator update so the store keeps
// an audit trail of what the estimate moved from and how sure the filter was.
type UpdateMetadata struct {
	PreviousTDEE float64   `json:"previous_tdee" db:"previous_tdee"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
	Confidence   float64   `json:"confidence" db:"confidence"`
}

/* ─── Forecasting ────────────────────────────────────────────────────── */

// WeightPoint is one dated weight observation in a forecasting history.
type WeightPoint struct {
	Date     DateOnly `json:"date"`
	WeightKG float64  `json:"weight_kg"`
}

// PredictionPoint is one future day in a forecast. Invariant:
// LowerBound <= PredictedWeightKG <= UpperBound.
type PredictionPoint struct {
	Date              DateOnly `json:"date"`
	PredictedWeightKG float64  `json:"predicted_weight_kg"`
	LowerBound        float64  `json:"lower_bound"`
	UpperBound        float64  `json:"upper_bound"`
}

// Trend direction labels. A plateau is a valid, actionable signal, not an
// error — "stable" is returned, never rejected.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// ForecastResult is the complete output of one forecast call. Immutable once
// built; never persisted by this engine.
type ForecastResult struct {
	ModelUsed        string            `json:"model_used"`
	GeneratedAt      time.Time         `json:"generated_at"`
	ConfidenceLevel  float64           `json:"confidence_level"`
	DataPointsUsed   int               `json:"data_points_used"`
	TrendDirection   string            `json:"trend_direction"`
	TrendMagnitudeKG float64           `json:"trend_magnitude_kg"`
	Predictions      []PredictionPoint `json:"predictions"`
}

/* ─── Recalculation pipeline ─────────────────────────────────────────── */

// Skip reasons recorded by the recalculation pipeline.
const (
	SkipInsufficientData = "insufficient_data"
	SkipLowConfidence    = "low_confidence"
)

// EligibleProfile is one unit of recalculation work: a profile, its current
// estimator belief, and its observation window. The caller assembles these
// from the store so runRecalculation stays pure with respect to its inputs.
type EligibleProfile struct {
	ProfileID uuid.UUID
	State     EstimatorState
	History   []ProgressObservation
}

// ProfileSkip records a profile the pipeline examined but did not update.
type ProfileSkip struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Reason    string    `json:"reason"`
}

// ProfileError records a per-profile failure that did not abort the run.
type ProfileError struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Reason    string    `json:"reason"`
}

// PipelineRunReport aggregates one recalculation run. It is accumulated
// internally and handed to the caller complete — never partially visible.
type PipelineRunReport struct {
	RunID             uuid.UUID      `json:"run_id"`
	StartedAt         time.Time      `json:"started_at"`
	FinishedAt        time.Time      `json:"finished_at"`
	ProfilesProcessed int            `json:"profiles_processed"`
	ProfilesUpdated   int            `json:"profiles_updated"`
	ProfilesSkipped   int            `json:"profiles_skipped"`
	Skips             []ProfileSkip  `json:"skips"`
	Errors            []ProfileError `json:"errors"`
}

/* ─── Request types ──────────────────────────────────────────────────── */

// upsertProgressRequest is the request body for POST /api/progress.
type upsertProgressRequest struct {
	Date                 string   `json:"date"`
	WeightKG             float64  `json:"weight_kg"`
	CaloriesConsumed     *float64 `json:"calories_consumed"`
	CaloriesBurnedBMR    *float64 `json:"calories_burned_bmr"`
	CaloriesBurnedActive *float64 `json:"calories_burned_active"`
}
