package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Default forecast parameters when the caller omits them, and the horizon
// cap: a forecast a year out is already guesswork, and an unbounded horizon
// would let a single request allocate an arbitrarily large prediction slice.
const (
	defaultForecastDays    = 30
	maxForecastDays        = 365
	defaultConfidenceLevel = 0.95
)

/* ─── Forecast endpoint ──────────────────────────────────────────────── */

// getForecast returns a weight-trajectory forecast for the authenticated user.
// GET /api/forecast?days_ahead=30&confidence_level=0.95 (both optional).
// Reads the full weight history, runs model selection, and returns a complete
// ForecastResult — or a typed error, never a partial forecast.
func (h *Handler) getForecast(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	daysAhead := defaultForecastDays
	if raw := c.Query("days_ahead"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid days_ahead, expected an integer")
			return
		}
		if v < 1 || v > maxForecastDays {
			apiError(c, http.StatusBadRequest, "days_ahead must be between 1 and 365")
			return
		}
		daysAhead = v
	}

	confidenceLevel := defaultConfidenceLevel
	if raw := c.Query("confidence_level"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid confidence_level, expected a number")
			return
		}
		confidenceLevel = v
	}

	observations, err := h.store.GetProgressHistory(c.Request.Context(), userID, time.Time{})
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch weight history")
		return
	}

	// Days logged without a weigh-in carry weight_kg = 0; they feed the
	// intake aggregation but not the forecaster.
	history := make([]WeightPoint, 0, len(observations))
	for _, o := range observations {
		if o.WeightKG > 0 {
			history = append(history, WeightPoint{Date: o.Date, WeightKG: o.WeightKG})
		}
	}

	result, err := forecastWeight(history, daysAhead, confidenceLevel, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			apiError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrInsufficientData):
			apiError(c, http.StatusUnprocessableEntity, "not enough weight history to forecast (need at least 2 points)")
		default:
			apiError(c, http.StatusInternalServerError, "forecast failed")
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

/* ─── Progress endpoints ─────────────────────────────────────────────── */

// getProgressHistory returns progress observations within [start, end].
// GET /api/progress?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Returns an empty array (not null) if no entries exist in the range.
func (h *Handler) getProgressHistory(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)
	start := c.Query("start")
	end := c.Query("end")

	if start == "" || end == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	if _, err := time.Parse("2006-01-02", start); err != nil {
		apiError(c, http.StatusBadRequest, "invalid start, expected YYYY-MM-DD")
		return
	}
	if _, err := time.Parse("2006-01-02", end); err != nil {
		apiError(c, http.StatusBadRequest, "invalid end, expected YYYY-MM-DD")
		return
	}
	if start > end {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	entries, err := queryMany[ProgressObservation](h.db, c,
		`SELECT date, weight_kg, calories_consumed, calories_burned_bmr, calories_burned_active
		 FROM progress_log
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start, "end": end})
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch progress history")
		return
	}
	if entries == nil {
		entries = []ProgressObservation{}
	}

	c.JSON(http.StatusOK, entries)
}

// upsertProgress creates or updates the progress observation for a date.
// POST /api/progress. The UNIQUE(user_id, date) constraint means posting the
// same date updates in place. After a successful write the user's estimator
// state is refreshed ad hoc; a refresh that can't run never fails the request.
func (h *Handler) upsertProgress(c *gin.Context) {
	userID := c.MustGet("user_id").(uuid.UUID)

	var body upsertProgressRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Date == "" {
		apiError(c, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	if body.WeightKG <= 0 || body.WeightKG > 500 {
		apiError(c, http.StatusBadRequest, "weight_kg must be between 0 and 500")
		return
	}

	obs := ProgressObservation{
		Date:     DateOnly{date},
		WeightKG: body.WeightKG,
	}
	if body.CaloriesConsumed != nil {
		if *body.CaloriesConsumed < 0 {
			apiError(c, http.StatusBadRequest, "calories_consumed must be >= 0")
			return
		}
		obs.CaloriesConsumed = *body.CaloriesConsumed
	}
	if body.CaloriesBurnedBMR != nil {
		obs.CaloriesBurnedBMR = *body.CaloriesBurnedBMR
	}
	if body.CaloriesBurnedActive != nil {
		obs.CaloriesBurnedActive = *body.CaloriesBurnedActive
	}

	stored, err := h.store.UpsertProgress(c.Request.Context(), userID, obs)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to save progress")
		return
	}

	h.refreshEstimate(c, userID)

	c.JSON(http.StatusCreated, stored)
}

// refreshEstimate runs the ad-hoc estimator update after new progress lands:
// same per-profile algorithm as the batch pipeline, for one profile. The
// store's versioned commit serializes this against a concurrent batch run.
// Failures are logged, never surfaced — the progress write already succeeded.
func (h *Handler) refreshEstimate(c *gin.Context, userID uuid.UUID) {
	ctx := c.Request.Context()

	since := time.Now().UTC().AddDate(0, 0, -2*lookbackDays)
	history, err := h.store.GetProgressHistory(ctx, userID, since)
	if err != nil {
		log.Printf("[estimator] fetch history for %s: %v", userID, err)
		return
	}

	state, err := h.baselineState(ctx, userID, history)
	if err != nil {
		log.Printf("[estimator] baseline state for %s: %v", userID, err)
		return
	}

	profile := EligibleProfile{ProfileID: userID, State: *state, History: history}
	updated, skipReason, err := recalcProfile(ctx, profile, h.store)
	switch {
	case err != nil:
		log.Printf("[estimator] ad-hoc update for %s: %v", userID, err)
	case updated:
		log.Printf("[estimator] ad-hoc update committed for %s", userID)
	default:
		log.Printf("[estimator] ad-hoc update skipped for %s: %s", userID, skipReason)
	}
}

// baselineState returns the profile's persisted estimator state. A profile
// that has never been estimated gets the baseline prior instead: Mifflin-St
// Jeor BMR from the stored attributes and the latest weigh-in, times the
// activity factor. The seeded prior is not persisted here — it rides into the
// first confident commit like any other prior state.
func (h *Handler) baselineState(ctx context.Context, profileID uuid.UUID, history []ProgressObservation) (*EstimatorState, error) {
	state, err := h.store.GetEstimatorState(ctx, profileID)
	if err != nil || state != nil {
		return state, err
	}

	baseline, err := h.store.GetProfileBaseline(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("fetch profile baseline: %w", err)
	}
	weight := latestWeight(history)
	if weight <= 0 {
		return nil, invalidInputf("no weigh-in to derive a baseline prior from")
	}

	bmr := mifflinBMR(baseline.Sex, baseline.AgeYears, baseline.HeightCM, weight)
	seeded, err := seedEstimatorState(bmr, baseline.ActivityLevel, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("seed estimator state: %w", err)
	}
	log.Printf("[estimator] seeded baseline prior %.0f kcal/day for %s", seeded.TDEEEstimateKcal, profileID)
	return &seeded, nil
}

// latestWeight returns the most recent positive weigh-in, or 0 if none.
func latestWeight(history []ProgressObservation) float64 {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].WeightKG > 0 {
			return history[i].WeightKG
		}
	}
	return 0
}

/* ─── Recalculation trigger ──────────────────────────────────────────── */

// runWeeklyRecalculation executes one batch recalculation and returns its
// report. POST /internal/recalc/run (service token). The actual scheduling —
// cron, queue, manual — lives outside; this endpoint is the pure entry point
// it calls.
func (h *Handler) runWeeklyRecalculation(c *gin.Context) {
	ctx := c.Request.Context()

	ids, err := h.store.ListActiveProfiles(ctx, lookbackDays*24*time.Hour)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to list active profiles")
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -2*lookbackDays)
	profiles := make([]EligibleProfile, 0, len(ids))
	for _, id := range ids {
		history, err := h.store.GetProgressHistory(ctx, id, since)
		if err != nil {
			log.Printf("[recalc] fetch history for %s: %v", id, err)
			continue
		}
		state, err := h.baselineState(ctx, id, history)
		if err != nil {
			log.Printf("[recalc] baseline state for %s: %v", id, err)
			continue
		}
		profiles = append(profiles, EligibleProfile{ProfileID: id, State: *state, History: history})
	}

	report := runRecalculation(ctx, profiles, h.store)
	log.Printf("[recalc] run %s: processed=%d updated=%d skipped=%d errors=%d",
		report.RunID, report.ProfilesProcessed, report.ProfilesUpdated,
		report.ProfilesSkipped, len(report.Errors))

	c.JSON(http.StatusOK, report)
}
