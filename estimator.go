package main

import (
	"math"
	"time"
)

/* ─── Tunable constants ──────────────────────────────────────────────── */

// energyDensityKcalPerKG converts a body-mass change into cumulative energy
// imbalance: 1 kg of tissue ≈ 7700 kcal. Standard approximation.
const energyDensityKcalPerKG = 7700.0

// processNoisePerDay is the assumed growth of estimate variance per elapsed
// day (kcal² units), modeling day-to-day metabolic drift. Empirically chosen;
// higher values make the filter more agile, lower values more stubborn.
const processNoisePerDay = 50.0

// measurementNoiseSD is the assumed standard deviation of a single implied-
// expenditure observation (kcal/day), covering self-report and tracking error.
const measurementNoiseSD = 100.0

// maxPlausibleWeeklyKG is the weight-change rate (kg/week) beyond which an
// observation is treated as suspect. Extreme swings are still accepted — they
// may be legitimate — but they drag confidence down proportionally instead of
// being rejected outright.
const maxPlausibleWeeklyKG = 1.5

// seedVarianceSD is the standard deviation (kcal/day) assigned to a freshly
// seeded estimator state. Wide on purpose: the first real observations should
// dominate the BMR-derived prior quickly.
const seedVarianceSD = 250.0

/* ─── Kalman update ──────────────────────────────────────────────────── */

// updateEstimate runs one scalar Kalman step: it blends the prior TDEE belief
// with the expenditure implied by a new observation, weighted by their
// relative uncertainties. Returns the new state, a confidence score in [0,1],
// and the residual (implied measurement minus prior estimate).
//
// The state is an explicit input/output value. Callers own serializing
// reads and writes of a given profile's state; this function has none of its
// own and is safe to call concurrently for distinct profiles.
func updateEstimate(prior EstimatorState, obs EnergyObservation) (EstimatorState, float64, float64, error) {
	if obs.ElapsedDays <= 0 {
		return EstimatorState{}, 0, 0, invalidInputf("elapsed_days must be > 0, got %d", obs.ElapsedDays)
	}
	if !isFinite(obs.WeightDeltaKG) || !isFinite(obs.MeanDailyCaloriesConsumed) {
		return EstimatorState{}, 0, 0, invalidInputf("observation contains non-finite values")
	}
	if obs.MeanDailyCaloriesConsumed < 0 {
		return EstimatorState{}, 0, 0, invalidInputf("mean_daily_calories_consumed must be >= 0, got %.1f", obs.MeanDailyCaloriesConsumed)
	}
	if !isFinite(prior.TDEEEstimateKcal) || !isFinite(prior.Variance) || prior.Variance < 0 {
		return EstimatorState{}, 0, 0, invalidInputf("prior state is malformed")
	}

	days := float64(obs.ElapsedDays)

	// Implied measured expenditure: intake minus the daily energy imbalance
	// the weight change represents. Losing weight means burning more than
	// eaten, so a negative delta raises the implied expenditure.
	measured := obs.MeanDailyCaloriesConsumed - (obs.WeightDeltaKG*energyDensityKcalPerKG)/days

	residual := measured - prior.TDEEEstimateKcal

	// Predict step: uncertainty grows with elapsed time.
	predictedVar := prior.Variance + processNoisePerDay*days

	// Update step. Gain is in [0,1] because both terms are non-negative.
	r := measurementNoiseSD * measurementNoiseSD
	gain := predictedVar / (predictedVar + r)

	newState := EstimatorState{
		TDEEEstimateKcal: prior.TDEEEstimateKcal + gain*residual,
		Variance:         math.Max(0, (1-gain)*predictedVar),
		LastUpdateDate:   prior.LastUpdateDate,
		Version:          prior.Version,
	}

	confidence := confidenceScore(gain, residual, predictedVar+r, obs.WeightDeltaKG, days)

	return newState, confidence, residual, nil
}

// confidenceScore combines the Kalman gain with the normalized surprise of
// the residual: high gain means the observation is trusted, but a residual
// far outside the innovation spread still signals something is off.
// An implausibly fast weight swing applies a further proportional penalty.
// Always in [0,1].
func confidenceScore(gain, residual, innovationVar, weightDeltaKG, days float64) float64 {
	c := gain * math.Exp(-math.Abs(residual)/math.Sqrt(innovationVar))

	weeklyRate := math.Abs(weightDeltaKG) / days * 7
	if weeklyRate > maxPlausibleWeeklyKG {
		c *= maxPlausibleWeeklyKG / weeklyRate
	}

	return clamp01(c)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

/* ─── Baseline seeding ───────────────────────────────────────────────── */

// activityMultipliers maps activity level strings to their TDEE multiplier.
// This is the single source of truth for valid activity levels.
var activityMultipliers = map[string]float64{
	"sedentary":   1.2,
	"light":       1.375,
	"moderate":    1.55,
	"active":      1.725,
	"very_active": 1.9,
}

// mifflinBMR computes basal metabolic rate via Mifflin-St Jeor. sex must be
// "male" or "female"; anything else is treated as female (the conservative
// constant).
func mifflinBMR(sex string, ageYears int, heightCM, weightKG float64) float64 {
	bmr := 10*weightKG + 6.25*heightCM - 5*float64(ageYears)
	if sex == "male" {
		return bmr + 5
	}
	return bmr - 161
}

// seedEstimatorState builds the baseline prior for a profile that has no
// persisted estimator state yet: BMR times the activity factor, with a wide
// initial variance so early observations move the estimate quickly.
func seedEstimatorState(bmr float64, activityLevel string, asOf time.Time) (EstimatorState, error) {
	mult, found := activityMultipliers[activityLevel]
	if !found {
		return EstimatorState{}, invalidInputf("unknown activity level %q", activityLevel)
	}
	if bmr <= 0 || !isFinite(bmr) {
		return EstimatorState{}, invalidInputf("bmr must be > 0, got %.1f", bmr)
	}
	return EstimatorState{
		TDEEEstimateKcal: bmr * mult,
		Variance:         seedVarianceSD * seedVarianceSD,
		LastUpdateDate:   DateOnly{asOf.UTC().Truncate(24 * time.Hour)},
	}, nil
}
