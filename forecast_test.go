package main

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

var forecastNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

// makeHistory builds n observations spaced stepDays apart, starting at
// startWeight and changing by deltaPerPoint each observation.
func makeHistory(n, stepDays int, startWeight, deltaPerPoint float64) []WeightPoint {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]WeightPoint, n)
	for i := 0; i < n; i++ {
		points[i] = WeightPoint{
			Date:     DateOnly{start.AddDate(0, 0, i*stepDays)},
			WeightKG: startWeight + float64(i)*deltaPerPoint,
		}
	}
	return points
}

/* ─── Validation ─────────────────────────────────────────────────────── */

// TestForecast_InsufficientData: a single observation cannot anchor any model.
func TestForecast_InsufficientData(t *testing.T) {
	_, err := forecastWeight(makeHistory(1, 1, 80, 0), 14, 0.95, forecastNow)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for 1 point, got %v", err)
	}
	_, err = forecastWeight(nil, 14, 0.95, forecastNow)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData for empty history, got %v", err)
	}
}

// TestForecast_InvalidInputs exercises every ErrInvalidInput guard.
func TestForecast_InvalidInputs(t *testing.T) {
	valid := makeHistory(5, 1, 80, -0.1)

	duplicateDates := makeHistory(5, 1, 80, -0.1)
	duplicateDates[2].Date = duplicateDates[1].Date

	descendingDates := makeHistory(5, 1, 80, -0.1)
	descendingDates[3].Date = DateOnly{descendingDates[1].Date.Time.AddDate(0, 0, -1)}

	zeroWeight := makeHistory(5, 1, 80, -0.1)
	zeroWeight[4].WeightKG = 0

	cases := []struct {
		name    string
		history []WeightPoint
		days    int
		level   float64
	}{
		{"zero days_ahead", valid, 0, 0.95},
		{"negative days_ahead", valid, -7, 0.95},
		{"confidence_level zero", valid, 14, 0},
		{"confidence_level one", valid, 14, 1},
		{"confidence_level above one", valid, 14, 1.5},
		{"duplicate dates", duplicateDates, 14, 0.95},
		{"descending dates", descendingDates, 14, 0.95},
		{"non-positive weight", zeroWeight, 14, 0.95},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := forecastWeight(tc.history, tc.days, tc.level, forecastNow)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

/* ─── Model selection ────────────────────────────────────────────────── */

// TestForecast_ModelSelectionByHistorySize checks the deterministic tier
// boundaries: 2-6 simple trend, 7-13 regression, 14-29 smoothing, >=30 ARIMA.
func TestForecast_ModelSelectionByHistorySize(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{2, modelSimpleTrend},
		{6, modelSimpleTrend},
		{7, modelLinearRegression},
		{13, modelLinearRegression},
		{14, modelExponentialSmoothing},
		{29, modelExponentialSmoothing},
		{30, modelARIMA},
		{45, modelARIMA},
	}

	for _, tc := range cases {
		result, err := forecastWeight(makeHistory(tc.n, 1, 82, -0.05), 7, 0.95, forecastNow)
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", tc.n, err)
		}
		if result.ModelUsed != tc.want {
			t.Errorf("n=%d: model = %s, want %s", tc.n, result.ModelUsed, tc.want)
		}
		if result.DataPointsUsed != tc.n {
			t.Errorf("n=%d: data_points_used = %d", tc.n, result.DataPointsUsed)
		}
	}
}

// TestRunModelChain_FallsBack verifies a failing strategy is a normal outcome
// that hands off to the next-simpler model, never an error.
func TestRunModelChain_FallsBack(t *testing.T) {
	failing := forecastStrategy{"always_fails", func(xs, ys []float64, daysAhead int) ([]float64, []float64, bool) {
		return nil, nil, false
	}}
	chain := []forecastStrategy{failing, {modelSimpleTrend, fitSimpleTrend}}

	xs := []float64{0, 1, 2}
	ys := []float64{80, 79.9, 79.8}
	name, preds, stepSD := runModelChain(chain, xs, ys, 5)

	if name != modelSimpleTrend {
		t.Errorf("model = %s, want %s after fallback", name, modelSimpleTrend)
	}
	if len(preds) != 5 || len(stepSD) != 5 {
		t.Errorf("expected 5 predictions, got %d/%d", len(preds), len(stepSD))
	}
}

/* ─── Trend classification ───────────────────────────────────────────── */

// TestForecast_DecreasingTrendARIMA: 40 days dropping exactly 0.1 kg/day uses
// the ARIMA tier and forecasts continued loss. Over a 14-day horizon the
// first→last prediction span covers 13 daily steps ≈ -1.3 kg, within the
// ±0.3 band around -1.4.
func TestForecast_DecreasingTrendARIMA(t *testing.T) {
	result, err := forecastWeight(makeHistory(40, 1, 90, -0.1), 14, 0.95, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ModelUsed != modelARIMA {
		t.Errorf("model = %s, want %s", result.ModelUsed, modelARIMA)
	}
	if result.TrendDirection != TrendDecreasing {
		t.Errorf("trend = %s, want %s", result.TrendDirection, TrendDecreasing)
	}
	if math.Abs(result.TrendMagnitudeKG-(-1.4)) >= 0.3 {
		t.Errorf("trend magnitude = %f, want within 0.3 of -1.4", result.TrendMagnitudeKG)
	}
}

// TestForecast_StablePlateau: 40 identical weights is a valid, actionable
// plateau — the richest eligible model still runs and classifies it stable.
func TestForecast_StablePlateau(t *testing.T) {
	result, err := forecastWeight(makeHistory(40, 1, 75, 0), 14, 0.95, forecastNow)
	if err != nil {
		t.Fatalf("plateau must not fail: %v", err)
	}
	if result.ModelUsed != modelARIMA {
		t.Errorf("model = %s, want %s (richest eligible)", result.ModelUsed, modelARIMA)
	}
	if result.TrendDirection != TrendStable {
		t.Errorf("trend = %s, want %s", result.TrendDirection, TrendStable)
	}
	if math.Abs(result.TrendMagnitudeKG) >= 0.5 {
		t.Errorf("trend magnitude = %f, want |magnitude| < 0.5", result.TrendMagnitudeKG)
	}
}

// TestForecast_SimpleTrendExtrapolation: 3 points a week apart, each 0.5 kg
// lower. Slope is -1.0 kg / 14 days, so 14 more days projects ≈1.0 kg of
// further loss from the last observation.
func TestForecast_SimpleTrendExtrapolation(t *testing.T) {
	history := makeHistory(3, 7, 84, -0.5)
	result, err := forecastWeight(history, 14, 0.95, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ModelUsed != modelSimpleTrend {
		t.Errorf("model = %s, want %s", result.ModelUsed, modelSimpleTrend)
	}
	lastHist := history[2].WeightKG
	projected := result.Predictions[13].PredictedWeightKG - lastHist
	if math.Abs(projected-(-1.0)) > 0.2 {
		t.Errorf("projected change = %f, want ≈ -1.0", projected)
	}
	if result.TrendDirection != TrendDecreasing {
		t.Errorf("trend = %s, want %s", result.TrendDirection, TrendDecreasing)
	}
}

// TestForecast_SingleDayHorizon compares against the last historical
// observation instead of the first prediction.
func TestForecast_SingleDayHorizon(t *testing.T) {
	// 0.05 kg/day slope: one day ahead moves ~0.05 kg → stable.
	result, err := forecastWeight(makeHistory(10, 1, 70, 0.05), 1, 0.95, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Predictions) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(result.Predictions))
	}
	if result.TrendDirection != TrendStable {
		t.Errorf("trend = %s, want %s for a 0.05 kg single-day move", result.TrendDirection, TrendStable)
	}
}

func TestClassifyTrend(t *testing.T) {
	cases := []struct {
		magnitude float64
		want      string
	}{
		{-2.1, TrendDecreasing},
		{-0.5, TrendDecreasing},
		{-0.49, TrendStable},
		{0, TrendStable},
		{0.49, TrendStable},
		{0.5, TrendIncreasing},
		{3.2, TrendIncreasing},
	}
	for _, tc := range cases {
		if got := classifyTrend(tc.magnitude); got != tc.want {
			t.Errorf("classifyTrend(%g) = %s, want %s", tc.magnitude, got, tc.want)
		}
	}
}

/* ─── Interval invariants ────────────────────────────────────────────── */

// TestForecast_BoundsInvariant sweeps every tier and confidence level:
// lower <= predicted <= upper on every point, and dates advance daily from
// the last observation.
func TestForecast_BoundsInvariant(t *testing.T) {
	histories := [][]WeightPoint{
		makeHistory(3, 7, 84, -0.5),
		makeHistory(10, 1, 78, 0.12),
		makeHistory(20, 1, 95, -0.08),
		makeHistory(40, 1, 90, -0.1),
		makeHistory(40, 1, 75, 0),
	}
	levels := []float64{0.5, 0.8, 0.95, 0.99}

	for hi, history := range histories {
		for _, level := range levels {
			result, err := forecastWeight(history, 21, level, forecastNow)
			if err != nil {
				t.Fatalf("history %d level %g: unexpected error: %v", hi, level, err)
			}
			if len(result.Predictions) != 21 {
				t.Fatalf("history %d: expected 21 predictions, got %d", hi, len(result.Predictions))
			}
			lastDate := history[len(history)-1].Date.Time
			for i, p := range result.Predictions {
				if p.LowerBound > p.PredictedWeightKG || p.PredictedWeightKG > p.UpperBound {
					t.Errorf("history %d level %g point %d: bounds [%f, %f] do not bracket %f",
						hi, level, i, p.LowerBound, p.UpperBound, p.PredictedWeightKG)
				}
				wantDate := lastDate.AddDate(0, 0, i+1)
				if !p.Date.Time.Equal(wantDate) {
					t.Errorf("history %d point %d: date %v, want %v", hi, i, p.Date.Time, wantDate)
				}
			}
		}
	}
}

// TestForecast_WiderLevelWiderInterval: raising the confidence level must not
// shrink any interval.
func TestForecast_WiderLevelWiderInterval(t *testing.T) {
	history := makeHistory(10, 1, 78, -0.1)
	narrow, err := forecastWeight(history, 14, 0.80, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wide, err := forecastWeight(history, 14, 0.99, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range narrow.Predictions {
		nw := narrow.Predictions[i].UpperBound - narrow.Predictions[i].LowerBound
		ww := wide.Predictions[i].UpperBound - wide.Predictions[i].LowerBound
		if ww < nw {
			t.Errorf("point %d: 99%% interval %f narrower than 80%% interval %f", i, ww, nw)
		}
	}
}

/* ─── Determinism ────────────────────────────────────────────────────── */

// TestForecast_Deterministic: identical inputs yield identical output. The
// math path has no randomness and no map iteration; the only clock input is
// the explicit now argument.
func TestForecast_Deterministic(t *testing.T) {
	history := makeHistory(40, 1, 88, -0.07)
	a, err := forecastWeight(history, 30, 0.95, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := forecastWeight(history, 30, 0.95, forecastNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Error("two forecasts over identical inputs differ")
	}
}

/* ─── Normal quantile ────────────────────────────────────────────────── */

// TestNormalQuantile checks known quantiles of the standard normal: the
// median, the 97.5th percentile (1.959964), and tail symmetry.
func TestNormalQuantile(t *testing.T) {
	if got := normalQuantile(0.5); math.Abs(got) > 1e-9 {
		t.Errorf("quantile(0.5) = %g, want 0", got)
	}
	if got := normalQuantile(0.975); math.Abs(got-1.959964) > 1e-4 {
		t.Errorf("quantile(0.975) = %f, want 1.959964", got)
	}
	if got := normalQuantile(0.995); math.Abs(got-2.575829) > 1e-4 {
		t.Errorf("quantile(0.995) = %f, want 2.575829", got)
	}
	lo, hi := normalQuantile(0.01), normalQuantile(0.99)
	if math.Abs(lo+hi) > 1e-6 {
		t.Errorf("quantile(0.01)=%f and quantile(0.99)=%f are not symmetric", lo, hi)
	}
	if !math.IsNaN(normalQuantile(0)) || !math.IsNaN(normalQuantile(1)) {
		t.Error("quantile at 0 and 1 must be NaN")
	}
}
