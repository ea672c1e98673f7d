package main

import (
	"log"
	"math"
	"time"
)

/* ─── Model names & tuning ───────────────────────────────────────────── */

// Model identifiers reported in ForecastResult.ModelUsed.
const (
	modelSimpleTrend          = "simple_trend"
	modelLinearRegression     = "linear_regression"
	modelExponentialSmoothing = "exponential_smoothing"
	modelARIMA                = "arima_1_1_1"
)

// stableThresholdKG is the forecast magnitude below which the trend is
// classified as a plateau. Empirically chosen.
const stableThresholdKG = 0.5

// simpleTrendFloorSD keeps the simple-trend interval from collapsing to zero
// width when the few points happen to sit exactly on a line (kg).
const simpleTrendFloorSD = 0.1

// Holt smoothing coefficients. Level reacts moderately, trend slowly —
// daily scale weight is noisy and the trend component whipsaws otherwise.
const (
	holtAlpha = 0.3
	holtBeta  = 0.1
)

/* ─── Entry point ────────────────────────────────────────────────────── */

// forecastWeight selects a forecasting model based on history length, produces
// daysAhead point predictions with confidence bounds at confidenceLevel, and
// classifies the trend. now only stamps GeneratedAt; the math never reads the
// clock, so identical inputs produce identical output.
//
// Model tiers by n = len(history): 2-6 simple trend, 7-13 least-squares
// regression, 14-29 double exponential smoothing, >=30 ARIMA(1,1,1). Richer
// models that fail to fit fall back down the chain; a fitting failure is an
// expected outcome and never reaches the caller.
func forecastWeight(history []WeightPoint, daysAhead int, confidenceLevel float64, now time.Time) (ForecastResult, error) {
	if daysAhead <= 0 {
		return ForecastResult{}, invalidInputf("days_ahead must be > 0, got %d", daysAhead)
	}
	if !(confidenceLevel > 0 && confidenceLevel < 1) {
		return ForecastResult{}, invalidInputf("confidence_level must be in (0,1), got %g", confidenceLevel)
	}
	if len(history) < 2 {
		return ForecastResult{}, ErrInsufficientData
	}

	// Day offsets from the first observation; dates must be strictly ascending.
	xs := make([]float64, len(history))
	ys := make([]float64, len(history))
	first := history[0].Date.Time
	for i, p := range history {
		if p.WeightKG <= 0 || !isFinite(p.WeightKG) {
			return ForecastResult{}, invalidInputf("weight at index %d must be positive, got %g", i, p.WeightKG)
		}
		xs[i] = p.Date.Time.Sub(first).Hours() / 24
		ys[i] = p.WeightKG
		if i > 0 && xs[i] <= xs[i-1] {
			return ForecastResult{}, invalidInputf("dates must be strictly ascending and unique (index %d)", i)
		}
	}

	modelUsed, preds, stepSD := runModelChain(strategiesFor(len(history)), xs, ys, daysAhead)

	z := normalQuantile((1 + confidenceLevel) / 2)
	lastDate := history[len(history)-1].Date.Time
	points := make([]PredictionPoint, daysAhead)
	for h := 0; h < daysAhead; h++ {
		half := z * stepSD[h]
		if half < 0 || !isFinite(half) {
			half = 0
		}
		points[h] = PredictionPoint{
			Date:              DateOnly{lastDate.AddDate(0, 0, h+1)},
			PredictedWeightKG: preds[h],
			LowerBound:        preds[h] - half,
			UpperBound:        preds[h] + half,
		}
	}

	// Trend magnitude spans the horizon; a single-day horizon is compared
	// against the last historical observation instead.
	var magnitude float64
	if daysAhead == 1 {
		magnitude = preds[0] - ys[len(ys)-1]
	} else {
		magnitude = preds[daysAhead-1] - preds[0]
	}

	return ForecastResult{
		ModelUsed:        modelUsed,
		GeneratedAt:      now,
		ConfidenceLevel:  confidenceLevel,
		DataPointsUsed:   len(history),
		TrendDirection:   classifyTrend(magnitude),
		TrendMagnitudeKG: magnitude,
		Predictions:      points,
	}, nil
}

// classifyTrend maps a horizon weight change onto a categorical label.
func classifyTrend(magnitudeKG float64) string {
	switch {
	case math.Abs(magnitudeKG) < stableThresholdKG:
		return TrendStable
	case magnitudeKG < 0:
		return TrendDecreasing
	default:
		return TrendIncreasing
	}
}

/* ─── Strategy chain ─────────────────────────────────────────────────── */

// fitFunc fits a model to (xs, ys) and extrapolates daysAhead daily steps past
// the last observation. Returns point predictions, a per-step interval
// standard deviation, and ok=false when the fit is degenerate — a normal,
// expected outcome that sends the chain to the next-simpler model.
type fitFunc func(xs, ys []float64, daysAhead int) (preds, stepSD []float64, ok bool)

type forecastStrategy struct {
	name string
	fit  fitFunc
}

// strategiesFor returns the ranked strategy chain for a history of n points.
// The chain always ends in the simple trend, which cannot fail.
func strategiesFor(n int) []forecastStrategy {
	chain := []forecastStrategy{{modelSimpleTrend, fitSimpleTrend}}
	if n >= 7 {
		chain = append([]forecastStrategy{{modelLinearRegression, fitLinearRegression}}, chain...)
	}
	if n >= 14 {
		chain = append([]forecastStrategy{{modelExponentialSmoothing, fitExponentialSmoothing}}, chain...)
	}
	if n >= 30 {
		chain = append([]forecastStrategy{{modelARIMA, fitARIMA111}}, chain...)
	}
	return chain
}

// runModelChain tries each strategy in rank order and returns the first
// successful fit. Failures are logged, never propagated: the final simple
// trend is closed-form and always succeeds.
func runModelChain(chain []forecastStrategy, xs, ys []float64, daysAhead int) (string, []float64, []float64) {
	for _, s := range chain {
		preds, stepSD, ok := s.fit(xs, ys, daysAhead)
		if ok {
			return s.name, preds, stepSD
		}
		log.Printf("[forecast] %s fit failed on %d points, falling back", s.name, len(ys))
	}
	// Unreachable: fitSimpleTrend always returns ok=true.
	preds, stepSD, _ := fitSimpleTrend(xs, ys, daysAhead)
	return modelSimpleTrend, preds, stepSD
}

/* ─── Tier 1: simple linear trend (2-6 points) ───────────────────────── */

// fitSimpleTrend extrapolates the slope between the first and last
// observation. The interval widens linearly with horizon distance, seeded by
// the mean absolute deviation of the interior points from that line.
func fitSimpleTrend(xs, ys []float64, daysAhead int) ([]float64, []float64, bool) {
	n := len(ys)
	slope := (ys[n-1] - ys[0]) / (xs[n-1] - xs[0])

	var dev float64
	for i := range ys {
		line := ys[0] + slope*(xs[i]-xs[0])
		dev += math.Abs(ys[i] - line)
	}
	base := math.Max(dev/float64(n), simpleTrendFloorSD)

	preds := make([]float64, daysAhead)
	stepSD := make([]float64, daysAhead)
	for h := 1; h <= daysAhead; h++ {
		preds[h-1] = ys[n-1] + slope*float64(h)
		stepSD[h-1] = base * float64(h)
	}
	return preds, stepSD, true
}

/* ─── Tier 2: ordinary least squares (7-13 points) ───────────────────── */

// fitLinearRegression fits y = a + b*x by least squares and uses the standard
// prediction-interval standard error: s * sqrt(1 + 1/n + (x*-x̄)²/Sxx).
func fitLinearRegression(xs, ys []float64, daysAhead int) ([]float64, []float64, bool) {
	n := float64(len(ys))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy float64
	for i := range xs {
		dx := xs[i] - meanX
		sxx += dx * dx
		sxy += dx * (ys[i] - meanY)
	}
	if sxx <= 0 {
		return nil, nil, false
	}
	slope := sxy / sxx
	intercept := meanY - slope*meanX

	var sse float64
	for i := range xs {
		r := ys[i] - (intercept + slope*xs[i])
		sse += r * r
	}
	s := math.Sqrt(sse / (n - 2))
	if !isFinite(slope) || !isFinite(s) {
		return nil, nil, false
	}

	lastX := xs[len(xs)-1]
	preds := make([]float64, daysAhead)
	stepSD := make([]float64, daysAhead)
	for h := 1; h <= daysAhead; h++ {
		x := lastX + float64(h)
		preds[h-1] = intercept + slope*x
		dx := x - meanX
		stepSD[h-1] = s * math.Sqrt(1+1/n+dx*dx/sxx)
	}
	return preds, stepSD, true
}

/* ─── Tier 3: double exponential smoothing (14-29 points) ────────────── */

// fitExponentialSmoothing runs Holt's level+trend smoothing over the series
// and projects the final level forward by the per-day trend. The interval
// standard deviation comes from one-step-ahead errors and widens with
// sqrt(horizon).
func fitExponentialSmoothing(xs, ys []float64, daysAhead int) ([]float64, []float64, bool) {
	n := len(ys)
	level := ys[0]
	trend := ys[1] - ys[0]

	var sse float64
	for i := 1; i < n; i++ {
		predicted := level + trend
		err := ys[i] - predicted
		sse += err * err
		prevLevel := level
		level = holtAlpha*ys[i] + (1-holtAlpha)*(level+trend)
		trend = holtBeta*(level-prevLevel) + (1-holtBeta)*trend
	}
	sd := math.Sqrt(sse / float64(n-1))

	// The smoothing steps over observations; convert the per-step trend to a
	// per-day trend using the mean spacing so gappy histories extrapolate at
	// the right rate.
	avgSpacing := (xs[n-1] - xs[0]) / float64(n-1)
	dailyTrend := trend / avgSpacing

	if !isFinite(level) || !isFinite(dailyTrend) || !isFinite(sd) {
		return nil, nil, false
	}

	preds := make([]float64, daysAhead)
	stepSD := make([]float64, daysAhead)
	for h := 1; h <= daysAhead; h++ {
		preds[h-1] = level + dailyTrend*float64(h)
		stepSD[h-1] = sd * math.Sqrt(float64(h))
	}
	return preds, stepSD, true
}

/* ─── Tier 4: ARIMA(1,1,1) (>=30 points) ─────────────────────────────── */

// fitARIMA111 fits an ARIMA(1,1,1) by conditional least squares on the
// differenced series: the AR coefficient from the lag-2/lag-1 autocorrelation
// ratio, the MA coefficient by a fixed grid search minimizing conditional SSE.
// Everything is closed-form or bounded-iteration, so the fit is deterministic;
// a degenerate or non-finite result is reported as ok=false and absorbed by
// the fallback chain.
func fitARIMA111(xs, ys []float64, daysAhead int) ([]float64, []float64, bool) {
	n := len(ys)
	z := make([]float64, n-1)
	var mean float64
	for i := 1; i < n; i++ {
		z[i-1] = ys[i] - ys[i-1]
		mean += z[i-1]
	}
	nz := len(z)
	mean /= float64(nz)

	zc := make([]float64, nz)
	var variance float64
	for i, v := range z {
		zc[i] = v - mean
		variance += zc[i] * zc[i]
	}
	variance /= float64(nz)

	// A perfectly flat differenced series is not a fitting failure: the
	// series moves at a constant daily rate. Forecast that rate exactly.
	if variance < 1e-12 {
		preds := make([]float64, daysAhead)
		stepSD := make([]float64, daysAhead)
		last := ys[n-1]
		for h := 1; h <= daysAhead; h++ {
			preds[h-1] = last + mean*float64(h)
			stepSD[h-1] = 0
		}
		return preds, stepSD, true
	}

	var acf1, acf2 float64
	for i := 1; i < nz; i++ {
		acf1 += zc[i] * zc[i-1]
	}
	for i := 2; i < nz; i++ {
		acf2 += zc[i] * zc[i-2]
	}
	acf1 /= variance * float64(nz)
	acf2 /= variance * float64(nz)

	// ARMA(1,1) implies rho2/rho1 = phi. Near-zero lag-1 correlation means
	// the differences are white noise — phi 0 degrades cleanly to a drift
	// model rather than failing.
	var phi float64
	if math.Abs(acf1) > 1e-8 {
		phi = acf2 / acf1
	}
	if !isFinite(phi) {
		return nil, nil, false
	}
	phi = math.Max(-0.95, math.Min(0.95, phi))

	// Grid-search theta by conditional SSE with e[0]=0. Fixed grid keeps the
	// fit deterministic and free of convergence risk.
	bestTheta, bestSSE := 0.0, math.Inf(1)
	resid := make([]float64, nz)
	for theta := -0.9; theta <= 0.9+1e-9; theta += 0.05 {
		var sse float64
		prevErr := 0.0
		for i := 1; i < nz; i++ {
			e := zc[i] - phi*zc[i-1] - theta*prevErr
			sse += e * e
			prevErr = e
		}
		if sse < bestSSE {
			bestSSE = sse
			bestTheta = theta
		}
	}
	theta := bestTheta

	prevErr := 0.0
	for i := 1; i < nz; i++ {
		resid[i] = zc[i] - phi*zc[i-1] - theta*prevErr
		prevErr = resid[i]
	}
	sigma := math.Sqrt(bestSSE / float64(nz-1))
	if !isFinite(sigma) {
		return nil, nil, false
	}

	// Forecast the differences, then integrate back onto the weight level.
	preds := make([]float64, daysAhead)
	stepSD := make([]float64, daysAhead)
	level := ys[n-1]
	zhat := mean + phi*zc[nz-1] + theta*resid[nz-1]
	for h := 1; h <= daysAhead; h++ {
		level += zhat
		preds[h-1] = level
		stepSD[h-1] = sigma * math.Sqrt(float64(h))
		if !isFinite(level) || !isFinite(stepSD[h-1]) {
			return nil, nil, false
		}
		zhat = mean + phi*(zhat-mean)
	}
	return preds, stepSD, true
}

/* ─── Normal quantile ────────────────────────────────────────────────── */

// normalQuantile is the inverse standard normal CDF (Acklam's rational
// approximation, relative error < 1.15e-9). Used to map a confidence level
// onto an interval z-score.
func normalQuantile(p float64) float64 {
	if p <= 0 || p >= 1 {
		return math.NaN()
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const pLow = 0.02425
	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p <= 1-pLow:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
}
