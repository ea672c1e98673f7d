package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

/* ─── Pipeline tuning ────────────────────────────────────────────────── */

// commitConfidenceThreshold is the minimum estimator confidence required to
// commit a recalculated TDEE. Below it the profile is skipped rather than
// overwritten with a shaky estimate. Empirically chosen.
const commitConfidenceThreshold = 0.70

// minWindowObservations is the minimum number of qualifying observations in
// the lookback window for a recalculation to be attempted.
const minWindowObservations = 7

// lookbackDays is the default observation window, measured back from a
// profile's most recent observation.
const lookbackDays = 14

// recalcWorkers bounds pipeline parallelism. Per-profile work is independent
// and cheap once history is in hand, so a small fixed pool is enough.
const recalcWorkers = 8

// estimatorCommitter is the slice of the store the pipeline needs: an atomic
// per-profile commit. The store owns mutual exclusion (versioned
// compare-and-swap); the pipeline never retries a lost race.
type estimatorCommitter interface {
	CommitEstimatorUpdate(ctx context.Context, profileID uuid.UUID, newState EstimatorState, meta UpdateMetadata) error
}

/* ─── Run entry point ────────────────────────────────────────────────── */

// runRecalculation re-estimates TDEE for every eligible profile and commits
// updates that clear the confidence threshold. Pure with respect to its
// inputs: the trigger (cron, queue, manual) lives outside, and the report is
// returned complete even when individual profiles fail.
//
// Profiles are processed by a bounded worker pool. Cancellation is
// cooperative: once ctx is done no new profiles start, and the report covers
// only the profiles that ran.
func runRecalculation(ctx context.Context, profiles []EligibleProfile, store estimatorCommitter) PipelineRunReport {
	report := PipelineRunReport{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
		Skips:     []ProfileSkip{},
		Errors:    []ProfileError{},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recalcWorkers)

	for _, p := range profiles {
		if gctx.Err() != nil {
			break
		}
		p := p
		g.Go(func() error {
			outcome, skipReason, err := recalcProfile(gctx, p, store)

			mu.Lock()
			defer mu.Unlock()
			report.ProfilesProcessed++
			switch {
			case err != nil:
				report.Errors = append(report.Errors, ProfileError{ProfileID: p.ProfileID, Reason: err.Error()})
			case outcome:
				report.ProfilesUpdated++
			default:
				report.ProfilesSkipped++
				report.Skips = append(report.Skips, ProfileSkip{ProfileID: p.ProfileID, Reason: skipReason})
			}
			// Per-profile failures are isolated into the report; returning nil
			// keeps the group running for everyone else.
			return nil
		})
	}
	// Workers only return nil; per-profile failures land in the report.
	_ = g.Wait()

	report.FinishedAt = time.Now().UTC()
	return report
}

// recalcProfile runs the per-profile algorithm: gate on window coverage,
// aggregate the window into one observation, update the estimate, and commit
// if confident. Returns (updated, skipReason, err); exactly one of the three
// outcomes is meaningful.
func recalcProfile(ctx context.Context, p EligibleProfile, store estimatorCommitter) (bool, string, error) {
	window := windowObservations(p.History, lookbackDays)
	if len(window) < minWindowObservations {
		return false, SkipInsufficientData, nil
	}

	obs, err := aggregateWindow(window)
	if err != nil {
		return false, "", fmt.Errorf("aggregate window: %w", err)
	}

	newState, confidence, _, err := updateEstimate(p.State, obs)
	if err != nil {
		return false, "", fmt.Errorf("update estimate: %w", err)
	}

	if confidence <= commitConfidenceThreshold {
		return false, SkipLowConfidence, nil
	}

	newState.LastUpdateDate = window[len(window)-1].Date
	meta := UpdateMetadata{
		PreviousTDEE: p.State.TDEEEstimateKcal,
		UpdatedAt:    time.Now().UTC(),
		Confidence:   confidence,
	}
	if err := store.CommitEstimatorUpdate(ctx, p.ProfileID, newState, meta); err != nil {
		return false, "", fmt.Errorf("commit estimator update: %w", err)
	}
	return true, "", nil
}

/* ─── Window helpers ─────────────────────────────────────────────────── */

// windowObservations returns the qualifying observations (positive weight,
// positive intake) within days of the newest observation. History is assumed
// date-ascending, matching the store's ordering.
func windowObservations(history []ProgressObservation, days int) []ProgressObservation {
	if len(history) == 0 {
		return nil
	}
	cutoff := history[len(history)-1].Date.Time.AddDate(0, 0, -days)
	var window []ProgressObservation
	for _, o := range history {
		if o.Date.Time.Before(cutoff) {
			continue
		}
		if o.WeightKG <= 0 || o.CaloriesConsumed <= 0 {
			continue
		}
		window = append(window, o)
	}
	return window
}

// aggregateWindow collapses a window into the single observation the Kalman
// update consumes: elapsed span, net weight change, mean daily intake.
func aggregateWindow(window []ProgressObservation) (EnergyObservation, error) {
	first, last := window[0], window[len(window)-1]
	elapsed := int(last.Date.Time.Sub(first.Date.Time).Hours() / 24)
	if elapsed <= 0 {
		return EnergyObservation{}, invalidInputf("window spans %d days", elapsed)
	}

	var totalIntake float64
	for _, o := range window {
		totalIntake += o.CaloriesConsumed
	}

	return EnergyObservation{
		ElapsedDays:               elapsed,
		WeightDeltaKG:             last.WeightKG - first.WeightKG,
		MeanDailyCaloriesConsumed: totalIntake / float64(len(window)),
	}, nil
}
