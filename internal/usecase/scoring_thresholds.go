package usecase

import "time"

// Scoring thresholds live here as named constants so the buckets can be tuned
// and tested without touching the algorithm in scoring.go.

// Base component (0-20): score-state closeness + total goals + time pressure.
const (
	baseComponentMax = 20.0

	baseDrawWithGoals = 8.0
	baseOneGoalMargin = 6.0
	baseGoallessDraw  = 5.0
	baseTwoGoalMargin = 2.0

	baseGoalsHigh   = 6.0 // 3+ total goals
	baseGoalsTwo    = 4.0
	baseGoalsOne    = 2.0
	baseGoalsNone   = 1.0
	baseGoalsHighAt = 3

	basePressureLateMinute = 80
	basePressureLate       = 6.0
	basePressureMidMinute  = 70
	basePressureMid        = 4.0
	basePressureEarlMinute = 60
	basePressureEarly      = 2.0
)

// Edge component (0-30): shot volume, expected goals, xG debt, accuracy.
const (
	edgeComponentMax = 30.0

	edgeShotsTier1 = 25
	edgeShotsTier2 = 18
	edgeShotsTier3 = 12
	edgeShotsTier4 = 6

	edgeShotsTier1Pts = 10.0
	edgeShotsTier2Pts = 7.0
	edgeShotsTier3Pts = 4.0
	edgeShotsTier4Pts = 2.0

	edgeXGTier1 = 3.0
	edgeXGTier2 = 2.2
	edgeXGTier3 = 1.5
	edgeXGTier4 = 0.8

	edgeXGTier1Pts = 8.0
	edgeXGTier2Pts = 6.0
	edgeXGTier3Pts = 4.0
	edgeXGTier4Pts = 2.0

	edgeXGDebtHigh    = 1.5
	edgeXGDebtHighPts = 7.0
	edgeXGDebtLow     = 1.0
	edgeXGDebtLowPts  = 4.0

	edgeAccuracyTier1    = 0.45
	edgeAccuracyTier2    = 0.35
	edgeAccuracyTier3    = 0.25
	edgeAccuracyTier1Pts = 5.0
	edgeAccuracyTier2Pts = 3.0
	edgeAccuracyTier3Pts = 1.0
)

// Timing component (0-20): flat zero before the window opens, linear climb to
// the peak minute, gentle decay after.
const (
	timingComponentMax = 20.0
	timingWindowOpen   = 65
	timingPeakMinute   = 82
	timingDecayPerMin  = 1.0
	timingFloorAfter   = 12.0
)

// Market component (0-20): market presence capped, plus line movement.
const (
	marketComponentMax = 20.0
	marketPresenceCap  = 12.0

	marketOverUnderPts   = 6.0
	marketMatchWinnerPts = 4.0
	marketHandicapPts    = 4.0

	marketMovementStrong      = 0.15
	marketMovementStrongPts   = 8.0
	marketMovementModerate    = 0.08
	marketMovementModeratePts = 5.0
	marketMovementSlightPts   = 2.0
)

// Quality component (-10..+10): data-quality adjustments.
const (
	qualityComponentMax = 10.0

	qualityStatsAndTimeline = 4.0
	qualityOddsPresent      = 3.0
	qualityStatsMissing     = -5.0
	qualityZeroShotsAnomaly = -4.0

	anomalyZeroShotsMinute = 60
)

// Confidence: four independent parts summing to at most 100.
const (
	confidenceCompletenessMax = 35.0
	confidencePerRealSource   = confidenceCompletenessMax / 4

	confidenceFreshnessMax  = 20.0
	freshnessTier1          = 20 * time.Second
	freshnessTier2          = 40 * time.Second
	freshnessTier3          = 60 * time.Second
	confidenceFreshTier2Pts = 12.0
	confidenceFreshTier3Pts = 6.0

	confidenceConsistencyMax  = 25.0
	consistencyTimelinePts    = 12.0
	consistencyShotsSanityPts = 6.0
	consistencyPossessionPts  = 7.0
	possessionSumTolerance    = 5.0

	confidenceMarketMax     = 20.0
	marketConfirmLiveOUPts  = 12.0
	marketConfirmMovement   = marketMovementModerate
	marketConfirmMovementPt = 8.0
)

// Action mapping, evaluated in order.
const (
	actionBetMinScore       = 85
	actionBetMinConfidence  = 70
	actionPrepMinScore      = 80
	actionPrepMinConfidence = 55
	actionWatchMinScore     = 70
)
