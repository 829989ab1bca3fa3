package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/matchpulse/matchpulse/internal/domain/match"
	"github.com/matchpulse/matchpulse/internal/domain/scoring"
)

// MarketContext is the optional market-side input to the scoring engine:
// snapshot age for the freshness part and the observed drift of the main
// over/under price since the cycle before. When nil, the engine scores
// without market data instead of guessing.
type MarketContext struct {
	SnapshotAge  time.Duration
	LineMovement float64
}

// ScoreMatch computes the full five-component score and the independent
// confidence value for one event. It is pure and recomputed per read.
func ScoreMatch(ev match.Event, marketCtx *MarketContext) scoring.Result {
	oddsAvailable := ev.Odds.FetchStatus == match.FetchSuccess && ev.Odds.HasAnyMarket()

	movement := 0.0
	age := time.Duration(-1)
	if marketCtx != nil {
		movement = marketCtx.LineMovement
		age = marketCtx.SnapshotAge
	}

	anomaly := zeroShotsAnomaly(ev)

	components := scoring.Components{
		Base:    scoreBase(ev),
		Edge:    scoreEdge(ev),
		Timing:  scoreTiming(ev.Minute),
		Market:  scoreMarket(ev, oddsAvailable, movement),
		Quality: scoreQuality(ev, oddsAvailable, anomaly),
	}

	total := clampInt(int(math.Round(components.Base.Score+
		components.Edge.Score+
		components.Timing.Score+
		components.Market.Score+
		components.Quality.Score)), 0, 100)

	breakdown := scoring.ConfidenceBreakdown{
		Completeness:       confidencePerRealSource * float64(ev.Validation.RealSourceCount()),
		Freshness:          confidenceFreshness(age),
		Consistency:        confidenceConsistency(ev),
		MarketConfirmation: confidenceMarket(ev, oddsAvailable, movement),
	}
	confidence := clampInt(int(math.Round(breakdown.Completeness+
		breakdown.Freshness+
		breakdown.Consistency+
		breakdown.MarketConfirmation)), 0, 100)

	result := scoring.Result{
		Total:      total,
		Confidence: confidence,
		Components: components,
		Breakdown:  breakdown,
		OddsFactor: scoring.OddsFactor{DataAvailable: oddsAvailable},
		Action:     mapAction(total, confidence),
		DataMode:   dataMode(ev, anomaly),
		Alerts:     scoreAlerts(ev, anomaly, total, confidence),
	}
	if oddsAvailable {
		result.OddsFactor.LineMovement = movement
	}
	return result
}

func scoreBase(ev match.Event) scoring.Component {
	closeness := 0.0
	switch {
	case ev.ScoreDiff() == 0 && ev.TotalGoals() > 0:
		closeness = baseDrawWithGoals
	case ev.ScoreDiff() == 1:
		closeness = baseOneGoalMargin
	case ev.ScoreDiff() == 0:
		closeness = baseGoallessDraw
	case ev.ScoreDiff() == 2:
		closeness = baseTwoGoalMargin
	}

	goals := baseGoalsNone
	switch {
	case ev.TotalGoals() >= baseGoalsHighAt:
		goals = baseGoalsHigh
	case ev.TotalGoals() == 2:
		goals = baseGoalsTwo
	case ev.TotalGoals() == 1:
		goals = baseGoalsOne
	}

	pressure := 0.0
	switch {
	case ev.Minute >= basePressureLateMinute:
		pressure = basePressureLate
	case ev.Minute >= basePressureMidMinute:
		pressure = basePressureMid
	case ev.Minute >= basePressureEarlMinute:
		pressure = basePressureEarly
	}

	return scoring.Component{
		Score:  math.Min(closeness+goals+pressure, baseComponentMax),
		Max:    baseComponentMax,
		Detail: fmt.Sprintf("%s at minute %d", formatScoreline(ev), ev.Minute),
	}
}

func scoreEdge(ev match.Event) scoring.Component {
	if !ev.Stats.HasRealData {
		return scoring.Component{Max: edgeComponentMax, Detail: "no real statistics"}
	}

	shots := intOrZero(ev.Stats.Home.Shots) + intOrZero(ev.Stats.Away.Shots)
	onTarget := intOrZero(ev.Stats.Home.ShotsOnTarget) + intOrZero(ev.Stats.Away.ShotsOnTarget)
	xg := floatOrZero(ev.Stats.Home.ExpectedGoals) + floatOrZero(ev.Stats.Away.ExpectedGoals)

	score := 0.0
	switch {
	case shots >= edgeShotsTier1:
		score += edgeShotsTier1Pts
	case shots >= edgeShotsTier2:
		score += edgeShotsTier2Pts
	case shots >= edgeShotsTier3:
		score += edgeShotsTier3Pts
	case shots >= edgeShotsTier4:
		score += edgeShotsTier4Pts
	}

	switch {
	case xg >= edgeXGTier1:
		score += edgeXGTier1Pts
	case xg >= edgeXGTier2:
		score += edgeXGTier2Pts
	case xg >= edgeXGTier3:
		score += edgeXGTier3Pts
	case xg >= edgeXGTier4:
		score += edgeXGTier4Pts
	}

	// xG debt: expected goals outrunning actual goals signals unconverted
	// pressure.
	debt := xg - float64(ev.TotalGoals())
	switch {
	case debt >= edgeXGDebtHigh:
		score += edgeXGDebtHighPts
	case debt >= edgeXGDebtLow:
		score += edgeXGDebtLowPts
	}

	if shots > 0 {
		accuracy := float64(onTarget) / float64(shots)
		switch {
		case accuracy >= edgeAccuracyTier1:
			score += edgeAccuracyTier1Pts
		case accuracy >= edgeAccuracyTier2:
			score += edgeAccuracyTier2Pts
		case accuracy >= edgeAccuracyTier3:
			score += edgeAccuracyTier3Pts
		}
	}

	return scoring.Component{
		Score:  math.Min(score, edgeComponentMax),
		Max:    edgeComponentMax,
		Detail: fmt.Sprintf("%d shots, %.1f xG", shots, xg),
	}
}

func scoreTiming(minute int) scoring.Component {
	score := 0.0
	switch {
	case minute < timingWindowOpen:
		score = 0
	case minute <= timingPeakMinute:
		score = timingComponentMax * float64(minute-timingWindowOpen) / float64(timingPeakMinute-timingWindowOpen)
	default:
		score = math.Max(timingComponentMax-timingDecayPerMin*float64(minute-timingPeakMinute), timingFloorAfter)
	}

	return scoring.Component{
		Score:  score,
		Max:    timingComponentMax,
		Detail: fmt.Sprintf("minute %d", minute),
	}
}

func scoreMarket(ev match.Event, oddsAvailable bool, movement float64) scoring.Component {
	if !oddsAvailable {
		return scoring.Component{Max: marketComponentMax, Detail: "no odds available"}
	}

	presence := 0.0
	if ev.Odds.OverUnder != nil {
		presence += marketOverUnderPts
	}
	if ev.Odds.MatchWinner != nil {
		presence += marketMatchWinnerPts
	}
	if ev.Odds.Handicap != nil {
		presence += marketHandicapPts
	}
	presence = math.Min(presence, marketPresenceCap)

	drift := math.Abs(movement)
	movementPts := 0.0
	switch {
	case drift >= marketMovementStrong:
		movementPts = marketMovementStrongPts
	case drift >= marketMovementModerate:
		movementPts = marketMovementModeratePts
	case drift > 0:
		movementPts = marketMovementSlightPts
	}

	return scoring.Component{
		Score:  math.Min(presence+movementPts, marketComponentMax),
		Max:    marketComponentMax,
		Detail: fmt.Sprintf("%s odds, movement %.2f", ev.Odds.Source, movement),
	}
}

func scoreQuality(ev match.Event, oddsAvailable, anomaly bool) scoring.Component {
	score := 0.0
	if ev.Validation.StatsReal && ev.Validation.TimelineReal {
		score += qualityStatsAndTimeline
	}
	if oddsAvailable {
		score += qualityOddsPresent
	}
	if !ev.Stats.HasRealData {
		score += qualityStatsMissing
	}
	if anomaly {
		score += qualityZeroShotsAnomaly
	}

	return scoring.Component{
		Score: math.Max(math.Min(score, qualityComponentMax), -qualityComponentMax),
		Max:   qualityComponentMax,
	}
}

// zeroShotsAnomaly flags statistics that claim zero shots deep into a match
// that reports real data: almost always a stalled provider feed.
func zeroShotsAnomaly(ev match.Event) bool {
	if !ev.Stats.HasRealData || ev.Minute < anomalyZeroShotsMinute {
		return false
	}
	return intOrZero(ev.Stats.Home.Shots)+intOrZero(ev.Stats.Away.Shots) == 0
}

func confidenceFreshness(age time.Duration) float64 {
	switch {
	case age < 0:
		return 0
	case age < freshnessTier1:
		return confidenceFreshnessMax
	case age < freshnessTier2:
		return confidenceFreshTier2Pts
	case age < freshnessTier3:
		return confidenceFreshTier3Pts
	default:
		return 0
	}
}

func confidenceConsistency(ev match.Event) float64 {
	score := 0.0

	if timelineGoalsMatchScoreboard(ev) {
		score += consistencyTimelinePts
	}
	if shotsSane(ev.Stats.Home) && shotsSane(ev.Stats.Away) {
		score += consistencyShotsSanityPts
	}
	if possessionSane(ev.Stats) {
		score += consistencyPossessionPts
	}

	return math.Min(score, confidenceConsistencyMax)
}

func timelineGoalsMatchScoreboard(ev match.Event) bool {
	if len(ev.Timeline) == 0 {
		return false
	}
	goals := 0
	for _, entry := range ev.Timeline {
		if entry.Type == match.TimelineGoal {
			goals++
		}
	}
	return goals == ev.TotalGoals()
}

func shotsSane(stats match.TeamStats) bool {
	if stats.Shots == nil || stats.ShotsOnTarget == nil {
		return true
	}
	return *stats.ShotsOnTarget <= *stats.Shots
}

func possessionSane(stats match.StatsBlock) bool {
	if stats.Home.Possession == nil || stats.Away.Possession == nil {
		return false
	}
	sum := *stats.Home.Possession + *stats.Away.Possession
	return math.Abs(sum-100) <= possessionSumTolerance
}

func confidenceMarket(ev match.Event, oddsAvailable bool, movement float64) float64 {
	if !oddsAvailable {
		return 0
	}
	score := 0.0
	if ev.Odds.Live && ev.Odds.OverUnder != nil {
		score += marketConfirmLiveOUPts
	}
	if math.Abs(movement) >= marketConfirmMovement {
		score += marketConfirmMovementPt
	}
	return math.Min(score, confidenceMarketMax)
}

func mapAction(total, confidence int) scoring.Action {
	switch {
	case total >= actionBetMinScore && confidence >= actionBetMinConfidence:
		return scoring.ActionBet
	case total >= actionPrepMinScore && confidence >= actionPrepMinConfidence:
		return scoring.ActionPrepare
	case total >= actionWatchMinScore:
		return scoring.ActionWatch
	default:
		return scoring.ActionIgnore
	}
}

func dataMode(ev match.Event, anomaly bool) scoring.DataMode {
	if ev.Validation.Quality == match.QualityReal && ev.Stats.HasRealData && !anomaly {
		return scoring.ModeStrictRealData
	}
	return scoring.ModeDegradedData
}

func scoreAlerts(ev match.Event, anomaly bool, total, confidence int) []string {
	var alerts []string
	if anomaly {
		alerts = append(alerts, "zero shots reported after minute 60")
	}
	if !ev.Stats.HasRealData {
		alerts = append(alerts, "scored without real statistics")
	}
	if hasRedCard(ev) {
		alerts = append(alerts, "red card in play")
	}
	if total >= actionBetMinScore && confidence < actionBetMinConfidence {
		alerts = append(alerts, "high score with low confidence")
	}
	return alerts
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
