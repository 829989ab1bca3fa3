package usecase

import (
	"testing"
	"time"

	"github.com/matchpulse/matchpulse/internal/domain/match"
	"github.com/matchpulse/matchpulse/internal/domain/scoring"
)

func betScenarioEvent() match.Event {
	liveOdds := sampleLiveOdds()
	liveOdds.Markets = append(liveOdds.Markets, ExternalMarket{
		ID:   33,
		Name: "Asian Handicap",
		Values: []ExternalOddsValue{
			{Label: "Home", Line: fptr(-0.25), Price: fptr(1.95)},
			{Label: "Away", Line: fptr(0.25), Price: fptr(1.87)},
		},
	})

	ev := CombineMatch(sampleFixture(), sampleStats(), sampleTimeline(), liveOdds, nil)
	ev.Validation = ValidateMatch(ev)
	return ev
}

func TestScoreMatchBetScenario(t *testing.T) {
	t.Parallel()

	ev := betScenarioEvent()
	result := ScoreMatch(ev, &MarketContext{
		SnapshotAge:  5 * time.Second,
		LineMovement: 0.20,
	})

	if result.Total < actionBetMinScore {
		t.Fatalf("total = %d, want >= %d (components %+v)", result.Total, actionBetMinScore, result.Components)
	}
	if result.Confidence < actionBetMinConfidence {
		t.Fatalf("confidence = %d, want >= %d (breakdown %+v)", result.Confidence, actionBetMinConfidence, result.Breakdown)
	}
	if result.Action != scoring.ActionBet {
		t.Fatalf("action = %s, want BET", result.Action)
	}
	if result.DataMode != scoring.ModeStrictRealData {
		t.Fatalf("data mode = %s, want STRICT_REAL_DATA", result.DataMode)
	}
	if !result.OddsFactor.DataAvailable {
		t.Fatal("expected oddsFactor.dataAvailable with live odds present")
	}
}

func TestScoreMatchMarketZeroWithoutOdds(t *testing.T) {
	t.Parallel()

	ev := betScenarioEvent()
	ev.Odds = match.OddsBlock{FetchStatus: match.FetchEmpty, Source: match.OddsSourceLive}
	ev.Validation = ValidateMatch(ev)

	result := ScoreMatch(ev, &MarketContext{SnapshotAge: 5 * time.Second, LineMovement: 0.20})

	if result.OddsFactor.DataAvailable {
		t.Fatal("dataAvailable must be false with EMPTY odds")
	}
	if result.Components.Market.Score != 0 {
		t.Fatalf("market component = %v, want 0 without odds", result.Components.Market.Score)
	}
	if result.OddsFactor.LineMovement != 0 {
		t.Fatalf("line movement must not leak without odds, got %v", result.OddsFactor.LineMovement)
	}
	if result.Breakdown.MarketConfirmation != 0 {
		t.Fatalf("market confirmation = %v, want 0 without odds", result.Breakdown.MarketConfirmation)
	}
}

func TestScoreMatchWithoutMarketContext(t *testing.T) {
	t.Parallel()

	ev := betScenarioEvent()
	result := ScoreMatch(ev, nil)

	if result.Breakdown.Freshness != 0 {
		t.Fatalf("freshness = %v, want 0 without market context", result.Breakdown.Freshness)
	}
	if result.Total < 0 || result.Total > 100 {
		t.Fatalf("total out of range: %d", result.Total)
	}
}

func TestScoreMatchClamping(t *testing.T) {
	t.Parallel()

	fx := sampleFixture()
	fx.HomeScore = 9
	fx.AwayScore = 9
	fx.Minute = 82

	stats := &ExternalStats{Teams: []ExternalTeamStats{
		{TeamID: fx.HomeID, Shots: iptr(500), ShotsOnTarget: iptr(400), Possession: fptr(50), ExpectedGoals: fptr(40)},
		{TeamID: fx.AwayID, Shots: iptr(500), ShotsOnTarget: iptr(400), Possession: fptr(50), ExpectedGoals: fptr(40)},
	}}

	ev := CombineMatch(fx, stats, sampleTimeline(), sampleLiveOdds(), nil)
	ev.Validation = ValidateMatch(ev)

	result := ScoreMatch(ev, &MarketContext{SnapshotAge: time.Second, LineMovement: 99})
	if result.Total < 0 || result.Total > 100 {
		t.Fatalf("total out of range: %d", result.Total)
	}
	if result.Confidence < 0 || result.Confidence > 100 {
		t.Fatalf("confidence out of range: %d", result.Confidence)
	}

	// Bottom end: a scoreless early match with no data at all.
	empty := CombineMatch(ExternalFixture{
		ID: 7, HomeID: 1, AwayID: 2, HomeName: "A", AwayName: "B",
		Minute: 1, StatusCode: "1H",
	}, nil, nil, nil, nil)
	empty.Validation = ValidateMatch(empty)

	result = ScoreMatch(empty, nil)
	if result.Total < 0 || result.Total > 100 {
		t.Fatalf("total out of range: %d", result.Total)
	}
	if result.Action != scoring.ActionIgnore {
		t.Fatalf("action = %s, want IGNORE for empty match", result.Action)
	}
}

func TestScoreMatchZeroShotsAnomaly(t *testing.T) {
	t.Parallel()

	fx := sampleFixture()
	stats := &ExternalStats{Teams: []ExternalTeamStats{
		{TeamID: fx.HomeID, Shots: iptr(0), ShotsOnTarget: iptr(0), Possession: fptr(50)},
		{TeamID: fx.AwayID, Shots: iptr(0), ShotsOnTarget: iptr(0), Possession: fptr(50)},
	}}

	ev := CombineMatch(fx, stats, sampleTimeline(), sampleLiveOdds(), nil)
	ev.Validation = ValidateMatch(ev)

	result := ScoreMatch(ev, nil)
	if result.DataMode != scoring.ModeDegradedData {
		t.Fatalf("data mode = %s, want DEGRADED_DATA for zero shots at minute 80", result.DataMode)
	}
	if !containsString(result.Alerts, "zero shots reported after minute 60") {
		t.Fatalf("expected anomaly alert, got %v", result.Alerts)
	}
	want := qualityStatsAndTimeline + qualityOddsPresent + qualityZeroShotsAnomaly
	if result.Components.Quality.Score != want {
		t.Fatalf("quality component = %v, want %v with anomaly deducted", result.Components.Quality.Score, want)
	}
}

func TestMapAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		total      int
		confidence int
		want       scoring.Action
	}{
		{90, 80, scoring.ActionBet},
		{85, 70, scoring.ActionBet},
		{90, 69, scoring.ActionPrepare},
		{82, 60, scoring.ActionPrepare},
		{82, 50, scoring.ActionWatch},
		{70, 10, scoring.ActionWatch},
		{69, 100, scoring.ActionIgnore},
		{0, 0, scoring.ActionIgnore},
	}

	for _, tc := range tests {
		if got := mapAction(tc.total, tc.confidence); got != tc.want {
			t.Fatalf("mapAction(%d, %d) = %s, want %s", tc.total, tc.confidence, got, tc.want)
		}
	}
}
