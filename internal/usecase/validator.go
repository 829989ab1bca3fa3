package usecase

import (
	"github.com/matchpulse/matchpulse/internal/domain/match"
)

// Minutes at the start of a half where an empty timeline is still plausible
// rather than a sign of missing coverage.
const timelineGraceMinute = 10

// ValidateMatch classifies each of the four sources of an assembled event as
// real or not and derives the overall quality tier. It mutates nothing; the
// caller attaches the result.
func ValidateMatch(ev match.Event) match.Validation {
	v := match.Validation{
		OddsSource: ev.Odds.Source,
	}

	v.FixtureReal = validateFixture(ev, &v)
	v.StatsReal = validateStats(ev, &v)
	v.OddsReal = validateOdds(ev, &v)
	v.TimelineReal = validateTimeline(ev, &v)

	v.Quality = match.QualityFromSourceCount(v.RealSourceCount())
	return v
}

func validateFixture(ev match.Event, v *match.Validation) bool {
	real := true
	if ev.ID == 0 || ev.Home.Name == "" || ev.Away.Name == "" {
		v.Reasons = append(v.Reasons, match.ReasonFixtureIncomplete)
		real = false
	}
	if !match.IsRecognizedStatus(ev.Status) {
		v.Reasons = append(v.Reasons, match.ReasonFixtureStatusUnknown)
		real = false
	}
	return real
}

func validateStats(ev match.Event, v *match.Validation) bool {
	if !ev.Stats.HasRealData {
		v.Reasons = append(v.Reasons, match.ReasonStatsMissing)
		return false
	}
	if ev.Stats.Home.Shots == nil || ev.Stats.Away.Shots == nil {
		v.Reasons = append(v.Reasons, match.ReasonStatsMissingShots)
		return false
	}
	if ev.Stats.Home.Possession == nil || ev.Stats.Away.Possession == nil {
		v.Reasons = append(v.Reasons, match.ReasonStatsMissingPossession)
		return false
	}
	return true
}

func validateOdds(ev match.Event, v *match.Validation) bool {
	switch ev.Odds.FetchStatus {
	case match.FetchNotFetched:
		v.Reasons = append(v.Reasons, match.ReasonOddsNotFetched)
		return false
	case match.FetchError:
		v.Reasons = append(v.Reasons, match.ReasonOddsError)
		return false
	case match.FetchEmpty:
		v.Reasons = append(v.Reasons, match.ReasonOddsEmpty)
		return false
	}

	if ev.Odds.Handicap != nil {
		v.MarketsFound = append(v.MarketsFound, "handicap")
	}
	if ev.Odds.OverUnder != nil {
		v.MarketsFound = append(v.MarketsFound, "overUnder")
	}
	if ev.Odds.MatchWinner != nil {
		v.MarketsFound = append(v.MarketsFound, "matchWinner")
	}

	if len(v.MarketsFound) == 0 {
		v.Reasons = append(v.Reasons, match.ReasonOddsEmpty)
		return false
	}
	return true
}

func validateTimeline(ev match.Event, v *match.Validation) bool {
	if len(ev.Timeline) > 0 {
		return true
	}
	// An empty feed early in either half is normal; late-game emptiness is a
	// coverage gap.
	if ev.Minute < timelineGraceMinute || (ev.Minute >= 45 && ev.Minute < 45+timelineGraceMinute) {
		return true
	}
	if ev.Status == match.StatusHalfTime {
		return true
	}
	v.Reasons = append(v.Reasons, match.ReasonTimelineEmpty)
	return false
}
