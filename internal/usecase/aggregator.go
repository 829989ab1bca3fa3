package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/matchpulse/matchpulse/internal/domain/match"
)

// Provider market ids drift between plan revisions, so every market resolves
// through an ordered id list first and a normalized-name match second.
var (
	handicapMarketIDs    = []int64{33, 2, 256}
	overUnderMarketIDs   = []int64{36, 5, 18}
	matchWinnerMarketIDs = []int64{1, 52, 226}
)

const (
	killTimeMaxWeight      = 40
	killClosenessMaxWeight = 35
	killStatsMaxWeight     = 25

	criticalTimeMinute = 75
	lateGameMinute     = 60
)

// CombineMatch merges one fixture with its statistics, timeline, and odds
// payloads into the canonical Event. It is a pure function: no I/O, no
// hidden state, identical inputs yield identical output.
func CombineMatch(
	fx ExternalFixture,
	stats *ExternalStats,
	timeline []ExternalTimelineEvent,
	liveOdds *ExternalOdds,
	prematchOdds *ExternalOdds,
) match.Event {
	ev := match.Event{
		ID:              fx.ID,
		CompetitionID:   fx.CompetitionID,
		CompetitionName: strings.TrimSpace(fx.CompetitionName),
		Home: match.Participant{
			ID:    fx.HomeID,
			Name:  strings.TrimSpace(fx.HomeName),
			Score: fx.HomeScore,
		},
		Away: match.Participant{
			ID:    fx.AwayID,
			Name:  strings.TrimSpace(fx.AwayName),
			Score: fx.AwayScore,
		},
		Minute: fx.Minute,
		Status: match.NormalizeStatus(fx.StatusCode),
	}

	ev.Stats = combineStats(fx, stats)
	ev.Odds = resolveOdds(liveOdds, prematchOdds)
	ev.Timeline = combineTimeline(timeline)
	ev.ScenarioTags = scenarioTags(ev)
	ev.KillScore = killScore(ev)
	ev.Unscoreable = !ev.Stats.HasRealData

	return ev
}

func combineStats(fx ExternalFixture, stats *ExternalStats) match.StatsBlock {
	out := match.StatsBlock{
		Home: match.TeamStats{TeamID: fx.HomeID},
		Away: match.TeamStats{TeamID: fx.AwayID},
	}
	if stats == nil {
		return out
	}

	blocks := 0
	for _, team := range stats.Teams {
		mapped := match.TeamStats{
			TeamID:        team.TeamID,
			Shots:         team.Shots,
			ShotsOnTarget: team.ShotsOnTarget,
			Possession:    team.Possession,
			Corners:       team.Corners,
			ExpectedGoals: team.ExpectedGoals,
			Fouls:         team.Fouls,
			YellowCards:   team.YellowCards,
			RedCards:      team.RedCards,
		}
		switch team.TeamID {
		case fx.HomeID:
			out.Home = mapped
		case fx.AwayID:
			out.Away = mapped
		default:
			continue
		}
		if team.Shots != nil && team.Possession != nil {
			blocks++
		}
	}

	// Real data means both teams reported the core shot/possession fields.
	out.HasRealData = blocks >= 2
	return out
}

// resolveOdds applies the precedence rule: in-play odds win when present and
// non-empty, otherwise pre-match odds fill in with the source marked.
func resolveOdds(liveOdds, prematchOdds *ExternalOdds) match.OddsBlock {
	if block, ok := parseOddsPayload(liveOdds, match.OddsSourceLive); ok {
		return block
	}
	if block, ok := parseOddsPayload(prematchOdds, match.OddsSourcePrematch); ok {
		return block
	}

	switch {
	case liveOdds != nil:
		return match.OddsBlock{FetchStatus: match.FetchEmpty, Source: match.OddsSourceLive}
	case prematchOdds != nil:
		return match.OddsBlock{FetchStatus: match.FetchEmpty, Source: match.OddsSourcePrematch}
	default:
		return match.OddsBlock{FetchStatus: match.FetchNotFetched}
	}
}

func parseOddsPayload(payload *ExternalOdds, source string) (match.OddsBlock, bool) {
	if payload == nil || payload.Empty || len(payload.Markets) == 0 {
		return match.OddsBlock{}, false
	}

	block := match.OddsBlock{
		FetchStatus: match.FetchSuccess,
		Live:        payload.Live,
		Source:      source,
	}
	block.Handicap = parseHandicap(findMarket(payload.Markets, handicapMarketIDs, "handicap"))
	block.OverUnder = parseOverUnder(findMarket(payload.Markets, overUnderMarketIDs, "over", "total"))
	block.MatchWinner = parseMatchWinner(findMarket(payload.Markets, matchWinnerMarketIDs, "1x2", "match winner", "fulltime result"))

	if !block.HasAnyMarket() {
		return match.OddsBlock{}, false
	}
	return block, true
}

// findMarket resolves a market by id priority first, then by normalized name
// containment. Provider ids shift; a single lookup field is never trusted.
func findMarket(markets []ExternalMarket, ids []int64, nameParts ...string) *ExternalMarket {
	for _, id := range ids {
		for i := range markets {
			if markets[i].ID == id {
				return &markets[i]
			}
		}
	}
	for i := range markets {
		name := normalizeMarketName(markets[i].Name)
		for _, part := range nameParts {
			if part != "" && strings.Contains(name, part) {
				return &markets[i]
			}
		}
	}
	return nil
}

func normalizeMarketName(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	raw = strings.ReplaceAll(raw, "_", " ")
	raw = strings.ReplaceAll(raw, "-", " ")
	return strings.Join(strings.Fields(raw), " ")
}

func parseHandicap(market *ExternalMarket) *match.HandicapMarket {
	if market == nil {
		return nil
	}

	out := match.HandicapMarket{}
	haveLine := false
	for _, value := range market.Values {
		if value.Price == nil {
			continue
		}
		label := normalizeMarketName(value.Label)
		switch {
		case strings.HasPrefix(label, "home") || label == "1":
			out.Home = *value.Price
			if value.Line != nil {
				out.Line = *value.Line
				haveLine = true
			}
		case strings.HasPrefix(label, "away") || label == "2":
			out.Away = *value.Price
			if value.Line != nil && !haveLine {
				// Away lines arrive sign-flipped; normalize to the home side.
				out.Line = -*value.Line
				haveLine = true
			}
		}
	}

	if out.Home == 0 || out.Away == 0 {
		return nil
	}
	return &out
}

// parseOverUnder keeps every line for hover detail and selects the main one:
// the provider-flagged main line when present, otherwise the first line with
// both prices.
func parseOverUnder(market *ExternalMarket) *match.OverUnderMarket {
	if market == nil {
		return nil
	}

	type pair struct {
		over  *float64
		under *float64
		main  bool
	}
	byLine := make(map[float64]*pair)
	order := make([]float64, 0, 4)

	for _, value := range market.Values {
		if value.Price == nil || value.Line == nil {
			continue
		}
		line := *value.Line
		entry, ok := byLine[line]
		if !ok {
			entry = &pair{}
			byLine[line] = entry
			order = append(order, line)
		}
		entry.main = entry.main || value.Main

		label := normalizeMarketName(value.Label)
		switch {
		case strings.HasPrefix(label, "over"):
			entry.over = value.Price
		case strings.HasPrefix(label, "under"):
			entry.under = value.Price
		}
	}

	sort.Float64s(order)
	lines := make([]match.PriceLine, 0, len(order))
	for _, line := range order {
		entry := byLine[line]
		if entry.over == nil || entry.under == nil {
			continue
		}
		lines = append(lines, match.PriceLine{
			Line:  line,
			Over:  *entry.over,
			Under: *entry.under,
			Main:  entry.main,
		})
	}
	if len(lines) == 0 {
		return nil
	}

	selected := lines[0]
	for _, line := range lines {
		if line.Main {
			selected = line
			break
		}
	}

	return &match.OverUnderMarket{
		Line:  selected.Line,
		Over:  selected.Over,
		Under: selected.Under,
		Lines: lines,
	}
}

func parseMatchWinner(market *ExternalMarket) *match.MatchWinnerMarket {
	if market == nil {
		return nil
	}

	out := match.MatchWinnerMarket{}
	for _, value := range market.Values {
		if value.Price == nil {
			continue
		}
		switch normalizeMarketName(value.Label) {
		case "home", "1":
			out.Home = *value.Price
		case "draw", "x":
			out.Draw = *value.Price
		case "away", "2":
			out.Away = *value.Price
		}
	}

	if out.Home == 0 || out.Draw == 0 || out.Away == 0 {
		return nil
	}
	return &out
}

func combineTimeline(entries []ExternalTimelineEvent) []match.TimelineEntry {
	if len(entries) == 0 {
		return nil
	}

	out := make([]match.TimelineEntry, 0, len(entries))
	for _, item := range entries {
		out = append(out, match.TimelineEntry{
			Minute:      item.Minute,
			ExtraMinute: item.ExtraMinute,
			Type:        normalizeTimelineType(item.TypeID, item.TypeName),
			TeamID:      item.TeamID,
			Player:      strings.TrimSpace(item.Player),
			Detail:      strings.TrimSpace(item.Detail),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Minute != out[j].Minute {
			return out[i].Minute < out[j].Minute
		}
		return out[i].ExtraMinute < out[j].ExtraMinute
	})
	return out
}

func normalizeTimelineType(typeID int64, typeName string) string {
	switch typeID {
	case 14:
		return match.TimelineGoal
	case 19:
		return match.TimelineYellowCard
	case 20:
		return match.TimelineRedCard
	case 18:
		return match.TimelineSubstitution
	case 10:
		return match.TimelineVAR
	}

	name := normalizeMarketName(typeName)
	switch {
	case strings.Contains(name, "goal"):
		return match.TimelineGoal
	case strings.Contains(name, "red"):
		return match.TimelineRedCard
	case strings.Contains(name, "yellow"), strings.Contains(name, "card"):
		return match.TimelineYellowCard
	case strings.Contains(name, "sub"):
		return match.TimelineSubstitution
	case strings.Contains(name, "var"):
		return match.TimelineVAR
	}
	if name == "" {
		return "type-" + strconv.FormatInt(typeID, 10)
	}
	return strings.ReplaceAll(name, " ", "_")
}

func scenarioTags(ev match.Event) []string {
	tags := make([]string, 0, 4)

	if ev.Minute >= criticalTimeMinute && match.IsInPlay(ev.Status) {
		tags = append(tags, match.TagCriticalTime)
	}

	switch {
	case ev.ScoreDiff() == 0 && ev.TotalGoals() == 0 && ev.Minute >= lateGameMinute:
		tags = append(tags, match.TagDeadlock)
	case ev.ScoreDiff() == 1:
		tags = append(tags, match.TagOneGoalGame)
	}

	if ev.TotalGoals() >= 4 {
		tags = append(tags, match.TagGoalFest)
	}
	if favoriteTrailing(ev) {
		tags = append(tags, match.TagStrongBehind)
	}
	if hasRedCard(ev) {
		tags = append(tags, match.TagRedCard)
	}
	if !ev.Stats.HasRealData {
		tags = append(tags, match.TagNoRealStats)
	}

	if len(tags) == 0 {
		return nil
	}
	return tags
}

// favoriteTrailing infers the nominal favorite from the Asian handicap sign:
// a negative home line backs the home side.
func favoriteTrailing(ev match.Event) bool {
	if ev.Odds.Handicap == nil || ev.Odds.Handicap.Line == 0 {
		return false
	}
	goalDiff := ev.Home.Score - ev.Away.Score
	if ev.Odds.Handicap.Line < 0 {
		return goalDiff < 0
	}
	return goalDiff > 0
}

func hasRedCard(ev match.Event) bool {
	for _, entry := range ev.Timeline {
		if entry.Type == match.TimelineRedCard {
			return true
		}
	}
	red := 0
	if ev.Stats.Home.RedCards != nil {
		red += *ev.Stats.Home.RedCards
	}
	if ev.Stats.Away.RedCards != nil {
		red += *ev.Stats.Away.RedCards
	}
	return red > 0
}

// killScore is the cheap ingest-time heuristic stored on the event. It is
// deliberately not the scoring engine: tagging at ingest must stay O(1) and
// stable across reads, while the full score is recomputed per request.
func killScore(ev match.Event) int {
	score := killTimeWeight(ev.Minute, ev.Status) +
		killClosenessWeight(ev) +
		killStatsWeight(ev.Stats)

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func killTimeWeight(minute int, status string) int {
	if !match.IsInPlay(status) {
		return 0
	}
	switch {
	case minute >= 80:
		return killTimeMaxWeight
	case minute >= 70:
		return 30
	case minute >= 60:
		return 20
	case minute >= 45:
		return 10
	default:
		return 0
	}
}

func killClosenessWeight(ev match.Event) int {
	switch {
	case ev.ScoreDiff() == 0 && ev.TotalGoals() > 0:
		return killClosenessMaxWeight
	case ev.ScoreDiff() == 0:
		return 25
	case ev.ScoreDiff() == 1:
		return 20
	case ev.ScoreDiff() == 2:
		return 8
	default:
		return 0
	}
}

func killStatsWeight(stats match.StatsBlock) int {
	if !stats.HasRealData {
		return 0
	}
	shots := intOrZero(stats.Home.Shots) + intOrZero(stats.Away.Shots)
	switch {
	case shots >= 20:
		return killStatsMaxWeight
	case shots >= 12:
		return 15
	default:
		return 8
	}
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func formatScoreline(ev match.Event) string {
	return fmt.Sprintf("%d-%d", ev.Home.Score, ev.Away.Score)
}
