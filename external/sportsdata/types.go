package sportsdata

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/matchpulse/matchpulse/internal/usecase"
)

type liveFixturesEnvelope struct {
	Data []liveFixture `json:"data"`
}

type liveFixture struct {
	ID          int64  `json:"id"`
	Minute      int    `json:"minute"`
	Status      string `json:"status"`
	Competition struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"competition"`
	Home fixtureSide `json:"home"`
	Away fixtureSide `json:"away"`
}

type fixtureSide struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type statisticsEnvelope struct {
	Data []matchStatistics `json:"data"`
}

type matchStatistics struct {
	MatchID int64            `json:"match_id"`
	Teams   []teamStatistics `json:"teams"`
}

// teamStatistics mirrors the provider payload: absent metrics arrive as JSON
// null and stay nil.
type teamStatistics struct {
	TeamID        int64    `json:"team_id"`
	ShotsTotal    *int     `json:"shots_total"`
	ShotsOnTarget *int     `json:"shots_on_target"`
	Possession    *float64 `json:"possession"`
	Corners       *int     `json:"corners"`
	ExpectedGoals *float64 `json:"expected_goals"`
	Fouls         *int     `json:"fouls"`
	YellowCards   *int     `json:"yellow_cards"`
	RedCards      *int     `json:"red_cards"`
}

type timelinesEnvelope struct {
	Data []matchTimeline `json:"data"`
}

type matchTimeline struct {
	MatchID int64           `json:"match_id"`
	Events  []timelineEvent `json:"events"`
}

type timelineEvent struct {
	Minute      int    `json:"minute"`
	ExtraMinute int    `json:"extra_minute"`
	TypeID      int64  `json:"type_id"`
	TypeName    string `json:"type_name"`
	TeamID      int64  `json:"team_id"`
	Player      string `json:"player_name"`
	Detail      string `json:"detail"`
}

func mapFixture(item liveFixture) usecase.ExternalFixture {
	return usecase.ExternalFixture{
		ID:              item.ID,
		CompetitionID:   item.Competition.ID,
		CompetitionName: strings.TrimSpace(item.Competition.Name),
		HomeID:          item.Home.ID,
		HomeName:        strings.TrimSpace(item.Home.Name),
		HomeScore:       item.Home.Score,
		AwayID:          item.Away.ID,
		AwayName:        strings.TrimSpace(item.Away.Name),
		AwayScore:       item.Away.Score,
		Minute:          item.Minute,
		StatusCode:      strings.TrimSpace(item.Status),
	}
}

func mapStatistics(item matchStatistics) usecase.ExternalStats {
	teams := make([]usecase.ExternalTeamStats, 0, len(item.Teams))
	for _, team := range item.Teams {
		teams = append(teams, usecase.ExternalTeamStats{
			TeamID:        team.TeamID,
			Shots:         team.ShotsTotal,
			ShotsOnTarget: team.ShotsOnTarget,
			Possession:    team.Possession,
			Corners:       team.Corners,
			ExpectedGoals: team.ExpectedGoals,
			Fouls:         team.Fouls,
			YellowCards:   team.YellowCards,
			RedCards:      team.RedCards,
		})
	}
	return usecase.ExternalStats{Teams: teams}
}

func mapTimeline(events []timelineEvent) []usecase.ExternalTimelineEvent {
	out := make([]usecase.ExternalTimelineEvent, 0, len(events))
	for _, event := range events {
		out = append(out, usecase.ExternalTimelineEvent{
			Minute:      event.Minute,
			ExtraMinute: event.ExtraMinute,
			TypeID:      event.TypeID,
			TypeName:    event.TypeName,
			TeamID:      event.TeamID,
			Player:      event.Player,
			Detail:      event.Detail,
		})
	}
	return out
}

// parseOddsEnvelope walks the odds payload dynamically. Odds responses are
// the loosest part of the provider API: market ids shift, prices arrive as
// numbers or strings, and bookmaker wrappers come and go, so this uses path
// queries instead of rigid structs.
func parseOddsEnvelope(raw []byte, live bool) map[int64]usecase.ExternalOdds {
	out := make(map[int64]usecase.ExternalOdds)

	gjson.GetBytes(raw, "data").ForEach(func(_, item gjson.Result) bool {
		matchID := item.Get("match_id").Int()
		if matchID <= 0 {
			return true
		}

		odds := usecase.ExternalOdds{Live: live}
		item.Get("markets").ForEach(func(_, market gjson.Result) bool {
			parsed := parseMarket(market)
			if len(parsed.Values) > 0 {
				odds.Markets = append(odds.Markets, parsed)
			}
			return true
		})

		odds.Empty = len(odds.Markets) == 0
		out[matchID] = odds
		return true
	})

	return out
}

func parseMarket(market gjson.Result) usecase.ExternalMarket {
	parsed := usecase.ExternalMarket{
		ID:   market.Get("id").Int(),
		Name: strings.TrimSpace(market.Get("name").String()),
	}

	market.Get("values").ForEach(func(_, value gjson.Result) bool {
		selection := usecase.ExternalOddsValue{
			Label: strings.TrimSpace(value.Get("label").String()),
			Main:  value.Get("main").Bool(),
		}
		if line := value.Get("line"); line.Exists() && line.Type != gjson.Null {
			v := line.Float()
			selection.Line = &v
		}
		price := value.Get("price")
		if !price.Exists() || price.Type == gjson.Null {
			price = value.Get("odd")
		}
		if !price.Exists() || price.Type == gjson.Null || price.Float() <= 0 {
			// Suspended or malformed selection, nothing to price.
			return true
		}
		v := price.Float()
		selection.Price = &v
		parsed.Values = append(parsed.Values, selection)
		return true
	})

	return parsed
}
