package match

import "strings"

const (
	StatusNotStarted = "NOT_STARTED"
	StatusFirstHalf  = "FIRST_HALF"
	StatusHalfTime   = "HALF_TIME"
	StatusSecondHalf = "SECOND_HALF"
	StatusExtraTime  = "EXTRA_TIME"
	StatusPenalties  = "PENALTIES"
	StatusFinished   = "FINISHED"
	StatusUnknown    = "UNKNOWN"
)

// FetchStatus records the outcome of an odds fetch for one match.
type FetchStatus string

const (
	FetchSuccess    FetchStatus = "SUCCESS"
	FetchEmpty      FetchStatus = "EMPTY"
	FetchError      FetchStatus = "ERROR"
	FetchNotFetched FetchStatus = "NOT_FETCHED"
)

const (
	OddsSourceLive     = "live"
	OddsSourcePrematch = "prematch"
)

// Participant is one side of a match with its current score.
type Participant struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// TeamStats holds one team's statistics block. Fields the provider did not
// send stay nil; they are never guessed.
type TeamStats struct {
	TeamID        int64    `json:"teamId"`
	Shots         *int     `json:"shots"`
	ShotsOnTarget *int     `json:"shotsOnTarget"`
	Possession    *float64 `json:"possession"`
	Corners       *int     `json:"corners"`
	ExpectedGoals *float64 `json:"expectedGoals"`
	Fouls         *int     `json:"fouls"`
	YellowCards   *int     `json:"yellowCards"`
	RedCards      *int     `json:"redCards"`
}

type StatsBlock struct {
	HasRealData bool      `json:"hasRealData"`
	Home        TeamStats `json:"home"`
	Away        TeamStats `json:"away"`
}

// PriceLine is one over/under line with its prices. Main marks the line the
// provider flags as the principal market.
type PriceLine struct {
	Line  float64 `json:"line"`
	Over  float64 `json:"over"`
	Under float64 `json:"under"`
	Main  bool    `json:"main"`
}

type HandicapMarket struct {
	Line float64 `json:"line"`
	Home float64 `json:"home"`
	Away float64 `json:"away"`
}

type OverUnderMarket struct {
	Line  float64     `json:"line"`
	Over  float64     `json:"over"`
	Under float64     `json:"under"`
	Lines []PriceLine `json:"lines,omitempty"`
}

type MatchWinnerMarket struct {
	Home float64 `json:"home"`
	Draw float64 `json:"draw"`
	Away float64 `json:"away"`
}

// OddsBlock carries the resolved markets for one match. Absent markets are
// nil; FetchStatus distinguishes "fetched and empty" from "never fetched".
type OddsBlock struct {
	FetchStatus FetchStatus        `json:"fetchStatus"`
	Live        bool               `json:"live"`
	Source      string             `json:"source,omitempty"`
	Handicap    *HandicapMarket    `json:"handicap,omitempty"`
	OverUnder   *OverUnderMarket   `json:"overUnder,omitempty"`
	MatchWinner *MatchWinnerMarket `json:"matchWinner,omitempty"`

	// LineMovement is the signed drift of the main over/under "over" price
	// since the previous refresh cycle. Zero when either cycle lacked the
	// market or the main line changed.
	LineMovement float64 `json:"lineMovement,omitempty"`
}

func (o OddsBlock) HasAnyMarket() bool {
	return o.Handicap != nil || o.OverUnder != nil || o.MatchWinner != nil
}

const (
	TimelineGoal         = "goal"
	TimelineYellowCard   = "yellow_card"
	TimelineRedCard      = "red_card"
	TimelineSubstitution = "substitution"
	TimelineVAR          = "var"
)

type TimelineEntry struct {
	Minute      int    `json:"minute"`
	ExtraMinute int    `json:"extraMinute,omitempty"`
	Type        string `json:"type"`
	TeamID      int64  `json:"teamId"`
	Player      string `json:"player,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// Event is one live match with everything merged in. It is rebuilt wholesale
// on every refresh; no field is patched incrementally.
type Event struct {
	ID              int64           `json:"id"`
	CompetitionID   int64           `json:"competitionId"`
	CompetitionName string          `json:"competitionName"`
	Home            Participant     `json:"home"`
	Away            Participant     `json:"away"`
	Minute          int             `json:"minute"`
	Status          string          `json:"status"`
	Stats           StatsBlock      `json:"stats"`
	Odds            OddsBlock       `json:"odds"`
	Timeline        []TimelineEntry `json:"timeline,omitempty"`
	ScenarioTags    []string        `json:"scenarioTags,omitempty"`
	KillScore       int             `json:"killScore"`
	Validation      Validation      `json:"validation"`
	Unscoreable     bool            `json:"unscoreable"`
}

func (e Event) TotalGoals() int {
	return e.Home.Score + e.Away.Score
}

func (e Event) ScoreDiff() int {
	diff := e.Home.Score - e.Away.Score
	if diff < 0 {
		return -diff
	}
	return diff
}

func NormalizeStatus(value string) string {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "NS", "NOT_STARTED", "SCHEDULED":
		return StatusNotStarted
	case "1H", "FIRST_HALF", "INPLAY_1ST_HALF":
		return StatusFirstHalf
	case "HT", "HALF_TIME", "HALFTIME":
		return StatusHalfTime
	case "2H", "SECOND_HALF", "INPLAY_2ND_HALF":
		return StatusSecondHalf
	case "ET", "EXTRA_TIME", "INPLAY_ET":
		return StatusExtraTime
	case "PEN", "PENALTIES", "INPLAY_PENALTIES":
		return StatusPenalties
	case "FT", "AET", "FT_PEN", "FINISHED":
		return StatusFinished
	default:
		return StatusUnknown
	}
}

func IsRecognizedStatus(status string) bool {
	return NormalizeStatus(status) != StatusUnknown
}

// IsInPlay reports whether the clock is running. Half-time and penalty
// shootouts are deliberately excluded; RefreshMeta.Live counts only these.
func IsInPlay(status string) bool {
	switch NormalizeStatus(status) {
	case StatusFirstHalf, StatusSecondHalf, StatusExtraTime:
		return true
	default:
		return false
	}
}

func IsFinished(status string) bool {
	return NormalizeStatus(status) == StatusFinished
}
