package usecase

// External DTOs produced by the provider client. Missing provider fields stay
// nil end to end; nothing in this layer fabricates values.

type ExternalFixture struct {
	ID              int64
	CompetitionID   int64
	CompetitionName string
	HomeID          int64
	HomeName        string
	HomeScore       int
	AwayID          int64
	AwayName        string
	AwayScore       int
	Minute          int
	StatusCode      string
}

type ExternalTeamStats struct {
	TeamID        int64
	Shots         *int
	ShotsOnTarget *int
	Possession    *float64
	Corners       *int
	ExpectedGoals *float64
	Fouls         *int
	YellowCards   *int
	RedCards      *int
}

type ExternalStats struct {
	Teams []ExternalTeamStats
}

type ExternalTimelineEvent struct {
	Minute      int
	ExtraMinute int
	TypeID      int64
	TypeName    string
	TeamID      int64
	Player      string
	Detail      string
}

// ExternalOddsValue is one priced selection inside a market. Line is nil for
// line-less markets (1X2); Price is nil when the provider sent a suspended or
// malformed selection.
type ExternalOddsValue struct {
	Label string
	Line  *float64
	Price *float64
	Main  bool
}

type ExternalMarket struct {
	ID     int64
	Name   string
	Values []ExternalOddsValue
}

type ExternalOdds struct {
	Empty   bool
	Live    bool
	Markets []ExternalMarket
}
