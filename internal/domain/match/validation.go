package match

// Quality is the overall data-quality verdict for one match.
type Quality string

const (
	QualityReal    Quality = "REAL"
	QualityPartial Quality = "PARTIAL"
	QualityInvalid Quality = "INVALID"
)

// Reason codes explain why a source was classified as not real. Downstream
// consumers report these verbatim, so they are stable identifiers.
const (
	ReasonFixtureIncomplete      = "FIXTURE_INCOMPLETE"
	ReasonFixtureStatusUnknown   = "FIXTURE_STATUS_UNKNOWN"
	ReasonStatsMissing           = "STATS_MISSING"
	ReasonStatsMissingShots      = "STATS_MISSING_SHOTS"
	ReasonStatsMissingPossession = "STATS_MISSING_POSSESSION"
	ReasonOddsNotFetched         = "ODDS_NOT_FETCHED"
	ReasonOddsEmpty              = "ODDS_EMPTY"
	ReasonOddsError              = "ODDS_ERROR"
	ReasonTimelineEmpty          = "TIMELINE_EMPTY"
)

// Validation is the per-source verdict attached to every aggregated match.
type Validation struct {
	FixtureReal  bool     `json:"fixtureReal"`
	StatsReal    bool     `json:"statsReal"`
	OddsReal     bool     `json:"oddsReal"`
	TimelineReal bool     `json:"timelineReal"`
	Quality      Quality  `json:"quality"`
	Reasons      []string `json:"reasons,omitempty"`
	MarketsFound []string `json:"marketsFound,omitempty"`
	OddsSource   string   `json:"oddsSource,omitempty"`
}

func (v Validation) RealSourceCount() int {
	count := 0
	for _, real := range []bool{v.FixtureReal, v.StatsReal, v.OddsReal, v.TimelineReal} {
		if real {
			count++
		}
	}
	return count
}

// QualityFromSourceCount maps the number of real sources to the overall
// verdict: >=3 REAL, >=1 PARTIAL, otherwise INVALID.
func QualityFromSourceCount(count int) Quality {
	switch {
	case count >= 3:
		return QualityReal
	case count >= 1:
		return QualityPartial
	default:
		return QualityInvalid
	}
}
