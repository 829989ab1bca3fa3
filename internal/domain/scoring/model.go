package scoring

// Action is the recommendation derived from (score, confidence).
type Action string

const (
	ActionBet     Action = "BET"
	ActionPrepare Action = "PREPARE"
	ActionWatch   Action = "WATCH"
	ActionIgnore  Action = "IGNORE"
)

// DataMode distinguishes scores computed from fully real data from scores
// computed over partial or suspicious inputs.
type DataMode string

const (
	ModeStrictRealData DataMode = "STRICT_REAL_DATA"
	ModeDegradedData   DataMode = "DEGRADED_DATA"
)

// Component is one bounded score contribution with its human-readable detail.
type Component struct {
	Score  float64 `json:"score"`
	Max    float64 `json:"max"`
	Detail string  `json:"detail,omitempty"`
}

// Components are the five parts of the composite score.
type Components struct {
	Base    Component `json:"base"`
	Edge    Component `json:"edge"`
	Timing  Component `json:"timing"`
	Market  Component `json:"market"`
	Quality Component `json:"quality"`
}

// OddsFactor reports whether market data contributed at all. When no market
// context is supplied DataAvailable is false and Market scores exactly zero.
type OddsFactor struct {
	DataAvailable bool    `json:"dataAvailable"`
	LineMovement  float64 `json:"lineMovement,omitempty"`
}

// ConfidenceBreakdown are the four parts of the confidence value. Confidence
// is independent of the score: a high score with low confidence is valid.
type ConfidenceBreakdown struct {
	Completeness       float64 `json:"completeness"`
	Freshness          float64 `json:"freshness"`
	Consistency        float64 `json:"consistency"`
	MarketConfirmation float64 `json:"marketConfirmation"`
}

// Result is derived per read from the latest match state and never persisted
// independently of the match it was computed from.
type Result struct {
	Total      int                 `json:"total"`
	Confidence int                 `json:"confidence"`
	Components Components          `json:"components"`
	Breakdown  ConfidenceBreakdown `json:"confidenceBreakdown"`
	OddsFactor OddsFactor          `json:"oddsFactor"`
	Action     Action              `json:"action"`
	DataMode   DataMode            `json:"dataMode"`
	Alerts     []string            `json:"alerts,omitempty"`
}
