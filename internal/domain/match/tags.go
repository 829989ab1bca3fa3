package match

// Scenario tags are cheap ingest-time labels used for filtering and display.
const (
	TagCriticalTime = "critical_time"
	TagDeadlock     = "deadlock"
	TagOneGoalGame  = "one_goal_game"
	TagStrongBehind = "strong_behind"
	TagRedCard      = "red_card"
	TagNoRealStats  = "no_real_stats"
	TagGoalFest     = "goal_fest"
)

func HasTag(tags []string, tag string) bool {
	for _, item := range tags {
		if item == tag {
			return true
		}
	}
	return false
}
