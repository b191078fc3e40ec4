package engine

import (
	"time"
)

// TriggerLedger answers whether a rule already fired for a user. The ledger
// itself lives with the persistence collaborator; the evaluator only issues
// pure queries against it.
type TriggerLedger interface {
	HasTriggered(ruleID uint, userID string) bool
}

// EvaluateConditions checks every enabled condition on the rule against the
// message. All enabled conditions must pass; a single failure makes the rule
// not applicable for this message.
func EvaluateConditions(rule *TriggerRule, msg MessageContext, ledger TriggerLedger, now time.Time) bool {
	cond := rule.Conditions

	if cond.ExcludeAdmin && msg.IsSenderAdmin {
		return false
	}

	if cond.OncePerUser && ledger != nil && ledger.HasTriggered(rule.ID, msg.SenderUserID) {
		return false
	}

	if cond.TimeRange != nil && !hourInRange(now.Local().Hour(), cond.TimeRange.StartHour, cond.TimeRange.EndHour) {
		return false
	}

	return true
}

// hourInRange checks hour membership at hour granularity. Windows where
// start > end wrap past midnight.
func hourInRange(hour, start, end int) bool {
	if start == end {
		return true // degenerate window covers the whole day
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
