package engine

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionLogCapacity bounds the transient trigger event buffer.
const SessionLogCapacity = 50

// sleepThreshold is how long an active rule may go untriggered before it
// counts as sleeping.
const sleepThreshold = 7 * 24 * time.Hour

// SessionTriggerEvent is one transient entry in the session log. Never
// persisted.
type SessionTriggerEvent struct {
	ID           string    `json:"id"`
	Time         time.Time `json:"time"`
	RuleName     string    `json:"rule_name"`
	Keyword      string    `json:"keyword"`
	ResponseType string    `json:"response_type"`
	Success      bool      `json:"success"`
}

// RuleCounterStore persists rule counter changes. Implemented by the
// persistence collaborator.
type RuleCounterStore interface {
	SaveRuleCounters(ruleID uint, triggerCount, successCount int, lastTriggeredAt *time.Time)
}

// StatsAggregator is the exclusive owner of per-rule trigger/success
// counters and the session event log. All aggregate metrics are pure
// functions over the current rule state.
type StatsAggregator struct {
	mu     sync.Mutex
	events []SessionTriggerEvent
	store  RuleCounterStore
	now    func() time.Time
}

func NewStatsAggregator(store RuleCounterStore) *StatsAggregator {
	return &StatsAggregator{store: store, now: time.Now}
}

// RecordTrigger counts a successful rule selection, regardless of the
// downstream outcome. The session log entry is written once the outcome is
// known, in RecordOutcome.
func (s *StatsAggregator) RecordTrigger(rule *TriggerRule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rule.TriggerCount++
	rule.LastTriggeredAt = &now
	s.persist(rule)
}

// RecordOutcome logs the dispatch outcome for the session view and, when a
// send actually occurred, counts the success.
func (s *StatsAggregator) RecordOutcome(rule *TriggerRule, keyword string, sent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sent {
		rule.SuccessCount++
		s.persist(rule)
	}

	event := SessionTriggerEvent{
		ID:           uuid.NewString(),
		Time:         s.now(),
		RuleName:     rule.Name,
		Keyword:      keyword,
		ResponseType: rule.ResponseType,
		Success:      sent,
	}
	// Append to front, evict oldest past capacity.
	s.events = append([]SessionTriggerEvent{event}, s.events...)
	if len(s.events) > SessionLogCapacity {
		s.events = s.events[:SessionLogCapacity]
	}
}

func (s *StatsAggregator) persist(rule *TriggerRule) {
	if s.store != nil {
		s.store.SaveRuleCounters(rule.ID, rule.TriggerCount, rule.SuccessCount, rule.LastTriggeredAt)
	}
}

// RuleStats is a consistent read of one rule's counters with the derived
// per-rule metrics.
type RuleStats struct {
	TriggerCount    int        `json:"trigger_count"`
	SuccessCount    int        `json:"success_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	SuccessRate     int        `json:"success_rate"`
	Sleeping        bool       `json:"sleeping"`
}

// RuleStats copies a rule's counters under the counter mutex. The pipeline
// mutates the counters through this aggregator, so concurrent readers must
// come through here too.
func (s *StatsAggregator) RuleStats(rule *TriggerRule, now time.Time) RuleStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RuleStats{
		TriggerCount:    rule.TriggerCount,
		SuccessCount:    rule.SuccessCount,
		LastTriggeredAt: rule.LastTriggeredAt,
		SuccessRate:     SuccessRate(rule),
		Sleeping:        IsSleeping(rule, now),
	}
}

// TopRule is the dashboard view of the best performing rule.
type TopRule struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	SuccessRate int    `json:"success_rate"`
}

// Overview is the aggregated dashboard view over all rules.
type Overview struct {
	TotalRules       int      `json:"total_rules"`
	ActiveRules      int      `json:"active_rules"`
	HealthScore      int      `json:"engine_health_score"`
	TopRule          *TopRule `json:"top_performing_rule"`
	SleepingRules    []string `json:"sleeping_rules"`
	OptimizationTips []string `json:"optimization_tips"`
}

// Overview computes the dashboard metrics under the counter mutex so the
// numbers are consistent with in-flight pipeline writes.
func (s *StatsAggregator) Overview(rules []*TriggerRule, now time.Time) Overview {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := Overview{
		TotalRules:    len(rules),
		SleepingRules: make([]string, 0),
	}
	for _, r := range rules {
		if r.IsActive {
			o.ActiveRules++
		}
	}
	o.HealthScore = EngineHealthScore(rules, now)
	if top := TopPerformingRule(rules); top != nil {
		o.TopRule = &TopRule{ID: top.ID, Name: top.Name, SuccessRate: SuccessRate(top)}
	}
	for _, r := range SleepingRules(rules, now) {
		o.SleepingRules = append(o.SleepingRules, r.Name)
	}
	o.OptimizationTips = OptimizationTips(rules, now)
	return o
}

// SessionLog returns the transient trigger events, newest first.
func (s *StatsAggregator) SessionLog() []SessionTriggerEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionTriggerEvent, len(s.events))
	copy(out, s.events)
	return out
}

// ClearSessionLog discards the transient trigger events.
func (s *StatsAggregator) ClearSessionLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// SuccessRate is the percentage of triggers that ended in a send, 0 when the
// rule never triggered.
func SuccessRate(rule *TriggerRule) int {
	if rule.TriggerCount == 0 {
		return 0
	}
	return int(math.Round(float64(rule.SuccessCount) / float64(rule.TriggerCount) * 100))
}

// IsSleeping reports whether an active rule has no recent trigger history.
func IsSleeping(rule *TriggerRule, now time.Time) bool {
	if !rule.IsActive {
		return false
	}
	if rule.TriggerCount == 0 {
		return true
	}
	return rule.LastTriggeredAt == nil || now.Sub(*rule.LastTriggeredAt) > sleepThreshold
}

// SleepingRules lists the active rules with no recent trigger history.
func SleepingRules(rules []*TriggerRule, now time.Time) []*TriggerRule {
	var out []*TriggerRule
	for _, r := range rules {
		if IsSleeping(r, now) {
			out = append(out, r)
		}
	}
	return out
}

// TopPerformingRule is the rule with the highest success rate among rules
// that have triggered at least once, or nil.
func TopPerformingRule(rules []*TriggerRule) *TriggerRule {
	var best *TriggerRule
	bestRate := -1
	for _, r := range rules {
		if r.TriggerCount == 0 {
			continue
		}
		if rate := SuccessRate(r); rate > bestRate {
			best = r
			bestRate = rate
		}
	}
	return best
}

// EngineHealthScore is a composite 0-100 metric over rule activity, average
// success rate, and the sleeping ratio. 0 with no rules, 10 when rules exist
// but none are active.
func EngineHealthScore(rules []*TriggerRule, now time.Time) int {
	if len(rules) == 0 {
		return 0
	}

	active := 0
	sleeping := 0
	rateSum := 0
	for _, r := range rules {
		if r.IsActive {
			active++
		}
		if IsSleeping(r, now) {
			sleeping++
		}
		rateSum += SuccessRate(r)
	}
	if active == 0 {
		return 10
	}

	activeRatio := float64(active) / float64(len(rules))
	avgRate := float64(rateSum) / float64(len(rules))
	sleepingRatio := float64(sleeping) / float64(active)

	score := 30*activeRatio + 40*(avgRate/100) + 30*(1-sleepingRatio)
	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

// OptimizationTips emits one tip per satisfied heuristic over the rule set.
func OptimizationTips(rules []*TriggerRule, now time.Time) []string {
	if len(rules) == 0 {
		return nil
	}

	var tips []string
	active := 0
	recordOnly := 0
	totalTriggers := 0
	rateSum := 0
	for _, r := range rules {
		if r.IsActive {
			active++
		}
		if r.ResponseType == ResponseRecordOnly {
			recordOnly++
		}
		totalTriggers += r.TriggerCount
		rateSum += SuccessRate(r)
	}

	if len(SleepingRules(rules, now)) > 0 {
		tips = append(tips, "Some active rules have not triggered recently; review their keywords and scope.")
	}
	if avg := rateSum / len(rules); avg < 50 && totalTriggers > 10 {
		tips = append(tips, "Average success rate is below 50%; check sender accounts and daily limits.")
	}
	if active == 0 {
		tips = append(tips, "All rules are disabled; enable at least one rule to start responding.")
	}
	if recordOnly == len(rules) {
		tips = append(tips, "Every rule only records leads; add a reply rule to engage matched users.")
	}
	return tips
}
