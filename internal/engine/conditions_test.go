package engine

import (
	"fmt"
	"testing"
	"time"
)

type fakeLedger struct {
	entries map[string]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]bool)}
}

func (f *fakeLedger) key(ruleID uint, userID string) string {
	return fmt.Sprintf("%d/%s", ruleID, userID)
}

func (f *fakeLedger) HasTriggered(ruleID uint, userID string) bool {
	return f.entries[f.key(ruleID, userID)]
}

func (f *fakeLedger) RecordTrigger(ruleID uint, userID string) {
	f.entries[f.key(ruleID, userID)] = true
}

func TestEvaluateConditionsExcludeAdmin(t *testing.T) {
	rule := &TriggerRule{ID: 1, Conditions: RuleConditions{ExcludeAdmin: true}}

	if EvaluateConditions(rule, MessageContext{IsSenderAdmin: true}, nil, time.Now()) {
		t.Error("admin sender should be rejected")
	}
	if !EvaluateConditions(rule, MessageContext{IsSenderAdmin: false}, nil, time.Now()) {
		t.Error("non-admin sender should pass")
	}
}

func TestEvaluateConditionsOncePerUser(t *testing.T) {
	rule := &TriggerRule{ID: 1, Conditions: RuleConditions{OncePerUser: true}}
	ledger := newFakeLedger()

	msg := MessageContext{SenderUserID: "u1"}
	if !EvaluateConditions(rule, msg, ledger, time.Now()) {
		t.Error("first trigger for user should pass")
	}

	ledger.RecordTrigger(1, "u1")
	if EvaluateConditions(rule, msg, ledger, time.Now()) {
		t.Error("repeat trigger for user should be rejected")
	}
	if !EvaluateConditions(rule, MessageContext{SenderUserID: "u2"}, ledger, time.Now()) {
		t.Error("different user should pass")
	}
}

func TestEvaluateConditionsTimeRange(t *testing.T) {
	tests := []struct {
		name  string
		start int
		end   int
		hour  int
		want  bool
	}{
		{"inside normal window", 9, 18, 12, true},
		{"before normal window", 9, 18, 8, false},
		{"at window end", 9, 18, 18, false},
		{"wrap window evening", 22, 6, 23, true},
		{"wrap window morning", 22, 6, 3, true},
		{"wrap window midday", 22, 6, 12, false},
		{"degenerate window covers all", 8, 8, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &TriggerRule{Conditions: RuleConditions{
				TimeRange: &TimeRange{StartHour: tt.start, EndHour: tt.end},
			}}
			now := time.Date(2025, 6, 1, tt.hour, 30, 0, 0, time.Local)
			if got := EvaluateConditions(rule, MessageContext{}, nil, now); got != tt.want {
				t.Errorf("hour %d in [%d,%d): got %v, want %v", tt.hour, tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestEvaluateConditionsAndSemantics(t *testing.T) {
	rule := &TriggerRule{ID: 1, Conditions: RuleConditions{
		ExcludeAdmin: true,
		OncePerUser:  true,
	}}
	ledger := newFakeLedger()
	ledger.RecordTrigger(1, "u1")

	// Passing one condition is not enough; every enabled condition must pass.
	if EvaluateConditions(rule, MessageContext{SenderUserID: "u1", IsSenderAdmin: false}, ledger, time.Now()) {
		t.Error("ledger rejection must fail the whole evaluation")
	}
	if EvaluateConditions(rule, MessageContext{SenderUserID: "u2", IsSenderAdmin: true}, ledger, time.Now()) {
		t.Error("admin rejection must fail the whole evaluation")
	}
	if !EvaluateConditions(rule, MessageContext{SenderUserID: "u2", IsSenderAdmin: false}, ledger, time.Now()) {
		t.Error("all conditions passing should succeed")
	}
}

func TestEvaluateConditionsNoneEnabled(t *testing.T) {
	rule := &TriggerRule{ID: 1}
	if !EvaluateConditions(rule, MessageContext{IsSenderAdmin: true}, nil, time.Now()) {
		t.Error("rule with no conditions should always pass")
	}
}
