package engine

import (
	"errors"
	"testing"
)

func validDraft(t *testing.T) *RuleDraft {
	t.Helper()
	d := NewRuleDraft()
	if err := d.SetBasics("welcome", PriorityHigh); err != nil {
		t.Fatal(err)
	}
	if err := d.SetScope(SourceAll, nil, []uint{10}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetConditions(RuleConditions{}); err != nil {
		t.Fatal(err)
	}
	if err := d.SetResponse(ResponseTemplate, ResponseConfig{TemplateID: 7}, SenderAuto, nil, 5, 30, 20); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRuleDraftBuild(t *testing.T) {
	d := validDraft(t)
	d.SetSideEffects(true, true)

	rule, err := d.Build()
	if err != nil {
		t.Fatal(err)
	}
	if rule.Name != "welcome" || rule.Priority != PriorityHigh {
		t.Errorf("basics lost: %+v", rule)
	}
	if !rule.AutoAddLead || !rule.NotifyMe {
		t.Error("side effects lost")
	}
	if !rule.IsActive {
		t.Error("new rules default to active")
	}
}

func TestRuleDraftStepValidation(t *testing.T) {
	var invalid *InvalidRuleConfigError

	d := NewRuleDraft()
	if err := d.SetBasics("", PriorityHigh); !errors.As(err, &invalid) {
		t.Error("empty name accepted")
	}
	if err := d.SetBasics("r", 9); !errors.As(err, &invalid) {
		t.Error("out-of-range priority accepted")
	}
	if err := d.SetScope(SourceSpecific, nil, []uint{10}); !errors.As(err, &invalid) {
		t.Error("specific scope without groups accepted")
	}
	if err := d.SetScope(SourceAll, nil, nil); !errors.As(err, &invalid) {
		t.Error("empty keyword sets accepted")
	}
	if err := d.SetConditions(RuleConditions{TimeRange: &TimeRange{StartHour: 25}}); !errors.As(err, &invalid) {
		t.Error("invalid time range accepted")
	}
	if err := d.SetResponse("broadcast", ResponseConfig{}, SenderAuto, nil, 0, 0, 0); !errors.As(err, &invalid) {
		t.Error("unknown response type accepted")
	}
	if err := d.SetResponse(ResponseTemplate, ResponseConfig{}, SenderAuto, nil, 0, 0, 0); !errors.As(err, &invalid) {
		t.Error("template without template id accepted")
	}
	if err := d.SetResponse(ResponseAIChat, ResponseConfig{}, SenderSpecific, nil, 0, 0, 0); !errors.As(err, &invalid) {
		t.Error("specific sender without accounts accepted")
	}
	if err := d.SetResponse(ResponseAIChat, ResponseConfig{}, SenderAuto, nil, 10, 5, 0); !errors.As(err, &invalid) {
		t.Error("inverted delay range accepted")
	}
}

func TestRuleDraftValidateGate(t *testing.T) {
	// A draft that skipped the scope step must not build.
	d := NewRuleDraft()
	if err := d.SetBasics("r", PriorityMedium); err != nil {
		t.Fatal(err)
	}
	if err := d.SetResponse(ResponseRecordOnly, ResponseConfig{}, SenderAuto, nil, 0, 0, 0); err != nil {
		t.Fatal(err)
	}

	if _, err := d.Build(); err == nil {
		t.Error("draft without keyword sets built successfully")
	}
}

func TestValidateRuleTemplateInvariant(t *testing.T) {
	rule := &TriggerRule{
		Name:          "r",
		KeywordSetIDs: []uint{10},
		SourceType:    SourceAll,
		ResponseType:  ResponseTemplate,
	}

	var invalid *InvalidRuleConfigError
	if err := ValidateRule(rule); !errors.As(err, &invalid) {
		t.Fatal("template rule without template id passed validation")
	}

	rule.ResponseConfig.TemplateID = 7
	if err := ValidateRule(rule); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
}
