package engine

import (
	"math"
)

// Readiness step keys, in checklist order.
const (
	StepListenerConnected = "listener_account_connected"
	StepGroupsExist       = "groups_exist"
	StepKeywordsExist     = "keywords_exist"
	StepBindingExists     = "binding_exists"
	StepTemplatesExist    = "templates_exist"
	StepSenderConnected   = "sender_account_connected"
)

// ReadinessStep is one entry of the setup checklist.
type ReadinessStep struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// Readiness is the aggregated setup checklist gating whether monitoring can
// be started.
type Readiness struct {
	Steps          []ReadinessStep `json:"steps"`
	CompletedCount int             `json:"completed_count"`
	Percentage     int             `json:"percentage"`
	IsReady        bool            `json:"is_ready"`
	NextStep       string          `json:"next_step"`
}

// ComputeReadiness evaluates the six-step checklist over the current
// catalogs. Independent of the live matching path.
func ComputeReadiness(snap *Snapshot) Readiness {
	steps := []ReadinessStep{
		{Key: StepListenerConnected, Label: "Connect a listener account", Completed: hasConnectedAccount(snap.Accounts, func(a *MonitoringAccount) bool { return a.IsListener })},
		{Key: StepGroupsExist, Label: "Add a monitored group", Completed: len(snap.Groups) > 0},
		{Key: StepKeywordsExist, Label: "Create a keyword set", Completed: hasKeywords(snap.KeywordSets)},
		{Key: StepBindingExists, Label: "Link a keyword set to a group", Completed: hasBinding(snap.Groups)},
		{Key: StepTemplatesExist, Label: "Create a reply template", Completed: len(snap.Templates) > 0},
		{Key: StepSenderConnected, Label: "Connect a sender account", Completed: hasConnectedAccount(snap.Accounts, func(a *MonitoringAccount) bool { return a.IsSender })},
	}

	completed := 0
	next := ""
	for _, step := range steps {
		if step.Completed {
			completed++
		} else if next == "" {
			next = step.Key
		}
	}

	return Readiness{
		Steps:          steps,
		CompletedCount: completed,
		Percentage:     int(math.Round(float64(completed) / float64(len(steps)) * 100)),
		IsReady:        completed >= 4,
		NextStep:       next,
	}
}

func hasConnectedAccount(accounts []MonitoringAccount, role func(*MonitoringAccount) bool) bool {
	for i := range accounts {
		if role(&accounts[i]) && accounts[i].Status == AccountConnected {
			return true
		}
	}
	return false
}

func hasKeywords(sets []KeywordSet) bool {
	for i := range sets {
		if len(sets[i].Keywords) > 0 {
			return true
		}
	}
	return false
}

func hasBinding(groups []MonitoredGroup) bool {
	for i := range groups {
		if len(groups[i].KeywordSetIDs) > 0 {
			return true
		}
	}
	return false
}
