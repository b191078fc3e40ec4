package engine

import (
	"fmt"
	"sort"
	"strings"
)

// ResolveRule narrows the keyword matches down to the single rule that
// should fire for this message: active rules whose scope covers the group
// and whose keyword sets intersect the matches, ordered by priority
// descending then id ascending, first match wins. Returns nil when no rule
// applies.
func ResolveRule(matches []Match, groupID uint, rules []*TriggerRule) *TriggerRule {
	if len(matches) == 0 {
		return nil
	}

	matchedSets := make(map[uint]bool, len(matches))
	for _, m := range matches {
		matchedSets[m.KeywordSetID] = true
	}

	var candidates []*TriggerRule
	for _, rule := range rules {
		if !rule.IsActive || !rule.AppliesToGroup(groupID) {
			continue
		}
		for _, setID := range rule.KeywordSetIDs {
			if matchedSets[setID] {
				candidates = append(candidates, rule)
				break
			}
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates[0]
}

// MatchedKeyword returns the first keyword that fired for the resolved
// rule's keyword sets, for use in leads and template substitution.
func MatchedKeyword(matches []Match, rule *TriggerRule) string {
	ruleSets := make(map[uint]bool, len(rule.KeywordSetIDs))
	for _, id := range rule.KeywordSetIDs {
		ruleSets[id] = true
	}
	for _, m := range matches {
		if ruleSets[m.KeywordSetID] && len(m.MatchedKeywords) > 0 {
			return m.MatchedKeywords[0]
		}
	}
	return ""
}

// DetectOverlap scans existing active rules for one that shares both a
// source-group scope and at least one keyword set with the candidate. The
// result is advisory text for the operator, never an enforcement.
func DetectOverlap(candidate *TriggerRule, existing []*TriggerRule) string {
	candSets := make(map[uint]bool, len(candidate.KeywordSetIDs))
	for _, id := range candidate.KeywordSetIDs {
		candSets[id] = true
	}

	var names []string
	for _, rule := range existing {
		if rule.ID == candidate.ID || !rule.IsActive {
			continue
		}
		if !scopesOverlap(candidate, rule) {
			continue
		}
		for _, setID := range rule.KeywordSetIDs {
			if candSets[setID] {
				names = append(names, rule.Name)
				break
			}
		}
	}

	if len(names) == 0 {
		return ""
	}
	return fmt.Sprintf("rule overlaps with %s on shared groups and keyword sets; only the highest-priority rule will fire", strings.Join(names, ", "))
}

func scopesOverlap(a, b *TriggerRule) bool {
	if a.SourceType == SourceAll || b.SourceType == SourceAll {
		return true
	}
	for _, ga := range a.SourceGroupIDs {
		for _, gb := range b.SourceGroupIDs {
			if ga == gb {
				return true
			}
		}
	}
	return false
}
