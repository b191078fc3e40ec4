package engine

import (
	"regexp"
	"strings"
)

// Match is one keyword set that fired for a message.
type Match struct {
	KeywordSetID    uint
	MatchedKeywords []string
}

// MatchKeywords tests a message against the given keyword sets and returns
// one Match per set that fired. Inactive sets and empty keywords are
// skipped, matched keywords are de-duplicated per set, and no-match input
// yields an empty result, never an error.
func MatchKeywords(text string, sets []KeywordSet) []Match {
	var matches []Match
	lower := strings.ToLower(text)

	for i := range sets {
		set := &sets[i]
		if !set.IsActive {
			continue
		}

		seen := make(map[string]bool)
		var matched []string
		for _, kw := range set.Keywords {
			if kw.Text == "" || seen[kw.Text] {
				continue
			}
			if matchKeyword(text, lower, kw.Text, set.MatchMode) {
				seen[kw.Text] = true
				matched = append(matched, kw.Text)
			}
		}

		if len(matched) > 0 {
			matches = append(matches, Match{KeywordSetID: set.ID, MatchedKeywords: matched})
		}
	}

	return matches
}

func matchKeyword(text, lowerText, keyword, mode string) bool {
	switch mode {
	case MatchModeExact:
		return strings.EqualFold(strings.TrimSpace(text), strings.TrimSpace(keyword))
	case MatchModeRegex:
		re, err := regexp.Compile("(?i)" + keyword)
		if err != nil {
			// Broken pattern degrades to a substring match.
			return strings.Contains(lowerText, strings.ToLower(keyword))
		}
		return re.MatchString(text)
	default: // fuzzy
		return strings.Contains(lowerText, strings.ToLower(keyword))
	}
}
