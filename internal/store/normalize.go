package store

import (
	"encoding/json"
	"strconv"
	"strings"

	"chat-monitor/internal/engine"
	"chat-monitor/internal/logger"
	"chat-monitor/internal/models"
)

// The persisted catalog columns come in loose shapes (JSON arrays of numbers
// or strings, comma-separated text, single values). Everything is normalized
// here, once, into the engine's canonical types; engine code never branches
// on representation.

func parseUintList(raw string) []uint {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" || raw == "null" {
		return nil
	}

	var nums []uint
	if err := json.Unmarshal([]byte(raw), &nums); err == nil {
		return nums
	}

	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err == nil {
		return uintsFromStrings(strs)
	}

	// Fall back to comma-separated text or a single value.
	return uintsFromStrings(strings.Split(raw, ","))
}

func uintsFromStrings(strs []string) []uint {
	var out []uint
	for _, s := range strs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if n, err := strconv.ParseUint(s, 10, 32); err == nil {
			out = append(out, uint(n))
		}
	}
	return out
}

func parseKeywords(raw string) []engine.Keyword {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "[]" || raw == "null" {
		return nil
	}

	var kws []engine.Keyword
	if err := json.Unmarshal([]byte(raw), &kws); err == nil && len(kws) > 0 && kws[0].Text != "" {
		return kws
	}

	var strs []string
	if err := json.Unmarshal([]byte(raw), &strs); err == nil {
		return keywordsFromStrings(strs)
	}

	return keywordsFromStrings(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	}))
}

func keywordsFromStrings(strs []string) []engine.Keyword {
	var out []engine.Keyword
	for _, s := range strs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, engine.Keyword{Text: s})
	}
	return out
}

func normalizeKeywordSet(m *models.KeywordSet) engine.KeywordSet {
	mode := m.MatchMode
	switch mode {
	case engine.MatchModeExact, engine.MatchModeFuzzy, engine.MatchModeRegex:
	default:
		logger.Sugar.Warnw("keyword set has unknown match mode, using fuzzy", "set", m.ID, "mode", mode)
		mode = engine.MatchModeFuzzy
	}
	return engine.KeywordSet{
		ID:           m.ID,
		Name:         m.Name,
		MatchMode:    mode,
		IsActive:     m.IsActive,
		Keywords:     parseKeywords(m.Keywords),
		TotalMatches: m.TotalMatches,
	}
}

func normalizeGroup(m *models.MonitoredGroup) engine.MonitoredGroup {
	return engine.MonitoredGroup{
		ID:            m.ID,
		Name:          m.Name,
		MemberCount:   m.MemberCount,
		KeywordSetIDs: parseUintList(m.KeywordSetIDs),
		AccountPhone:  m.AccountPhone,
	}
}

func normalizeAccount(m *models.MonitoringAccount) engine.MonitoringAccount {
	status := m.Status
	switch status {
	case engine.AccountConnected, engine.AccountDisconnected, engine.AccountError:
	default:
		logger.Sugar.Warnw("account has unknown status, treating as disconnected", "account", m.ID, "status", status)
		status = engine.AccountDisconnected
	}
	return engine.MonitoringAccount{
		ID:             m.ID,
		Phone:          m.Phone,
		IsListener:     m.IsListener,
		IsSender:       m.IsSender,
		Status:         status,
		DailySendLimit: m.DailySendLimit,
		DailySendCount: m.DailySendCount,
		HealthScore:    m.HealthScore,
	}
}

// normalizeRule decodes a persisted rule. A corrupt enum fails closed: the
// rule is forced inactive with a decode warning instead of guessing.
func normalizeRule(m *models.TriggerRule) *engine.TriggerRule {
	rule := &engine.TriggerRule{
		ID:               m.ID,
		Name:             m.Name,
		Priority:         m.Priority,
		IsActive:         m.IsActive,
		SourceType:       m.SourceType,
		SourceGroupIDs:   parseUintList(m.SourceGroupIDs),
		KeywordSetIDs:    parseUintList(m.KeywordSetIDs),
		ResponseType:     m.ResponseType,
		SenderType:       m.SenderType,
		SenderAccountIDs: parseUintList(m.SenderAccountIDs),
		DelayMin:         m.DelayMin,
		DelayMax:         m.DelayMax,
		DailyLimit:       m.DailyLimit,
		AutoAddLead:      m.AutoAddLead,
		NotifyMe:         m.NotifyMe,
		TriggerCount:     m.TriggerCount,
		SuccessCount:     m.SuccessCount,
		LastTriggeredAt:  m.LastTriggeredAt,
	}

	if m.Conditions != "" {
		if err := json.Unmarshal([]byte(m.Conditions), &rule.Conditions); err != nil {
			logger.Sugar.Warnw("rule has undecodable conditions, disabling", "rule", m.ID, "error", err)
			rule.IsActive = false
		}
	}
	if m.ResponseConfig != "" {
		if err := json.Unmarshal([]byte(m.ResponseConfig), &rule.ResponseConfig); err != nil {
			logger.Sugar.Warnw("rule has undecodable response config, disabling", "rule", m.ID, "error", err)
			rule.IsActive = false
		}
	}

	switch rule.ResponseType {
	case engine.ResponseAIChat, engine.ResponseTemplate, engine.ResponseScript, engine.ResponseRecordOnly:
	default:
		logger.Sugar.Warnw("rule has unknown response type, disabling", "rule", m.ID, "response_type", rule.ResponseType)
		rule.IsActive = false
	}
	switch rule.SourceType {
	case engine.SourceAll, engine.SourceSpecific:
	default:
		logger.Sugar.Warnw("rule has unknown source type, disabling", "rule", m.ID, "source_type", rule.SourceType)
		rule.IsActive = false
	}
	switch rule.SenderType {
	case engine.SenderAuto, engine.SenderSpecific, "":
	default:
		logger.Sugar.Warnw("rule has unknown sender type, disabling", "rule", m.ID, "sender_type", rule.SenderType)
		rule.IsActive = false
	}
	if rule.SenderType == "" {
		rule.SenderType = engine.SenderAuto
	}

	return rule
}

func marshalUintList(ids []uint) string {
	if ids == nil {
		ids = []uint{}
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func ruleToModel(r *engine.TriggerRule) *models.TriggerRule {
	conditions, _ := json.Marshal(r.Conditions)
	responseConfig, _ := json.Marshal(r.ResponseConfig)
	return &models.TriggerRule{
		ID:               r.ID,
		Name:             r.Name,
		Priority:         r.Priority,
		IsActive:         r.IsActive,
		SourceType:       r.SourceType,
		SourceGroupIDs:   marshalUintList(r.SourceGroupIDs),
		KeywordSetIDs:    marshalUintList(r.KeywordSetIDs),
		Conditions:       string(conditions),
		ResponseType:     r.ResponseType,
		ResponseConfig:   string(responseConfig),
		SenderType:       r.SenderType,
		SenderAccountIDs: marshalUintList(r.SenderAccountIDs),
		DelayMin:         r.DelayMin,
		DelayMax:         r.DelayMax,
		DailyLimit:       r.DailyLimit,
		AutoAddLead:      r.AutoAddLead,
		NotifyMe:         r.NotifyMe,
		TriggerCount:     r.TriggerCount,
		SuccessCount:     r.SuccessCount,
		LastTriggeredAt:  r.LastTriggeredAt,
	}
}
