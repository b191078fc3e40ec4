package engine

import (
	"time"
)

// Match modes for keyword sets
const (
	MatchModeExact = "exact"
	MatchModeFuzzy = "fuzzy"
	MatchModeRegex = "regex"
)

// Rule priorities
const (
	PriorityLow    = 1
	PriorityMedium = 2
	PriorityHigh   = 3
)

// Rule source scopes
const (
	SourceAll      = "all"
	SourceSpecific = "specific"
)

// Response types
const (
	ResponseAIChat     = "ai_chat"
	ResponseTemplate   = "template"
	ResponseScript     = "script"
	ResponseRecordOnly = "record_only"
)

// AI reply modes
const (
	AIModeFull = "full"
	AIModeSemi = "semi"
)

// Sender selection policies
const (
	SenderAuto     = "auto"
	SenderSpecific = "specific"
)

// Account connection states
const (
	AccountConnected    = "connected"
	AccountDisconnected = "disconnected"
	AccountError        = "error"
)

// Keyword is a single monitored keyword with its running match count.
type Keyword struct {
	Text       string `json:"text"`
	MatchCount int    `json:"match_count"`
}

// KeywordSet is a named collection of keywords sharing one match mode.
type KeywordSet struct {
	ID           uint
	Name         string
	MatchMode    string
	IsActive     bool
	Keywords     []Keyword
	TotalMatches int
}

// MonitoredGroup is a chat group under observation with its linked keyword sets.
type MonitoredGroup struct {
	ID            uint
	Name          string
	MemberCount   int
	KeywordSetIDs []uint
	AccountPhone  string
}

// TimeRange restricts a rule to a window of local hours. Windows may wrap
// past midnight (Start > End).
type TimeRange struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// RuleConditions are the optional per-rule gate checks.
type RuleConditions struct {
	OncePerUser  bool       `json:"once_per_user"`
	ExcludeAdmin bool       `json:"exclude_admin"`
	TimeRange    *TimeRange `json:"time_range,omitempty"`
}

// ResponseConfig carries the response-type specific settings.
type ResponseConfig struct {
	TemplateID uint   `json:"template_id,omitempty"`
	AIMode     string `json:"ai_mode,omitempty"` // full or semi
	Prompt     string `json:"prompt,omitempty"`
	ScriptID   string `json:"script_id,omitempty"`
}

// TriggerRule binds monitored scope + keyword sets + conditions to a response
// action. Counter fields are owned by the StatsAggregator.
type TriggerRule struct {
	ID               uint
	Name             string
	Priority         int
	IsActive         bool
	SourceType       string
	SourceGroupIDs   []uint
	KeywordSetIDs    []uint
	Conditions       RuleConditions
	ResponseType     string
	ResponseConfig   ResponseConfig
	SenderType       string
	SenderAccountIDs []uint
	DelayMin         int
	DelayMax         int
	DailyLimit       int
	AutoAddLead      bool
	NotifyMe         bool
	TriggerCount     int
	SuccessCount     int
	LastTriggeredAt  *time.Time
}

// AppliesToGroup reports whether the rule's source scope covers the group.
func (r *TriggerRule) AppliesToGroup(groupID uint) bool {
	if r.SourceType == SourceAll {
		return true
	}
	for _, id := range r.SourceGroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// MonitoringAccount is a chat account used for listening or sending.
type MonitoringAccount struct {
	ID             uint
	Phone          string
	IsListener     bool
	IsSender       bool
	Status         string
	DailySendLimit int
	DailySendCount int
	HealthScore    int
}

// ChatTemplate is a reusable message template with {{variable}} placeholders.
type ChatTemplate struct {
	ID      uint
	Name    string
	Content string
}

// Snapshot is the engine's read view of all catalogs. It is replaced
// wholesale on refresh; readers always see a complete old or new snapshot.
type Snapshot struct {
	Rules       []*TriggerRule
	KeywordSets []KeywordSet
	Groups      []MonitoredGroup
	Accounts    []MonitoringAccount
	Templates   []ChatTemplate
}

// Group returns the group with the given id, or nil.
func (s *Snapshot) Group(id uint) *MonitoredGroup {
	for i := range s.Groups {
		if s.Groups[i].ID == id {
			return &s.Groups[i]
		}
	}
	return nil
}

// Rule returns the rule with the given id, or nil.
func (s *Snapshot) Rule(id uint) *TriggerRule {
	for _, r := range s.Rules {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Template returns the template with the given id, or nil.
func (s *Snapshot) Template(id uint) *ChatTemplate {
	for i := range s.Templates {
		if s.Templates[i].ID == id {
			return &s.Templates[i]
		}
	}
	return nil
}

// MessageContext describes one incoming group message as seen by the engine.
type MessageContext struct {
	GroupID         uint
	SenderAccountID uint
	SenderUserID    string
	Username        string
	FirstName       string
	Text            string
	IsSenderAdmin   bool
	Timestamp       time.Time
}

// MatchContext is a MessageContext plus the keyword and group that matched.
type MatchContext struct {
	MessageContext
	GroupName string
	Keyword   string
}
