package models

import (
	"time"
)

// KeywordSet represents a named collection of keywords sharing one match mode
type KeywordSet struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	MatchMode    string    `gorm:"type:varchar(20);default:'fuzzy'" json:"match_mode"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	Keywords     string    `gorm:"type:text" json:"keywords"` // JSON list of {text, match_count}
	TotalMatches int       `gorm:"default:0" json:"total_matches"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (KeywordSet) TableName() string {
	return "keyword_sets"
}

// MonitoredGroup represents a chat group under observation
type MonitoredGroup struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	MemberCount   int       `gorm:"default:0" json:"member_count"`
	KeywordSetIDs string    `gorm:"type:text" json:"keyword_set_ids"` // JSON array of ids
	AccountPhone  string    `gorm:"type:varchar(50)" json:"account_phone"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MonitoredGroup) TableName() string {
	return "monitored_groups"
}

// TriggerRule binds monitored scope + keyword sets + conditions to a response
type TriggerRule struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"type:varchar(255);not null" json:"name"`
	Priority         int        `gorm:"default:2" json:"priority"` // 1=low 2=medium 3=high
	IsActive         bool       `gorm:"default:true" json:"is_active"`
	SourceType       string     `gorm:"type:varchar(20);default:'all'" json:"source_type"`
	SourceGroupIDs   string     `gorm:"type:text" json:"source_group_ids"` // JSON array of ids
	KeywordSetIDs    string     `gorm:"type:text" json:"keyword_set_ids"`  // JSON array of ids
	Conditions       string     `gorm:"type:text" json:"conditions"`       // JSON conditions
	ResponseType     string     `gorm:"type:varchar(20);not null" json:"response_type"`
	ResponseConfig   string     `gorm:"type:text" json:"response_config"` // JSON config
	SenderType       string     `gorm:"type:varchar(20);default:'auto'" json:"sender_type"`
	SenderAccountIDs string     `gorm:"type:text" json:"sender_account_ids"` // JSON array of ids
	DelayMin         int        `gorm:"default:0" json:"delay_min"`
	DelayMax         int        `gorm:"default:0" json:"delay_max"`
	DailyLimit       int        `gorm:"default:0" json:"daily_limit"` // 0 = unlimited
	AutoAddLead      bool       `gorm:"default:false" json:"auto_add_lead"`
	NotifyMe         bool       `gorm:"default:false" json:"notify_me"`
	TriggerCount     int        `gorm:"default:0" json:"trigger_count"`
	SuccessCount     int        `gorm:"default:0" json:"success_count"`
	LastTriggeredAt  *time.Time `json:"last_triggered_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (TriggerRule) TableName() string {
	return "trigger_rules"
}

// MonitoringAccount represents a chat account used for listening or sending
type MonitoringAccount struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Phone          string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"phone"`
	IsListener     bool      `gorm:"default:false" json:"is_listener"`
	IsSender       bool      `gorm:"default:false" json:"is_sender"`
	Status         string    `gorm:"type:varchar(20);default:'disconnected'" json:"status"`
	DailySendLimit int       `gorm:"default:50" json:"daily_send_limit"`
	DailySendCount int       `gorm:"default:0" json:"daily_send_count"`
	CountDate      string    `gorm:"type:varchar(10)" json:"count_date"` // YYYY-MM-DD of the current count
	HealthScore    int       `gorm:"default:100" json:"health_score"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MonitoringAccount) TableName() string {
	return "monitoring_accounts"
}

// ChatTemplate represents a reusable message template
type ChatTemplate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ChatTemplate) TableName() string {
	return "chat_templates"
}

// Lead represents a captured prospect from a matched message
type Lead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(100);not null" json:"user_id"`
	Username  string    `gorm:"type:varchar(255)" json:"username"`
	GroupName string    `gorm:"type:varchar(255)" json:"group_name"`
	Keyword   string    `gorm:"type:varchar(255)" json:"keyword"`
	RuleName  string    `gorm:"type:varchar(255)" json:"rule_name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Lead) TableName() string {
	return "leads"
}

// TriggerLedgerEntry records that a rule already fired for a user, backing
// the once-per-user condition
type TriggerLedgerEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RuleID    uint      `gorm:"uniqueIndex:idx_rule_user;not null" json:"rule_id"`
	UserID    string    `gorm:"uniqueIndex:idx_rule_user;type:varchar(100);not null" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TriggerLedgerEntry) TableName() string {
	return "trigger_ledger"
}
