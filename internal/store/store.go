package store

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"chat-monitor/internal/engine"
	"chat-monitor/internal/logger"
	"chat-monitor/internal/models"
)

// Store is the persistence collaborator: wholesale snapshot loads, rule
// save/delete, counter write-back, the trigger ledger, and the lead sink.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// LoadSnapshot reads every catalog wholesale and normalizes it into the
// engine's read snapshot. The returned map carries each account's count
// date for limiter seeding.
func (s *Store) LoadSnapshot() (*engine.Snapshot, map[uint]string, error) {
	snap := &engine.Snapshot{}
	countDates := make(map[uint]string)

	var sets []models.KeywordSet
	if err := s.db.Order("id").Find(&sets).Error; err != nil {
		return nil, nil, mapDBError(err)
	}
	for i := range sets {
		snap.KeywordSets = append(snap.KeywordSets, normalizeKeywordSet(&sets[i]))
	}

	var groups []models.MonitoredGroup
	if err := s.db.Order("id").Find(&groups).Error; err != nil {
		return nil, nil, mapDBError(err)
	}
	for i := range groups {
		snap.Groups = append(snap.Groups, normalizeGroup(&groups[i]))
	}

	var rules []models.TriggerRule
	if err := s.db.Order("id").Find(&rules).Error; err != nil {
		return nil, nil, mapDBError(err)
	}
	for i := range rules {
		snap.Rules = append(snap.Rules, normalizeRule(&rules[i]))
	}

	var accounts []models.MonitoringAccount
	if err := s.db.Order("id").Find(&accounts).Error; err != nil {
		return nil, nil, mapDBError(err)
	}
	for i := range accounts {
		snap.Accounts = append(snap.Accounts, normalizeAccount(&accounts[i]))
		countDates[accounts[i].ID] = accounts[i].CountDate
	}

	var templates []models.ChatTemplate
	if err := s.db.Order("id").Find(&templates).Error; err != nil {
		return nil, nil, mapDBError(err)
	}
	for i := range templates {
		snap.Templates = append(snap.Templates, engine.ChatTemplate{
			ID:      templates[i].ID,
			Name:    templates[i].Name,
			Content: templates[i].Content,
		})
	}

	return snap, countDates, nil
}

// SaveRule validates and persists a rule, creating or updating by id.
// Invalid rules are rejected before they can reach the resolver.
func (s *Store) SaveRule(rule *engine.TriggerRule) (uint, error) {
	if err := engine.ValidateRule(rule); err != nil {
		return 0, err
	}

	m := ruleToModel(rule)
	if err := s.db.Save(m).Error; err != nil {
		return 0, mapDBError(err)
	}
	rule.ID = m.ID
	return m.ID, nil
}

// DeleteRule removes a rule and its ledger entries.
func (s *Store) DeleteRule(id uint) error {
	if err := s.db.Delete(&models.TriggerRule{}, id).Error; err != nil {
		return mapDBError(err)
	}
	return mapDBError(s.db.Where("rule_id = ?", id).Delete(&models.TriggerLedgerEntry{}).Error)
}

// SetRuleActive toggles a rule without touching the rest of its config.
func (s *Store) SetRuleActive(id uint, active bool) error {
	return mapDBError(s.db.Model(&models.TriggerRule{}).Where("id = ?", id).Update("is_active", active).Error)
}

// SaveRuleCounters writes back the stats aggregator's counters.
func (s *Store) SaveRuleCounters(ruleID uint, triggerCount, successCount int, lastTriggeredAt *time.Time) {
	err := s.db.Model(&models.TriggerRule{}).Where("id = ?", ruleID).Updates(map[string]interface{}{
		"trigger_count":     triggerCount,
		"success_count":     successCount,
		"last_triggered_at": lastTriggeredAt,
	}).Error
	if err != nil {
		logger.Sugar.Errorw("failed to persist rule counters", "rule", ruleID, "error", err)
	}
}

// RecordKeywordHits bumps the per-keyword match counts of a set and keeps
// totalMatches equal to their sum.
func (s *Store) RecordKeywordHits(setID uint, keywords []string) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var m models.KeywordSet
		if err := tx.First(&m, setID).Error; err != nil {
			return err
		}

		kws := parseKeywords(m.Keywords)
		hit := make(map[string]bool, len(keywords))
		for _, k := range keywords {
			hit[k] = true
		}

		total := 0
		for i := range kws {
			if hit[kws[i].Text] {
				kws[i].MatchCount++
			}
			total += kws[i].MatchCount
		}

		encoded, err := json.Marshal(kws)
		if err != nil {
			return err
		}
		return tx.Model(&m).Updates(map[string]interface{}{
			"keywords":      string(encoded),
			"total_matches": total,
		}).Error
	})
	if err != nil {
		logger.Sugar.Errorw("failed to record keyword hits", "set", setID, "error", err)
	}
}

// SaveAccountCount writes back an account's committed daily send count.
func (s *Store) SaveAccountCount(accountID uint, count int, date string) {
	err := s.db.Model(&models.MonitoringAccount{}).Where("id = ?", accountID).Updates(map[string]interface{}{
		"daily_send_count": count,
		"count_date":       date,
	}).Error
	if err != nil {
		logger.Sugar.Errorw("failed to persist account count", "account", accountID, "error", err)
	}
}

// HasTriggered answers the once-per-user ledger query.
func (s *Store) HasTriggered(ruleID uint, userID string) bool {
	var count int64
	s.db.Model(&models.TriggerLedgerEntry{}).
		Where("rule_id = ? AND user_id = ?", ruleID, userID).
		Count(&count)
	return count > 0
}

// RecordTrigger writes a once-per-user ledger entry.
func (s *Store) RecordTrigger(ruleID uint, userID string) {
	entry := models.TriggerLedgerEntry{RuleID: ruleID, UserID: userID}
	if err := s.db.Create(&entry).Error; err != nil {
		// Duplicate entries are expected under concurrent bursts.
		if !isConflict(err) {
			logger.Sugar.Errorw("failed to record trigger ledger entry", "rule", ruleID, "error", err)
		}
	}
}

// AddLead persists a captured lead.
func (s *Store) AddLead(lead engine.Lead) {
	m := models.Lead{
		UserID:    lead.UserID,
		Username:  lead.Username,
		GroupName: lead.GroupName,
		Keyword:   lead.Keyword,
		RuleName:  lead.RuleName,
	}
	if err := s.db.Create(&m).Error; err != nil {
		logger.Sugar.Errorw("failed to save lead", "user", lead.UserID, "error", err)
	}
}

// Leads returns the most recent captured leads.
func (s *Store) Leads(limit int) ([]models.Lead, error) {
	var leads []models.Lead
	err := s.db.Order("created_at DESC").Limit(limit).Find(&leads).Error
	return leads, mapDBError(err)
}

// mapDBError converts storage conflicts into the retryable
// ErrPersistenceConflict so handlers can tell the operator to retry without
// losing the in-progress edit.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if isConflict(err) {
		return engine.ErrPersistenceConflict
	}
	return err
}

func isConflict(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
