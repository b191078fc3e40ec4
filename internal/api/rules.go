package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-monitor/internal/engine"
	"chat-monitor/internal/store"
)

// RuleHandler owns the trigger-rule CRUD, toggle, and dry-run endpoints.
type RuleHandler struct {
	Store   *store.Store
	Engine  *engine.Engine
	Refresh func()
}

func NewRuleHandler(st *store.Store, eng *engine.Engine, refresh func()) *RuleHandler {
	return &RuleHandler{Store: st, Engine: eng, Refresh: refresh}
}

type ruleRequest struct {
	Name             string                `json:"name" binding:"required"`
	Priority         int                   `json:"priority"`
	IsActive         *bool                 `json:"is_active"`
	SourceType       string                `json:"source_type"`
	SourceGroupIDs   []uint                `json:"source_group_ids"`
	KeywordSetIDs    []uint                `json:"keyword_set_ids"`
	Conditions       engine.RuleConditions `json:"conditions"`
	ResponseType     string                `json:"response_type" binding:"required"`
	ResponseConfig   engine.ResponseConfig `json:"response_config"`
	SenderType       string                `json:"sender_type"`
	SenderAccountIDs []uint                `json:"sender_account_ids"`
	DelayMin         int                   `json:"delay_min"`
	DelayMax         int                   `json:"delay_max"`
	DailyLimit       int                   `json:"daily_limit"`
	AutoAddLead      bool                  `json:"auto_add_lead"`
	NotifyMe         bool                  `json:"notify_me"`
}

// buildRule assembles the request through the wizard draft so every rule
// passes the same validation gate as the interactive flow.
func buildRule(req *ruleRequest) (*engine.TriggerRule, error) {
	draft := engine.NewRuleDraft()

	priority := req.Priority
	if priority == 0 {
		priority = engine.PriorityMedium
	}
	if err := draft.SetBasics(req.Name, priority); err != nil {
		return nil, err
	}

	sourceType := req.SourceType
	if sourceType == "" {
		sourceType = engine.SourceAll
	}
	if err := draft.SetScope(sourceType, req.SourceGroupIDs, req.KeywordSetIDs); err != nil {
		return nil, err
	}

	if err := draft.SetConditions(req.Conditions); err != nil {
		return nil, err
	}

	senderType := req.SenderType
	if senderType == "" {
		senderType = engine.SenderAuto
	}
	if err := draft.SetResponse(req.ResponseType, req.ResponseConfig, senderType, req.SenderAccountIDs, req.DelayMin, req.DelayMax, req.DailyLimit); err != nil {
		return nil, err
	}
	draft.SetSideEffects(req.AutoAddLead, req.NotifyMe)

	rule, err := draft.Build()
	if err != nil {
		return nil, err
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	return rule, nil
}

// ruleView is the wire shape of a rule: the snapshot's immutable config
// plus a counter read taken through the stats aggregator, so listing rules
// never races with ingestion.
type ruleView struct {
	ID               uint                  `json:"id"`
	Name             string                `json:"name"`
	Priority         int                   `json:"priority"`
	IsActive         bool                  `json:"is_active"`
	SourceType       string                `json:"source_type"`
	SourceGroupIDs   []uint                `json:"source_group_ids"`
	KeywordSetIDs    []uint                `json:"keyword_set_ids"`
	Conditions       engine.RuleConditions `json:"conditions"`
	ResponseType     string                `json:"response_type"`
	ResponseConfig   engine.ResponseConfig `json:"response_config"`
	SenderType       string                `json:"sender_type"`
	SenderAccountIDs []uint                `json:"sender_account_ids"`
	DelayMin         int                   `json:"delay_min"`
	DelayMax         int                   `json:"delay_max"`
	DailyLimit       int                   `json:"daily_limit"`
	AutoAddLead      bool                  `json:"auto_add_lead"`
	NotifyMe         bool                  `json:"notify_me"`
	engine.RuleStats
}

// GetRules returns all rules from the current snapshot, with derived stats.
func (h *RuleHandler) GetRules(c *gin.Context) {
	snap := h.Engine.Snapshot()
	now := nowFunc()

	out := make([]ruleView, 0, len(snap.Rules))
	for _, r := range snap.Rules {
		out = append(out, ruleView{
			ID:               r.ID,
			Name:             r.Name,
			Priority:         r.Priority,
			IsActive:         r.IsActive,
			SourceType:       r.SourceType,
			SourceGroupIDs:   r.SourceGroupIDs,
			KeywordSetIDs:    r.KeywordSetIDs,
			Conditions:       r.Conditions,
			ResponseType:     r.ResponseType,
			ResponseConfig:   r.ResponseConfig,
			SenderType:       r.SenderType,
			SenderAccountIDs: r.SenderAccountIDs,
			DelayMin:         r.DelayMin,
			DelayMax:         r.DelayMax,
			DailyLimit:       r.DailyLimit,
			AutoAddLead:      r.AutoAddLead,
			NotifyMe:         r.NotifyMe,
			RuleStats:        h.Engine.Stats.RuleStats(r, now),
		})
	}
	c.JSON(http.StatusOK, out)
}

// CreateRule validates and persists a new rule, returning any overlap
// warning as advisory text.
func (h *RuleHandler) CreateRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := buildRule(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	warning := engine.DetectOverlap(rule, h.Engine.Snapshot().Rules)

	id, err := h.Store.SaveRule(rule)
	if err != nil {
		writeStoreError(c, err)
		return
	}
	h.Refresh()

	c.JSON(http.StatusCreated, gin.H{"id": id, "warning": warning})
}

// UpdateRule replaces an existing rule's configuration, preserving its
// counters.
func (h *RuleHandler) UpdateRule(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule, err := buildRule(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule.ID = id

	if existing := h.Engine.Snapshot().Rule(id); existing != nil {
		counters := h.Engine.Stats.RuleStats(existing, nowFunc())
		rule.TriggerCount = counters.TriggerCount
		rule.SuccessCount = counters.SuccessCount
		rule.LastTriggeredAt = counters.LastTriggeredAt
	}

	warning := engine.DetectOverlap(rule, h.Engine.Snapshot().Rules)

	if _, err := h.Store.SaveRule(rule); err != nil {
		writeStoreError(c, err)
		return
	}
	h.Refresh()

	c.JSON(http.StatusOK, gin.H{"id": id, "warning": warning})
}

// ToggleRule flips a rule between active and inactive.
func (h *RuleHandler) ToggleRule(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	var req struct {
		IsActive bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Store.SetRuleActive(id, req.IsActive); err != nil {
		writeStoreError(c, err)
		return
	}
	h.Refresh()

	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": req.IsActive})
}

// DeleteRule removes a rule.
func (h *RuleHandler) DeleteRule(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule id"})
		return
	}

	if err := h.Store.DeleteRule(id); err != nil {
		writeStoreError(c, err)
		return
	}
	h.Refresh()

	c.JSON(http.StatusOK, gin.H{"id": id})
}

// TestRule dry-runs a saved rule against a sample message. No counters, no
// sends, no side effects.
func (h *RuleHandler) TestRule(c *gin.Context) {
	var req struct {
		RuleID     uint   `json:"rule_id" binding:"required"`
		SampleText string `json:"sample_text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := h.Engine.Snapshot().Rule(req.RuleID)
	if rule == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}

	c.JSON(http.StatusOK, h.Engine.Test(rule, req.SampleText))
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	return uint(id), err
}

func writeStoreError(c *gin.Context, err error) {
	var invalid *engine.InvalidRuleConfigError
	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrPersistenceConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
