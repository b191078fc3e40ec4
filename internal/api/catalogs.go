package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-monitor/internal/database"
	"chat-monitor/internal/models"
)

// CatalogHandler owns the thin CRUD surface for keyword sets, groups,
// accounts, and templates. Every write triggers a wholesale snapshot
// refresh so the engine sees the new catalogs.
type CatalogHandler struct {
	Refresh func()
}

func NewCatalogHandler(refresh func()) *CatalogHandler {
	return &CatalogHandler{Refresh: refresh}
}

// --- keyword sets ---

type keywordSetRequest struct {
	Name      string   `json:"name" binding:"required"`
	MatchMode string   `json:"match_mode"`
	IsActive  *bool    `json:"is_active"`
	Keywords  []string `json:"keywords"`
}

func (h *CatalogHandler) GetKeywordSets(c *gin.Context) {
	var sets []models.KeywordSet
	if err := database.DB.Order("id").Find(&sets).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sets)
}

func (h *CatalogHandler) CreateKeywordSet(c *gin.Context) {
	var req keywordSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	set := models.KeywordSet{
		Name:      req.Name,
		MatchMode: req.MatchMode,
		IsActive:  true,
		Keywords:  encodeKeywords(req.Keywords),
	}
	if set.MatchMode == "" {
		set.MatchMode = "fuzzy"
	}
	if req.IsActive != nil {
		set.IsActive = *req.IsActive
	}

	if err := database.DB.Create(&set).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusCreated, gin.H{"id": set.ID})
}

func (h *CatalogHandler) UpdateKeywordSet(c *gin.Context) {
	id := c.Param("id")

	var req keywordSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{"name": req.Name}
	if req.MatchMode != "" {
		updates["match_mode"] = req.MatchMode
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Keywords != nil {
		updates["keywords"] = encodeKeywords(req.Keywords)
	}

	if err := database.DB.Model(&models.KeywordSet{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *CatalogHandler) DeleteKeywordSet(c *gin.Context) {
	id := c.Param("id")
	if err := database.DB.Delete(&models.KeywordSet{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// encodeKeywords stores keywords in the canonical JSON object form with
// zeroed match counts.
func encodeKeywords(keywords []string) string {
	type kw struct {
		Text       string `json:"text"`
		MatchCount int    `json:"match_count"`
	}
	out := make([]kw, 0, len(keywords))
	for _, k := range keywords {
		if k == "" {
			continue
		}
		out = append(out, kw{Text: k})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// --- monitored groups ---

type groupRequest struct {
	Name          string `json:"name" binding:"required"`
	MemberCount   int    `json:"member_count"`
	KeywordSetIDs []uint `json:"keyword_set_ids"`
	AccountPhone  string `json:"account_phone"`
}

func (h *CatalogHandler) GetGroups(c *gin.Context) {
	var groups []models.MonitoredGroup
	if err := database.DB.Order("id").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *CatalogHandler) CreateGroup(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, _ := json.Marshal(req.KeywordSetIDs)
	group := models.MonitoredGroup{
		Name:          req.Name,
		MemberCount:   req.MemberCount,
		KeywordSetIDs: string(ids),
		AccountPhone:  req.AccountPhone,
	}
	if err := database.DB.Create(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusCreated, gin.H{"id": group.ID})
}

func (h *CatalogHandler) UpdateGroup(c *gin.Context) {
	id := c.Param("id")

	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, _ := json.Marshal(req.KeywordSetIDs)
	updates := map[string]interface{}{
		"name":            req.Name,
		"member_count":    req.MemberCount,
		"keyword_set_ids": string(ids),
		"account_phone":   req.AccountPhone,
	}
	if err := database.DB.Model(&models.MonitoredGroup{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *CatalogHandler) DeleteGroup(c *gin.Context) {
	id := c.Param("id")
	if err := database.DB.Delete(&models.MonitoredGroup{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// --- monitoring accounts ---

type accountRequest struct {
	Phone          string `json:"phone" binding:"required"`
	IsListener     bool   `json:"is_listener"`
	IsSender       bool   `json:"is_sender"`
	Status         string `json:"status"`
	DailySendLimit int    `json:"daily_send_limit"`
}

func (h *CatalogHandler) GetAccounts(c *gin.Context) {
	var accounts []models.MonitoringAccount
	if err := database.DB.Order("id").Find(&accounts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, accounts)
}

func (h *CatalogHandler) CreateAccount(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account := models.MonitoringAccount{
		Phone:          req.Phone,
		IsListener:     req.IsListener,
		IsSender:       req.IsSender,
		Status:         req.Status,
		DailySendLimit: req.DailySendLimit,
	}
	if account.Status == "" {
		account.Status = "disconnected"
	}
	if account.DailySendLimit == 0 {
		account.DailySendLimit = 50
	}

	if err := database.DB.Create(&account).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusCreated, gin.H{"id": account.ID})
}

func (h *CatalogHandler) UpdateAccount(c *gin.Context) {
	id := c.Param("id")

	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{
		"phone":       req.Phone,
		"is_listener": req.IsListener,
		"is_sender":   req.IsSender,
	}
	if req.Status != "" {
		updates["status"] = req.Status
	}
	if req.DailySendLimit > 0 {
		updates["daily_send_limit"] = req.DailySendLimit
	}

	if err := database.DB.Model(&models.MonitoringAccount{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *CatalogHandler) DeleteAccount(c *gin.Context) {
	id := c.Param("id")
	if err := database.DB.Delete(&models.MonitoringAccount{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

// --- chat templates ---

type templateRequest struct {
	Name    string `json:"name" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *CatalogHandler) GetTemplates(c *gin.Context) {
	var templates []models.ChatTemplate
	if err := database.DB.Order("id").Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, templates)
}

func (h *CatalogHandler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tpl := models.ChatTemplate{Name: req.Name, Content: req.Content}
	if err := database.DB.Create(&tpl).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusCreated, gin.H{"id": tpl.ID})
}

func (h *CatalogHandler) UpdateTemplate(c *gin.Context) {
	id := c.Param("id")

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{"name": req.Name, "content": req.Content}
	if err := database.DB.Model(&models.ChatTemplate{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *CatalogHandler) DeleteTemplate(c *gin.Context) {
	id := c.Param("id")
	if err := database.DB.Delete(&models.ChatTemplate{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.Refresh()
	c.JSON(http.StatusOK, gin.H{"id": id})
}
