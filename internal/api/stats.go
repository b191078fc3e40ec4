package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-monitor/internal/engine"
	"chat-monitor/internal/store"
)

var nowFunc = time.Now

// StatsHandler exposes the aggregated engine metrics, the session log, the
// readiness checklist, captured leads, and the semi-mode confirmation queue.
type StatsHandler struct {
	Store  *store.Store
	Engine *engine.Engine
}

func NewStatsHandler(st *store.Store, eng *engine.Engine) *StatsHandler {
	return &StatsHandler{Store: st, Engine: eng}
}

// GetAnalytics returns the engine health overview. The aggregator computes
// it under its counter mutex, consistent with concurrent ingestion.
func (h *StatsHandler) GetAnalytics(c *gin.Context) {
	snap := h.Engine.Snapshot()
	c.JSON(http.StatusOK, h.Engine.Stats.Overview(snap.Rules, nowFunc()))
}

// GetSessionLog returns the transient trigger events, newest first.
func (h *StatsHandler) GetSessionLog(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Stats.SessionLog())
}

// ClearSessionLog discards the transient trigger events.
func (h *StatsHandler) ClearSessionLog(c *gin.Context) {
	h.Engine.Stats.ClearSessionLog()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// GetReadiness returns the six-step setup checklist.
func (h *StatsHandler) GetReadiness(c *gin.Context) {
	c.JSON(http.StatusOK, engine.ComputeReadiness(h.Engine.Snapshot()))
}

// GetLeads returns the most recently captured leads.
func (h *StatsHandler) GetLeads(c *gin.Context) {
	leads, err := h.Store.Leads(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, leads)
}

// GetPending lists AI replies waiting for operator confirmation.
func (h *StatsHandler) GetPending(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Dispatcher.Pending())
}

// ConfirmPending approves a held AI reply for sending.
func (h *StatsHandler) ConfirmPending(c *gin.Context) {
	id := c.Param("id")
	if !h.Engine.ConfirmPending(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending action with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": engine.ConfirmationSent})
}

// RejectPending discards a held AI reply.
func (h *StatsHandler) RejectPending(c *gin.Context) {
	id := c.Param("id")
	if !h.Engine.RejectPending(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending action with that id"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "state": engine.ConfirmationRejected})
}
