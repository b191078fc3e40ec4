package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"chat-monitor/internal/api"
	"chat-monitor/internal/config"
	"chat-monitor/internal/database"
	"chat-monitor/internal/engine"
	"chat-monitor/internal/logger"
	"chat-monitor/internal/sender"
	"chat-monitor/internal/store"
	"chat-monitor/internal/webhook"
	"chat-monitor/internal/ws"
)

func main() {
	cfg := config.LoadConfig()
	if err := logger.Init(cfg.Debug); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	database.InitDB(cfg)
	st := store.New(database.DB)

	hub := ws.NewHub()
	go hub.Run()

	limiter := engine.NewRateLimiter()
	stats := engine.NewStatsAggregator(st)
	executor := sender.NewLogExecutor(hub)
	eng := engine.NewEngine(limiter, stats, st, st, executor, st, hub)
	eng.Counts = st

	refresh := func() {
		snap, countDates, err := st.LoadSnapshot()
		if err != nil {
			logger.Sugar.Errorw("snapshot refresh failed", "error", err)
			return
		}
		eng.ReplaceSnapshot(snap, countDates)
	}
	refresh()

	r := gin.Default()

	// CORS Middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	webhookHandler := webhook.NewHandler(eng)
	ruleHandler := api.NewRuleHandler(st, eng, refresh)
	statsHandler := api.NewStatsHandler(st, eng)
	catalogHandler := api.NewCatalogHandler(refresh)

	// Message ingestion
	r.POST("/webhook/message", webhookHandler.HandleMessage)

	// Dashboard stream
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api")
	{
		// Trigger Rules
		apiGroup.GET("/rules", ruleHandler.GetRules)
		apiGroup.POST("/rules", ruleHandler.CreateRule)
		apiGroup.PUT("/rules/:id", ruleHandler.UpdateRule)
		apiGroup.DELETE("/rules/:id", ruleHandler.DeleteRule)
		apiGroup.POST("/rules/:id/toggle", ruleHandler.ToggleRule)
		apiGroup.POST("/rules/test", ruleHandler.TestRule)

		// Keyword Sets
		apiGroup.GET("/keyword-sets", catalogHandler.GetKeywordSets)
		apiGroup.POST("/keyword-sets", catalogHandler.CreateKeywordSet)
		apiGroup.PUT("/keyword-sets/:id", catalogHandler.UpdateKeywordSet)
		apiGroup.DELETE("/keyword-sets/:id", catalogHandler.DeleteKeywordSet)

		// Monitored Groups
		apiGroup.GET("/groups", catalogHandler.GetGroups)
		apiGroup.POST("/groups", catalogHandler.CreateGroup)
		apiGroup.PUT("/groups/:id", catalogHandler.UpdateGroup)
		apiGroup.DELETE("/groups/:id", catalogHandler.DeleteGroup)

		// Monitoring Accounts
		apiGroup.GET("/accounts", catalogHandler.GetAccounts)
		apiGroup.POST("/accounts", catalogHandler.CreateAccount)
		apiGroup.PUT("/accounts/:id", catalogHandler.UpdateAccount)
		apiGroup.DELETE("/accounts/:id", catalogHandler.DeleteAccount)

		// Chat Templates
		apiGroup.GET("/templates", catalogHandler.GetTemplates)
		apiGroup.POST("/templates", catalogHandler.CreateTemplate)
		apiGroup.PUT("/templates/:id", catalogHandler.UpdateTemplate)
		apiGroup.DELETE("/templates/:id", catalogHandler.DeleteTemplate)

		// Stats & Operations
		apiGroup.GET("/analytics", statsHandler.GetAnalytics)
		apiGroup.GET("/session-log", statsHandler.GetSessionLog)
		apiGroup.DELETE("/session-log", statsHandler.ClearSessionLog)
		apiGroup.GET("/readiness", statsHandler.GetReadiness)
		apiGroup.GET("/leads", statsHandler.GetLeads)
		apiGroup.GET("/pending", statsHandler.GetPending)
		apiGroup.POST("/pending/:id/confirm", statsHandler.ConfirmPending)
		apiGroup.POST("/pending/:id/reject", statsHandler.RejectPending)
	}

	logger.Sugar.Infof("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}
