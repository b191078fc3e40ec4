package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"chat-monitor/internal/engine"
	"chat-monitor/internal/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Init(false)
	os.Exit(m.Run())
}

func testEngine(snap *engine.Snapshot) *engine.Engine {
	eng := engine.NewEngine(engine.NewRateLimiter(), engine.NewStatsAggregator(nil), nil, nil, nil, nil, nil)
	eng.ReplaceSnapshot(snap, nil)
	return eng
}

func getJSON(t *testing.T, handler gin.HandlerFunc, path string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, path, nil)
	handler(c)
	return w, w.Body.Bytes()
}

func TestGetRulesWireFormat(t *testing.T) {
	snap := &engine.Snapshot{
		Rules: []*engine.TriggerRule{{
			ID:             1,
			Name:           "welcome",
			Priority:       engine.PriorityHigh,
			IsActive:       true,
			SourceType:     engine.SourceAll,
			KeywordSetIDs:  []uint{10},
			ResponseType:   engine.ResponseTemplate,
			ResponseConfig: engine.ResponseConfig{TemplateID: 7},
			SenderType:     engine.SenderAuto,
			TriggerCount:   4,
			SuccessCount:   2,
		}},
	}
	h := NewRuleHandler(nil, testEngine(snap), func() {})

	w, body := getJSON(t, h.GetRules, "/api/rules")
	require.Equal(t, http.StatusOK, w.Code)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))
	require.Len(t, got, 1)

	wireKeys := []string{
		"id", "name", "priority", "is_active",
		"source_type", "source_group_ids", "keyword_set_ids", "conditions",
		"response_type", "response_config", "sender_type", "sender_account_ids",
		"delay_min", "delay_max", "daily_limit", "auto_add_lead", "notify_me",
		"trigger_count", "success_count", "last_triggered_at",
		"success_rate", "sleeping",
	}
	for _, key := range wireKeys {
		require.Contains(t, got[0], key, "missing wire key %q", key)
	}
	require.NotContains(t, got[0], "ID", "struct field names must not leak into the wire format")
	require.NotContains(t, got[0], "KeywordSetIDs")

	require.Equal(t, float64(50), got[0]["success_rate"])
	require.Equal(t, true, got[0]["sleeping"], "stale trigger history counts as sleeping")
}

func TestGetAnalyticsWireFormat(t *testing.T) {
	snap := &engine.Snapshot{
		Rules: []*engine.TriggerRule{
			{ID: 1, Name: "hot", IsActive: true, TriggerCount: 10, SuccessCount: 9},
			{ID: 2, Name: "off"},
		},
	}
	h := NewStatsHandler(nil, testEngine(snap))

	w, body := getJSON(t, h.GetAnalytics, "/api/analytics")
	require.Equal(t, http.StatusOK, w.Code)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &got))

	for _, key := range []string{
		"total_rules", "active_rules", "engine_health_score",
		"top_performing_rule", "sleeping_rules", "optimization_tips",
	} {
		require.Contains(t, got, key, "missing wire key %q", key)
	}
	require.Equal(t, float64(2), got["total_rules"])
	require.Equal(t, float64(1), got["active_rules"])

	top, ok := got["top_performing_rule"].(map[string]interface{})
	require.True(t, ok, "top_performing_rule must be an object")
	require.Equal(t, "hot", top["name"])
	require.Equal(t, float64(90), top["success_rate"])
}
