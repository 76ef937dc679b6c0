package handlers

import (
	"net/http"

	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// 同時実行制御の操作名
const (
	actionAnalytics = "analytics"
	actionEmail     = "crm-email"
	actionInsights  = "crm-insights"
	actionSend      = "crm-send"
	actionMarket    = "market"
	actionDocument  = "document"
	actionStudio    = "studio"
)

// defaultDisplayName はユーザー名が取れない場合の挨拶の宛名です。
const defaultDisplayName = "Business Owner"

// AnalyticsHandler は売上分析とダッシュボードのハンドラです。
type AnalyticsHandler struct {
	analytics  *services.AnalyticsService
	workspaces *services.WorkspaceService
	guard      *services.InflightGuard
}

// NewAnalyticsHandler は新しいAnalyticsHandlerを生成します。
func NewAnalyticsHandler(analytics *services.AnalyticsService, workspaces *services.WorkspaceService, guard *services.InflightGuard) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, workspaces: workspaces, guard: guard}
}

// Run はアップロード済みデータの分析を実行します。
func (h *AnalyticsHandler) Run(c *gin.Context) {
	username := currentUser(c)
	release, err := h.guard.Acquire(username, actionAnalytics)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	result, err := h.analytics.Run(c.Request.Context(), username)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": result})
}

// Latest は最新の分析結果を返します。
func (h *AnalyticsHandler) Latest(c *gin.Context) {
	result := h.analytics.Latest(currentUser(c))
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "No analysis yet. Run an analysis after uploading data."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": result})
}

// Dashboard は挨拶とグラフ、またはデータ未投入時の案内を返します。
func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	username := currentUser(c)
	name := username
	if name == "" {
		name = defaultDisplayName
	}

	body := gin.H{
		"greeting": "Welcome back, " + name,
		"records":  len(h.workspaces.Get(username).Records()),
	}
	if result := h.analytics.Latest(username); result != nil {
		body["charts"] = result.Charts
		body["generated_at"] = result.GeneratedAt
	} else {
		body["charts"] = nil
		body["hint"] = "Upload a sales spreadsheet and run an analysis to see your charts."
	}
	c.JSON(http.StatusOK, body)
}
