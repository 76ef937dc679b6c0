package handlers

import (
	"net/http"

	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// 集計期間 (クエリ値 -> 時間)
var monitoringPeriods = map[string]int{
	"1h":  1,
	"24h": 24,
	"7d":  24 * 7,
}

// MonitoringHandler はリクエストログとプロバイダー呼び出しの集計を返します。
type MonitoringHandler struct {
	monitor *services.MonitoringService
}

// NewMonitoringHandler は新しいMonitoringHandlerを生成します。
func NewMonitoringHandler(monitor *services.MonitoringService) *MonitoringHandler {
	return &MonitoringHandler{monitor: monitor}
}

// GetLogs は集計データを返します。?provider= で特定プロバイダーの集計に絞り込めます。
func (h *MonitoringHandler) GetLogs(c *gin.Context) {
	hours, ok := monitoringPeriods[c.DefaultQuery("period", "24h")]
	if !ok {
		hours = 24
	}

	data := h.monitor.GetDashboardData(hours)
	if provider := c.Query("provider"); provider != "" {
		filtered := make([]services.ProviderStats, 0, 1)
		for _, stats := range data.Providers {
			if stats.Provider == provider {
				filtered = append(filtered, stats)
			}
		}
		data.Providers = filtered
	}
	c.JSON(http.StatusOK, data)
}
