package handlers

import (
	"net/http"

	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// MarketHandler 市場調査レポートのハンドラ
type MarketHandler struct {
	market *services.MarketService
	guard  *services.InflightGuard
}

// NewMarketHandler は新しいMarketHandlerを生成します。
func NewMarketHandler(market *services.MarketService, guard *services.InflightGuard) *MarketHandler {
	return &MarketHandler{market: market, guard: guard}
}

// MarketReportRequest 市場調査のリクエストボディ
type MarketReportRequest struct {
	Industry string `json:"industry"`
}

// Report は業種を受け取り、市場調査レポートを生成します。
func (h *MarketHandler) Report(c *gin.Context) {
	var input MarketReportRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Please enter an industry."})
		return
	}

	release, err := h.guard.Acquire(currentUser(c), actionMarket)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	report, err := h.market.Report(c.Request.Context(), input.Industry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}
