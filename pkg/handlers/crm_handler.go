package handlers

import (
	"net/http"
	"strconv"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/models"
	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// CRMHandler は顧客管理とメール送信のハンドラです。
type CRMHandler struct {
	crm   *services.CRMService
	guard *services.InflightGuard
}

// NewCRMHandler は新しいCRMHandlerを生成します。
func NewCRMHandler(crm *services.CRMService, guard *services.InflightGuard) *CRMHandler {
	return &CRMHandler{crm: crm, guard: guard}
}

// ListCustomers 顧客一覧
func (h *CRMHandler) ListCustomers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"customers": h.crm.Customers(currentUser(c))})
}

// AddCustomer 顧客を追加
func (h *CRMHandler) AddCustomer(c *gin.Context) {
	var input models.Customer
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid customer payload."})
		return
	}

	customer, err := h.crm.AddCustomer(currentUser(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "customer": customer})
}

// DraftEmailRequest メール下書きのオプション
type DraftEmailRequest struct {
	Greeting string `json:"greeting"`
	Topic    string `json:"topic"`
}

// DraftEmail は顧客向けのメール下書きを生成します。
func (h *CRMHandler) DraftEmail(c *gin.Context) {
	id, ok := customerID(c)
	if !ok {
		return
	}
	var input DraftEmailRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request body."})
			return
		}
	}

	username := currentUser(c)
	release, err := h.guard.Acquire(username, actionEmail)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	draft, err := h.crm.DraftEmail(c.Request.Context(), username, id, services.EmailOptions{
		Greeting: input.Greeting,
		Topic:    input.Topic,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "draft": draft})
}

// Insights は顧客のペルソナ分析を生成します。
func (h *CRMHandler) Insights(c *gin.Context) {
	id, ok := customerID(c)
	if !ok {
		return
	}

	username := currentUser(c)
	release, err := h.guard.Acquire(username, actionInsights)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	report, err := h.crm.Insights(c.Request.Context(), username, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// SendEmailRequest メール送信のリクエストボディ
type SendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendEmail は下書きを送信します。結果のsuccess/messageをそのまま返します。
func (h *CRMHandler) SendEmail(c *gin.Context) {
	var input SendEmailRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid request body."})
		return
	}

	// 送信は取り消せないため、同じユーザーの二重送信は409で拒否
	release, err := h.guard.Acquire(currentUser(c), actionSend)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	result := h.crm.SendEmail(c.Request.Context(), input.To, input.Subject, input.Body)
	status := http.StatusOK
	switch {
	case result.Success:
	case result.SetupRequired():
		status = http.StatusServiceUnavailable
	case result.Kind == apperrors.KindTransport:
		status = http.StatusBadGateway
	default:
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}

func customerID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid customer id."})
		return 0, false
	}
	return id, true
}
