package handlers

import (
	"net/http"
	"strings"
	"sync/atomic"

	config "biz-insight-api/configs"

	"github.com/gin-gonic/gin"
)

// AdminHandler は管理者向け操作のハンドラです。
type AdminHandler struct {
	cfg       *config.Config
	providers []string
	// メンテナンス中かどうか。atomic.Boolでスレッドセーフに読み書きする
	maintenance atomic.Bool
}

// NewAdminHandler は新しいAdminHandlerを生成します。
// providersは登録済みのLLMプロバイダー名です。
func NewAdminHandler(cfg *config.Config, providers []string) *AdminHandler {
	return &AdminHandler{cfg: cfg, providers: providers}
}

// AdminCredentials は管理者認証のためのリクエストボディです。
type AdminCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AdminHandler) authorize(c *gin.Context) bool {
	var input AdminCredentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username and password are required"})
		return false
	}
	// ADMIN_PASSWORD未設定なら常に拒否
	if h.cfg.AdminPassword == "" || input.Username != h.cfg.AdminUsername || input.Password != h.cfg.AdminPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return false
	}
	return true
}

// StartMaintenance はメンテナンスモードを開始します。
func (h *AdminHandler) StartMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(true)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode started"})
}

// StopMaintenance はメンテナンスモードを停止します。
func (h *AdminHandler) StopMaintenance(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	h.maintenance.Store(false)
	c.JSON(http.StatusOK, gin.H{"message": "Maintenance mode stopped"})
}

// GetHealthStatus は現在のサーバーの状態を返します。
func (h *AdminHandler) GetHealthStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"isMaintenanceMode": h.maintenance.Load()})
}

// GetSetupStatus は未設定の資格情報と、使用中のプロバイダーを返します。
// フロントエンドのセットアップ案内に使われます。
func (h *AdminHandler) GetSetupStatus(c *gin.Context) {
	missing := h.cfg.MissingSetup()
	if missing == nil {
		missing = []config.SetupItem{}
	}
	c.JSON(http.StatusOK, gin.H{
		"ready":           len(missing) == 0,
		"missing":         missing,
		"text_provider":   h.cfg.TextProvider,
		"vision_provider": h.cfg.VisionProvider,
		"providers":       h.providers,
	})
}

// HealthCheck は外部のヘルスチェッカー（例: ロードバランサー）からのリクエストに応答します。
func (h *AdminHandler) HealthCheck(c *gin.Context) {
	if h.maintenance.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "message": "Server is in maintenance mode"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MaintenanceMiddleware はメンテナンス中、管理API以外のリクエストを503で拒否します。
func (h *AdminHandler) MaintenanceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.maintenance.Load() && !strings.HasPrefix(c.Request.URL.Path, "/api/v1/admin") {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Server is in maintenance mode"})
			return
		}
		c.Next()
	}
}
