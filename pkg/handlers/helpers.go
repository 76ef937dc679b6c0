package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// コンテキストにログインユーザー名を格納するキー
const contextUserKey = "username"

// 画像・表ファイルのアップロード上限
const maxUploadBytes = 10 << 20 // 10MB

// respondError はエラーの種別をHTTPステータスへ変換して返します。
// メッセージ文字列ではなく種別で分岐すること。
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInFlight),
		errors.Is(err, services.ErrAnalysisSuperseded),
		errors.Is(err, services.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrSessionInvalid):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
		return
	case errors.Is(err, services.ErrCustomerNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}

	appErr, ok := apperrors.As(err)
	if !ok {
		log.Printf("❌ [%s] 予期しないエラー: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	body := gin.H{"success": false, "error": appErr.Error(), "kind": appErr.Kind}
	if appErr.Provider != "" {
		body["provider"] = appErr.Provider
	}

	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperrors.KindConfigMissing:
		status = http.StatusServiceUnavailable
		body["setup_required"] = true
		body["missing_key"] = appErr.Key
	case apperrors.KindInvalidInput:
		status = http.StatusBadRequest
	case apperrors.KindParse:
		status = http.StatusBadGateway
	case apperrors.KindTransport:
		status = http.StatusBadGateway
		body["provider_status"] = appErr.Status
	}
	if status >= http.StatusInternalServerError {
		log.Printf("❌ [%s] %v", c.FullPath(), err)
	}
	c.JSON(status, body)
}

// SessionMiddleware はAuthorization: Bearer <token> を検証し、ユーザー名をコンテキストに格納します。
func SessionMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := auth.Authenticate(bearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Please log in first."})
			return
		}
		c.Set(contextUserKey, username)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// currentUser はSessionMiddlewareが格納したユーザー名を返します。
func currentUser(c *gin.Context) string {
	return c.GetString(contextUserKey)
}
