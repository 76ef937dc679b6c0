package handlers

import (
	"log"
	"net/http"

	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// AuthHandler はユーザー登録・ログインのハンドラです。
type AuthHandler struct {
	auth       *services.AuthService
	workspaces *services.WorkspaceService
}

// NewAuthHandler は新しいAuthHandlerを生成します。
func NewAuthHandler(auth *services.AuthService, workspaces *services.WorkspaceService) *AuthHandler {
	return &AuthHandler{auth: auth, workspaces: workspaces}
}

// Credentials はユーザー名とパスワードのリクエストボディです。
// 必須チェックはサービス側で行い、メッセージを統一します。
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register はユーザーを登録してセッションを返します。
func (h *AuthHandler) Register(c *gin.Context) {
	var input Credentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Username and password are required."})
		return
	}

	session, err := h.auth.Register(input.Username, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "session": session})
}

// Login はログインしてセッションを返します。
func (h *AuthHandler) Login(c *gin.Context) {
	var input Credentials
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Username and password are required."})
		return
	}

	session, err := h.auth.Login(input.Username, input.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("✅ [auth] ログイン: %s", session.Username)
	c.JSON(http.StatusOK, gin.H{"success": true, "session": session})
}

// Logout はセッションを破棄します。
// ワークスペースはユーザーの最後のセッションが閉じられたときだけ破棄します。
func (h *AuthHandler) Logout(c *gin.Context) {
	if username, ok := h.auth.Logout(bearerToken(c)); ok && !h.auth.HasSession(username) {
		h.workspaces.Drop(username)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Me はログイン中のユーザー名を返します。
func (h *AuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"username": currentUser(c)})
}
