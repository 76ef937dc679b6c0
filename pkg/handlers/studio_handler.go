package handlers

import (
	"net/http"

	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// StudioHandler 画像スタジオのハンドラ
type StudioHandler struct {
	studio *services.StudioService
	guard  *services.InflightGuard
}

// NewStudioHandler は新しいStudioHandlerを生成します。
func NewStudioHandler(studio *services.StudioService, guard *services.InflightGuard) *StudioHandler {
	return &StudioHandler{studio: studio, guard: guard}
}

// GenerateImageRequest 画像生成のリクエストボディ
type GenerateImageRequest struct {
	Description string `json:"description"`
	Size        string `json:"size"`
}

// Generate はテキストから画像を生成します。
func (h *StudioHandler) Generate(c *gin.Context) {
	var input GenerateImageRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Please describe the image."})
		return
	}
	if input.Size == "" {
		input.Size = "1K"
	}

	release, err := h.guard.Acquire(currentUser(c), actionStudio)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	url, err := h.studio.Generate(c.Request.Context(), input.Description, input.Size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "image": url})
}

// Edit はアップロード画像を指示に従って編集します (multipart: image, instruction)。
func (h *StudioHandler) Edit(c *gin.Context) {
	image, ok := readImageForm(c, "image")
	if !ok {
		return
	}

	release, err := h.guard.Acquire(currentUser(c), actionStudio)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	url, err := h.studio.Edit(c.Request.Context(), c.PostForm("instruction"), image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "image": url})
}
