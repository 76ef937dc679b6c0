package handlers

import (
	"log"
	"net/http"
	"time"

	"biz-insight-api/pkg/dataset"
	"biz-insight-api/pkg/llm"
	"biz-insight-api/pkg/services"

	"github.com/gin-gonic/gin"
)

// DataHandler は表データと画像のアップロードを扱います。
type DataHandler struct {
	workspaces *services.WorkspaceService
	documents  *services.DocumentService
	guard      *services.InflightGuard
}

// NewDataHandler は新しいDataHandlerを生成します。
func NewDataHandler(workspaces *services.WorkspaceService, documents *services.DocumentService, guard *services.InflightGuard) *DataHandler {
	return &DataHandler{workspaces: workspaces, documents: documents, guard: guard}
}

// UploadFile は.xlsx/.csvを読み込み、ユーザーのワークスペースのレコードを置き換えます。
// 既存の分析結果は無効になります。
func (h *DataHandler) UploadFile(c *gin.Context) {
	start := time.Now()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, fileHeader, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Please choose a .xlsx or .csv file to upload."})
		return
	}
	defer file.Close()

	records, err := dataset.DecodeSpreadsheet(file, fileHeader.Filename)
	if err != nil {
		respondError(c, err)
		return
	}

	username := currentUser(c)
	if err := h.workspaces.Get(username).SetRecords(records); err != nil {
		respondError(c, err)
		return
	}

	log.Printf("📊 [upload] %s: %d件のレコードを読み込みました (%v)", fileHeader.Filename, len(records), time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"filename": fileHeader.Filename,
		"records":  len(records),
	})
}

// GetRecords はアップロード済みのレコードを返します。
func (h *DataHandler) GetRecords(c *gin.Context) {
	records := h.workspaces.Get(currentUser(c)).Records()
	c.JSON(http.StatusOK, gin.H{"count": len(records), "records": records})
}

// AnalyzeImage は請求書や手書きメモの画像を解析します。
func (h *DataHandler) AnalyzeImage(c *gin.Context) {
	image, ok := readImageForm(c, "image")
	if !ok {
		return
	}

	release, err := h.guard.Acquire(currentUser(c), actionDocument)
	if err != nil {
		respondError(c, err)
		return
	}
	defer release()

	report, err := h.documents.AnalyzeImage(c.Request.Context(), image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

// readImageForm はmultipartの画像フィールドを読み込みます。失敗時はレスポンス済みでfalseを返します。
func readImageForm(c *gin.Context, field string) (llm.Attachment, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, fileHeader, err := c.Request.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Please upload an image first."})
		return llm.Attachment{}, false
	}
	defer file.Close()

	// 汎用のContent-Typeは中身から判定させる
	mimeType := fileHeader.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	image, err := llm.ReadAttachment(file, mimeType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Failed to read the uploaded image."})
		return llm.Attachment{}, false
	}
	return image, true
}
