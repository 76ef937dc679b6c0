package services

import (
	"context"
	"log"
	"strings"
	"time"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/llm"
	"biz-insight-api/pkg/markdown"
	"biz-insight-api/pkg/models"
	"biz-insight-api/pkg/prompts"
)

// DocumentService は請求書などの画像を解析し、明細をmarkdownの表で返します。
type DocumentService struct {
	provider llm.Provider
	profile  *config.PromptProfile
	renderer *markdown.Pipeline
}

// NewDocumentService 新しいDocumentServiceを作成。providerは画像入力に対応していること。
func NewDocumentService(provider llm.Provider, profile *config.PromptProfile) *DocumentService {
	return &DocumentService{provider: provider, profile: profile, renderer: markdown.LineBreaks()}
}

// AnalyzeImage は画像を添付してプロバイダーに解析させます。
func (s *DocumentService) AnalyzeImage(ctx context.Context, image llm.Attachment) (*models.TextReport, error) {
	if image.Base64 == "" {
		return nil, apperrors.Invalid("Please upload an image first.")
	}
	if !strings.HasPrefix(image.MIMEType, "image/") {
		return nil, apperrors.Invalid("The uploaded file is not an image.")
	}

	prompt := prompts.ImageAnalysis()
	req := prompt.Request(s.profile.ModelFor(s.provider.Name(), string(prompt.Task)))
	req.Attachments = []llm.Attachment{image}

	log.Printf("📊 [document] 画像解析 provider=%s mime=%s", s.provider.Name(), image.MIMEType)
	text, err := s.provider.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	return &models.TextReport{
		Markdown:    text,
		HTML:        s.renderer.Render(text),
		Provider:    s.provider.Name(),
		GeneratedAt: time.Now().UTC(),
	}, nil
}
