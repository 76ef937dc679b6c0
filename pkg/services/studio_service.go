package services

import (
	"context"
	"log"
	"strings"
	"time"

	"biz-insight-api/pkg/apperrors"
	"biz-insight-api/pkg/llm"
	"biz-insight-api/pkg/prompts"
)

// StudioService は画像の生成と編集を行います。
type StudioService struct {
	images        llm.ImageProvider
	providerName  string
	generateModel string
	editModel     string
	monitor       *MonitoringService
}

// NewStudioService 新しいStudioServiceを作成
func NewStudioService(images llm.ImageProvider, providerName, generateModel, editModel string, monitor *MonitoringService) *StudioService {
	return &StudioService{
		images:        images,
		providerName:  providerName,
		generateModel: generateModel,
		editModel:     editModel,
		monitor:       monitor,
	}
}

// Generate はテキストから画像を生成し、data URLを返します。
func (s *StudioService) Generate(ctx context.Context, description, size string) (string, error) {
	prompt, err := prompts.ImageGeneration(description, size)
	if err != nil {
		return "", err
	}
	log.Printf("🎨 [studio] 画像生成 model=%s size=%s", s.generateModel, size)

	start := time.Now()
	url, err := s.images.GenerateImage(ctx, prompt.Text, s.generateModel)
	s.record(s.generateModel, start, err)
	return url, err
}

// Edit は画像を指示に従って編集します。
func (s *StudioService) Edit(ctx context.Context, instruction string, image llm.Attachment) (string, error) {
	prompt, err := prompts.ImageEdit(instruction)
	if err != nil {
		return "", err
	}
	if image.Base64 == "" || !strings.HasPrefix(image.MIMEType, "image/") {
		return "", apperrors.Invalid("Please upload an image to edit.")
	}
	log.Printf("🎨 [studio] 画像編集 model=%s", s.editModel)

	start := time.Now()
	url, err := s.images.EditImage(ctx, prompt.Text, s.editModel, image)
	s.record(s.editModel, start, err)
	return url, err
}

func (s *StudioService) record(model string, start time.Time, err error) {
	if s.monitor != nil {
		s.monitor.RecordProviderCall(s.providerName, model, start, err)
	}
}
