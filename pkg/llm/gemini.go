package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"biz-insight-api/pkg/apperrors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// generativeModel は genai.GenerativeModel のうち本パッケージが使う部分です。
type generativeModel interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// modelConfig は1回の呼び出しのためのモデル設定です。
type modelConfig struct {
	Name        string
	System      string
	JSONMode    bool
	Schema      *genai.Schema
	MaxTokens   int32
	Temperature float32
}

// GeminiProvider はGemini APIを使うProviderです。構造化JSON出力と画像入出力に対応します。
type GeminiProvider struct {
	opts Options

	mu       sync.Mutex
	client   *genai.Client
	newModel func(ctx context.Context, cfg modelConfig) (generativeModel, error)
}

// NewGeminiProvider 新しいGeminiProviderを作成。
// クライアントは最初の呼び出し時に生成するため、APIキー未設定でもエラーにはなりません。
func NewGeminiProvider(opts Options) *GeminiProvider {
	p := &GeminiProvider{opts: opts.withDefaults()}
	p.newModel = p.sdkModel
	return p
}

// Name プロバイダー名
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Close はSDKクライアントを閉じます。
func (p *GeminiProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *GeminiProvider) sdkModel(ctx context.Context, cfg modelConfig) (generativeModel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		client, err := genai.NewClient(ctx, option.WithAPIKey(p.opts.APIKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		p.client = client
	}

	model := p.client.GenerativeModel(cfg.Name)
	model.SetTemperature(cfg.Temperature)
	model.SetMaxOutputTokens(cfg.MaxTokens)
	if cfg.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(cfg.System)}}
	}
	if cfg.JSONMode {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = cfg.Schema
	}
	return model, nil
}

func (p *GeminiProvider) checkKey() error {
	if p.opts.APIKey == "" {
		return apperrors.ConfigMissing(p.Name(), "GEMINI_API_KEY",
			"Missing Gemini API Key! Add GEMINI_API_KEY to your environment variables (not configured).")
	}
	return nil
}

// Send はプロンプトを送信し、最初の候補のテキストを返します。
func (p *GeminiProvider) Send(ctx context.Context, req Request) (string, error) {
	if err := p.checkKey(); err != nil {
		return "", err
	}

	cfg := modelConfig{
		Name:        p.opts.Aliases.Resolve(req.Model),
		JSONMode:    req.JSONMode,
		MaxTokens:   int32(p.opts.MaxTokens),
		Temperature: *p.opts.Temperature,
	}
	if req.JSONMode && req.Schema != nil {
		cfg.Schema = toGenaiSchema(req.Schema)
	}

	var system []string
	var parts []genai.Part
	// 画像パートはテキスト指示より前に置く
	for _, a := range req.Attachments {
		blob, err := toBlob(a)
		if err != nil {
			return "", err
		}
		parts = append(parts, blob)
	}
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		parts = append(parts, genai.Text(msg.Content))
	}
	cfg.System = strings.Join(system, "\n\n")

	log.Printf("🚀 [gemini] API呼び出し開始 model=%s parts=%d json=%t", cfg.Name, len(parts), cfg.JSONMode)

	resp, err := p.generate(ctx, cfg, parts)
	if err != nil {
		return "", err
	}

	text := responseText(resp)
	if text == "" {
		return NoResponsePlaceholder, nil
	}
	log.Printf("✅ [gemini] API呼び出し成功 size=%d", len(text))
	return text, nil
}

// GenerateImage はテキストから画像を生成し、data URLで返します。
func (p *GeminiProvider) GenerateImage(ctx context.Context, prompt, model string) (string, error) {
	if err := p.checkKey(); err != nil {
		return "", err
	}
	cfg := modelConfig{
		Name:        p.opts.Aliases.Resolve(model),
		MaxTokens:   int32(p.opts.MaxTokens),
		Temperature: *p.opts.Temperature,
	}
	resp, err := p.generate(ctx, cfg, []genai.Part{genai.Text(prompt)})
	if err != nil {
		return "", err
	}
	return imageDataURL(resp, "No image generated.")
}

// EditImage はアップロード画像とプロンプトから編集後の画像を生成します。
func (p *GeminiProvider) EditImage(ctx context.Context, prompt, model string, image Attachment) (string, error) {
	if err := p.checkKey(); err != nil {
		return "", err
	}
	blob, err := toBlob(image)
	if err != nil {
		return "", err
	}
	cfg := modelConfig{
		Name:        p.opts.Aliases.Resolve(model),
		MaxTokens:   int32(p.opts.MaxTokens),
		Temperature: *p.opts.Temperature,
	}
	resp, err := p.generate(ctx, cfg, []genai.Part{blob, genai.Text(prompt)})
	if err != nil {
		return "", err
	}
	return imageDataURL(resp, "No image generated from edit.")
}

func (p *GeminiProvider) generate(ctx context.Context, cfg modelConfig, parts []genai.Part) (*genai.GenerateContentResponse, error) {
	model, err := p.newModel(ctx, cfg)
	if err != nil {
		return nil, apperrors.Transport(p.Name(), 0, "Gemini client initialization failed", err)
	}
	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		log.Printf("❌ [gemini] %v", err)
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return nil, apperrors.Transport(p.Name(), apiErr.Code,
				fmt.Sprintf("Gemini API Error (%d): %s", apiErr.Code, apiErr.Message), nil)
		}
		return nil, apperrors.Transport(p.Name(), 0, "Gemini API request failed", err)
	}
	return resp, nil
}

func toBlob(a Attachment) (genai.Blob, error) {
	data, err := base64.StdEncoding.DecodeString(a.Base64)
	if err != nil {
		return genai.Blob{}, apperrors.Parse("gemini", "attachment is not valid base64", err)
	}
	return genai.Blob{MIMEType: a.MIMEType, Data: data}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String()
}

func imageDataURL(resp *genai.GenerateContentResponse, missing string) (string, error) {
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if blob, ok := part.(genai.Blob); ok && len(blob.Data) > 0 {
				mimeType := blob.MIMEType
				if mimeType == "" {
					mimeType = "image/png"
				}
				return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(blob.Data)), nil
			}
		}
	}
	return "", apperrors.Parse("gemini", missing, nil)
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Required: s.Required}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeArray:
		out.Type = genai.TypeArray
	case TypeNumber:
		out.Type = genai.TypeNumber
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	out.Items = toGenaiSchema(s.Items)
	return out
}
