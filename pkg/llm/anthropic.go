package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"biz-insight-api/pkg/apperrors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// jsonOnlyInstruction はネイティブのJSONモードを持たないバックエンドで system に追記します。
const jsonOnlyInstruction = "Respond with a single valid JSON object only. Do not wrap it in markdown code fences."

// AnthropicProvider はClaude Messages APIを使うProviderです。
type AnthropicProvider struct {
	opts Options
}

// NewAnthropicProvider 新しいAnthropicProviderを作成
func NewAnthropicProvider(opts Options) *AnthropicProvider {
	return &AnthropicProvider{opts: opts.withDefaults()}
}

// Name プロバイダー名
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) newClient() anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(p.opts.APIKey),
		option.WithHTTPClient(p.opts.HTTPClient),
		// 再試行は呼び出し側の責務
		option.WithMaxRetries(0),
	}
	if p.opts.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.opts.BaseURL))
	}
	return anthropic.NewClient(opts...)
}

// Send はメッセージ列を送信し、最初のテキストブロックを返します。
func (p *AnthropicProvider) Send(ctx context.Context, req Request) (string, error) {
	if p.opts.APIKey == "" {
		return "", apperrors.ConfigMissing(p.Name(), "ANTHROPIC_API_KEY",
			"Missing Anthropic API Key! Add ANTHROPIC_API_KEY to your environment variables (not configured).")
	}

	model := p.opts.Aliases.Resolve(req.Model)

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	lastUser := -1
	for i, msg := range req.Messages {
		if msg.Role == RoleUser {
			lastUser = i
		}
	}
	for i, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			var blocks []anthropic.ContentBlockParamUnion
			if i == lastUser {
				for _, a := range req.Attachments {
					blocks = append(blocks, anthropic.NewImageBlockBase64(a.MIMEType, a.Base64))
				}
			}
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	if req.JSONMode {
		system = append(system, anthropic.TextBlockParam{Text: jsonOnlyInstruction})
	}

	log.Printf("🚀 [anthropic] API呼び出し開始 model=%s messages=%d json=%t", model, len(messages), req.JSONMode)

	client := p.newClient()
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(p.opts.MaxTokens),
		Temperature: anthropic.Float(float64(*p.opts.Temperature)),
		System:      system,
		Messages:    messages,
	})
	if err != nil {
		log.Printf("❌ [anthropic] %v", err)
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", apperrors.Transport(p.Name(), apiErr.StatusCode,
				fmt.Sprintf("Anthropic API Error (%d): %s", apiErr.StatusCode, anthropicErrorMessage(apiErr.RawJSON())), nil)
		}
		return "", apperrors.Transport(p.Name(), 0, "Anthropic API request failed", err)
	}

	log.Printf("✅ [anthropic] API呼び出し成功 tokens_in=%d tokens_out=%d", message.Usage.InputTokens, message.Usage.OutputTokens)

	for _, block := range message.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return NoResponsePlaceholder, nil
}

// anthropicErrorMessage はエラー本文の error.message を取り出します。
// 構造化されていなければ本文をそのまま返します。
func anthropicErrorMessage(raw string) string {
	var errorResp errorResponse
	if err := json.Unmarshal([]byte(raw), &errorResp); err == nil && errorResp.Error.Message != "" {
		return errorResp.Error.Message
	}
	return strings.TrimSpace(raw)
}
