package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"biz-insight-api/pkg/apperrors"
)

// ChatCompletionsClient はOpenAI互換のチャット補完REST APIへのリクエストを管理します。
// BaseURLには実際のエンドポイント、または同一オリジンのプロキシのプレフィックスを設定します。
type ChatCompletionsClient struct {
	name    string
	label   string
	keyName string
	opts    Options
}

// NewChatCompletionsClient は新しいチャット補完クライアントを作成します。
// keyNameは未設定時のエラーに含める設定キー名です。
func NewChatCompletionsClient(name, label, keyName string, opts Options) *ChatCompletionsClient {
	return &ChatCompletionsClient{
		name:    name,
		label:   label,
		keyName: keyName,
		opts:    opts.withDefaults(),
	}
}

// NewGroqClient はGroqのチャット補完クライアントを作成します。
func NewGroqClient(opts Options) *ChatCompletionsClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.groq.com/openai/v1"
	}
	return NewChatCompletionsClient("groq", "Groq", "GROQ_API_KEY", opts)
}

// Name プロバイダー名
func (c *ChatCompletionsClient) Name() string {
	return c.name
}

// --- データ構造定義 ---

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatCompletionRequest チャット補完リクエスト
type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatCompletionResponse チャット補完レスポンス
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// errorResponse エラーレスポンス
type errorResponse struct {
	Error struct {
		Code    interface{} `json:"code"`
		Message string      `json:"message"`
		Type    string      `json:"type"`
	} `json:"error"`
}

// --- メソッド定義 ---

// Send チャット補完を実行し、最初の選択肢の本文を返します。
func (c *ChatCompletionsClient) Send(ctx context.Context, req Request) (string, error) {
	if c.opts.APIKey == "" {
		return "", apperrors.ConfigMissing(c.name, c.keyName,
			fmt.Sprintf("Missing %s API Key! Add %s to your environment variables (not configured).", c.label, c.keyName))
	}

	model := c.opts.Aliases.Resolve(req.Model)
	if model != req.Model {
		log.Printf("🔁 [%s] モデルを置き換えました: %s -> %s", c.name, req.Model, model)
	}

	request := chatCompletionRequest{
		Model:       model,
		Messages:    buildChatMessages(req.Messages, req.Attachments),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: *c.opts.Temperature,
	}
	if req.JSONMode {
		request.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	log.Printf("🚀 [%s] API呼び出し開始 model=%s messages=%d json=%t", c.name, model, len(request.Messages), req.JSONMode)

	var response chatCompletionResponse
	if err := c.doRequest(ctx, strings.TrimSuffix(c.opts.BaseURL, "/")+"/chat/completions", request, &response); err != nil {
		log.Printf("❌ [%s] %v", c.name, err)
		return "", err
	}

	log.Printf("✅ [%s] API呼び出し成功 tokens=%d", c.name, response.Usage.TotalTokens)

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return NoResponsePlaceholder, nil
	}
	return response.Choices[0].Message.Content, nil
}

// buildChatMessages は添付がある場合、最後のユーザーメッセージをテキスト+画像のパート配列にします。
func buildChatMessages(messages []Message, attachments []Attachment) []chatMessage {
	lastUser := -1
	if len(attachments) > 0 {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == RoleUser {
				lastUser = i
				break
			}
		}
	}

	out := make([]chatMessage, len(messages))
	for i, msg := range messages {
		if i != lastUser {
			out[i] = chatMessage{Role: msg.Role, Content: msg.Content}
			continue
		}
		parts := []contentPart{{Type: "text", Text: msg.Content}}
		for _, a := range attachments {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: a.DataURL()}})
		}
		out[i] = chatMessage{Role: msg.Role, Content: parts}
	}
	return out
}

// doRequest はHTTPリクエストの実行と基本的なレスポンス処理を行う共通メソッドです。
func (c *ChatCompletionsClient) doRequest(ctx context.Context, url string, requestData interface{}, responseData interface{}) error {
	requestBody, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return apperrors.Transport(c.name, 0, fmt.Sprintf("%s API request failed", c.label), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Transport(c.name, resp.StatusCode, "レスポンスの読み取りに失敗", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errorResp errorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			return apperrors.Transport(c.name, resp.StatusCode,
				fmt.Sprintf("%s API Error (%d): %s", c.label, resp.StatusCode, errorResp.Error.Message), nil)
		}
		return apperrors.Transport(c.name, resp.StatusCode,
			fmt.Sprintf("%s API Error (%d): %s", c.label, resp.StatusCode, string(body)), nil)
	}

	if err := json.Unmarshal(body, responseData); err != nil {
		return apperrors.Parse(c.name, "レスポンスのJSON解析に失敗", err)
	}
	return nil
}
