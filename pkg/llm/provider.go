// Package llm は交換可能なLLMプロバイダー (チャット補完API、Gemini、Claude) を
// 共通の Provider インターフェースで扱います。
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// NoResponsePlaceholder は成功応答だが本文が空だった場合に返す文字列です。
const NoResponsePlaceholder = "No response generated."

// 既定の生成パラメータ
const (
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.2
	defaultHTTPTimeout = 60 * time.Second
)

// メッセージのロール
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message チャットメッセージ
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Attachment はテキスト指示と同じリクエストで送るバイナリ添付です。
// 送信前にメモリへ読み込み、base64エンコード済みであること。
type Attachment struct {
	MIMEType string
	Base64   string
}

// ReadAttachment はリーダーを最後まで読み込み、base64エンコードした添付を返します。
func ReadAttachment(r io.Reader, mimeType string) (Attachment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Attachment{}, fmt.Errorf("添付ファイルの読み込みに失敗: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return Attachment{
		MIMEType: mimeType,
		Base64:   base64.StdEncoding.EncodeToString(data),
	}, nil
}

// DataURL は添付を data URL 形式で返します。
func (a Attachment) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", a.MIMEType, a.Base64)
}

// Request プロバイダーへのリクエスト
type Request struct {
	Messages    []Message
	Model       string
	JSONMode    bool
	Schema      *Schema
	Attachments []Attachment
}

// UserPrompt は単一のユーザーメッセージからなるリクエストを作成します。
func UserPrompt(prompt, model string, jsonMode bool) Request {
	return Request{
		Messages: []Message{{Role: RoleUser, Content: prompt}},
		Model:    model,
		JSONMode: jsonMode,
	}
}

// Provider はプロンプト (またはメッセージ列) を送信し、抽出済みのテキストを返します。
type Provider interface {
	Name() string
	Send(ctx context.Context, req Request) (string, error)
}

// ImageProvider は画像を出力できるプロバイダーです。戻り値は data URL です。
type ImageProvider interface {
	GenerateImage(ctx context.Context, prompt, model string) (string, error)
	EditImage(ctx context.Context, prompt, model string, image Attachment) (string, error)
}

// Options はバックエンド共通の設定です。
type Options struct {
	APIKey      string
	BaseURL     string
	Aliases     ModelAliases
	MaxTokens   int
	// nilなら DefaultTemperature。0は明示的な指定として扱います。
	Temperature *float32
	HTTPClient  *http.Client
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == nil {
		t := float32(DefaultTemperature)
		o.Temperature = &t
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return o
}

// ModelAliases は要求されたモデル名を優先モデルへ置き換える宣言的な対応表です。
// 小さいモデルを要求した呼び出し側が透過的に大きいモデルを受け取るのは
// コスト/精度の上書きポリシーであり、不具合ではありません。
type ModelAliases map[string]string

// Resolve はエイリアスがあれば置き換え後のモデル名を返します。
func (m ModelAliases) Resolve(model string) string {
	if target, ok := m[model]; ok && target != "" {
		return target
	}
	return model
}

// Schema は構造化出力のためのプロバイダー非依存なスキーマ定義です。
type Schema struct {
	Type       SchemaType
	Properties map[string]*Schema
	Items      *Schema
	Required   []string
}

// SchemaType スキーマの型
type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeArray  SchemaType = "array"
	TypeString SchemaType = "string"
	TypeNumber SchemaType = "number"
)

// Registry はプロバイダー名からProviderを引く対応表です。
type Registry struct {
	providers map[string]Provider
}

// NewRegistry 新しいRegistryを作成
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get は名前に対応するProviderを返します。
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (available: %v)", name, r.Names())
	}
	return p, nil
}

// Names は登録済みのプロバイダー名をソートして返します。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
