package config

import (
	"log"
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	Port          string
	Environment   string
	APIKey        string
	AdminUsername string
	AdminPassword string

	// LLMプロバイダー
	GroqAPIKey       string
	GroqBaseURL      string
	GeminiAPIKey     string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	TextProvider     string
	VisionProvider   string
	ProxyPrefix      string

	// メール送信リレー (EmailJS互換)
	EmailJSServiceID  string
	EmailJSTemplateID string
	EmailJSPublicKey  string
	EmailJSEndpoint   string

	DataDir           string
	SessionTTL        time.Duration
	PromptProfilePath string
}

// 設定キー名。セットアップ案内のメッセージにそのまま使われる。
const (
	KeyGroqAPIKey        = "GROQ_API_KEY"
	KeyGeminiAPIKey      = "GEMINI_API_KEY"
	KeyAnthropicAPIKey   = "ANTHROPIC_API_KEY"
	KeyEmailJSServiceID  = "EMAILJS_SERVICE_ID"
	KeyEmailJSTemplateID = "EMAILJS_TEMPLATE_ID"
	KeyEmailJSPublicKey  = "EMAILJS_PUBLIC_KEY"
)

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       getEnv("ENVIRONMENT", "development"),
		APIKey:            getEnv("API_KEY", ""),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:     getEnv("ADMIN_PASSWORD", ""),
		GroqAPIKey:        getEnv(KeyGroqAPIKey, ""),
		GroqBaseURL:       getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GeminiAPIKey:      getEnv(KeyGeminiAPIKey, ""),
		AnthropicAPIKey:   getEnv(KeyAnthropicAPIKey, ""),
		AnthropicBaseURL:  getEnv("ANTHROPIC_BASE_URL", ""),
		TextProvider:      getEnv("TEXT_PROVIDER", "groq"),
		VisionProvider:    getEnv("VISION_PROVIDER", "gemini"),
		ProxyPrefix:       getEnv("PROXY_PREFIX", "/groq-api"),
		EmailJSServiceID:  getEnv(KeyEmailJSServiceID, ""),
		EmailJSTemplateID: getEnv(KeyEmailJSTemplateID, ""),
		EmailJSPublicKey:  getEnv(KeyEmailJSPublicKey, ""),
		EmailJSEndpoint:   getEnv("EMAILJS_ENDPOINT", "https://api.emailjs.com/api/v1.0/email/send"),
		DataDir:           getEnv("DATA_DIR", "./data/badger"),
		SessionTTL:        getDurationEnv("SESSION_TTL", 24*time.Hour),
		PromptProfilePath: getEnv("PROMPT_PROFILE_PATH", ""),
	}
}

// SetupItem は未設定の項目とその案内文です。
type SetupItem struct {
	Key  string `json:"key"`
	Hint string `json:"hint"`
}

// MissingSetup は未設定のプロバイダー/リレー設定を列挙します。
func (c *Config) MissingSetup() []SetupItem {
	var items []SetupItem
	check := func(value, key, hint string) {
		if value == "" {
			items = append(items, SetupItem{Key: key, Hint: hint})
		}
	}
	check(c.GroqAPIKey, KeyGroqAPIKey, "chat-completions provider used for analysis, CRM and market reports")
	check(c.GeminiAPIKey, KeyGeminiAPIKey, "multimodal provider used for document analysis and the image studio")
	check(c.AnthropicAPIKey, KeyAnthropicAPIKey, "optional Claude provider (TEXT_PROVIDER=anthropic)")
	check(c.EmailJSServiceID, KeyEmailJSServiceID, "EmailJS -> Email Services")
	check(c.EmailJSTemplateID, KeyEmailJSTemplateID, "EmailJS -> Email Templates (needs {{subject}} and {{message}})")
	check(c.EmailJSPublicKey, KeyEmailJSPublicKey, "EmailJS -> Account -> Public Key")
	return items
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("⚠️ %s の値が不正です (%q)。デフォルト値 %s を使用します", key, value, defaultValue)
		return defaultValue
	}
	return d
}
