package main

import (
	"context"
	"flag"
	"log"
	"time"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/llm"

	"github.com/joho/godotenv"
)

// 設定されたチャットプロバイダーに1回だけ問い合わせ、応答を表示する診断コマンド。
func main() {
	providerName := flag.String("provider", "", "プロバイダー名 (groq, gemini, anthropic)。省略時はTEXT_PROVIDER")
	prompt := flag.String("prompt", "Hello, are you working?", "送信するプロンプト")
	flag.Parse()

	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: .env file not found or could not be loaded: %v", err)
	}

	cfg := config.LoadConfig()
	profile, err := config.LoadPromptProfile(cfg.PromptProfilePath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if *providerName == "" {
		*providerName = cfg.TextProvider
	}

	base := llm.Options{
		Aliases:     llm.ModelAliases(profile.ModelAliases),
		MaxTokens:   profile.Generation.MaxTokens,
		Temperature: profile.Generation.Temperature,
	}
	groqOpts, geminiOpts, anthropicOpts := base, base, base
	groqOpts.APIKey, groqOpts.BaseURL = cfg.GroqAPIKey, cfg.GroqBaseURL
	geminiOpts.APIKey = cfg.GeminiAPIKey
	anthropicOpts.APIKey, anthropicOpts.BaseURL = cfg.AnthropicAPIKey, cfg.AnthropicBaseURL

	gemini := llm.NewGeminiProvider(geminiOpts)
	defer gemini.Close()
	registry := llm.NewRegistry(llm.NewGroqClient(groqOpts), gemini, llm.NewAnthropicProvider(anthropicOpts))

	provider, err := registry.Get(*providerName)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// キーそのものは表示しない (先頭4文字のみ)
	keys := map[string]string{"groq": cfg.GroqAPIKey, "gemini": cfg.GeminiAPIKey, "anthropic": cfg.AnthropicAPIKey}
	if key := keys[provider.Name()]; len(key) >= 4 {
		log.Printf("INFO: API key found: %s...", key[:4])
	} else {
		log.Printf("WARN: API key for %s is not set", provider.Name())
	}

	model := profile.ModelFor(provider.Name(), "default")
	log.Printf("INFO: %s (%s) にリクエストを送信します...", provider.Name(), model)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	start := time.Now()
	reply, err := provider.Send(ctx, llm.UserPrompt(*prompt, model, false))
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	log.Println("--- レスポンス ---")
	log.Println(reply)
	log.Printf("\nSUCCESS: %v で応答が返ってきました。", time.Since(start))
}
