package main

import (
	"log"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/server"

	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()
	profile, err := config.LoadPromptProfile(cfg.PromptProfilePath)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	// サービスの初期化
	services, err := server.NewServices(cfg, profile)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize services: %v", err)
	}
	defer services.Close()

	r, err := server.NewRouter(services)
	if err != nil {
		log.Fatalf("FATAL: Failed to build router: %v", err)
	}

	log.Printf("🚀 Starting Biz Insight API server on :%s (%s)", cfg.Port, cfg.Environment)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
