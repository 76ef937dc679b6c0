//go:build ignore

package main

import (
	"flag"
	"log"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/services"
	"biz-insight-api/pkg/store"

	"github.com/joho/godotenv"
)

// 使い方: go run scripts/create_user.go -username alice -password secret
func main() {
	username := flag.String("username", "", "ユーザー名")
	password := flag.String("password", "", "パスワード")
	flag.Parse()

	log.Println("🚀 ユーザーの作成を開始します...")

	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.LoadConfig()
	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatalf("ストアを開けませんでした: %v", err)
	}
	defer db.Close()

	auth := services.NewAuthService(db, cfg.SessionTTL)
	if _, err := auth.Register(*username, *password); err != nil {
		log.Fatalf("❌ ユーザーの作成に失敗: %v", err)
	}

	names, err := db.ListUsernames()
	if err != nil {
		log.Fatalf("ユーザー一覧の取得に失敗: %v", err)
	}
	log.Printf("✅ %s を作成しました (登録済み: %d人)", *username, len(names))
}
