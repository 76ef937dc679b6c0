//go:build ignore

package main

import (
	"flag"
	"log"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/store"

	"github.com/joho/godotenv"
)

// 使い方: go run scripts/clean_users.go [-username alice]
// -username を省略すると全ユーザーを削除します。
func main() {
	username := flag.String("username", "", "削除するユーザー名 (省略時は全員)")
	flag.Parse()

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

	targets := []string{*username}
	if *username == "" {
		targets, err = db.ListUsernames()
		if err != nil {
			log.Fatalf("ユーザー一覧の取得に失敗: %v", err)
		}
	}

	log.Printf("🗑️ %d人のユーザーを削除します...", len(targets))
	for _, name := range targets {
		if err := db.DeleteUser(name); err != nil {
			log.Printf("⚠️ %s の削除に失敗: %v", name, err)
			continue
		}
		log.Printf("✅ %s を削除しました", name)
	}
}
