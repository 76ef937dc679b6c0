package handler

import (
	"log"
	"net/http"
	"sync"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/server"

	"github.com/gin-gonic/gin"
)

var (
	app     *gin.Engine
	initErr error
	once    sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() (*gin.Engine, error) {
	once.Do(func() {
		log.Printf("🟢 [setupApp] Initializing Gin application")

		// .envファイルはVercelの環境変数設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()
		profile, err := config.LoadPromptProfile(cfg.PromptProfilePath)
		if err != nil {
			initErr = err
			return
		}

		services, err := server.NewServices(cfg, profile)
		if err != nil && cfg.DataDir != "" {
			// 関数の実行環境ではディスクに書けないことがあるため、メモリ上のストアで再試行
			log.Printf("⚠️ [setupApp] %s を開けませんでした。メモリ上のストアを使用します: %v", cfg.DataDir, err)
			cfg.DataDir = ""
			services, err = server.NewServices(cfg, profile)
		}
		if err != nil {
			initErr = err
			return
		}

		app, initErr = server.NewRouter(services)
		if initErr == nil {
			log.Printf("🟢 [setupApp] Router ready")
		}
	})
	return app, initErr
}

// Handler はVercelのエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	engine, err := setupApp()
	if err != nil {
		log.Printf("❌ [Handler] 初期化に失敗: %v", err)
		http.Error(w, `{"error":"server initialization failed"}`, http.StatusInternalServerError)
		return
	}
	engine.ServeHTTP(w, r)
}
