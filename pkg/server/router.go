// Package server はサービスの組み立てとルーティングを行います。
// cmd/server と api/index.go (サーバーレス) の両方から使われます。
package server

import (
	"fmt"
	"log"
	"net/http"

	config "biz-insight-api/configs"
	"biz-insight-api/pkg/handlers"
	"biz-insight-api/pkg/llm"
	"biz-insight-api/pkg/mail"
	"biz-insight-api/pkg/services"
	"biz-insight-api/pkg/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Services はルーターが依存するサービス群です。
type Services struct {
	Config     *config.Config
	Profile    *config.PromptProfile
	Monitor    *services.MonitoringService
	Registry   *llm.Registry
	Store      *store.DB
	Auth       *services.AuthService
	Workspaces *services.WorkspaceService
	Guard      *services.InflightGuard
	Analytics  *services.AnalyticsService
	CRM        *services.CRMService
	Market     *services.MarketService
	Documents  *services.DocumentService
	Studio     *services.StudioService

	gemini *llm.GeminiProvider
}

// NewServices は設定からプロバイダーとサービスを初期化します。
func NewServices(cfg *config.Config, profile *config.PromptProfile) (*Services, error) {
	monitor := services.NewMonitoringService()

	base := llm.Options{
		Aliases:     llm.ModelAliases(profile.ModelAliases),
		MaxTokens:   profile.Generation.MaxTokens,
		Temperature: profile.Generation.Temperature,
	}
	groqOpts := base
	groqOpts.APIKey = cfg.GroqAPIKey
	groqOpts.BaseURL = cfg.GroqBaseURL
	geminiOpts := base
	geminiOpts.APIKey = cfg.GeminiAPIKey
	anthropicOpts := base
	anthropicOpts.APIKey = cfg.AnthropicAPIKey
	anthropicOpts.BaseURL = cfg.AnthropicBaseURL

	gemini := llm.NewGeminiProvider(geminiOpts)
	registry := llm.NewRegistry(
		monitor.Instrument(llm.NewGroqClient(groqOpts)),
		monitor.Instrument(gemini),
		monitor.Instrument(llm.NewAnthropicProvider(anthropicOpts)),
	)

	text, err := registry.Get(cfg.TextProvider)
	if err != nil {
		return nil, fmt.Errorf("TEXT_PROVIDER: %w", err)
	}
	vision, err := registry.Get(cfg.VisionProvider)
	if err != nil {
		return nil, fmt.Errorf("VISION_PROVIDER: %w", err)
	}

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	workspaces := services.NewWorkspaceService(cfg.SessionTTL, profile.SeedCustomers)
	mailer := mail.NewDispatcher(mail.Config{
		ServiceID:  cfg.EmailJSServiceID,
		TemplateID: cfg.EmailJSTemplateID,
		PublicKey:  cfg.EmailJSPublicKey,
		Endpoint:   cfg.EmailJSEndpoint,
	}, nil)

	log.Printf("🚀 [server] text=%s vision=%s providers=%v", text.Name(), vision.Name(), registry.Names())
	for _, item := range cfg.MissingSetup() {
		log.Printf("⚠️ [server] %s が未設定です (%s)", item.Key, item.Hint)
	}
	studio := services.NewStudioService(gemini, gemini.Name(),
		profile.ModelFor(gemini.Name(), "image_generation"),
		profile.ModelFor(gemini.Name(), "image_edit"),
		monitor)

	return &Services{
		Config:     cfg,
		Profile:    profile,
		Monitor:    monitor,
		Registry:   registry,
		Store:      db,
		Auth:       services.NewAuthService(db, cfg.SessionTTL),
		Workspaces: workspaces,
		Guard:      services.NewInflightGuard(),
		Analytics:  services.NewAnalyticsService(text, profile, workspaces),
		CRM:        services.NewCRMService(text, profile, workspaces, mailer),
		Market:     services.NewMarketService(text, profile),
		Documents:  services.NewDocumentService(vision, profile),
		Studio:     studio,
		gemini:     gemini,
	}, nil
}

// Close は保持しているリソースを解放します。
func (s *Services) Close() error {
	if err := s.gemini.Close(); err != nil {
		log.Printf("⚠️ [server] Geminiクライアントのクローズに失敗: %v", err)
	}
	return s.Store.Close()
}

// apiKeyMiddleware はAPI_KEYが設定されている場合にX-API-KEYヘッダーを検証します。
func apiKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-KEY") != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// NewRouter はGinルーターを構築します。
func NewRouter(s *Services) (*gin.Engine, error) {
	cfg := s.Config

	proxyHandler, err := handlers.NewProxyHandler(cfg.GroqBaseURL, cfg.GroqAPIKey)
	if err != nil {
		return nil, err
	}
	adminHandler := handlers.NewAdminHandler(cfg, s.Registry.Names())
	monitoringHandler := handlers.NewMonitoringHandler(s.Monitor)
	authHandler := handlers.NewAuthHandler(s.Auth, s.Workspaces)
	dataHandler := handlers.NewDataHandler(s.Workspaces, s.Documents, s.Guard)
	analyticsHandler := handlers.NewAnalyticsHandler(s.Analytics, s.Workspaces, s.Guard)
	crmHandler := handlers.NewCRMHandler(s.CRM, s.Guard)
	marketHandler := handlers.NewMarketHandler(s.Market, s.Guard)
	studioHandler := handlers.NewStudioHandler(s.Studio, s.Guard)

	r := gin.Default()

	// ミドルウェアの登録
	r.Use(s.Monitor.LoggingMiddleware())
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders("Authorization", "X-API-KEY")
	r.Use(cors.New(corsConfig))
	r.Use(adminHandler.MaintenanceMiddleware())

	// ヘルスチェックエンドポイント
	r.GET("/health", adminHandler.HealthCheck)

	requireSession := handlers.SessionMiddleware(s.Auth)

	// チャット補完APIのプロキシ (ログイン済みユーザーのみ)
	r.Any(cfg.ProxyPrefix+"/*path", apiKeyMiddleware(cfg.APIKey), requireSession, proxyHandler.Forward)

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(apiKeyMiddleware(cfg.APIKey))
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/logout", authHandler.Logout)
			auth.GET("/me", requireSession, authHandler.Me)
		}

		// 管理者向けAPI
		admin := v1.Group("/admin")
		{
			admin.GET("/setup-status", adminHandler.GetSetupStatus)
			admin.GET("/health-status", adminHandler.GetHealthStatus)
			admin.POST("/maintenance/start", adminHandler.StartMaintenance)
			admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
		}

		// モニタリングAPI
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/logs", monitoringHandler.GetLogs)
		}

		// 以下はログインが必要
		data := v1.Group("/data", requireSession)
		{
			data.POST("/upload", dataHandler.UploadFile)
			data.GET("/records", dataHandler.GetRecords)
			data.POST("/analyze-image", dataHandler.AnalyzeImage)
		}

		analytics := v1.Group("/analytics", requireSession)
		{
			analytics.POST("/run", analyticsHandler.Run)
			analytics.GET("/latest", analyticsHandler.Latest)
		}
		v1.GET("/dashboard", requireSession, analyticsHandler.Dashboard)

		crm := v1.Group("/crm", requireSession)
		{
			crm.GET("/customers", crmHandler.ListCustomers)
			crm.POST("/customers", crmHandler.AddCustomer)
			crm.POST("/customers/:id/email", crmHandler.DraftEmail)
			crm.POST("/customers/:id/insights", crmHandler.Insights)
			crm.POST("/send", crmHandler.SendEmail)
		}

		market := v1.Group("/market", requireSession)
		{
			market.POST("/report", marketHandler.Report)
		}

		studio := v1.Group("/studio", requireSession)
		{
			studio.POST("/generate", studioHandler.Generate)
			studio.POST("/edit", studioHandler.Edit)
		}
	}

	return r, nil
}
