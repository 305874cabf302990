package handler

import (
	"log"
	"net/http"
	"sync"

	config "negentropy-api/configs"
	"negentropy-api/pkg/handlers"
	"negentropy-api/pkg/llm"
	"negentropy-api/pkg/mlservice"
	"negentropy-api/pkg/services"
	"negentropy-api/pkg/store"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var (
	app  *gin.Engine
	once sync.Once
)

// setupApp はGinアプリケーションを初期化します。
// サーバーレス環境では、リクエストごとに初期化が走らないようsync.Onceで一度だけ実行します。
func setupApp() *gin.Engine {
	once.Do(func() {
		log.Printf("🟢 [setupApp] Initializing Gin application")

		// 環境変数はデプロイ先の設定から読み込まれるため、ここではgodotenvを呼び出しません。
		cfg := config.LoadConfig()

		// Ginルーターの初期化
		r := gin.Default()

		// データストアの初期化。サーバーレスではエフェメラルなパスを使う。
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			log.Printf("FATAL: Failed to open database: %v", err)
		}

		// サービスの初期化
		monitoringService := services.NewMonitoringService()
		llmClient, llmErr := llm.NewClient(llm.Credentials{
			Provider:     cfg.LLMProvider,
			OpenAIKey:    cfg.OpenAIAPIKey,
			AnthropicKey: cfg.AnthropicAPIKey,
			GeminiKey:    cfg.GeminiAPIKey,
			Model:        cfg.LLMModel,
			BaseURL:      cfg.LLMBaseURL,
		})
		if llmErr != nil {
			log.Printf("⚠️ LLMクライアントの初期化に失敗: %v", llmErr)
		}

		mlClient := mlservice.NewClient(cfg.MLServiceURL)
		contextService := services.NewContextService(st)
		forecastService := services.NewForecastService(st, mlClient)
		weatherService := services.NewWeatherService(st, cfg.OpenWeatherAPIKey, cfg.WeatherLatitude, cfg.WeatherLongitude)
		assistantService := services.NewAssistantService(llmClient, llmErr, contextService, config.ResolveSystemPrompt(), monitoringService)
		posService := services.NewPOSService(st, forecastService)
		alertsService := services.NewAlertsService(st)

		if cfg.QdrantURL != "" && llmClient != nil {
			memoryService, err := services.NewMemoryService(llmClient, cfg.QdrantURL, cfg.QdrantAPIKey)
			if err != nil {
				log.Printf("⚠️ 会話メモリの初期化に失敗: %v", err)
			} else {
				assistantService.SetMemory(memoryService)
				log.Println("✅ 会話メモリ (Qdrant) を有効化しました")
			}
		}

		// ハンドラーの初期化
		assistantHandler := handlers.NewAssistantHandler(assistantService)
		forecastHandler := handlers.NewForecastHandler(forecastService, weatherService, st)
		posHandler := handlers.NewPOSHandler(posService)
		alertsHandler := handlers.NewAlertsHandler(alertsService, st)
		adminHandler := handlers.NewAdminHandler(cfg)
		monitoringHandler := handlers.NewMonitoringHandler(monitoringService)

		// ミドルウェアの登録
		r.Use(monitoringService.LoggingMiddleware())
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		r.Use(cors.New(corsConfig))

		// 認証ミドルウェア
		authMiddleware := func(apiKey string) gin.HandlerFunc {
			return func(c *gin.Context) {
				if apiKey == "" {
					c.Next()
					return
				}
				providedKey := c.GetHeader("X-API-KEY")
				if providedKey != apiKey {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
					return
				}
				c.Next()
			}
		}

		// ヘルスチェックエンドポイント
		r.GET("/health", handlers.HealthCheck)

		// APIルートの定義
		v1 := r.Group("/api/v1")
		v1.Use(authMiddleware(cfg.APIKey))
		{
			// 管理者向けAPI
			admin := v1.Group("/admin")
			{
				admin.GET("/health-status", adminHandler.GetHealthStatus)
				admin.POST("/maintenance/start", adminHandler.StartMaintenance)
				admin.POST("/maintenance/stop", adminHandler.StopMaintenance)
			}

			// モニタリングAPI
			monitoring := v1.Group("/monitoring")
			{
				monitoring.GET("/logs", monitoringHandler.GetLogs)
			}

			// AIアシスタントAPI
			assistant := v1.Group("/assistant")
			{
				assistant.POST("/query", assistantHandler.Query)
				assistant.POST("/recommend-action", assistantHandler.RecommendAction)
			}

			// 需要予測API
			forecast := v1.Group("/forecast")
			{
				forecast.POST("/demand", forecastHandler.PredictDemand)
				forecast.POST("/scenario", forecastHandler.PredictScenario)
			}

			// 在庫リスクAPI
			inventory := v1.Group("/inventory")
			{
				inventory.GET("/expiration-risk", forecastHandler.GetExpirationRisks)
			}

			// 気象データAPI
			weather := v1.Group("/weather")
			{
				weather.GET("/current", forecastHandler.GetCurrentWeather)
			}

			// POS連携API
			pos := v1.Group("/pos")
			{
				pos.POST("/sales-sync", posHandler.SyncSales)
				pos.POST("/sales-import", posHandler.ImportSales)
			}

			// 期限アラートAPI
			alerts := v1.Group("/alerts")
			{
				alerts.POST("/run-daily", alertsHandler.RunDaily)
				alerts.GET("", alertsHandler.ListRecent)
			}
		}

		app = r
	})
	return app
}

// Handler はVercelからのすべてのリクエストを処理するエントリーポイントです。
func Handler(w http.ResponseWriter, r *http.Request) {
	app := setupApp()
	app.ServeHTTP(w, r)
}
