package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"EchoFM/cache"
	"EchoFM/catalog"
	"EchoFM/config"
	"EchoFM/core/player"
	"EchoFM/core/syncer"
	"EchoFM/db"
	"EchoFM/engine"
	"EchoFM/logger"
	"EchoFM/repository"
	"EchoFM/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()
	logger.Info("Successfully connected to Redis")

	// Connect to the database
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.MigrateDB(); err != nil {
		logger.Fatal("Failed to migrate database", logger.ErrorField(err))
	}

	// 初始化 MinIO 镜像源；失败不致命，解析器少一个兜底环节
	mirror := player.MirrorFunc(nil)
	if err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO 初始化失败，镜像源不可用", logger.ErrorField(err))
	} else {
		mirror = storage.MirrorURL
	}

	store := cache.NewStore(db.RedisClient)
	trackRepo := repository.NewGormTrackRepository(db.GormDB)
	catalogClient := catalog.NewClient(cfg.CatalogAPIURL, cfg.CatalogTimeout)
	audioEngine := engine.NewHTTPEngine(cfg.EngineAPIURL, cfg.EngineTimeout)
	hub := syncer.NewHub()

	controller := player.NewController(
		audioEngine, catalogClient, store, trackRepo, mirror, hub, cfg.Playback)
	controller.Restore(context.Background())
	controller.Start()

	// 调优参数热更新
	stopWatch, err := config.WatchTuning(".env", controller.ApplyTuning)
	if err != nil {
		logger.Warn("配置监听启动失败", logger.ErrorField(err))
	} else {
		defer stopWatch()
	}

	// 使用 gorilla/mux 创建路由器
	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	playerHandler := NewPlayerHandler(controller, store, trackRepo)
	playerHandler.RegisterRoutes(router)

	// 副屏 WebSocket 入口
	router.HandleFunc("/ws/surface", SurfaceHandler(hub))

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 优雅关停
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("收到退出信号，开始关停...")
		controller.Teardown()
		hub.CloseAll()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("服务器关停失败", logger.ErrorField(err))
		}
	}()

	logger.Info("EchoFM server listening", logger.String("addr", cfg.ServerAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("服务器启动失败", logger.ErrorField(err))
	}
}
