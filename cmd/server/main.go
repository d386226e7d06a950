// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amaankhan02/movie-maestro/internal/config"
	"github.com/amaankhan02/movie-maestro/internal/handler"
	"github.com/amaankhan02/movie-maestro/internal/middleware"
	"github.com/amaankhan02/movie-maestro/internal/model"
	"github.com/amaankhan02/movie-maestro/internal/pipeline"
	"github.com/amaankhan02/movie-maestro/internal/repository"
	"github.com/amaankhan02/movie-maestro/internal/service"
	"github.com/amaankhan02/movie-maestro/pkg/database"
	"github.com/amaankhan02/movie-maestro/pkg/es"
	"github.com/amaankhan02/movie-maestro/pkg/kafka"
	"github.com/amaankhan02/movie-maestro/pkg/llm"
	"github.com/amaankhan02/movie-maestro/pkg/log"
	"github.com/amaankhan02/movie-maestro/pkg/storage"
	"github.com/amaankhan02/movie-maestro/pkg/tmdb"
	"github.com/amaankhan02/movie-maestro/pkg/token"
	"github.com/amaankhan02/movie-maestro/pkg/wikipedia"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err := database.DB.AutoMigrate(&model.ConversationArchive{}); err != nil {
		log.Fatalf("归档表迁移失败: %v", err)
	}
	if cfg.MinIO.Enabled {
		storage.InitMinIO(cfg.MinIO)
	}
	if cfg.Elasticsearch.Enabled {
		if err := es.InitES(cfg.Elasticsearch); err != nil {
			log.Errorf("es 初始化失败 %s", err)
			return
		}
	}
	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
	}

	// 4. 初始化 Repository
	conversationRepo := repository.NewConversationRepository(database.RDB)
	archiveRepo := repository.NewConversationArchiveRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.SessionExpireHours)
	llmClient := llm.NewClient(cfg.LLM)
	tmdbClient := tmdb.NewClient(cfg.TMDB)
	wikiClient := wikipedia.NewClient(cfg.Wikipedia)

	plannerService := service.NewPlannerService(llmClient)
	structuredSource := service.NewStructuredSource(llmClient, tmdbClient)
	textualSource := service.NewTextualSource(wikiClient)
	retrievalService := service.NewRetrievalService(structuredSource, textualSource,
		time.Duration(cfg.Chat.SourceTimeoutSeconds)*time.Second)
	synthesizerService := service.NewSynthesizerService(llmClient)
	conversationService := service.NewConversationService(conversationRepo)
	chatService := service.NewChatService(plannerService, retrievalService, synthesizerService, conversationRepo, archiveRepo)

	// 6. 启动后台 Kafka 消费者（异步索引助手回答）
	if cfg.Kafka.Enabled && cfg.Elasticsearch.Enabled {
		go kafka.StartConsumer(cfg.Kafka, pipeline.NewIndexer())
	}

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	chatHandler := handler.NewChatHandler(chatService)
	conversationHandler := handler.NewConversationHandler(conversationService)
	authHandler := handler.NewAuthHandler(jwtManager)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/auth/session", authHandler.CreateSession)

	api := r.Group("/")
	if cfg.Server.AuthEnabled {
		api.Use(middleware.SessionAuthMiddleware(jwtManager))
	}
	{
		api.POST("/chat", chatHandler.Chat)
		api.GET("/conversation/:id", conversationHandler.Get)
		api.GET("/conversations/search", conversationHandler.Search)
	}
	// WebSocket 流式路径不挂认证中间件，浏览器的 WS 握手不便携带 Authorization 头
	r.GET("/chat/ws", chatHandler.Handle)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费者是一个循环，会在程序退出时自然结束。
	log.Info("服务已优雅关闭")
}
