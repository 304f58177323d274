// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"resume-forge/internal/config"
	"resume-forge/internal/handler"
	"resume-forge/internal/middleware"
	"resume-forge/internal/pipeline"
	"resume-forge/internal/repair"
	"resume-forge/internal/repository"
	"resume-forge/internal/service"
	"resume-forge/pkg/compiler"
	"resume-forge/pkg/database"
	"resume-forge/pkg/embedding"
	"resume-forge/pkg/es"
	"resume-forge/pkg/kafka"
	"resume-forge/pkg/llm"
	"resume-forge/pkg/log"
	"resume-forge/pkg/storage"
	"resume-forge/pkg/tika"
	"resume-forge/pkg/token"
)

func main() {
	// 1. 初始化配置
	configPath := "./configs/config.yaml"
	if p := os.Getenv("RF_CONFIG"); p != "" {
		configPath = p
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 切块参数不合法时直接退出
	if err := pipeline.ValidateChunkConfig(cfg.Pipeline.ChunkSize, cfg.Pipeline.ChunkOverlap); err != nil {
		log.Fatal("切块配置无效", err)
	}

	// 3. 初始化数据库、Redis、对象存储、Elasticsearch 和 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		// 索引不可用时检索会回退到最近文档
		log.Errorf("es 初始化失败 %s", err)
	}
	kafka.InitProducer(cfg.Kafka)
	defer kafka.CloseProducer()

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	// 4. 初始化 Repository
	docRepo := repository.NewDocumentRepository(database.DB)
	profileRepo := repository.NewProfileRepository(database.DB)
	projectRepo := repository.NewProjectRepository(database.DB)
	transcriptRepo := repository.NewTranscriptRepository(database.RDB)

	// 5. 初始化外部服务客户端
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.Shared(cfg.LLM, cfg.LLMFallback)
	compilerClient := compiler.NewClient(cfg.Compiler)
	objectStore := storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)
	chunkIndex := es.NewChunkIndex(es.ESClient, cfg.Elasticsearch.IndexName)

	// 6. 初始化 Service (依赖注入)
	profileService := service.NewProfileService(docRepo, profileRepo, llmClient, cfg.Retrieval.MinProfileLen)
	retrievalService := service.NewRetrievalService(embeddingClient, chunkIndex, docRepo, cfg.Retrieval)
	generationService := service.NewGenerationService(llmClient, cfg.LLM.Generation, cfg.Repair.MaxDiagnosticLen)

	processor, err := pipeline.NewProcessor(tikaClient, embeddingClient, objectStore, chunkIndex, docRepo, pipeline.Options{
		ChunkSize:    cfg.Pipeline.ChunkSize,
		ChunkOverlap: cfg.Pipeline.ChunkOverlap,
		Concurrency:  cfg.Embedding.Concurrency,
		RateLimit:    cfg.Embedding.RateLimit,
		ModelVersion: cfg.Embedding.Model,
	})
	if err != nil {
		log.Fatal("初始化文档处理管道失败", err)
	}
	processor.OnIndexed(func(ctx context.Context, userID uint) {
		if _, err := profileService.Refresh(ctx, userID); err != nil {
			log.Warnw("文档入库后刷新用户画像失败", "user_id", userID, "error", err)
		}
	})

	registry := repair.NewRegistry(rootCtx, repair.Deps{
		Compiler:  compilerClient,
		Repairer:  generationService,
		Projects:  projectRepo,
		Artifacts: objectStore,
	}, repair.Options{MaxAutoRepairs: cfg.Repair.MaxAutoRepairs}, cfg.Repair.Debounce)
	defer registry.Close()
	registry.StartJanitor(cfg.Repair.IdleTTL)

	documentService := service.NewDocumentService(docRepo, objectStore, chunkIndex, tikaClient, kafka.ProduceIngestTask, processor, profileService)
	projectService := service.NewProjectService(projectRepo, transcriptRepo, objectStore, registry)
	chatService := service.NewChatService(projectRepo, transcriptRepo, retrievalService, profileService, generationService, tikaClient, registry)

	// 7. 启动后台 Kafka 消费者
	if cfg.Kafka.Brokers != "" {
		go kafka.StartConsumer(rootCtx, cfg.Kafka, processor, kafka.NewRedisAttemptCounter(database.RDB))
	}

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	documentHandler := handler.NewDocumentHandler(documentService)
	contextHandler := handler.NewContextHandler(retrievalService)
	profileHandler := handler.NewProfileHandler(profileService)
	projectHandler := handler.NewProjectHandler(projectService)
	chatHandler := handler.NewChatHandler(chatService, projectService)

	// 9. 注册路由
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(jwtManager))
	{
		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.DELETE("/:id", documentHandler.Delete)
			documents.POST("/:id/reprocess", documentHandler.Reprocess)
			documents.GET("/:id/download", documentHandler.Download)
			documents.GET("/:id/preview", documentHandler.Preview)
		}

		apiV1.GET("/context", contextHandler.Preview)

		profile := apiV1.Group("/profile")
		{
			profile.GET("", profileHandler.Get)
			profile.PUT("", profileHandler.Update)
			profile.POST("/extract", profileHandler.Extract)
		}

		projects := apiV1.Group("/projects")
		{
			projects.POST("", projectHandler.Create)
			projects.GET("", projectHandler.List)
			projects.GET("/:id", projectHandler.Get)
			projects.PUT("/:id/markup", projectHandler.UpdateMarkup)
			projects.POST("/:id/compile", projectHandler.Compile)
			projects.POST("/:id/repair", projectHandler.Repair)
			projects.GET("/:id/compile-state", projectHandler.CompileState)
			projects.GET("/:id/artifact", projectHandler.Artifact)
			projects.GET("/:id/messages", projectHandler.Messages)
			projects.POST("/:id/chat", chatHandler.Send)
			projects.GET("/:id/events", chatHandler.Events)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 停止 Kafka 消费者和等待中的防抖编译
	stop()
	registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
