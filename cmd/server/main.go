package main

import (
	"log"
	"time"

	"flowdesk/config"
	"flowdesk/internal/dedupe"
	"flowdesk/internal/handler"
	"flowdesk/internal/httpserver"
	"flowdesk/internal/ratelimit"
	"flowdesk/internal/repository"
	"flowdesk/internal/service/auth"
	"flowdesk/internal/service/authflow"
	"flowdesk/internal/service/automation"
	"flowdesk/internal/service/credential"
	"flowdesk/internal/service/mailbox"
	"flowdesk/internal/service/provider"
	"flowdesk/internal/service/synccache"
	"flowdesk/internal/service/task"
	"flowdesk/pkg/db"
	"flowdesk/pkg/logger"
	"flowdesk/pkg/mq"
	"flowdesk/pkg/redis"

	"go.uber.org/zap"
)

func main() {
	// 1. Load config
	cfg := config.Load()

	zlog := logger.NewLogger()
	defer zlog.Sync()

	// 2. Init DB
	dbConn, err := db.NewConnection(cfg.DB, zlog)
	if err != nil {
		zlog.Fatal("DB initialization failed", zap.Error(err))
	}

	// 3. Init Redis
	rdb := redis.NewRedisClient(cfg.Redis)

	// 4. Init RabbitMQ Producer
	producer, err := mq.NewProducer(cfg.MQ.URL)
	if err != nil {
		log.Fatalf("failed to init producer: %v", err)
	}
	defer producer.Close()

	// 5. Init repositories
	userRepo := repository.NewUserRepository(dbConn)
	credRepo := repository.NewCredentialRepository(dbConn)
	taskRepo := repository.NewTaskRepository(dbConn)
	settingsRepo := repository.NewSettingsRepository(dbConn)
	eventRepo := repository.NewEventRepository(dbConn)

	// 6. Init credential store and provider adapters
	oauthConfigs := credential.NewConfigs(cfg.OAuth)
	credStore := credential.NewStore(credRepo, oauthConfigs, zlog)
	registry := provider.NewRegistry(
		provider.NewGmailAdapter(credStore, zlog),
		provider.NewOutlookAdapter(credStore, zlog),
	)

	// 7. Init cache and authorization flow
	cache := synccache.NewCache(synccache.NewRedisStore(rdb), zlog)
	states := authflow.NewRedisStateStore(rdb)
	flow := authflow.NewService(oauthConfigs, credStore, states, cache, eventRepo, registry, zlog)

	// 8. Init task, mailbox and automation services
	taskSvc := task.NewService(taskRepo, zlog)
	mailboxSvc := mailbox.NewService(registry, credStore, cache, settingsRepo, eventRepo, producer, cfg.Sync.PageLimit, zlog)

	limiter := ratelimit.NewRedisLimiter(rdb,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		cfg.RateLimit.MaxEvents,
	)
	engine := automation.NewEngine(
		limiter,
		dedupe.NewDeduper(rdb),
		settingsRepo,
		taskSvc,
		cache,
		eventRepo,
		producer,
		zlog,
	)

	authService := auth.NewService(userRepo, cfg.JWT.Secret)

	// 9. Init handlers
	authHandler := handler.NewAuthHandler(authService, zlog)
	integrationHandler := handler.NewIntegrationHandler(flow, mailboxSvc, eventRepo, zlog)
	emailHandler := handler.NewEmailHandler(mailboxSvc, engine, settingsRepo, zlog)
	taskHandler := handler.NewTaskHandler(taskSvc, zlog)

	// 10. Init router and run
	router := httpserver.NewRouter(
		authHandler,
		integrationHandler,
		emailHandler,
		taskHandler,
		cfg.JWT.Secret,
		cfg.Webhook.Secret,
	)

	zlog.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(cfg.Server.Port); err != nil {
		zlog.Fatal("server start failed", zap.Error(err))
	}
}
