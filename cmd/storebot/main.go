package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/supportbot/storebot-go/internal/auth"
	"github.com/supportbot/storebot-go/internal/client"
	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/handler"
	"github.com/supportbot/storebot-go/internal/repository"
	"github.com/supportbot/storebot-go/internal/scheduler"
	"github.com/supportbot/storebot-go/internal/service"
	"github.com/supportbot/storebot-go/pkg/logger"
	"github.com/supportbot/storebot-go/pkg/redis"
	"github.com/supportbot/storebot-go/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", envOr("STOREBOT_CONFIG", "configs/storebot.yaml"), "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化日志
	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Fatal("服务异常退出", zap.Error(err))
	}
	zapLogger.Info("服务已停止")
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zapLogger.Info("storebot 服务启动中...", zap.String("service", cfg.Server.Name))

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Server.Name, cfg.Telemetry, zapLogger)
	if err != nil {
		return fmt.Errorf("初始化链路追踪失败: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			zapLogger.Error("关闭链路追踪失败", zap.Error(err))
		}
	}()

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db, zapLogger); err != nil {
			return err
		}
	}

	rules, err := config.LoadRules(cfg.Chat.RulesPath)
	if err != nil {
		return err
	}

	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		zapLogger.Info("Redis 连接成功", zap.String("host", cfg.Redis.Host), zap.Int("port", cfg.Redis.Port))
	}

	products, orders, err := newCatalog(cfg, db, zapLogger)
	if err != nil {
		return err
	}

	// 初始化服务
	var store service.ContextStore = service.NewMemoryContextStore()
	if cfg.Chat.ContextStore == config.ContextStoreRedis {
		store = service.NewRedisContextStore(redisClient, cfg.Chat.ContextMaxIdle)
	}
	var locker service.OwnerLocker = service.NewMemoryLocker()
	if redisClient != nil {
		locker = service.NewRedisLocker(redisClient, cfg.Chat.LockTTL, zapLogger)
	}

	seed := cfg.Chat.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	responses, err := service.NewResponseService(rules, products, orders, service.NewPicker(seed), zapLogger)
	if err != nil {
		return err
	}
	contexts := service.NewContextService(store, rules.StageTransitions, zapLogger)
	chatService := service.NewChatService(
		repository.NewMessageRepository(db),
		service.NewClassifierService(rules, zapLogger),
		contexts,
		responses,
		locker,
		rules.Suggestions,
		cfg.Chat,
		zapLogger,
	)
	sessionService := service.NewSessionService(cfg.WebSocket, zapLogger)

	tokens := auth.NewTokenService(cfg.Auth)
	identity := auth.NewIdentityService(tokens, repository.NewUserRepository(db), zapLogger)

	// 初始化路由
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(cfg.Server, handler.Handlers{
		API:       handler.NewAPIHandler(cfg.Server.Name, sessionService, identity, zapLogger),
		Chat:      handler.NewChatHandler(chatService, zapLogger),
		WebSocket: handler.NewWebSocketHandler(sessionService, chatService, identity, cfg.Server.AllowedOrigins, cfg.Chat, zapLogger),
	}, identity, zapLogger)
	server := handler.NewServer(cfg.Server, cfg.Addr(), router, zapLogger)
	sweeper := scheduler.NewScheduler(contexts, cfg.Chat, zapLogger)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error { return server.Run(egCtx) })
	eg.Go(func() error { return sessionService.Run(egCtx) })
	eg.Go(func() error { return sweeper.Run(egCtx) })
	return eg.Wait()
}

// newCatalog 按配置选择商品与订单数据源
func newCatalog(cfg *config.Config, db *gorm.DB, zapLogger *zap.Logger) (service.ProductFinder, service.OrderFinder, error) {
	var (
		products client.ProductSource
		orders   service.OrderFinder
	)
	switch cfg.Catalog.Source {
	case config.CatalogSourceHTTP:
		catalog := client.NewCatalogClient(cfg.Catalog, zapLogger)
		products, orders = catalog, catalog
	default:
		products = repository.NewProductRepository(db)
		orders = repository.NewOrderRepository(db)
	}
	zapLogger.Info("商品数据源", zap.String("source", cfg.Catalog.Source))

	if cfg.Catalog.CacheSize <= 0 {
		return products, orders, nil
	}
	cached, err := client.NewCachedProductFinder(products, cfg.Catalog.CacheSize, cfg.Catalog.CacheTTL)
	if err != nil {
		return nil, nil, err
	}
	return cached, orders, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
