package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/supportbot/storebot-go/internal/auth"
	"github.com/supportbot/storebot-go/internal/config"
	"github.com/supportbot/storebot-go/internal/repository"
	"github.com/supportbot/storebot-go/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", envOr("STOREBOT_CONFIG", "configs/storebot.yaml"), "配置文件路径")
	seed := flag.Bool("seed", true, "写入示例商品和示例用户")
	demoEmail := flag.String("demo-email", envOr("DEMO_USER_EMAIL", "demo@example.com"), "示例用户邮箱")
	demoPassword := flag.String("demo-password", envOr("DEMO_USER_PASSWORD", "password123"), "示例用户密码")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zapLogger.Sync()

	ctx := context.Background()
	db, err := repository.Open(cfg.Database)
	if err != nil {
		zapLogger.Fatal("连接数据库失败", zap.Error(err))
	}

	if err := repository.Migrate(ctx, db, zapLogger); err != nil {
		zapLogger.Fatal("数据库迁移失败", zap.Error(err))
	}

	if !*seed {
		return
	}

	if err := repository.SeedCatalog(ctx, repository.NewProductRepository(db), zapLogger); err != nil {
		zapLogger.Fatal("写入示例商品失败", zap.Error(err))
	}

	hash, err := auth.HashPassword(*demoPassword)
	if err != nil {
		zapLogger.Fatal("生成密码哈希失败", zap.Error(err))
	}
	user, err := repository.SeedUser(ctx, repository.NewUserRepository(db), *demoEmail, hash, zapLogger)
	if err != nil {
		zapLogger.Fatal("写入示例用户失败", zap.Error(err))
	}
	zapLogger.Info("初始化完成", zap.Int64("demoUserId", user.ID), zap.String("email", user.Email))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
