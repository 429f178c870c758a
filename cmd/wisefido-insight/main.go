package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	logpkg "wisefido-insight/internal/logger"

	"go.uber.org/zap"
	"wisefido-insight/internal/config"
	"wisefido-insight/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Service.Name)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting wisefido-insight service",
		zap.String("version", "1.0.0"),
		zap.String("http_addr", cfg.Service.HTTPAddr),
		zap.String("refresh_stream", cfg.Stream.Name),
		zap.String("session_prefix", cfg.Insight.SessionKeyPrefix),
		zap.Int("session_ttl_hours", cfg.Insight.SessionTTL),
	)

	// 创建服务
	insightService, err := service.NewInsightService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create insight service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 在 goroutine 中启动服务
	errCh := make(chan error, 1)
	go func() {
		errCh <- insightService.Start(ctx)
	}()

	// 等待中断信号或组件失败
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil {
			logger.Error("Service component failed, shutting down", zap.Error(err))
		}
		cancel()
	}

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := insightService.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Service stopped")
}
