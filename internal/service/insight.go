package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wisefido-insight/internal/config"
	"wisefido-insight/internal/consumer"
	"wisefido-insight/internal/database"
	"wisefido-insight/internal/forwarder"
	httpapi "wisefido-insight/internal/http"
	"wisefido-insight/internal/llm"
	mqttcommon "wisefido-insight/internal/mqtt"
	rediscommon "wisefido-insight/internal/redis"
	"wisefido-insight/internal/repository"
	"wisefido-insight/internal/scheduler"
	"wisefido-insight/internal/session"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InsightService 面板洞察服务（整合各层）
type InsightService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	logger      *zap.Logger

	// 各层组件
	store           *session.Store
	timeseriesRepo  *repository.TimeseriesRepository
	caller          *llm.Caller
	forwarder       *forwarder.Forwarder
	engine          *scheduler.Scheduler
	refreshConsumer *consumer.RefreshConsumer
	mqttBridge      *consumer.MQTTBridge
	httpServer      *Server
}

// NewInsightService 创建面板洞察服务
func NewInsightService(cfg *config.Config, logger *zap.Logger) (*InsightService, error) {
	// 1. 连接 Redis（会话存储 + 刷新事件流，必需）
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 2. 连接数据库（拉取模式才需要；未启用时调度器只消费推送帧）
	var db *sql.DB
	var timeseriesRepo *repository.TimeseriesRepository
	var frames scheduler.FrameSource
	if cfg.Database.Enabled {
		d, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		db = d
		timeseriesRepo = repository.NewTimeseriesRepository(db, logger)
		frames = timeseriesRepo
	}

	// 3. 创建会话存储
	kv := session.NewRedisKVStore(redisClient)
	store := session.NewStore(
		kv,
		cfg.Insight.SessionKeyPrefix,
		time.Duration(cfg.Insight.SessionTTL)*time.Hour,
		logger,
	)

	// 4. 创建出站调用层
	caller := llm.NewCaller(time.Duration(cfg.Insight.LLMTimeout)*time.Second, logger)
	fwd := forwarder.NewForwarder(time.Duration(cfg.Insight.ForwardTimeout)*time.Second, logger)

	// 5. 创建调度器
	engine := scheduler.NewScheduler(store, caller, fwd, frames, logger)

	// 6. 创建刷新事件消费者
	refreshConsumer := consumer.NewRefreshConsumer(cfg, redisClient, engine, logger)

	// 7. 可选：MQTT 旁路入口（转发到 Stream，统一消费路径）
	var mqttClient *mqttcommon.Client
	var mqttBridge *consumer.MQTTBridge
	if cfg.MQTT.Enabled {
		mc, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
		}
		mqttClient = mc
		mqttBridge = consumer.NewMQTTBridge(cfg, mqttClient, redisClient, logger)
	}

	// 8. 创建 HTTP 层
	router := httpapi.NewRouter(logger)
	sessionHandler := httpapi.NewSessionHandler(store, engine, cfg.Insight.TenantID, logger)
	modelHandler := httpapi.NewModelHandler(caller, logger)
	router.RegisterInsightRoutes(sessionHandler, modelHandler)
	doctor := httpapi.NewDoctorHandler(db, redisClient, logger)
	router.RegisterDoctorRoutes(doctor)
	httpServer := NewServer(cfg.Service.HTTPAddr, router, logger)

	return &InsightService{
		config:          cfg,
		db:              db,
		redisClient:     redisClient,
		mqttClient:      mqttClient,
		logger:          logger,
		store:           store,
		timeseriesRepo:  timeseriesRepo,
		caller:          caller,
		forwarder:       fwd,
		engine:          engine,
		refreshConsumer: refreshConsumer,
		mqttBridge:      mqttBridge,
		httpServer:      httpServer,
	}, nil
}

// Start 启动服务，阻塞到 ctx 取消或任一组件失败
func (s *InsightService) Start(ctx context.Context) error {
	s.logger.Info("Starting insight service",
		zap.String("http_addr", s.config.Service.HTTPAddr),
		zap.Bool("db_enabled", s.config.Database.Enabled),
		zap.Bool("mqtt_enabled", s.config.MQTT.Enabled),
	)

	errCh := make(chan error, 3)

	// 启动刷新事件消费者
	go func() {
		if err := s.refreshConsumer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("refresh consumer failed: %w", err)
		}
	}()

	// 启动 MQTT 桥接器
	if s.mqttBridge != nil {
		go func() {
			if err := s.mqttBridge.Start(ctx); err != nil {
				errCh <- fmt.Errorf("mqtt bridge failed: %w", err)
			}
		}()
	}

	// 启动 HTTP 服务器
	go func() {
		if err := s.httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop 停止服务
func (s *InsightService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping insight service")

	// 先停 HTTP，排空在途请求
	if err := s.httpServer.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop http server", zap.Error(err))
	}

	// 停 MQTT 桥接器
	if s.mqttBridge != nil {
		if err := s.mqttBridge.Stop(ctx); err != nil {
			s.logger.Error("Failed to stop mqtt bridge", zap.Error(err))
		}
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭 Redis 连接
	if err := rediscommon.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	// 关闭数据库连接
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}

	s.logger.Info("Insight service stopped")
	return nil
}
