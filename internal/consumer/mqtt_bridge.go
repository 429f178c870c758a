package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-insight/internal/config"
	"wisefido-insight/internal/models"
	mqttcommon "wisefido-insight/internal/mqtt"
	rediscommon "wisefido-insight/internal/redis"
)

// MQTTBridge MQTT 刷新事件旁路
// 面板端可以走 MQTT 上报刷新事件（主题 insight/refresh/{session_id}），
// 桥接器统一转投 Redis Streams，引擎只消费一个入口
type MQTTBridge struct {
	config      *config.Config
	mqttClient  *mqttcommon.Client
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMQTTBridge 创建 MQTT 桥接器
func NewMQTTBridge(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	redisClient *redis.Client,
	logger *zap.Logger,
) *MQTTBridge {
	return &MQTTBridge{
		config:      cfg,
		mqttClient:  mqttClient,
		redisClient: redisClient,
		logger:      logger,
	}
}

// Start 启动桥接器
func (b *MQTTBridge) Start(ctx context.Context) error {
	topic := b.config.MQTT.Topic
	if topic == "" {
		return fmt.Errorf("insight MQTT topic not configured")
	}

	if err := b.mqttClient.Subscribe(topic, b.config.MQTT.QoS, b.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to insight topic: %w", err)
	}

	b.logger.Info("MQTT bridge started",
		zap.String("topic", topic),
		zap.String("stream", b.config.Stream.Name),
	)

	// 等待上下文取消
	<-ctx.Done()
	return nil
}

// Stop 停止桥接器
func (b *MQTTBridge) Stop(ctx context.Context) error {
	topic := b.config.MQTT.Topic
	if topic != "" {
		if err := b.mqttClient.Unsubscribe(topic); err != nil {
			b.logger.Error("Failed to unsubscribe", zap.Error(err))
		}
	}

	b.logger.Info("MQTT bridge stopped")
	return nil
}

// handleMessage 处理MQTT消息
func (b *MQTTBridge) handleMessage(topic string, payload []byte) error {
	b.logger.Debug("Received MQTT refresh event",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var event models.RefreshEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to unmarshal refresh event: %w", err)
	}

	// 主题尾段是会话 ID，payload 未携带时兜底
	if event.SessionID == "" {
		event.SessionID = sessionIDFromTopic(topic)
	}
	if event.SessionID == "" {
		return fmt.Errorf("refresh event missing session_id on topic %s", topic)
	}
	// 事件 ID 缺失时在入口补齐，日志里才能追踪同一事件的流转
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}

	if _, err := rediscommon.PublishJSONToStream(context.Background(), b.redisClient, b.config.Stream.Name, &event); err != nil {
		return fmt.Errorf("failed to publish refresh event to stream: %w", err)
	}

	return nil
}

// sessionIDFromTopic 从主题 insight/refresh/{session_id} 提取会话 ID
func sessionIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}
