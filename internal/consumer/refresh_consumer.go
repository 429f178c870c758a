package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-insight/internal/config"
	"wisefido-insight/internal/models"
	rediscommon "wisefido-insight/internal/redis"
)

// Metrics 消费者指标
type Metrics struct {
	mu sync.RWMutex

	// 消息处理统计
	MessagesProcessed int64 // 处理的消息总数
	MessagesSucceeded int64 // 成功处理的消息数
	MessagesFailed    int64 // 处理失败的消息数

	// 错误分类统计
	ErrorsParse int64 // 解析错误

	// 性能指标
	TotalProcessingTime time.Duration // 总处理时间
	LastProcessTime     time.Time     // 最后处理时间

	// 启动时间
	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		MessagesProcessed:   m.MessagesProcessed,
		MessagesSucceeded:   m.MessagesSucceeded,
		MessagesFailed:      m.MessagesFailed,
		ErrorsParse:         m.ErrorsParse,
		TotalProcessingTime: m.TotalProcessingTime,
		LastProcessTime:     m.LastProcessTime,
		StartTime:           m.StartTime,
	}
}

// IncrementProcessed 增加处理计数
func (m *Metrics) IncrementProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesProcessed++
	m.LastProcessTime = time.Now()
}

// IncrementSucceeded 增加成功计数
func (m *Metrics) IncrementSucceeded(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSucceeded++
	m.TotalProcessingTime += duration
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesFailed++
}

// IncrementParseError 增加解析错误计数
func (m *Metrics) IncrementParseError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorsParse++
}

// RefreshHandler 刷新事件处理方（洞察引擎）
type RefreshHandler interface {
	OnRefresh(ctx context.Context, event *models.RefreshEvent) error
}

// RefreshConsumer 刷新事件 Redis Streams 消费者
type RefreshConsumer struct {
	config      *config.Config
	redisClient *redis.Client
	handler     RefreshHandler
	logger      *zap.Logger
	metrics     *Metrics
}

// NewRefreshConsumer 创建刷新事件消费者
func NewRefreshConsumer(
	cfg *config.Config,
	redisClient *redis.Client,
	handler RefreshHandler,
	logger *zap.Logger,
) *RefreshConsumer {
	return &RefreshConsumer{
		config:      cfg,
		redisClient: redisClient,
		handler:     handler,
		logger:      logger,
		metrics: &Metrics{
			StartTime: time.Now(),
		},
	}
}

// GetMetrics 获取指标快照
func (c *RefreshConsumer) GetMetrics() Metrics {
	return c.metrics.GetSnapshot()
}

// Start 启动消费者
func (c *RefreshConsumer) Start(ctx context.Context) error {
	// 创建消费者组
	stream := c.config.Stream.Name
	if err := rediscommon.CreateConsumerGroup(ctx, c.redisClient, stream, c.config.Stream.ConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
	}

	c.logger.Info("Refresh consumer started",
		zap.String("consumer_group", c.config.Stream.ConsumerGroup),
		zap.String("consumer_name", c.config.Stream.ConsumerName),
		zap.String("stream", stream),
	)

	// 启动指标报告协程
	metricsCtx, metricsCancel := context.WithCancel(ctx)
	defer metricsCancel()
	go c.reportMetrics(metricsCtx)

	// 启动消费循环
	backoffDuration := time.Second // 初始退避时间
	maxBackoff := 30 * time.Second // 最大退避时间

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			if err := c.consumeStream(ctx, stream); err != nil {
				c.logger.Error("Failed to consume stream",
					zap.Error(err),
					zap.Duration("backoff", backoffDuration),
				)

				// 指数退避：等待后重试
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(backoffDuration):
					// 指数退避，但不超过最大值
					backoffDuration *= 2
					if backoffDuration > maxBackoff {
						backoffDuration = maxBackoff
					}
				}
			} else {
				// 成功时重置退避时间
				backoffDuration = time.Second
			}
		}
	}
}

// consumeStream 消费单个 Stream
func (c *RefreshConsumer) consumeStream(ctx context.Context, stream string) error {
	messages, err := rediscommon.ReadFromStream(
		ctx,
		c.redisClient,
		stream,
		c.config.Stream.ConsumerGroup,
		c.config.Stream.ConsumerName,
		int64(c.config.Stream.BatchSize),
	)
	if err != nil {
		return fmt.Errorf("failed to read from stream %s: %w", stream, err)
	}

	for _, msg := range messages {
		if err := c.processMessage(ctx, &msg); err != nil {
			c.logger.Error("Failed to process refresh event",
				zap.String("stream", stream),
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			// 继续处理下一条消息，不中断
		}
	}

	return nil
}

// processMessage 处理单条刷新事件
// 刷新事件是可丢弃的触发信号：同一会话稍后总会有下一次刷新，
// 处理失败只计数不重投
func (c *RefreshConsumer) processMessage(ctx context.Context, msg *rediscommon.StreamMessage) error {
	startTime := time.Now()
	c.metrics.IncrementProcessed()

	event, err := models.ParseRefreshEvent(msg.Values)
	if err != nil {
		c.metrics.IncrementParseError()
		c.metrics.IncrementFailed()
		return fmt.Errorf("failed to parse refresh event: %w", err)
	}

	if err := c.handler.OnRefresh(ctx, event); err != nil {
		c.metrics.IncrementFailed()
		return fmt.Errorf("failed to handle refresh event for session %s: %w", event.SessionID, err)
	}

	c.metrics.IncrementSucceeded(time.Since(startTime))
	return nil
}

// reportMetrics 定期报告指标（每60秒）
func (c *RefreshConsumer) reportMetrics(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := c.metrics.GetSnapshot()
			uptime := time.Since(snapshot.StartTime)

			var avgProcessingTime time.Duration
			if snapshot.MessagesSucceeded > 0 {
				avgProcessingTime = snapshot.TotalProcessingTime / time.Duration(snapshot.MessagesSucceeded)
			}

			successRate := float64(0)
			if snapshot.MessagesProcessed > 0 {
				successRate = float64(snapshot.MessagesSucceeded) / float64(snapshot.MessagesProcessed) * 100
			}

			c.logger.Info("Metrics report",
				zap.Int64("messages_processed", snapshot.MessagesProcessed),
				zap.Int64("messages_succeeded", snapshot.MessagesSucceeded),
				zap.Int64("messages_failed", snapshot.MessagesFailed),
				zap.Int64("errors_parse", snapshot.ErrorsParse),
				zap.Float64("success_rate", successRate),
				zap.Duration("avg_processing_time", avgProcessingTime),
				zap.Duration("uptime", uptime),
			)
		}
	}
}
