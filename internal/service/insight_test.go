package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-insight/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	mr := miniredis.RunT(t)

	cfg := &config.Config{}
	cfg.Service.Name = "wisefido-insight"
	cfg.Service.HTTPAddr = "127.0.0.1:0"
	cfg.Redis.Addr = mr.Addr()
	cfg.Stream.Name = "insight:refresh:stream"
	cfg.Stream.ConsumerGroup = "insight-engine-group"
	cfg.Stream.ConsumerName = "insight-engine-1"
	cfg.Stream.BatchSize = 10
	cfg.Insight.SessionKeyPrefix = "insight:session:"
	cfg.Insight.SessionTTL = 24
	cfg.Insight.LLMTimeout = 60
	cfg.Insight.ForwardTimeout = 15
	return cfg
}

func TestNewInsightService_WiresWithoutOptionalBackends(t *testing.T) {
	cfg := testConfig(t)

	svc, err := NewInsightService(cfg, zap.NewNop())
	require.NoError(t, err)

	// 数据库与 MQTT 未启用时不应创建对应组件
	require.Nil(t, svc.db)
	require.Nil(t, svc.timeseriesRepo)
	require.Nil(t, svc.mqttClient)
	require.Nil(t, svc.mqttBridge)

	require.NotNil(t, svc.store)
	require.NotNil(t, svc.engine)
	require.NotNil(t, svc.refreshConsumer)
	require.NotNil(t, svc.httpServer)

	require.NoError(t, svc.Stop(context.Background()))
}

func TestNewInsightService_RedisRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1" // 无人监听的端口

	_, err := NewInsightService(cfg, zap.NewNop())
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to connect to redis")
}

func TestInsightService_StartStopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t)

	svc, err := NewInsightService(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Start(ctx)
	}()

	// 等待各组件进入运行态后取消
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case startErr := <-done:
		require.NoError(t, startErr)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop after context cancel")
	}

	require.NoError(t, svc.Stop(context.Background()))
}
