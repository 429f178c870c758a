package consumer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-insight/internal/config"
	"wisefido-insight/internal/models"
)

func setupTestBridge(t *testing.T) (*redis.Client, *MQTTBridge) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Stream.Name = "insight:refresh:stream"
	cfg.MQTT.Topic = "insight/refresh/+"
	cfg.MQTT.QoS = 1

	logger := zap.NewNop()
	bridge := NewMQTTBridge(cfg, nil, redisClient, logger)

	return redisClient, bridge
}

func readStreamEvents(t *testing.T, redisClient *redis.Client, stream string) []models.RefreshEvent {
	t.Helper()
	msgs, err := redisClient.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)

	var events []models.RefreshEvent
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		require.True(t, ok)
		var event models.RefreshEvent
		require.NoError(t, json.Unmarshal([]byte(data), &event))
		events = append(events, event)
	}
	return events
}

func TestBridge_RepublishesToStream(t *testing.T) {
	redisClient, bridge := setupTestBridge(t)

	event := models.RefreshEvent{
		EventID:   "evt-1",
		SessionID: "sess-1",
		TenantID:  "tenant-1",
		Timestamp: 1700000000000,
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	err = bridge.handleMessage("insight/refresh/sess-1", payload)
	require.NoError(t, err)

	events := readStreamEvents(t, redisClient, "insight:refresh:stream")
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].EventID)
	assert.Equal(t, "sess-1", events[0].SessionID)
	assert.Equal(t, "tenant-1", events[0].TenantID)
}

func TestBridge_SessionIDFallsBackToTopic(t *testing.T) {
	redisClient, bridge := setupTestBridge(t)

	// payload 不带 session_id，主题尾段补上
	err := bridge.handleMessage("insight/refresh/sess-42", []byte(`{"event_id":"evt-1"}`))
	require.NoError(t, err)

	events := readStreamEvents(t, redisClient, "insight:refresh:stream")
	require.Len(t, events, 1)
	assert.Equal(t, "sess-42", events[0].SessionID)
}

func TestBridge_StampsMissingEventID(t *testing.T) {
	redisClient, bridge := setupTestBridge(t)

	err := bridge.handleMessage("insight/refresh/sess-9", []byte(`{"timestamp":1700000000000}`))
	require.NoError(t, err)

	events := readStreamEvents(t, redisClient, "insight:refresh:stream")
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].EventID)
	assert.Equal(t, "sess-9", events[0].SessionID)
}

func TestBridge_RejectsUnresolvableSession(t *testing.T) {
	redisClient, bridge := setupTestBridge(t)

	err := bridge.handleMessage("insight", []byte(`{"event_id":"evt-1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing session_id")

	msgs, err := redisClient.XRange(context.Background(), "insight:refresh:stream", "-", "+").Result()
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBridge_RejectsMalformedPayload(t *testing.T) {
	_, bridge := setupTestBridge(t)

	err := bridge.handleMessage("insight/refresh/sess-1", []byte("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal refresh event")
}

func TestSessionIDFromTopic(t *testing.T) {
	assert.Equal(t, "sess-1", sessionIDFromTopic("insight/refresh/sess-1"))
	assert.Equal(t, "", sessionIDFromTopic("insight/refresh"))
	assert.Equal(t, "", sessionIDFromTopic("insight"))
}
