package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"wisefido-insight/internal/models"
)

// measurementColumns 测点白名单：测点名 → iot_timeseries 列名
// 不在白名单内的测点直接报错，列名绝不从配置拼接进 SQL
var measurementColumns = map[string]string{
	"heart_rate":       "heart_rate",
	"respiratory_rate": "respiratory_rate",
	"radar_pos_x":      "radar_pos_x",
	"radar_pos_y":      "radar_pos_y",
	"radar_pos_z":      "radar_pos_z",
}

// defaultMeasurements 拉取源未指定测点时的默认生命体征集合
var defaultMeasurements = []string{"heart_rate", "respiratory_rate"}

// TimeseriesRepository 拉取模式数据源：按会话配置查询 iot_timeseries
type TimeseriesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTimeseriesRepository 创建时序数据 Repository
func NewTimeseriesRepository(db *sql.DB, logger *zap.Logger) *TimeseriesRepository {
	return &TimeseriesRepository{
		db:     db,
		logger: logger,
	}
}

// FetchFrames 查询设备在时间窗口内的观测数据，按设备分组为数据帧
// from/to 为毫秒时间戳（闭区间）；每个设备一帧，字段带 thingId 标签
func (r *TimeseriesRepository) FetchFrames(ctx context.Context, tenantID string, source models.PullSourceConfig, from, to int64) ([]models.Frame, error) {
	if tenantID == "" || len(source.DeviceIDs) == 0 {
		return []models.Frame{}, nil
	}

	measurements := source.Measurements
	if len(measurements) == 0 {
		measurements = defaultMeasurements
	}

	columns := make([]string, 0, len(measurements))
	for _, m := range measurements {
		col, ok := measurementColumns[m]
		if !ok {
			return nil, fmt.Errorf("unsupported measurement %q", m)
		}
		columns = append(columns, col)
	}

	query := fmt.Sprintf(`
		SELECT
			device_id::text,
			timestamp,
			%s
		FROM iot_timeseries
		WHERE tenant_id = $1
		  AND device_id = ANY($2::uuid[])
		  AND data_type = 'observation'
		  AND timestamp >= $3
		  AND timestamp <= $4
		ORDER BY device_id, timestamp
	`, strings.Join(columns, ",\n\t\t\t"))

	rows, err := r.db.QueryContext(ctx, query,
		tenantID,
		pq.Array(source.DeviceIDs),
		time.UnixMilli(from).UTC(),
		time.UnixMilli(to).UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query iot_timeseries: %w", err)
	}
	defer rows.Close()

	var frames []models.Frame
	var current *frameBuilder

	for rows.Next() {
		var deviceID string
		var ts time.Time
		values := make([]sql.NullFloat64, len(measurements))

		dest := make([]any, 0, len(measurements)+2)
		dest = append(dest, &deviceID, &ts)
		for i := range values {
			dest = append(dest, &values[i])
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan iot_timeseries row: %w", err)
		}

		if current == nil || current.deviceID != deviceID {
			if current != nil {
				frames = append(frames, current.build())
			}
			current = newFrameBuilder(deviceID, measurements)
		}
		current.addRow(ts.UnixMilli(), values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate iot_timeseries rows: %w", err)
	}
	if current != nil {
		frames = append(frames, current.build())
	}

	r.logger.Debug("Fetched timeseries frames",
		zap.String("tenant_id", tenantID),
		zap.Int("device_count", len(frames)),
		zap.Int64("from", from),
		zap.Int64("to", to))

	if frames == nil {
		frames = []models.Frame{}
	}
	return frames, nil
}

// frameBuilder 按行累积单个设备的数据帧
type frameBuilder struct {
	deviceID     string
	measurements []string
	times        []int64
	values       [][]*float64 // 与 measurements 等长，每列与 times 对齐
}

func newFrameBuilder(deviceID string, measurements []string) *frameBuilder {
	return &frameBuilder{
		deviceID:     deviceID,
		measurements: measurements,
		values:       make([][]*float64, len(measurements)),
	}
}

func (b *frameBuilder) addRow(ts int64, row []sql.NullFloat64) {
	b.times = append(b.times, ts)
	for i, v := range row {
		if v.Valid {
			val := v.Float64
			b.values[i] = append(b.values[i], &val)
		} else {
			b.values[i] = append(b.values[i], nil)
		}
	}
}

func (b *frameBuilder) build() models.Frame {
	fields := make([]models.Field, 0, len(b.measurements))
	for i, m := range b.measurements {
		fields = append(fields, models.Field{
			Name:   m,
			Labels: map[string]string{"thingId": b.deviceID},
			Values: b.values[i],
		})
	}
	return models.Frame{
		Name:   b.deviceID,
		Times:  b.times,
		Fields: fields,
	}
}
