package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-insight/internal/models"
)

func f64Ptr(v float64) *float64 {
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestResolveWindow_Relative(t *testing.T) {
	now := time.UnixMilli(1_000_000)

	cases := []struct {
		amount int
		unit   string
		want   int64
	}{
		{30, "s", 30_000},
		{5, "m", 300_000},
		{1, "h", 3_600_000},
		{1, "d", 86_400_000},
	}

	for _, c := range cases {
		from, to, err := ResolveWindow(models.WindowSpec{Type: models.WindowRelative, Amount: c.amount, Unit: c.unit}, now, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, now.UnixMilli(), to)
		assert.Equal(t, now.UnixMilli()-c.want, from)
	}
}

func TestResolveWindow_RelativeInvalid(t *testing.T) {
	now := time.Now()

	_, _, err := ResolveWindow(models.WindowSpec{Type: models.WindowRelative, Amount: 5, Unit: "w"}, now, 0, 0)
	assert.Error(t, err)

	_, _, err = ResolveWindow(models.WindowSpec{Type: models.WindowRelative, Amount: 0, Unit: "m"}, now, 0, 0)
	assert.Error(t, err)
}

func TestResolveWindow_Absolute(t *testing.T) {
	from, to, err := ResolveWindow(models.WindowSpec{Type: models.WindowAbsolute, From: 100, To: 200}, time.Now(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), from)
	assert.Equal(t, int64(200), to)

	// from > to 非法
	_, _, err = ResolveWindow(models.WindowSpec{Type: models.WindowAbsolute, From: 300, To: 200}, time.Now(), 0, 0)
	assert.Error(t, err)
}

func TestResolveWindow_Dashboard(t *testing.T) {
	from, to, err := ResolveWindow(models.WindowSpec{Type: models.WindowDashboard}, time.Now(), 500, 900)
	require.NoError(t, err)
	assert.Equal(t, int64(500), from)
	assert.Equal(t, int64(900), to)

	// 环境范围缺失
	_, _, err = ResolveWindow(models.WindowSpec{Type: models.WindowDashboard}, time.Now(), 0, 0)
	assert.Error(t, err)
}

func TestSelectWindow_RangeBoundaries(t *testing.T) {
	times := []int64{100, 200, 300, 400, 500}
	values := []*float64{f64Ptr(1), f64Ptr(2), f64Ptr(3), f64Ptr(4), f64Ptr(5)}

	// [200, 400] 闭区间：from/to 边界都包含
	samples, latest := SelectWindow(times, values, SelectOptions{From: 200, To: 400})

	require.Len(t, samples, 3)
	assert.Equal(t, Sample{Timestamp: 200, Value: 2}, samples[0])
	assert.Equal(t, Sample{Timestamp: 400, Value: 4}, samples[2])
	require.NotNil(t, latest)
	assert.Equal(t, int64(400), *latest)
}

func TestSelectWindow_ExtendsToLastSample(t *testing.T) {
	times := []int64{100, 200, 300}
	values := []*float64{f64Ptr(1), f64Ptr(2), f64Ptr(3)}

	// to 超出序列末尾时窗口延伸到最后一个采样
	samples, latest := SelectWindow(times, values, SelectOptions{From: 150, To: 10_000})

	require.Len(t, samples, 2)
	require.NotNil(t, latest)
	assert.Equal(t, int64(300), *latest)
}

func TestSelectWindow_NoDataYet(t *testing.T) {
	times := []int64{100, 200}
	values := []*float64{f64Ptr(1), f64Ptr(2)}

	// 窗口在所有采样之后：空结果 + nil 时间戳，不是错误
	samples, latest := SelectWindow(times, values, SelectOptions{From: 300, To: 400})
	assert.Empty(t, samples)
	assert.Nil(t, latest)

	// 窗口在所有采样之前
	samples, latest = SelectWindow(times, values, SelectOptions{From: 0, To: 50})
	assert.Empty(t, samples)
	assert.Nil(t, latest)

	// 空序列
	samples, latest = SelectWindow(nil, nil, SelectOptions{From: 0, To: 100})
	assert.Empty(t, samples)
	assert.Nil(t, latest)
}

func TestSelectWindow_SinceIsStrict(t *testing.T) {
	times := []int64{900, 1000, 1100}
	values := []*float64{f64Ptr(1), f64Ptr(2), f64Ptr(3)}

	// 与水位线相等的采样不入选
	samples, latest := SelectWindow(times, values, SelectOptions{From: 0, To: 2000, Since: int64Ptr(1000)})

	require.Len(t, samples, 1)
	assert.Equal(t, int64(1100), samples[0].Timestamp)
	// 被滤掉的采样仍计入观察到的最大时间戳
	require.NotNil(t, latest)
	assert.Equal(t, int64(1100), *latest)
}

func TestSelectWindow_LatestTracksFilteredSamples(t *testing.T) {
	times := []int64{900, 1000}
	values := []*float64{f64Ptr(1), f64Ptr(2)}

	// 全部被水位线滤掉：批为空但最大时间戳仍然返回
	samples, latest := SelectWindow(times, values, SelectOptions{From: 0, To: 2000, Since: int64Ptr(1500)})

	assert.Empty(t, samples)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1000), *latest)
}

func TestSelectWindow_CadenceFloor(t *testing.T) {
	times := []int64{100, 5000, 9000, 10_000}
	values := []*float64{f64Ptr(1), f64Ptr(2), f64Ptr(3), f64Ptr(4)}

	// 下限 = 10000 - 2000 = 8000，100/5000 被滤掉
	samples, latest := SelectWindow(times, values, SelectOptions{
		From:      0,
		To:        20_000,
		Since:     int64Ptr(0),
		CadenceMS: 2000,
	})

	require.Len(t, samples, 2)
	assert.Equal(t, int64(9000), samples[0].Timestamp)
	assert.Equal(t, int64(10_000), samples[1].Timestamp)
	require.NotNil(t, latest)
	assert.Equal(t, int64(10_000), *latest)
}

func TestSelectWindow_CadenceIgnoredWithoutWatermark(t *testing.T) {
	times := []int64{100, 10_000}
	values := []*float64{f64Ptr(1), f64Ptr(2)}

	// 没有水位线时节拍下限不生效
	samples, _ := SelectWindow(times, values, SelectOptions{From: 0, To: 20_000, CadenceMS: 2000})
	assert.Len(t, samples, 2)
}

func TestSelectWindow_SkipsNullValues(t *testing.T) {
	times := []int64{100, 200, 300}
	values := []*float64{f64Ptr(1), nil, f64Ptr(3)}

	samples, latest := SelectWindow(times, values, SelectOptions{From: 0, To: 1000})

	require.Len(t, samples, 2)
	assert.Equal(t, int64(100), samples[0].Timestamp)
	assert.Equal(t, int64(300), samples[1].Timestamp)
	require.NotNil(t, latest)
	assert.Equal(t, int64(300), *latest)
}

func TestSelectWindow_TrailingNullStillCountsForLatest(t *testing.T) {
	times := []int64{100, 200}
	values := []*float64{f64Ptr(1), nil}

	samples, latest := SelectWindow(times, values, SelectOptions{From: 0, To: 1000})

	require.Len(t, samples, 1)
	require.NotNil(t, latest)
	assert.Equal(t, int64(200), *latest)
}
