package scheduler

import (
	"sync"
	"time"
)

// Metrics 调度器运行统计
type Metrics struct {
	mu sync.RWMutex

	// 刷新事件统计
	RefreshesSeen    int64 // 收到的刷新事件总数
	RefreshesDropped int64 // in-flight 期间丢弃的刷新
	GuardRejections  int64 // 守卫条件不满足而跳过的刷新
	EmptyDiffs       int64 // 无增量数据的空转

	// 更新周期统计
	CyclesStarted   int64 // 发起模型调用的周期数
	CyclesCommitted int64 // 完整成功并推进水位线的周期数
	CyclesFailed    int64 // 失败的周期数

	// 性能统计
	TotalCycleTime time.Duration // 成功周期累计耗时
	LastCycleTime  time.Time     // 最后一次成功提交时间
}

// GetSnapshot 获取统计快照
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		RefreshesSeen:    m.RefreshesSeen,
		RefreshesDropped: m.RefreshesDropped,
		GuardRejections:  m.GuardRejections,
		EmptyDiffs:       m.EmptyDiffs,
		CyclesStarted:    m.CyclesStarted,
		CyclesCommitted:  m.CyclesCommitted,
		CyclesFailed:     m.CyclesFailed,
		TotalCycleTime:   m.TotalCycleTime,
		LastCycleTime:    m.LastCycleTime,
	}
}

// IncrementRefresh 增加刷新事件计数
func (m *Metrics) IncrementRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshesSeen++
}

// IncrementDropped 增加丢弃计数
func (m *Metrics) IncrementDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshesDropped++
}

// IncrementGuardRejected 增加守卫跳过计数
func (m *Metrics) IncrementGuardRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GuardRejections++
}

// IncrementEmptyDiff 增加空增量计数
func (m *Metrics) IncrementEmptyDiff() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmptyDiffs++
}

// IncrementStarted 增加周期发起计数
func (m *Metrics) IncrementStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesStarted++
}

// IncrementCommitted 增加成功提交计数
func (m *Metrics) IncrementCommitted(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesCommitted++
	m.TotalCycleTime += duration
	m.LastCycleTime = time.Now()
}

// IncrementFailed 增加失败计数
func (m *Metrics) IncrementFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CyclesFailed++
}
