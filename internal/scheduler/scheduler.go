package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-insight/internal/llm"
	"wisefido-insight/internal/models"
	"wisefido-insight/internal/session"
	"wisefido-insight/internal/timeseries"
)

// State 会话调度状态
type State string

const (
	StateIdle       State = "idle"
	StateEvaluating State = "evaluating"
	StateInFlight   State = "in_flight"
	StateCommitting State = "committing"
)

// ErrCycleInFlight 会话已有模型调用在途
var ErrCycleInFlight = errors.New("model call already in flight for this session")

// defaultAutoPrompt 周期请求未配置提问时的兜底提示
const defaultAutoPrompt = "New panel data has arrived. Summarize what changed."

// ModelCaller 模型调用接口
type ModelCaller interface {
	Chat(ctx context.Context, cfg llm.Config, systemPrompt string, messages []models.ChatMessage, panelData string) (*llm.Reply, error)
}

// PayloadForwarder 控制端点转发接口
type PayloadForwarder interface {
	Forward(ctx context.Context, rawText, endpointURL, method, headerSpec string) error
}

// FrameSource 拉模式数据源，刷新事件不带内联数据时按窗口查询
type FrameSource interface {
	FetchFrames(ctx context.Context, tenantID string, source models.PullSourceConfig, from, to int64) ([]models.Frame, error)
}

// sessionGuard 单会话互斥状态
// in-flight 标志保证同一会话至多一个周期在途；在途期间到达的刷新直接丢弃，
// 完成后的下一次刷新会基于水位线一次性补齐积压的增量
type sessionGuard struct {
	mu       sync.Mutex
	inFlight bool
	state    State
}

// Scheduler 自动更新调度器
// 对每个刷新事件判定守卫条件、计算增量、发起模型调用，
// 完整成功后才推进水位线
type Scheduler struct {
	store     *session.Store
	caller    ModelCaller
	forwarder PayloadForwarder
	frames    FrameSource
	logger    *zap.Logger
	metrics   *Metrics

	mu     sync.Mutex
	guards map[string]*sessionGuard
}

// NewScheduler 创建调度器，frames 可为 nil（纯推模式部署）
func NewScheduler(store *session.Store, caller ModelCaller, fwd PayloadForwarder, frames FrameSource, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		caller:    caller,
		forwarder: fwd,
		frames:    frames,
		logger:    logger,
		metrics:   &Metrics{},
		guards:    make(map[string]*sessionGuard),
	}
}

func (s *Scheduler) guardFor(sessionID string) *sessionGuard {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[sessionID]
	if !ok {
		g = &sessionGuard{state: StateIdle}
		s.guards[sessionID] = g
	}
	return g
}

// Forget 清理会话的调度状态，会话删除时调用
func (s *Scheduler) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.guards, sessionID)
}

// SessionState 返回会话当前调度状态
func (s *Scheduler) SessionState(sessionID string) State {
	s.mu.Lock()
	g, ok := s.guards[sessionID]
	s.mu.Unlock()
	if !ok {
		return StateIdle
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// GetMetrics 获取调度统计快照
func (s *Scheduler) GetMetrics() Metrics {
	return s.metrics.GetSnapshot()
}

// reload 提交前重读最新会话，读不到时退回周期开始的快照
// 会话整体序列化存储，直接保存旧快照会覆盖周期进行中排队的新提问
func (s *Scheduler) reload(ctx context.Context, state *models.SessionState) *models.SessionState {
	fresh, err := s.store.Get(ctx, state.SessionID)
	if err != nil {
		return state
	}
	return fresh
}

// OnRefresh 处理一次上游刷新事件
// 守卫条件：自动更新开启、面板数据上送开启、至少选择一个字段、
// 水位线已建立（首次手动带数据发送之后）、当前无在途周期。
// 守卫不过或增量为空都是正常空转，不产生副作用。
func (s *Scheduler) OnRefresh(ctx context.Context, event *models.RefreshEvent) error {
	s.metrics.IncrementRefresh()

	guard := s.guardFor(event.SessionID)
	guard.mu.Lock()

	if guard.inFlight {
		guard.mu.Unlock()
		s.metrics.IncrementDropped()
		s.logger.Debug("Refresh dropped, cycle already in flight",
			zap.String("session_id", event.SessionID),
		)
		return nil
	}

	state, err := s.store.Get(ctx, event.SessionID)
	if err != nil {
		guard.mu.Unlock()
		return fmt.Errorf("failed to load session %s: %w", event.SessionID, err)
	}
	cfg := state.Config

	if !cfg.AutoUpdate || !cfg.IncludePanelData || len(cfg.SelectedFields) == 0 || state.Watermark == nil {
		guard.mu.Unlock()
		s.metrics.IncrementGuardRejected()
		s.logger.Debug("Refresh skipped by guard",
			zap.String("session_id", event.SessionID),
			zap.Bool("auto_update", cfg.AutoUpdate),
			zap.Bool("include_panel_data", cfg.IncludePanelData),
			zap.Int("selected_fields", len(cfg.SelectedFields)),
			zap.Bool("has_watermark", state.Watermark != nil),
		)
		return nil
	}

	guard.state = StateEvaluating

	from, to, err := timeseries.ResolveWindow(cfg.Window, time.Now(), event.RangeFrom, event.RangeTo)
	if err != nil {
		guard.state = StateIdle
		guard.mu.Unlock()
		err = fmt.Errorf("failed to resolve window: %w", err)
		s.failCycle(ctx, state, err)
		return err
	}

	frames := event.Frames
	if len(frames) == 0 && s.frames != nil && cfg.PullSource != nil {
		frames, err = s.frames.FetchFrames(ctx, state.TenantID, *cfg.PullSource, from, to)
		if err != nil {
			guard.state = StateIdle
			guard.mu.Unlock()
			err = fmt.Errorf("failed to fetch frames: %w", err)
			s.failCycle(ctx, state, err)
			return err
		}
	}

	cadenceMS := int64(cfg.UpdateInterval) * 1000
	batch, newWatermark := timeseries.Diff(frames, cfg.SelectedFields, timeseries.DiffOptions{
		From:      from,
		To:        to,
		Watermark: state.Watermark,
		CadenceMS: cadenceMS,
	})
	if len(batch) == 0 || newWatermark == nil {
		guard.state = StateIdle
		guard.mu.Unlock()
		s.metrics.IncrementEmptyDiff()
		return nil
	}

	guard.inFlight = true
	guard.state = StateInFlight
	prompt := state.PendingPrompt
	guard.mu.Unlock()

	s.metrics.IncrementStarted()
	started := time.Now()

	err = s.runAutoCycle(ctx, guard, state, batch, *newWatermark, prompt)

	guard.mu.Lock()
	guard.inFlight = false
	guard.state = StateIdle
	guard.mu.Unlock()

	if err != nil {
		return err
	}
	s.metrics.IncrementCommitted(time.Since(started))
	return nil
}

// runAutoCycle 执行一次自动更新周期：模型调用 → 可选转发 → 提交
// 任何一步失败都不推进水位线、不消费排队提问，
// 下一个合格刷新会重算出同一批增量自动重试
func (s *Scheduler) runAutoCycle(ctx context.Context, guard *sessionGuard, state *models.SessionState, batch timeseries.Batch, batchMax int64, prompt string) error {
	cfg := state.Config

	panelJSON, err := json.Marshal(batch)
	if err != nil {
		err = fmt.Errorf("failed to marshal batch: %w", err)
		s.failCycle(ctx, state, err)
		return err
	}

	content := prompt
	if content == "" {
		content = cfg.AutoPrompt
	}
	if content == "" {
		content = defaultAutoPrompt
	}

	userMsg := models.ChatMessage{
		Role:      models.RoleUser,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
	messages := make([]models.ChatMessage, 0, len(state.Transcript)+1)
	messages = append(messages, state.Transcript...)
	messages = append(messages, userMsg)

	reply, err := s.caller.Chat(ctx, llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}, cfg.SystemPrompt, messages, string(panelJSON))
	if err != nil {
		s.failCycle(ctx, state, err)
		return err
	}

	guard.mu.Lock()
	guard.state = StateCommitting
	guard.mu.Unlock()

	forwarded := false
	if cfg.Forward.Enabled && cfg.Forward.URL != "" {
		// 只转发最终应答文本，推理内容绝不外发；
		// 转发失败视为周期失败，水位线不动，下次重试最多再发一次同批数据
		if err := s.forwarder.Forward(ctx, reply.Text, cfg.Forward.URL, cfg.Forward.Method, cfg.Forward.Headers); err != nil {
			s.failCycle(ctx, state, err)
			return err
		}
		forwarded = true
	}

	asstMsg := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   reply.Text,
		Trace:     reply.Trace,
		Timestamp: time.Now().UnixMilli(),
		Forwarded: forwarded,
	}

	committed := s.reload(ctx, state)
	committed.AdvanceWatermark(batchMax)
	if committed.Watermark != nil {
		v := *committed.Watermark
		asstMsg.WatermarkAfter = &v
	}
	committed.Transcript = append(committed.Transcript, userMsg, asstMsg)
	if committed.PendingPrompt == prompt {
		// 周期进行中排队的新提问留给下一个周期
		committed.PendingPrompt = ""
	}
	committed.LastError = ""

	if err := s.store.Save(ctx, committed); err != nil {
		s.metrics.IncrementFailed()
		s.logger.Error("Failed to persist committed session",
			zap.String("session_id", state.SessionID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist session after commit: %w", err)
	}

	s.logger.Info("Auto-update cycle committed",
		zap.String("session_id", state.SessionID),
		zap.Int("batch_entries", len(batch)),
		zap.Int64("watermark", batchMax),
	)
	return nil
}

// failCycle 记录周期失败，会话保持可重试状态
func (s *Scheduler) failCycle(ctx context.Context, state *models.SessionState, cycleErr error) {
	s.metrics.IncrementFailed()

	fresh := s.reload(ctx, state)
	fresh.LastError = cycleErr.Error()
	if err := s.store.Save(ctx, fresh); err != nil {
		s.logger.Error("Failed to record cycle error",
			zap.String("session_id", state.SessionID),
			zap.Error(err),
		)
	}
	s.logger.Error("Update cycle failed",
		zap.String("session_id", state.SessionID),
		zap.Error(cycleErr),
	)
}

// SubmitRequest 手动发送请求
type SubmitRequest struct {
	SessionID        string
	Message          string
	IncludePanelData bool
	Screenshot       string
	Queue            bool
	Frames           []models.Frame
	RangeFrom        int64
	RangeTo          int64
}

// Submit 手动发送一条用户消息
// Queue 为 true 时只把提问排队给下一个自动更新周期；
// 否则立即调用模型，IncludePanelData 时附带当前窗口快照并建立水位线基线。
// 返回模型应答消息（排队时为 nil）。
func (s *Scheduler) Submit(ctx context.Context, req *SubmitRequest) (*models.ChatMessage, error) {
	guard := s.guardFor(req.SessionID)

	if req.Queue {
		guard.mu.Lock()
		defer guard.mu.Unlock()

		state, err := s.store.Get(ctx, req.SessionID)
		if err != nil {
			return nil, err
		}
		state.PendingPrompt = req.Message
		if err := s.store.Save(ctx, state); err != nil {
			return nil, err
		}
		s.logger.Info("Prompt queued for next cycle",
			zap.String("session_id", req.SessionID),
		)
		return nil, nil
	}

	guard.mu.Lock()
	if guard.inFlight {
		guard.mu.Unlock()
		return nil, ErrCycleInFlight
	}
	guard.inFlight = true
	guard.state = StateInFlight
	guard.mu.Unlock()

	defer func() {
		guard.mu.Lock()
		guard.inFlight = false
		guard.state = StateIdle
		guard.mu.Unlock()
	}()

	state, err := s.store.Get(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	cfg := state.Config

	panelJSON := ""
	var baseline *int64
	if req.IncludePanelData {
		from, to, err := timeseries.ResolveWindow(cfg.Window, time.Now(), req.RangeFrom, req.RangeTo)
		if err != nil {
			return nil, err
		}
		frames := req.Frames
		if len(frames) == 0 && s.frames != nil && cfg.PullSource != nil {
			frames, err = s.frames.FetchFrames(ctx, state.TenantID, *cfg.PullSource, from, to)
			if err != nil {
				return nil, err
			}
		}
		// 手动发送带整个窗口的快照，不做水位线过滤
		batch, _ := timeseries.Diff(frames, cfg.SelectedFields, timeseries.DiffOptions{From: from, To: to})
		if len(batch) > 0 {
			raw, err := json.Marshal(batch)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal batch: %w", err)
			}
			panelJSON = string(raw)
		}
		baseline = timeseries.LatestTimestamp(frames, cfg.SelectedFields, from, to)
	}

	userMsg := models.ChatMessage{
		Role:      models.RoleUser,
		Content:   req.Message,
		Image:     req.Screenshot,
		Timestamp: time.Now().UnixMilli(),
	}
	messages := make([]models.ChatMessage, 0, len(state.Transcript)+1)
	messages = append(messages, state.Transcript...)
	messages = append(messages, userMsg)

	reply, err := s.caller.Chat(ctx, llm.Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}, cfg.SystemPrompt, messages, panelJSON)
	if err != nil {
		fresh := s.reload(ctx, state)
		fresh.LastError = err.Error()
		if saveErr := s.store.Save(ctx, fresh); saveErr != nil {
			s.logger.Error("Failed to record submit error",
				zap.String("session_id", req.SessionID),
				zap.Error(saveErr),
			)
		}
		return nil, err
	}

	asstMsg := models.ChatMessage{
		Role:      models.RoleAssistant,
		Content:   reply.Text,
		Trace:     reply.Trace,
		Timestamp: time.Now().UnixMilli(),
	}

	committed := s.reload(ctx, state)
	if req.IncludePanelData && baseline != nil {
		// 自动更新的基线：之后的周期只看比这更新的数据
		committed.AdvanceWatermark(*baseline)
	}
	committed.LastError = ""

	if cfg.Forward.Enabled && cfg.Forward.URL != "" {
		// 手动发送的转发失败不回滚会话，记录错误后照常提交
		if err := s.forwarder.Forward(ctx, reply.Text, cfg.Forward.URL, cfg.Forward.Method, cfg.Forward.Headers); err != nil {
			committed.LastError = err.Error()
			s.logger.Error("Manual send forward failed",
				zap.String("session_id", req.SessionID),
				zap.Error(err),
			)
		} else {
			asstMsg.Forwarded = true
		}
	}

	if committed.Watermark != nil {
		v := *committed.Watermark
		asstMsg.WatermarkAfter = &v
	}
	committed.Transcript = append(committed.Transcript, userMsg, asstMsg)

	if err := s.store.Save(ctx, committed); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	s.logger.Info("Manual message committed",
		zap.String("session_id", req.SessionID),
		zap.Bool("panel_data", panelJSON != ""),
		zap.Bool("baseline_set", req.IncludePanelData && baseline != nil),
	)
	return &asstMsg, nil
}
