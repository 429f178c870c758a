package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"wisefido-insight/internal/models"
	"wisefido-insight/internal/scheduler"
	"wisefido-insight/internal/session"
)

// 请求体上限（截图以 data-URL 内联，给足余量）
const maxSessionBodyBytes = 16 << 20

// ChatEngine 会话引擎（调度器）
type ChatEngine interface {
	Submit(ctx context.Context, req *scheduler.SubmitRequest) (*models.ChatMessage, error)
	SessionState(sessionID string) scheduler.State
	Forget(sessionID string)
}

// SessionHandler 面板会话 API
type SessionHandler struct {
	store           *session.Store
	engine          ChatEngine
	defaultTenantID string
	logger          *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(store *session.Store, engine ChatEngine, defaultTenantID string, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		store:           store,
		engine:          engine,
		defaultTenantID: defaultTenantID,
		logger:          logger,
	}
}

type createSessionRequest struct {
	TenantID string               `json:"tenant_id,omitempty"`
	Config   models.SessionConfig `json:"config"`
}

// sessionDetail 会话状态加引擎运行态
type sessionDetail struct {
	*models.SessionState
	EngineState scheduler.State `json:"engine_state"`
}

// Create POST /insight/api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := readBodyJSON(r, maxSessionBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = h.defaultTenantID
	}

	state, err := h.store.Create(r.Context(), tenantID, req.Config)
	if err != nil {
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(sessionDetail{
		SessionState: state,
		EngineState:  h.engine.SessionState(state.SessionID),
	}))
}

// Get GET /insight/api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request, sessionID string) {
	state, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusOK, Fail("session not found"))
			return
		}
		h.logger.Error("Failed to get session", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to get session"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(sessionDetail{
		SessionState: state,
		EngineState:  h.engine.SessionState(sessionID),
	}))
}

// UpdateConfig PUT /insight/api/v1/sessions/{id}/config
// 只替换配置，transcript/水位线等运行状态原样保留
func (h *SessionHandler) UpdateConfig(w http.ResponseWriter, r *http.Request, sessionID string) {
	var cfg models.SessionConfig
	if err := readBodyJSON(r, maxSessionBodyBytes, &cfg); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	if cfg.Provider == "" {
		writeJSON(w, http.StatusOK, Fail("provider is required"))
		return
	}
	if cfg.Forward.Enabled && cfg.Forward.Method == "" {
		cfg.Forward.Method = "POST"
	}

	state, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusOK, Fail("session not found"))
			return
		}
		writeJSON(w, http.StatusOK, Fail("failed to get session"))
		return
	}

	state.Config = cfg
	if err := h.store.Save(r.Context(), state); err != nil {
		h.logger.Error("Failed to update session config", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("failed to update session config"))
		return
	}

	h.logger.Info("Updated session config",
		zap.String("session_id", sessionID),
		zap.String("provider", cfg.Provider),
		zap.Bool("auto_update", cfg.AutoUpdate),
	)
	writeJSON(w, http.StatusOK, Ok(state))
}

// Reset DELETE /insight/api/v1/sessions/{id}
// 默认重置（清空 transcript、水位线、排队提问，保留配置）；
// ?purge=true 时彻底删除会话
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.URL.Query().Get("purge") == "true" {
		if err := h.store.Delete(r.Context(), sessionID); err != nil {
			h.logger.Error("Failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
			writeJSON(w, http.StatusOK, Fail("failed to delete session"))
			return
		}
		h.engine.Forget(sessionID)
		writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": true}))
		return
	}

	state, err := h.store.Reset(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusOK, Fail("session not found"))
			return
		}
		writeJSON(w, http.StatusOK, Fail("failed to reset session"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(state))
}

type chatRequest struct {
	Message          string         `json:"message"`
	IncludePanelData bool           `json:"include_panel_data"`
	Screenshot       string         `json:"screenshot,omitempty"`
	Queue            bool           `json:"queue,omitempty"`
	Frames           []models.Frame `json:"frames,omitempty"`
	RangeFrom        int64          `json:"range_from,omitempty"`
	RangeTo          int64          `json:"range_to,omitempty"`
}

type chatResponse struct {
	Queued bool                `json:"queued"`
	Reply  *models.ChatMessage `json:"reply,omitempty"`
}

// Chat POST /insight/api/v1/sessions/{id}/chat
func (h *SessionHandler) Chat(w http.ResponseWriter, r *http.Request, sessionID string) {
	var req chatRequest
	if err := readBodyJSON(r, maxSessionBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusOK, Fail("message is required"))
		return
	}

	reply, err := h.engine.Submit(r.Context(), &scheduler.SubmitRequest{
		SessionID:        sessionID,
		Message:          req.Message,
		IncludePanelData: req.IncludePanelData,
		Screenshot:       req.Screenshot,
		Queue:            req.Queue,
		Frames:           req.Frames,
		RangeFrom:        req.RangeFrom,
		RangeTo:          req.RangeTo,
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusOK, Fail("session not found"))
			return
		}
		if errors.Is(err, scheduler.ErrCycleInFlight) {
			writeJSON(w, http.StatusOK, Fail("a model call is already in flight, queue the prompt or retry later"))
			return
		}
		h.logger.Error("Manual submit failed", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(chatResponse{
		Queued: reply == nil,
		Reply:  reply,
	}))
}

// Export GET /insight/api/v1/sessions/{id}/export
func (h *SessionHandler) Export(w http.ResponseWriter, r *http.Request, sessionID string) {
	state, err := h.store.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeJSON(w, http.StatusOK, Fail("session not found"))
			return
		}
		writeJSON(w, http.StatusOK, Fail("failed to get session"))
		return
	}

	excelData, err := GenerateSessionAuditExport(state)
	if err != nil {
		h.logger.Error("GenerateSessionAuditExport failed", zap.String("session_id", sessionID), zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=insight-session-%s.xlsx", sessionID))
	w.WriteHeader(http.StatusOK)
	w.Write(excelData)
}
