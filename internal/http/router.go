package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

const sessionsPrefix = "/insight/api/v1/sessions"

// RegisterInsightRoutes 注册面板洞察路由
func (r *Router) RegisterInsightRoutes(s *SessionHandler, m *ModelHandler) {
	// create
	r.Handle(sessionsPrefix, func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.Create(w, req)
	})

	// sessions/{id} 子树：GET/DELETE 本体，PUT config，POST chat，GET export
	r.Handle(sessionsPrefix+"/", func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, sessionsPrefix+"/")
		parts := strings.Split(rest, "/")
		id := parts[0]
		if id == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case len(parts) == 1:
			switch req.Method {
			case http.MethodGet:
				s.Get(w, req, id)
			case http.MethodDelete:
				s.Reset(w, req, id)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case len(parts) == 2 && parts[1] == "config":
			if req.Method != http.MethodPut {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.UpdateConfig(w, req, id)
		case len(parts) == 2 && parts[1] == "chat":
			if req.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.Chat(w, req, id)
		case len(parts) == 2 && parts[1] == "export":
			if req.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			s.Export(w, req, id)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	// model discovery
	r.Handle("/insight/api/v1/models", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		m.ListModels(w, req)
	})
}

// RegisterDoctorRoutes 注册诊断路由
func (r *Router) RegisterDoctorRoutes(doctor *DoctorHandler) {
	r.Handle("/insight/api/v1/health", doctor.HealthCheck)
	r.Handle("/health", doctor.HealthCheck)
	r.Handle("/healthz", doctor.HealthCheck)
}
