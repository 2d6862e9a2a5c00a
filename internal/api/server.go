package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"netsentry/internal/alert"
	"netsentry/internal/audit"
	"netsentry/internal/config"
	"netsentry/internal/logger"
	"netsentry/internal/model"
	"netsentry/internal/threat"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the operator API: threat state, recent alerts, audit chain
// verification and Prometheus metrics. Read-only; enforcement and tuning
// stay in the config file.
type Server struct {
	manager  *threat.Manager
	recorder *audit.Recorder
	ring     *alert.Ring
	httpSrv  *http.Server
}

// NewServer wires the handlers to their collaborators.
func NewServer(cfg config.APIConfig, manager *threat.Manager, recorder *audit.Recorder, ring *alert.Ring) *Server {
	s := &Server{
		manager:  manager,
		recorder: recorder,
		ring:     ring,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthHandler).Methods("GET")
	r.HandleFunc("/api/v1/threats", s.threatsHandler).Methods("GET")
	r.HandleFunc("/api/v1/threats/{source}", s.threatHandler).Methods("GET")
	r.HandleFunc("/api/v1/alerts/recent", s.recentAlertsHandler).Methods("GET")
	r.HandleFunc("/api/v1/audit/verify", s.auditVerifyHandler).Methods("GET")
	r.HandleFunc("/api/v1/stats", s.statsHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.httpSrv = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return s
}

// Start serves in the background until Stop is called.
func (s *Server) Start() {
	go func() {
		logger.Infof("api: listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("api: server stopped: %v", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		logger.Warnf("api: shutdown: %v", err)
	}
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) threatsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot())
}

func (s *Server) threatHandler(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]
	state, ok := s.manager.Lookup(source)
	if !ok {
		http.Error(w, "source not tracked", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) recentAlertsHandler(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, s.ring.Recent(n))
}

func (s *Server) auditVerifyHandler(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"height": s.recorder.Height(),
		"valid":  true,
	}
	if err := s.recorder.Verify(); err != nil {
		resp["valid"] = false
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) statsHandler(w http.ResponseWriter, _ *http.Request) {
	threats := s.manager.Snapshot()
	counts := make(map[model.Phase]int)
	for _, st := range threats {
		counts[st.Phase]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tracked_sources": len(threats),
		"phases":          counts,
		"audit_height":    s.recorder.Height(),
		"recent_alerts":   len(s.ring.Recent(0)),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("api: encode response: %v", err)
	}
}
