package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/bdobrica/catalogchat/common/version"
	"github.com/bdobrica/catalogchat/internal/catalogchat/catalogctx"
	"github.com/bdobrica/catalogchat/internal/catalogchat/memory"
	"github.com/bdobrica/catalogchat/internal/catalogchat/response"
)

// maxChatBody bounds POST /chat payloads.
const maxChatBody = 64 << 10

// HealthServer exposes /health and /status, plus /chat and
// /debug/context when enabled.
type HealthServer struct {
	addr      string
	status    statusProvider
	startedAt time.Time
	server    *http.Server
	mux       *http.ServeMux
}

// statusProvider is what /status reads.
type statusProvider interface {
	ActiveCount(ctx context.Context) (int, error)
	HasPending(ctx context.Context, conversationID string) bool
}

// diagnoser builds /debug/context.
type diagnoser interface {
	Diagnose(ctx context.Context, conversationID string, topN int) (catalogctx.FullContext, error)
}

// chatHandler runs one turn for POST /chat.
type chatHandler interface {
	Handle(ctx context.Context, req Request) *response.RouteResponse
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

type statusResponse struct {
	Status         string    `json:"status"`
	Version        string    `json:"version"`
	Commit         string    `json:"commit"`
	BuildTime      string    `json:"build_time"`
	StartedAt      time.Time `json:"started_at"`
	UptimeSecs     float64   `json:"uptime_seconds"`
	ActiveProducts int       `json:"active_products"`
	Pending        bool      `json:"pending"`
}

// NewHealthServer creates the server without starting it.
func NewHealthServer(addr string, sp statusProvider) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		addr:      addr,
		status:    sp,
		startedAt: time.Now(),
		mux:       mux,
	}
	mux.HandleFunc("/health", hs.handleHealth)
	mux.HandleFunc("/status", hs.handleStatus)
	return hs
}

// EnableDebug mounts GET /debug/context?conversation=<id>&top=<n>.
func (h *HealthServer) EnableDebug(d diagnoser) {
	h.mux.HandleFunc("/debug/context", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		top := catalogctx.DefaultTopN
		if v := r.URL.Query().Get("top"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top must be a positive integer"})
				return
			}
			top = n
		}
		full, err := d.Diagnose(r.Context(), r.URL.Query().Get("conversation"), top)
		if err != nil {
			slog.Warn("debug context failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "catalog unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, full)
	})
}

// EnableChat mounts POST /chat, which takes a Request and returns the
// response envelope.
func (h *HealthServer) EnableChat(c chatHandler) {
	h.mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		var req Request
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Signal != nil && !req.Signal.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown signal type"})
			return
		}
		writeJSON(w, http.StatusOK, c.Handle(r.Context(), req))
	})
}

// ServeHTTP implements http.Handler so tests can use httptest.NewRecorder.
func (h *HealthServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Start listens in the background and returns once the port is open.
func (h *HealthServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("health server: listen %s: %w", h.addr, err)
	}

	h.server = &http.Server{
		Handler:      h,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("health server listening", "addr", ln.Addr().String())
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("health server stopped", "err", err)
		}
	}()
	return nil
}

// Stop shuts down the HTTP server.
func (h *HealthServer) Stop() {
	if h.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.server.Shutdown(ctx); err != nil {
		slog.Warn("health server shutdown error", "err", err)
	}
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

func (h *HealthServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  h.startedAt,
		UptimeSecs: time.Since(h.startedAt).Seconds(),
	}
	if h.status != nil {
		n, err := h.status.ActiveCount(r.Context())
		if err != nil {
			resp.Status = "degraded"
		} else {
			resp.ActiveProducts = n
		}
		conv := r.URL.Query().Get("conversation")
		if conv == "" {
			conv = memory.DefaultConversationID
		}
		resp.Pending = h.status.HasPending(r.Context(), conv)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("health: failed to encode JSON response", "err", err)
	}
}
