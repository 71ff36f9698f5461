package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cs50victor/mcpx/internal/mcpconfig"
	"github.com/cs50victor/mcpx/internal/mcppool"
	"github.com/cs50victor/mcpx/internal/metrics"
	"github.com/cs50victor/mcpx/internal/retry"
	"github.com/cs50victor/mcpx/pkg/logger"
)

const shutdownGrace = 100 * time.Millisecond

// SocketPath resolves ${MCP_DAEMON_SOCKET | ~/.mcp-cli/daemon.sock}
// (spec.md §4.6).
func SocketPath() string {
	if v := os.Getenv("MCP_DAEMON_SOCKET"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".mcp-cli", "daemon.sock")
}

// IdleTimeoutFromEnv reads MCP_DAEMON_IDLE_MS, defaulting to 5 minutes.
func IdleTimeoutFromEnv() time.Duration {
	ms := 300000
	if v := strings.TrimSpace(os.Getenv("MCP_DAEMON_IDLE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ms = n
		}
	}
	return time.Duration(ms) * time.Millisecond
}

// Server is the daemon process: one Pool exposed over a UNIX socket.
type Server struct {
	socketPath string
	pool       *mcppool.Pool
	log        logger.Logger

	listener net.Listener
	http     *http.Server
}

// New constructs a Server bound to socketPath, backed by pool.
func New(socketPath string, pool *mcppool.Pool, log logger.Logger) *Server {
	s := &Server{socketPath: socketPath, pool: pool, log: log}

	router := mux.NewRouter()
	router.HandleFunc("/", s.handle).Methods(http.MethodPost)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start ensures the socket directory exists, removes any stale socket
// file, binds, and begins accepting requests (spec.md §4.6 step 1-3).
// Failure to bind is fatal to the daemon process (spec.md §7).
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create daemon socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.log.Debugf("daemon: stale socket %s could not be removed: %v", s.socketPath, err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to bind daemon socket %s: %w", s.socketPath, err)
	}
	s.listener = ln

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("daemon: serve error: %v", err)
		}
	}()
	return nil
}

// Run starts the server and blocks until SIGINT/SIGTERM, then performs an
// orderly shutdown: releaseAll, stop the HTTP server, unlink the socket
// (spec.md §4.6 step 2).
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	s.log.Infof("daemon: listening on %s", s.socketPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	s.log.Infof("daemon: shutting down")
	return s.shutdownNow()
}

func (s *Server) shutdownNow() error {
	released := s.pool.ReleaseAll()
	s.log.Debugf("daemon: released %d sessions on shutdown", len(released))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.log.Warnf("daemon: forced shutdown: %v", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.log.Debugf("daemon: error unlinking socket: %v", err)
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "invalid JSON"})
		metrics.RequestsTotal.WithLabelValues("", "bad_request").Inc()
		return
	}

	s.log.Debugf("daemon[%s]: %s", reqID, req.Method)
	resp, status := s.dispatch(r.Context(), req)

	outcome := "ok"
	if resp.Error != "" {
		outcome = "error"
	}
	metrics.RequestsTotal.WithLabelValues(req.Method, outcome).Inc()

	writeJSON(w, status, resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) (Response, int) {
	switch req.Method {
	case "connect":
		return s.handleConnect(ctx, req.Params)
	case "call":
		return s.handleCall(ctx, req.Params)
	case "disconnect":
		return s.handleDisconnect(req.Params)
	case "has":
		return s.handleHas(req.Params)
	case "list":
		return Response{OK: true, Servers: s.pool.List()}, http.StatusOK
	case "list-detailed":
		return Response{OK: true, ServersDetailed: toServerInfo(s.pool.ListDetailed())}, http.StatusOK
	case "shutdown":
		return s.handleShutdown()
	default:
		return Response{Error: fmt.Sprintf("unknown method %q", req.Method)}, http.StatusBadRequest
	}
}

func (s *Server) resolveConfig(p RequestParams) (mcpconfig.ServerConfig, error) {
	if p.Server == "" {
		return mcpconfig.ServerConfig{}, fmt.Errorf("missing required param: server")
	}
	if len(p.Config) == 0 {
		return mcpconfig.ServerConfig{}, fmt.Errorf("missing required param: config")
	}
	return mcpconfig.ParseOne(p.Server, p.Config, p.ConfigSource)
}

func (s *Server) handleConnect(ctx context.Context, p RequestParams) (Response, int) {
	cfg, err := s.resolveConfig(p)
	if err != nil {
		return Response{Error: err.Error()}, http.StatusBadRequest
	}

	retryCfg := retry.FromEnv()
	budget := retry.NewBudget(retryCfg.TotalBudget)
	result, err := s.pool.Acquire(ctx, cfg, p.ConfigSource, retryCfg, budget)
	if err != nil {
		return Response{Error: err.Error()}, http.StatusOK
	}
	return Response{OK: true, AlreadyConnected: result.AlreadyConnected}, http.StatusOK
}

func (s *Server) handleCall(ctx context.Context, p RequestParams) (Response, int) {
	cfg, err := s.resolveConfig(p)
	if err != nil {
		return Response{Error: err.Error()}, http.StatusBadRequest
	}
	if p.Tool == "" {
		return Response{Error: "missing required param: tool"}, http.StatusBadRequest
	}

	retryCfg := retry.FromEnv()
	budget := retry.NewBudget(retryCfg.TotalBudget)
	acquired, err := s.pool.Acquire(ctx, cfg, p.ConfigSource, retryCfg, budget)
	if err != nil {
		return Response{Error: err.Error()}, http.StatusOK
	}

	result, err := acquired.Session.CallTool(ctx, p.Tool, p.Args)
	if err != nil {
		return Response{Error: err.Error()}, http.StatusOK
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return Response{Error: fmt.Sprintf("failed to marshal tool result: %v", err)}, http.StatusInternalServerError
	}
	return Response{OK: true, Result: raw}, http.StatusOK
}

func (s *Server) handleDisconnect(p RequestParams) (Response, int) {
	if p.Server == "" {
		return Response{Error: "missing required param: server"}, http.StatusBadRequest
	}
	was := s.pool.Has(p.Server)
	s.pool.Release(p.Server)
	return Response{OK: was}, http.StatusOK
}

func (s *Server) handleHas(p RequestParams) (Response, int) {
	if p.Server == "" {
		return Response{Error: "missing required param: server"}, http.StatusBadRequest
	}
	return Response{OK: true, Has: s.pool.Has(p.Server)}, http.StatusOK
}

// handleShutdown implements spec.md §4.6's shutdown method: release
// everything, reply with what was released, then defer the actual exit so
// the reply flushes before the process disappears.
func (s *Server) handleShutdown() (Response, int) {
	released := s.pool.ReleaseAll()
	go func() {
		time.Sleep(shutdownGrace)
		_ = s.http.Close()
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			s.log.Debugf("daemon: error unlinking socket after shutdown: %v", err)
		}
		os.Exit(0)
	}()
	return Response{OK: true, Servers: released}, http.StatusOK
}

func toServerInfo(entries []mcppool.DetailedEntry) []ServerInfo {
	out := make([]ServerInfo, len(entries))
	for i, e := range entries {
		out[i] = ServerInfo{
			Name:         e.Name,
			Transport:    e.Transport,
			ConfigSource: e.ConfigSource,
			IdleSeconds:  e.IdleSeconds,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
