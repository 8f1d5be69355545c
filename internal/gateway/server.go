// Package gateway assembles and runs the HTTP/WebSocket server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/agentgate/internal/agent"
	"github.com/nextlevelbuilder/agentgate/internal/config"
	"github.com/nextlevelbuilder/agentgate/internal/directory"
	"github.com/nextlevelbuilder/agentgate/internal/httpapi"
	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/routing"
	"github.com/nextlevelbuilder/agentgate/internal/store"
	"github.com/nextlevelbuilder/agentgate/pkg/protocol"
)

// Server is the gateway server: REST surface plus a WebSocket chat
// channel, sharing one orchestrator and one set of stores.
type Server struct {
	cfg      *config.Config
	stores   *store.Stores
	orch     *agent.Orchestrator
	router   *routing.AgentRouter
	rbac     *rbac.Service
	areas    *routing.AreaAdmin
	dir      directory.Directory
	sessions store.SessionStore
	auth     *httpapi.Authenticator

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer wires the gateway from its collaborators.
func NewServer(cfg *config.Config, stores *store.Stores, orch *agent.Orchestrator, dir directory.Directory) *Server {
	rbacSvc := rbac.NewService(stores.RBAC)
	s := &Server{
		cfg:      cfg,
		stores:   stores,
		orch:     orch,
		router:   routing.NewAgentRouter(stores.Agents, stores.AreaMappings),
		rbac:     rbacSvc,
		areas:    routing.NewAreaAdmin(stores.AreaMappings, stores.RBAC),
		dir:      dir,
		sessions: stores.Sessions,
	}
	s.auth = httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, dir, rbacSvc)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM, 5)
	return s
}

// RBAC returns the server's RBAC service, used at startup for the
// default-role check and by the seed command.
func (s *Server) RBAC() *rbac.Service { return s.rbac }

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	chatHandler := httpapi.NewChatHandler(s.orch, s.router, s.stores.Agents, s.auth, s.cfg.Gateway.MaxMessageChars)
	if s.rateLimiter.Enabled() {
		chatHandler.SetRateLimiter(s.rateLimiter.Allow)
	}
	chatHandler.RegisterRoutes(mux)

	httpapi.NewSessionsHandler(s.sessions, s.auth).RegisterRoutes(mux)
	httpapi.NewAgentsHandler(s.router, s.auth).RegisterRoutes(mux)
	httpapi.NewRBACAdminHandler(s.rbac, s.auth).RegisterRoutes(mux)
	httpapi.NewAreaAdminHandler(s.areas, s.auth).RegisterRoutes(mux)

	s.mux = mux
	return mux
}

// Start begins serving and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebSocket authenticates the upgrade request and runs the
// client loop. The same JWT used on the REST surface authenticates
// here, via header or the token query parameter for browser clients.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticateWS(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	slog.Info("ws.client_connected", "user", user.UserID)
	client := NewClient(conn, user, s)
	client.Run(r.Context())
	slog.Info("ws.client_disconnected", "user", user.UserID)
}

func (s *Server) authenticateWS(r *http.Request) (*rbac.UserContext, error) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			raw = auth[7:]
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("missing token")
	}

	claims := &struct {
		Email    string `json:"email"`
		TenantID string `json:"tid,omitempty"`
		jwt.RegisteredClaims
	}{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("token missing sub or email claim")
	}

	groups := directory.GroupsOrFallback(r.Context(), s.dir, claims.Subject)
	return s.rbac.Resolve(r.Context(), claims.Subject, claims.Email, claims.TenantID, groups)
}

// resolveAgent picks the serving agent for a WS chat request.
func (s *Server) resolveAgent(ctx context.Context, agentKey string, groups []string) (*store.AgentData, error) {
	if agentKey == "" {
		return s.router.AgentForGroups(ctx, groups)
	}
	a, err := s.stores.Agents.GetByKey(ctx, agentKey)
	if err != nil {
		return nil, err
	}
	if !a.Enabled {
		return nil, fmt.Errorf("agent %q: %w", agentKey, store.ErrNotFound)
	}
	return a, nil
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","protocol":%d}`, protocol.ProtocolVersion)
}
