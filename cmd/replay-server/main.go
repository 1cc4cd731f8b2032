// Globe Replay Control Server
// Provides the REST control API and a WebSocket frame stream over a shared
// recording engine, so remote clients can scrub the same replay.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/peterbourgon/ff/v3"

	"github.com/unklstewy/globe-replay/internal/auth"
	"github.com/unklstewy/globe-replay/internal/logging"
	"github.com/unklstewy/globe-replay/pkg/config"
	"github.com/unklstewy/globe-replay/pkg/coordinates"
	"github.com/unklstewy/globe-replay/pkg/feeds"
	"github.com/unklstewy/globe-replay/pkg/replay"
	"github.com/unklstewy/globe-replay/pkg/telemetry"
)

var appVersion = "dev"

type contextKey string

const (
	ctxUsername contextKey = "username"
	ctxRole     contextKey = "role"
)

// Server holds the HTTP server and its dependencies
type Server struct {
	router    *chi.Mux
	engine    *replay.Engine
	authSvc   *auth.Service
	logger    *logging.Logger
	cfg       *config.Config
	adminHash string
	upgrader  websocket.Upgrader
}

func main() {
	fs := flag.NewFlagSet("replay-server", flag.ExitOnError)
	var (
		configPath = fs.String("config", "configs/config.json", "path to configuration file")
		portFlag   = fs.String("port", "", "override the configured server port")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("GLOBE")); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	log.Println("🚀 Starting Globe Replay Control Server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *portFlag != "" {
		cfg.Server.Port = *portFlag
	}
	if cfg.Server.JWTSecret == "" {
		log.Println("⚠️  No JWT secret configured, using a development default")
		cfg.Server.JWTSecret = "dev-secret-change-in-production"
	}
	if cfg.Server.AdminPassword == "" {
		cfg.Server.AdminPassword = "admin"
		log.Println("⚠️  No admin password configured, using \"admin\"")
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Live feeds feed the engine directly; the server records and serves.
	var pollFeed *feeds.PollFeed
	var pushFeed *feeds.PushFeed
	var sbsFeed *feeds.SBSFeed
	opts := replay.Options{
		SamplingInterval: time.Duration(cfg.Engine.SamplingIntervalMs) * time.Millisecond,
		HistoryMinutes:   cfg.Engine.HistoryMinutes,
	}
	if cfg.Feeds.Poll.Enabled {
		pollFeed = feeds.NewPollFeed(cfg.Feeds.Poll.URL, feeds.DefaultPollInterval)
		go pollFeed.Run(ctx)
		opts.Poll = pollFeed
	}
	if cfg.Feeds.Push.Enabled {
		pushFeed = feeds.NewPushFeed(cfg.Feeds.Push.URL)
		go pushFeed.Run(ctx)
		opts.Push = pushFeed
	}
	if cfg.Feeds.SBS.Enabled {
		sbsFeed = feeds.NewSBSFeed(cfg.Feeds.SBS.URL)
		go sbsFeed.Run(ctx)
		opts.Exclusive = sbsFeed
	}

	engine := replay.NewEngine(opts)
	defer engine.Close()
	if cfg.Feeds.UseSBS {
		engine.SelectExclusiveFeed(true)
	}
	if cfg.Filter.Enabled {
		engine.SetSpatialFilter(coordinates.Geographic{
			Latitude:  cfg.Filter.Latitude,
			Longitude: cfg.Filter.Longitude,
		}, cfg.Filter.RadiusNM)
	}

	// Recording loop.
	go func() {
		ticker := time.NewTicker(opts.SamplingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				engine.RecordFused()
			}
		}
	}()

	authSvc := auth.NewService(auth.Config{
		JWTSecret:     cfg.Server.JWTSecret,
		TokenDuration: 24 * time.Hour,
	})

	adminHash, err := authSvc.HashPassword(cfg.Server.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	srv := &Server{
		router:    chi.NewRouter(),
		engine:    engine,
		authSvc:   authSvc,
		logger:    logger,
		cfg:       cfg,
		adminHash: adminHash,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16384,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	srv.setupRoutes()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("📡 Server listening on http://%s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("👋 Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped")
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Compress(5))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/login", s.handleLogin)
		r.Get("/system/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/status", s.handleStatus)
			r.Get("/frame", s.handleFrame)

			// Playback control requires the operator role
			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(auth.RoleOperator))

				r.Post("/playback/play", s.control(func(e *replay.Engine) { e.Play() }))
				r.Post("/playback/pause", s.control(func(e *replay.Engine) { e.Pause() }))
				r.Post("/playback/go-live", s.control(func(e *replay.Engine) { e.GoLive() }))
				r.Post("/playback/step-forward", s.control(func(e *replay.Engine) { e.StepForward() }))
				r.Post("/playback/step-backward", s.control(func(e *replay.Engine) { e.StepBackward() }))
				r.Post("/playback/seek", s.handleSeek)
				r.Post("/playback/speed", s.handleSpeed)

				r.Post("/recording/start", s.control(func(e *replay.Engine) { e.SetRecording(true) }))
				r.Post("/recording/stop", s.control(func(e *replay.Engine) { e.SetRecording(false) }))
				r.Post("/recording/clear", s.control(func(e *replay.Engine) { e.ClearRecording() }))

				r.Post("/replays/import", s.handleImport)
				r.Delete("/replays/imported", s.control(func(e *replay.Engine) { e.ClearImported() }))
				r.Get("/replays/export", s.handleExport)

				r.Post("/filter", s.handleFilter)
				r.Post("/history", s.handleHistory)
			})

			// Feed selection requires admin
			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(auth.RoleAdmin))
				r.Post("/feeds/exclusive", s.handleExclusiveFeed)
			})
		})
	})

	// WebSocket frame stream; token comes in the query string since
	// browsers cannot set headers on WebSocket upgrades.
	r.Get("/ws/frames", s.handleFrameStream)
}

// authMiddleware validates the bearer token and stashes the claims.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := s.authSvc.ValidateToken(token)
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole gates a route group on the role hierarchy.
func (s *Server) requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole, _ := r.Context().Value(ctxRole).(string)
			if !auth.HasRole(userRole, role) {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// control wraps a parameterless engine operation into a handler.
func (s *Server) control(op func(*replay.Engine)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		op(s.engine)
		respondJSON(w, http.StatusOK, s.engine.Status())
	}
}

// handleLogin authenticates against the admin password.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.authSvc.ComparePassword(s.adminHash, req.Password); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	username := req.Username
	if username == "" {
		username = "admin"
	}
	token, err := s.authSvc.GenerateToken(username, auth.RoleAdmin)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"token":   token,
		"user": map[string]interface{}{
			"username": username,
			"role":     auth.RoleAdmin,
		},
	})
}

// handleHealth is the unauthenticated liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": appVersion,
	})
}

// handleStatus reports the engine state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Status())
}

// wireFrame is the JSON shape of a resolved frame. State maps go out as
// sorted record arrays so clients get a stable order.
type wireFrame struct {
	Mode             string                        `json:"mode"`
	EffectiveTime    time.Time                     `json:"effectiveTime"`
	UpdateIntervalMs int64                         `json:"updateIntervalMs"`
	Previous         []telemetry.EntityStateRecord `json:"previous"`
	Current          []telemetry.EntityStateRecord `json:"current"`
}

func toWireFrame(f replay.Frame) wireFrame {
	return wireFrame{
		Mode:             f.Mode.String(),
		EffectiveTime:    f.EffectiveTime,
		UpdateIntervalMs: f.UpdateInterval.Milliseconds(),
		Previous:         telemetry.RecordsFromStates(f.Previous),
		Current:          telemetry.RecordsFromStates(f.Current),
	}
}

// handleFrame returns a single resolved frame.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toWireFrame(s.engine.Resolve()))
}

// handleSeek jumps playback to a snapshot index.
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.engine.SeekTo(req.Index)
	respondJSON(w, http.StatusOK, s.engine.Status())
}

// handleSpeed changes the playback rate.
func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !replay.ValidSpeed(req.Speed) {
		http.Error(w, fmt.Sprintf("Unsupported speed %v", req.Speed), http.StatusBadRequest)
		return
	}
	s.engine.SetSpeed(req.Speed)
	respondJSON(w, http.StatusOK, s.engine.Status())
}

// handleImport loads an uploaded replay document. Validation failures leave
// the current playback state untouched.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ImportReplay(r.Body); err != nil {
		http.Error(w, fmt.Sprintf("Import rejected: %v", err), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, s.engine.Status())
}

// handleExport streams the active buffer as a replay document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	airport := r.URL.Query().Get("airport")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="replay.json"`)
	if err := s.engine.Export(w, appVersion, airport); err != nil {
		s.logger.Errorf("Export failed: %v", err)
	}
}

// handleFilter sets or clears the spatial filter.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		RadiusNM  float64 `json:"radiusNM"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.engine.SetSpatialFilter(coordinates.Geographic{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}, req.RadiusNM)
	respondJSON(w, http.StatusOK, s.engine.Status())
}

// handleHistory resizes the live recording window.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Minutes <= 0 {
		http.Error(w, "Minutes must be positive", http.StatusBadRequest)
		return
	}
	s.engine.SetHistoryWindow(req.Minutes)
	respondJSON(w, http.StatusOK, s.engine.Status())
}

// handleExclusiveFeed toggles the exclusive live source.
func (s *Server) handleExclusiveFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.engine.SelectExclusiveFeed(req.Enabled)
	respondJSON(w, http.StatusOK, s.engine.Status())
}

// handleFrameStream upgrades to WebSocket and streams resolved frames at a
// fixed cadence until the client goes away.
func (s *Server) handleFrameStream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if _, err := s.authSvc.ValidateToken(token); err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain client messages so pings and close frames are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		frame := toWireFrame(s.engine.Resolve())
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
