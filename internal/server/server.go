// Package server exposes the redaction engine over HTTP: redact and verify
// endpoints, registry management, and a WebSocket event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/textveil/textveil/internal/cache"
	"github.com/textveil/textveil/internal/config"
	"github.com/textveil/textveil/internal/logger"
	"github.com/textveil/textveil/internal/pattern"
	"github.com/textveil/textveil/internal/registry"
	"github.com/textveil/textveil/internal/store"
	"github.com/textveil/textveil/internal/websocket"
)

// Server represents the main redaction server
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	reg        *registry.Registry
	catalog    *pattern.Catalog
	fileStore  *store.FileStore
	pgStore    *store.PostgresStore
	cache      *cache.RedactionCache
	router     *mux.Router
	server     *http.Server
	wsHub      *websocket.Hub
	limiter    *ipLimiter
	startTime  time.Time
	statusDone chan struct{}
}

// statusInterval is how often the hub broadcasts a system status event.
const statusInterval = 30 * time.Second

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger) (*Server, error) {
	catalog, err := pattern.Load(cfg.Patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern catalog: %w", err)
	}

	fileStore := store.NewFileStore(cfg.Registry.MappingFile, log.WithComponent("store").Logger)
	reg, err := fileStore.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	s := &Server{
		config:     cfg,
		logger:     log.WithComponent("server"),
		reg:        reg,
		catalog:    catalog,
		fileStore:  fileStore,
		startTime:  time.Now(),
		statusDone: make(chan struct{}),
	}

	if cfg.Registry.Database.Enabled {
		pg, err := store.NewPostgresStore(&store.PostgresConfig{
			DatabaseURL:     cfg.Registry.Database.DatabaseURL,
			MaxOpenConns:    cfg.Registry.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Registry.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Registry.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Registry.Database.ConnMaxIdleTime,
		}, log.WithComponent("store").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect registry database: %w", err)
		}
		s.pgStore = pg

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		dbReg, err := pg.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load registry from database: %w", err)
		}
		if dbReg.Len() > 0 {
			s.reg = dbReg
		} else if reg.Len() > 0 {
			// Seed an empty database from the mapping file
			if err := pg.Save(ctx, reg); err != nil {
				return nil, fmt.Errorf("failed to seed registry database: %w", err)
			}
		}
	}

	if cfg.Cache.Enabled {
		c, err := cache.NewRedactionCache(&cache.Config{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("cache").Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
		s.cache = c
	}

	if cfg.WebSocket.Enabled {
		s.wsHub = websocket.NewHub(&websocket.HubConfig{
			BroadcastRedactions:    cfg.WebSocket.Events.BroadcastRedactions,
			BroadcastVerifications: cfg.WebSocket.Events.BroadcastVerifications,
			BroadcastRegistry:      cfg.WebSocket.Events.BroadcastRegistry,
			BroadcastConnections:   cfg.WebSocket.Events.BroadcastConnections,
			BroadcastSystem:        cfg.WebSocket.Events.BroadcastSystem,
		}, log.WithComponent("websocket").Logger)
	}

	if cfg.RateLimit.Enabled {
		s.limiter = newIPLimiter(cfg.RateLimit.RequestsPerSec, cfg.RateLimit.Burst)
	}

	s.router = mux.NewRouter()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	if s.wsHub != nil {
		path := s.config.WebSocket.Path
		if path == "" {
			path = "/ws"
		}
		s.router.HandleFunc(path, s.handleWebSocket).Methods("GET")
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	if s.limiter != nil {
		api.Use(s.rateLimitMiddleware)
	}

	api.HandleFunc("/redact", s.handleRedact).Methods("POST")
	api.HandleFunc("/redact/batch", s.handleRedactBatch).Methods("POST")
	api.HandleFunc("/verify", s.handleVerify).Methods("POST")

	api.HandleFunc("/registry", s.handleRegistryStats).Methods("GET")
	api.HandleFunc("/registry/entities", s.handleListEntities).Methods("GET")
	api.HandleFunc("/registry/entities", s.handleAddEntity).Methods("POST")
	api.HandleFunc("/registry/entities/{original}", s.handleUpdateEntity).Methods("PUT")
	api.HandleFunc("/registry/entities/{original}", s.handleRemoveEntity).Methods("DELETE")
	api.HandleFunc("/registry/entities/{original}/variations", s.handleAddVariation).Methods("POST")
	api.HandleFunc("/registry/merge", s.handleMerge).Methods("POST")

	api.HandleFunc("/patterns", s.handleListPatterns).Methods("GET")

	if s.cache != nil {
		api.HandleFunc("/cache/stats", s.handleCacheStats).Methods("GET")
		api.HandleFunc("/cache", s.handleCacheClear).Methods("DELETE")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting TextVeil server",
		zap.Int("port", s.config.Server.Port),
		zap.Int("registry_entities", s.reg.Len()),
		zap.String("registry_revision", s.reg.Revision()),
		zap.Int("pattern_rules", s.catalog.Len()),
		zap.String("technique", s.config.Redaction.Technique),
	)

	if s.wsHub != nil {
		go s.wsHub.Run()
		go s.broadcastStatusLoop()
	}

	return s.server.ListenAndServe()
}

// broadcastStatusLoop periodically emits a system status event until Stop.
func (s *Server) broadcastStatusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.statusDone:
			return
		case <-ticker.C:
			s.wsHub.BroadcastEvent(s.statusEvent())
		}
	}
}

// statusEvent snapshots current server health for the WebSocket stream.
func (s *Server) statusEvent() websocket.Event {
	return websocket.Event{
		Type:      websocket.EventTypeSystemStatus,
		Timestamp: time.Now(),
		Data: websocket.SystemStatusEvent{
			Status:            "healthy",
			RegistryRevision:  s.reg.Revision(),
			RegistryEntities:  s.reg.Len(),
			ActiveConnections: s.wsHub.GetStats().ActiveConnections,
			UptimeSeconds:     int64(time.Since(s.startTime).Seconds()),
		},
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping TextVeil server")

	close(s.statusDone)

	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn("Failed to close cache", zap.Error(err))
		}
	}
	if s.pgStore != nil {
		if err := s.pgStore.Close(); err != nil {
			s.logger.Warn("Failed to close registry database", zap.Error(err))
		}
	}
	return nil
}

// persist writes the current registry to every configured backend. Callers
// hold no registry locks here; persistence works from a snapshot export.
func (s *Server) persist(ctx context.Context) error {
	if err := s.fileStore.Save(s.reg); err != nil {
		return err
	}
	if s.pgStore != nil {
		if err := s.pgStore.Save(ctx, s.reg); err != nil {
			return err
		}
	}
	return nil
}

// broadcastRegistry notifies WebSocket clients of a registry mutation
func (s *Server) broadcastRegistry(action, entity string) {
	if s.wsHub == nil {
		return
	}
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRegistryUpdate,
		Timestamp: time.Now(),
		Data: websocket.RegistryEvent{
			Action:   action,
			Entity:   entity,
			Revision: s.reg.Revision(),
			Entities: s.reg.Len(),
		},
	})
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
