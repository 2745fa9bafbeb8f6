// Package mcp implements the MCP protocol server for pty-shell-mcp.
package mcp

import (
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/acolita/pty-shell-mcp/internal/config"
	"github.com/acolita/pty-shell-mcp/internal/fscache"
	"github.com/acolita/pty-shell-mcp/internal/session"
)

// Version is the server version reported over the protocol.
const Version = "1.0.0"

// Server wraps the MCP server implementation.
type Server struct {
	mcpServer *server.MCPServer
	sessions  *session.Manager
	cache     *fscache.Cache
	watcher   *fscache.Watcher

	mu     sync.RWMutex
	config *config.Config
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithoutCacheWatcher disables filesystem-event cache invalidation.
func WithoutCacheWatcher() ServerOption {
	return func(s *Server) {
		if s.watcher != nil {
			s.watcher.Close()
			s.watcher = nil
		}
	}
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	mcpServer := server.NewMCPServer(
		"pty-shell-mcp",
		Version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	cache := fscache.New(cfg.CachePolicy())
	watcher, err := fscache.NewWatcher(cache)
	if err != nil {
		// Invalidation degrades to TTL expiry only.
		slog.Warn("cache watcher unavailable", slog.String("error", err.Error()))
		watcher = nil
	}

	s := &Server{
		mcpServer: mcpServer,
		sessions:  session.NewManager(cfg.Limits.MaxSessions),
		cache:     cache,
		watcher:   watcher,
		config:    cfg,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport.
func (s *Server) Run() error {
	slog.Info("starting MCP server on stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// Close releases background resources.
func (s *Server) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// UpdateConfig applies a new configuration at runtime. Session limits, the
// cache policy, and run defaults hot-reload; in-flight runs keep the values
// they started with.
func (s *Server) UpdateConfig(cfg *config.Config) {
	slog.Debug("applying config update")

	s.sessions.SetMaxSessions(cfg.Limits.MaxSessions)
	s.cache.SetPolicy(cfg.CachePolicy())

	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
}

// currentConfig snapshots the config for one tool call.
func (s *Server) currentConfig() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}
