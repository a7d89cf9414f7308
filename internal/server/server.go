// Package server runs the flowguard daemon: the engine behind an MCP
// stdio transport, plus hot-reload of the config file.
package server

import (
	"context"
	"fmt"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/spherex-xyz/flowguard/internal/config"
)

// Config holds daemon configuration.
type Config struct {
	// ConfigPath is the engine config file. Empty uses the default.
	ConfigPath string
}

// Server exposes the flow engine over MCP stdio.
type Server struct {
	mcpServer *mcpsdk.Server
	cfg       Config

	mu     sync.RWMutex
	engine *Engine
}

// New creates a server with a freshly built engine.
func New(ctx context.Context, cfg Config) (*Server, error) {
	engine, err := NewEngine(ctx, cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "flowguard",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Reload rebuilds the engine from the config file. Durable state lives
// in the backend, so runtime admin changes survive the swap; config
// seeds only fill keys the backend has never seen.
func (s *Server) Reload(ctx context.Context) error {
	engine, err := NewEngine(ctx, s.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("server: reload: %w", err)
	}

	s.mu.Lock()
	old := s.engine
	s.engine = engine
	s.mu.Unlock()

	return old.Close()
}

// ConfigPaths returns the files the reloader should watch.
func (s *Server) ConfigPaths() []string {
	path := s.cfg.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}
	return []string{path}
}

// Close releases the engine.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close()
}

func (s *Server) currentEngine() *Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// registerTools adds all flowguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowguard_begin",
		Description: "Start a new guarded transaction. Returns the transaction identity subsequent hooks run under.",
	}, s.handleBegin)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowguard_enter",
		Description: "Record entry into a routine. Every entry is sender-gated; blocked calls return the reason.",
	}, s.handleEnter)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowguard_exit",
		Description: "Record exit from a routine. The call-flow fingerprint is checked at flow boundaries; blocked flows return the reason.",
	}, s.handleExit)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowguard_check",
		Description: "Fold a routine id sequence and report whether the resulting fingerprint is approved, without touching engine state (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowguard_rules",
		Description: "Switch the enforcement mode (continuity, prefix_flow, off). Requires an operator principal.",
	}, s.handleRules)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowguard_allow",
		Description: "Add or remove approved senders and patterns. Requires an operator principal.",
	}, s.handleAllow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "flowguard_status",
		Description: "Report the engine's mode, depth, fingerprint, session, and allow-list sizes.",
	}, s.handleStatus)
}
