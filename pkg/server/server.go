// Package server provides the MCP server and the HTTP boundary endpoint.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmbounds/pkg/boundary"
	"github.com/NERVsystems/osmbounds/pkg/tools"
	"github.com/NERVsystems/osmbounds/pkg/version"
)

// ServerName is the name of the MCP server
const ServerName = "osmbounds"

// Server encapsulates the MCP server with the boundary tools.
type Server struct {
	srv      *mcpserver.MCPServer
	registry *tools.Registry
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer

	mu      sync.Mutex
	started bool
	running bool
	stopped bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewServer creates a new MCP server with all tools registered.
func NewServer(assembler *boundary.Assembler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing boundary MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	registry := tools.NewRegistry(logger, assembler)
	registry.RegisterTools(srv)

	return &Server{
		srv:      srv,
		registry: registry,
		logger:   logger,
		in:       os.Stdin,
		out:      os.Stdout,
		doneCh:   make(chan struct{}),
	}, nil
}

// SetIO replaces stdin and stdout as the MCP stream.
func (s *Server) SetIO(in io.Reader, out io.Writer) {
	s.in, s.out = in, out
}

// Run serves MCP over stdin/stdout until the input closes or Shutdown is
// called.
func (s *Server) Run() error {
	return s.RunWithContext(context.Background())
}

// RunWithContext serves MCP until ctx is canceled, the input closes or
// Shutdown is called. A server runs once; later calls return immediately.
func (s *Server) RunWithContext(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	if s.stopped {
		s.cancel()
	}
	s.mu.Unlock()

	defer close(s.doneCh)

	err := mcpserver.NewStdioServer(s.srv).Listen(ctx, s.in, s.out)

	s.mu.Lock()
	s.running = false
	s.cancel()
	s.mu.Unlock()

	switch {
	case err == nil, errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
		s.logger.Info("MCP server stopped")
		return nil
	default:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Shutdown initiates a graceful shutdown of the server.
// It does not block and returns immediately.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.running && s.cancel != nil {
		s.cancel()
	}
}

// WaitForShutdown blocks until the server has fully shut down.
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// GetMCPServer returns the underlying MCP server instance
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.srv
}

// Registry returns the tool registry the server was built with
func (s *Server) Registry() *tools.Registry {
	return s.registry
}

// WatchParent shuts the server down once the parent process exits, so an
// MCP client that dies without closing stdin does not leave the server
// running. It returns when ctx is done or the parent is gone.
func (s *Server) WatchParent(ctx context.Context, interval time.Duration) {
	ppid := os.Getppid()
	s.logger.Debug("watching parent process", "ppid", ppid)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if os.Getppid() != ppid || !isProcessRunning(ppid) {
				s.logger.Info("parent process exited, shutting down", "ppid", ppid)
				s.Shutdown()
				return
			}
		}
	}
}
