// Package mcptools exposes the catalog to agents over the Model Context
// Protocol: searching, browsing and reorganizing coordinate systems.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/agentic-research/geocat/internal/session"
)

// Server wraps an MCP server bound to one catalog session.
type Server struct {
	sess    *session.Session
	mcp     *server.MCPServer
	log     logrus.FieldLogger
	version string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Server) { s.log = l } }

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

// New registers the catalog tools and resources on a fresh MCP server.
func New(sess *session.Session, opts ...Option) *Server {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Server{sess: sess, log: discard, version: "dev"}
	for _, o := range opts {
		o(s)
	}

	s.mcp = server.NewMCPServer(
		"geocat MCP",
		s.version,
		server.WithResourceCapabilities(false, false),
		server.WithToolCapabilities(false),
		server.WithInstructions("Search, browse and organize coordinate-system definitions. Catalog paths look like library/group/KEY."),
		server.WithResourceRecovery(),
		server.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves over stdin and stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ServeHTTP serves the streamable HTTP transport at addr under /mcp until
// ctx is done.
func (s *Server) ServeHTTP(ctx context.Context, addr string, onListening func(net.Addr)) error {
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp))
	httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if onListening != nil {
		onListening(ln.Addr())
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	err = httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func toJSONResult(data any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
