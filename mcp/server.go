// Package mcp exposes a Tool Registry over the Model Context Protocol,
// so an external AI client can drive the device-automation tools over
// stdio, grounded on the teacher's mcp/server.go NewMCPServer/Start/Stop
// lifecycle and AddTool dispatch, generalised away from any one fixed
// tool surface: every tool the registry knows about is described to MCP
// generically from its schema instead of one bespoke handler per tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/automobile-core/server/internal/tools"
)

// ToolMeta is transport-facing metadata for one tool, layered on top of
// the registry's schema (which only carries name/type/required).
type ToolMeta struct {
	Description      string
	ParamDescriptions map[string]string
}

// Server wraps a Tool Registry and serves it over MCP stdio.
type Server struct {
	registry *tools.Registry
	meta     map[string]ToolMeta
	appName  string
	version  string

	server *server.MCPServer

	mu        sync.Mutex
	isRunning bool
}

// New constructs a Server. meta supplies human-facing descriptions for
// tools already Register-ed on registry; a tool with no entry in meta
// is still exposed, with an empty description.
func New(appName, version string, registry *tools.Registry, meta map[string]ToolMeta) *Server {
	s := &Server{
		registry: registry,
		meta:     meta,
		appName:  appName,
		version:  version,
	}
	s.server = server.NewMCPServer(appName, version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)
	s.registerTools()
	return s
}

// registerTools walks every name the registry knows and exposes it as
// one generic MCP tool, bridging CallToolRequest arguments straight
// into registry.Call and its Response straight back into a
// CallToolResult.
func (s *Server) registerTools() {
	for _, name := range s.registry.Names() {
		schema, _ := s.registry.Schema(name)
		m := s.meta[name]

		opts := []gomcp.ToolOption{gomcp.WithDescription(m.Description)}
		for _, p := range schema {
			desc := m.ParamDescriptions[p.Name]
			opts = append(opts, paramOption(p, desc))
		}

		s.server.AddTool(gomcp.NewTool(name, opts...), s.makeHandler(name))
	}
}

func paramOption(p tools.ParamSpec, desc string) gomcp.ToolOption {
	var propOpts []gomcp.PropertyOption
	propOpts = append(propOpts, gomcp.Description(desc))
	if p.Required {
		propOpts = append(propOpts, gomcp.Required())
	}
	switch p.Type {
	case tools.TypeNumber:
		return gomcp.WithNumber(p.Name, propOpts...)
	case tools.TypeBool:
		return gomcp.WithBoolean(p.Name, propOpts...)
	default:
		// Object and array params are described as strings at the MCP
		// boundary (JSON-encoded) since the registry's own validate()
		// only needs map[string]any/[]any once decoded, not a nested
		// JSON-schema.
		return gomcp.WithString(p.Name, propOpts...)
	}
}

func (s *Server) makeHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		resp := s.registry.Call(ctx, name, req.GetArguments())
		if !resp.Success {
			return nil, fmt.Errorf("%s", resp.Error)
		}
		data, err := json.Marshal(resp.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s result: %w", name, err)
		}
		return &gomcp.CallToolResult{
			Content: []gomcp.Content{gomcp.NewTextContent(string(data))},
		}, nil
	}
}

// Start runs the MCP server over stdio. Blocks until the client
// disconnects or the process receives an interrupt.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("MCP server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "[mcp] %s v%s listening on stdio\n", s.appName, s.version)
	err := server.NewStdioServer(s.server).Listen(ctx, os.Stdin, os.Stdout)

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	return err
}

// IsRunning reports whether the server is actively serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
