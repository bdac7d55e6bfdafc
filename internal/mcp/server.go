package mcp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"sleuth/internal/agent"
	"sleuth/internal/events"
)

const (
	ProtocolVersion = "2024-11-05"
	ServerName      = "linux-sre-agent"
	ServerVersion   = "1.0.0"
)

// ToolName is the single tool the server exposes.
const (
	ToolName        = "execute_system_command"
	toolDescription = "SRE Batch Agent"
)

// Resource URIs served by resources/read.
const (
	ResourceHostFacts  = "sleuth://host/facts"
	ResourceRecentRuns = "sleuth://runs/recent"
)

// Investigator runs one bounded investigation and renders its transcript.
type Investigator interface {
	Run(ctx context.Context, instruction string) string
}

// Reporter renders a completed run as a PDF document.
type Reporter interface {
	Generate(run agent.Run) ([]byte, error)
}

// Config holds the server's listen address and optional bearer token. An
// empty token leaves every endpoint open.
type Config struct {
	Addr     string
	APIToken string
}

// Server exposes the investigator over MCP: JSON-RPC on POST /, the SSE
// transport on /sse + /messages, live run streaming on /ws, and PDF reports
// on /report/.
type Server struct {
	cfg          Config
	investigator Investigator
	registry     *agent.Registry
	hub          *events.Hub
	reporter     Reporter
	sessions     *sessionStore
	server       *http.Server
}

// NewServer creates a new MCP server. Registry, hub, and reporter may be nil;
// the endpoints backed by them degrade to not-found.
func NewServer(cfg Config, investigator Investigator, registry *agent.Registry, hub *events.Hub, reporter Reporter) *Server {
	return &Server{
		cfg:          cfg,
		investigator: investigator,
		registry:     registry,
		hub:          hub,
		reporter:     reporter,
		sessions:     newSessionStore(),
	}
}

// Handler returns the full route set. Separate from Start so tests can drive
// the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.requireAuth(s.handleRequest))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sse", s.requireAuth(s.handleSSE))
	mux.HandleFunc("/sse/", s.requireAuth(s.handleSSE))
	mux.HandleFunc("/messages", s.requireAuth(s.handleMessages))
	mux.HandleFunc("/messages/", s.requireAuth(s.handleMessages))
	mux.HandleFunc("/report/", s.requireAuth(s.handleReport))
	if s.hub != nil {
		mux.HandleFunc("/ws", s.requireAuth(s.hub.HandleWebSocket))
	}
	return mux
}

// Start starts the MCP server and blocks until it exits.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}
	log.Info().Str("addr", s.cfg.Addr).Msg("Starting MCP server")
	return s.server.ListenAndServe()
}

// Stop shuts the server down, unblocking any open SSE streams first so
// Shutdown can drain them.
func (s *Server) Stop(ctx context.Context) error {
	s.sessions.closeAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.APIToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.APIToken)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, nil, ErrParse, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, nil, ErrParse, "Failed to parse JSON-RPC request")
		return
	}

	if req.JSONRPC != "2.0" {
		s.writeError(w, req.ID, ErrInvalidRequest, "Invalid JSON-RPC version")
		return
	}

	log.Debug().
		Str("method", req.Method).
		Interface("id", req.ID).
		Msg("MCP request received")

	result, mcpErr := s.handleMethod(r.Context(), req)
	if mcpErr != nil {
		s.writeErrorResponse(w, req.ID, mcpErr)
		return
	}

	s.writeResult(w, req.ID, result)
}

func (s *Server) handleMethod(ctx context.Context, req Request) (interface{}, *Error) {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req.Params)
	case "initialized", "notifications/initialized":
		// Client notification that initialization is complete
		return nil, nil
	case "tools/list":
		return s.handleListTools()
	case "tools/call":
		return s.handleCallTool(ctx, req.Params)
	case "resources/list":
		return s.handleListResources()
	case "resources/read":
		return s.handleReadResource(ctx, req.Params)
	case "ping":
		return map[string]interface{}{}, nil
	default:
		return nil, &Error{
			Code:    ErrMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}
}

func (s *Server) handleInitialize(params json.RawMessage) (*InitializeResult, *Error) {
	var initParams InitializeParams
	if params != nil {
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, &Error{
				Code:    ErrInvalidParams,
				Message: "Failed to parse initialize params",
			}
		}
	}

	log.Info().
		Str("client", initParams.ClientInfo.Name).
		Str("clientVersion", initParams.ClientInfo.Version).
		Str("protocolVersion", initParams.ProtocolVersion).
		Msg("MCP client connected")

	return &InitializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: Capabilities{
			Tools: &ToolsCapability{
				ListChanged: false,
			},
			Resources: &ResourcesCapability{
				Subscribe:   false,
				ListChanged: false,
			},
		},
		ServerInfo: ServerInfo{
			Name:    ServerName,
			Version: ServerVersion,
		},
	}, nil
}

func (s *Server) handleListTools() (*ListToolsResult, *Error) {
	return &ListToolsResult{
		Tools: []Tool{
			{
				Name:        ToolName,
				Description: toolDescription,
				InputSchema: InputSchema{
					Type: "object",
					Properties: map[string]PropertySchema{
						"instruction": {Type: "string"},
					},
					Required: []string{"instruction"},
				},
			},
		},
	}, nil
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (*CallToolResult, *Error) {
	var callParams CallToolParams
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, &Error{
			Code:    ErrInvalidParams,
			Message: "Failed to parse tool call params",
		}
	}

	if callParams.Name != ToolName {
		result := NewErrorResult(fmt.Errorf("unknown tool: %s", callParams.Name))
		return &result, nil
	}

	instruction, _ := callParams.Arguments["instruction"].(string)
	if instruction == "" {
		return nil, &Error{
			Code:    ErrInvalidParams,
			Message: "instruction is required",
		}
	}

	log.Debug().Str("tool", callParams.Name).Str("instruction", instruction).Msg("Executing tool")

	transcript := s.investigator.Run(ctx, instruction)
	result := NewTextResult(transcript)
	return &result, nil
}

func (s *Server) handleListResources() (*ListResourcesResult, *Error) {
	return &ListResourcesResult{
		Resources: []Resource{
			{
				URI:         ResourceHostFacts,
				Name:        "Host Facts",
				Description: "Basic identity and utilization snapshot of this host",
				MimeType:    "application/json",
			},
			{
				URI:         ResourceRecentRuns,
				Name:        "Recent Investigations",
				Description: "The most recent investigation runs with their steps and reports",
				MimeType:    "application/json",
			},
		},
	}, nil
}

func (s *Server) handleReadResource(ctx context.Context, params json.RawMessage) (*ReadResourceResult, *Error) {
	var readParams ReadResourceParams
	if err := json.Unmarshal(params, &readParams); err != nil {
		return nil, &Error{
			Code:    ErrInvalidParams,
			Message: "Failed to parse resource read params",
		}
	}

	switch readParams.URI {
	case ResourceHostFacts:
		return resourceJSON(readParams.URI, CollectHostFacts(ctx))
	case ResourceRecentRuns:
		var runs []agent.Run
		if s.registry != nil {
			runs = s.registry.Recent()
		}
		return resourceJSON(readParams.URI, runs)
	default:
		return nil, &Error{
			Code:    ErrInvalidParams,
			Message: fmt.Sprintf("Unknown resource: %s", readParams.URI),
		}
	}
}

func resourceJSON(uri string, data interface{}) (*ReadResourceResult, *Error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, &Error{Code: ErrInternal, Message: "Failed to marshal resource"}
	}
	return &ReadResourceResult{
		Contents: []ResourceContent{
			{URI: uri, MimeType: "application/json", Text: string(b)},
		},
	}, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.registry == nil || s.reporter == nil {
		http.NotFound(w, r)
		return
	}

	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/report/"), "/")
	if runID == "" {
		http.NotFound(w, r)
		return
	}

	run, ok := s.registry.Get(runID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	pdf, err := s.reporter.Generate(run)
	if err != nil {
		log.Error().Err(err).Str("runId", runID).Msg("Report generation failed")
		http.Error(w, "Failed to generate report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sleuth-"+runID+".pdf"))
	w.Write(pdf)
}

func (s *Server) writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, id, ErrInternal, "Failed to marshal result")
		return
	}

	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  resultJSON,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	s.writeErrorResponse(w, id, &Error{Code: code, Message: message})
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, id interface{}, err *Error) {
	resp := Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   err,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
