package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/medlens/medlens/internal/logging"
	"github.com/medlens/medlens/internal/tools"
)

const protocolVersion = "2024-11-05"

// Info identifies the server in the initialize handshake.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server dispatches JSON-RPC methods to the tool registry. It is shared by
// the stdio and HTTP transports.
type Server struct {
	registry *tools.Registry
	logger   logging.Logger
	info     Info
}

// New builds a server around a tool registry.
func New(registry *tools.Registry, logger logging.Logger, info Info) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{registry: registry, logger: logger, info: info}
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      Info           `json:"serverInfo"`
}

type toolsListResult struct {
	Tools []tools.Definition `json:"tools"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolsCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// Handle processes one request and returns the response, or nil for
// notifications.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		// Notifications get no reply, including notifications/initialized.
		s.logger.Debug("notification received", "method", req.Method)
		return nil
	}

	switch req.Method {
	case "initialize":
		return successResponse(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      s.info,
		})
	case "ping":
		return successResponse(req.ID, map[string]any{})
	case "tools/list":
		return successResponse(req.ID, toolsListResult{Tools: s.registry.Definitions()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("invalid tools/call params: %v", err))
	}
	if params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "missing tool name")
	}

	result, err := s.registry.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		var unknown *tools.UnknownToolError
		if errors.As(err, &unknown) {
			return errorResponse(req.ID, codeInvalidParams, unknown.Error())
		}
		// Handler errors mean a malformed request rather than a domain
		// failure; those come back inside the result payload.
		return successResponse(req.ID, toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: err.Error()}},
			IsError: true,
		})
	}

	text, err := json.Marshal(result)
	if err != nil {
		return errorResponse(req.ID, codeInternalError, fmt.Sprintf("encoding tool result: %v", err))
	}
	return successResponse(req.ID, toolsCallResult{
		Content: []contentBlock{{Type: "text", Text: string(text)}},
	})
}
