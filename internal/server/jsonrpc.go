// Package server exposes the tool registry over JSON-RPC 2.0, either on
// stdio with Content-Length framing or over HTTP.
package server

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

const jsonrpcVersion = "2.0"

// Request is a JSON-RPC 2.0 request or notification. Notifications carry a
// null ID and never receive a response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no ID.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func successResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: normalizeID(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{
		JSONRPC: jsonrpcVersion,
		ID:      normalizeID(id),
		Error:   &RPCError{Code: code, Message: message},
	}
}

// normalizeID keeps a null ID explicit in the response, as required when
// answering a parse error where the request ID was never read.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func encodeResponse(resp *Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encoding response: %w", err)
	}
	return data, nil
}

func parseRequest(data []byte) (*Request, *Response) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errorResponse(nil, codeParseError, fmt.Sprintf("parse error: %v", err))
	}
	if req.JSONRPC != jsonrpcVersion {
		return nil, errorResponse(req.ID, codeInvalidRequest, fmt.Sprintf("unsupported jsonrpc version %q", req.JSONRPC))
	}
	if req.Method == "" {
		return nil, errorResponse(req.ID, codeInvalidRequest, "missing method")
	}
	return &req, nil
}
