// Package server exposes registered tools over JSON-RPC on
// stdin/stdout, speaking the Model Context Protocol.
//
// One JSON object per line in each direction. Tool semantics live in
// the tools package; this layer only frames requests and shapes
// responses. All logging goes to stderr because stdout carries the
// protocol stream.
//
// Information Hiding:
// - JSON-RPC framing hidden
// - Method dispatch hidden
// - Result shaping internalized

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richinex/mnemosyne/tools"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "mnemosyne"
	serverVersion   = "0.1.0"

	// Generous line limit; tool arguments are small but snippets in
	// results are not the inbound direction anyway.
	maxLineBytes = 4 * 1024 * 1024
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// rpcRequest is an incoming JSON-RPC request or notification.
// ID is passed through untouched; it may be a number or a string.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is an outgoing JSON-RPC response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError is a JSON-RPC error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolDescriptor is one entry in the tools/list result.
type toolDescriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema inputSchema `json:"inputSchema"`
}

// inputSchema is the JSON-schema shape MCP clients expect.
type inputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]schemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

type schemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// contentItem is one entry in a tools/call result content array.
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// callResult is the tools/call result shape.
type callResult struct {
	Content           []contentItem `json:"content"`
	StructuredContent interface{}   `json:"structuredContent,omitempty"`
	IsError           bool          `json:"isError,omitempty"`
}

// Server serves tool calls over a reader/writer pair.
type Server struct {
	in     io.Reader
	out    io.Writer
	tools  *tools.Registry
	logger *zap.Logger
}

// New creates a server over the given streams and tool registry.
func New(in io.Reader, out io.Writer, registry *tools.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		in:     in,
		out:    out,
		tools:  registry,
		logger: logger,
	}
}

// Run reads requests until the input stream closes or ctx is
// canceled. Each request is handled on the reading goroutine; the
// host client is responsible for pipelining if it wants concurrency.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("unparsable request line", zap.Error(err))
			if werr := s.writeError(nil, codeParseError, "parse error"); werr != nil {
				return werr
			}
			continue
		}

		if err := s.dispatch(ctx, req); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read request stream: %w", err)
	}
	return nil
}

// dispatch routes one request to its method handler. Notifications
// (no id) never get a response.
func (s *Server) dispatch(ctx context.Context, req rpcRequest) error {
	requestID := uuid.NewString()
	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("method", req.Method))

	if req.ID == nil {
		logger.Debug("notification received")
		return nil
	}

	switch req.Method {
	case "initialize":
		return s.writeResult(req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": serverVersion,
			},
		})

	case "ping":
		return s.writeResult(req.ID, map[string]interface{}{})

	case "tools/list":
		return s.writeResult(req.ID, map[string]interface{}{
			"tools": s.describeTools(),
		})

	case "tools/call":
		return s.handleToolCall(ctx, req, logger)

	default:
		logger.Debug("unknown method")
		return s.writeError(req.ID, codeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// handleToolCall executes a registered tool and shapes its result.
// Tool-level failures (validation, not-found, bridge errors) come back
// as successful JSON-RPC responses with isError set, per MCP; protocol
// errors are reserved for malformed requests.
func (s *Server) handleToolCall(ctx context.Context, req rpcRequest, logger *zap.Logger) error {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.writeError(req.ID, codeInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	if params.Name == "" {
		return s.writeError(req.ID, codeInvalidParams, "tool name is required")
	}

	tool, ok := s.tools.Get(params.Name)
	if !ok {
		return s.writeError(req.ID, codeInvalidParams, fmt.Sprintf("unknown tool: %s", params.Name))
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := tool.Execute(ctx, args)
	if err != nil {
		// Tools report expected failures inside ToolResult; an error
		// return is an internal fault.
		logger.Error("tool execution fault", zap.Error(err))
		return s.writeError(req.ID, codeInvalidRequest, fmt.Sprintf("tool execution failed: %v", err))
	}

	if !result.Success() {
		logger.Info("tool call failed", zap.String("tool", params.Name), zap.String("reason", result.Error.Error()))
		return s.writeResult(req.ID, callResult{
			Content: []contentItem{{Type: "text", Text: result.Error.Error()}},
			IsError: true,
		})
	}

	logger.Debug("tool call succeeded", zap.String("tool", params.Name))
	return s.writeResult(req.ID, callResult{
		Content:           []contentItem{{Type: "text", Text: result.Output}},
		StructuredContent: result.Structured,
	})
}

// describeTools converts registry metadata to MCP tool descriptors.
func (s *Server) describeTools() []toolDescriptor {
	metadata := s.tools.List()
	descriptors := make([]toolDescriptor, 0, len(metadata))
	for _, meta := range metadata {
		descriptors = append(descriptors, toolDescriptor{
			Name:        meta.Name,
			Description: meta.Description,
			InputSchema: schemaFor(meta),
		})
	}
	return descriptors
}

// schemaFor builds a JSON schema from tool parameter metadata.
func schemaFor(meta tools.ToolMetadata) inputSchema {
	schema := inputSchema{
		Type:       "object",
		Properties: make(map[string]schemaProperty, len(meta.Parameters)),
	}
	for _, param := range meta.Parameters {
		schema.Properties[param.Name] = schemaProperty{
			Type:        param.ParamType,
			Description: param.Description,
		}
		if param.Required {
			schema.Required = append(schema.Required, param.Name)
		}
	}
	return schema
}

func (s *Server) writeResult(id json.RawMessage, result interface{}) error {
	return s.write(rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(id json.RawMessage, code int, message string) error {
	if id == nil {
		id = json.RawMessage("null")
	}
	return s.write(rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) write(resp rpcResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
