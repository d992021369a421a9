package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/internal/apperr"
	"github.com/snapshare/snapfeed/pkg/logging"
	"github.com/snapshare/snapfeed/pkg/telemetry"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MethodHandler is a function that handles a JSON-RPC method
type MethodHandler func(ctx *gin.Context, params json.RawMessage) (interface{}, error)

// JSONRPCHandler handles JSON-RPC requests
type JSONRPCHandler struct {
	methods map[string]MethodHandler
	debug   bool
	logger  *zap.Logger
}

// NewJSONRPCHandler creates a new JSON-RPC handler. With debug set, error
// responses carry the full internal error text.
func NewJSONRPCHandler(debug bool) *JSONRPCHandler {
	return &JSONRPCHandler{
		methods: make(map[string]MethodHandler),
		debug:   debug,
		logger:  logging.WithComponent("jsonrpc"),
	}
}

// RegisterMethod registers a method handler
func (h *JSONRPCHandler) RegisterMethod(method string, handler MethodHandler) {
	h.methods[method] = handler
}

// Methods lists the registered method names
func (h *JSONRPCHandler) Methods() []string {
	names := make([]string, 0, len(h.methods))
	for name := range h.methods {
		names = append(names, name)
	}
	return names
}

// Handle handles a JSON-RPC request
func (h *JSONRPCHandler) Handle(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "jsonrpc.handle")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req JSONRPCRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, nil, &JSONRPCError{Code: ErrParseError, Message: "Parse error"}, err)
		return
	}
	span.SetAttributes(attribute.String("rpc.method", req.Method))

	if req.JSONRPC != "2.0" {
		h.sendError(c, req.ID, &JSONRPCError{Code: ErrInvalidRequest, Message: "Invalid Request"}, fmt.Errorf("invalid jsonrpc version"))
		return
	}

	handler, ok := h.methods[req.Method]
	if !ok {
		h.sendError(c, req.ID, &JSONRPCError{Code: ErrMethodNotFound, Message: "Method not found"}, fmt.Errorf("method %s not found", req.Method))
		return
	}

	result, err := handler(c, req.Params)
	telemetry.Add(ctx, telemetry.GetMetrics().RPCRequests, 1,
		attribute.String("method", req.Method),
		attribute.String("kind", apperr.KindOf(err).String()),
		attribute.Bool("ok", err == nil))
	if err != nil {
		span.RecordError(err)
		h.sendError(c, req.ID, toRPCError(err, h.debug), err)
		return
	}

	h.sendResponse(c, req.ID, result)
}

// sendResponse sends a successful JSON-RPC response
func (h *JSONRPCHandler) sendResponse(c *gin.Context, id interface{}, result interface{}) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	c.JSON(http.StatusOK, resp)
}

// sendError sends an error JSON-RPC response. Client errors are logged at
// debug level, everything else as an error.
func (h *JSONRPCHandler) sendError(c *gin.Context, id interface{}, rpcErr *JSONRPCError, err error) {
	logger := logging.FromContext(c.Request.Context(), h.logger)
	fields := []zap.Field{zap.Int("code", rpcErr.Code), zap.String("message", rpcErr.Message), zap.Error(err)}
	switch apperr.KindOf(err) {
	case apperr.KindStoreUnavailable, apperr.KindUnknown:
		logger.Error("JSON-RPC error", fields...)
	default:
		logger.Debug("JSON-RPC error", fields...)
	}

	if rpcErr.Data == nil {
		data := ErrorData{Kind: "protocol", Message: rpcErr.Message}
		if h.debug && err != nil {
			data.Detail = err.Error()
		}
		rpcErr.Data = data
	}
	c.JSON(http.StatusOK, JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   rpcErr,
	})
}

// Standard JSON-RPC error codes
const (
	ErrParseError     = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternalError  = -32603
)
