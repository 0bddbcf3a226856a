// Package rpc exposes the authorization service over JSON-RPC 2.0.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aussiebroadwan/authz/internal/authz/service"
	"github.com/aussiebroadwan/authz/pkg/httpx"
	"github.com/aussiebroadwan/authz/pkg/slogx"
)

const Version = "2.0"

// Standard JSON-RPC error codes plus one code for service errors, which
// carry their taxonomy name in data.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeServerError    = -32000
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether req is a well formed call without an id
// member. An explicit "id": null is still a request.
func (req Request) IsNotification() bool {
	return req.ID == nil && req.JSONRPC == Version && req.Method != ""
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

type ErrorData struct {
	Name   string `json:"name"`
	Status int    `json:"status"`
}

// method is one entry of the dispatch table.
type method func(ctx context.Context, params json.RawMessage) (any, error)

// invalidParams marks a params decoding failure.
type invalidParams struct{ err error }

func (e invalidParams) Error() string { return "invalid params: " + e.err.Error() }

// bind decodes params into T before calling fn. Missing params decode as the
// zero value.
func bind[T any](fn func(ctx context.Context, p T) (any, error)) method {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, invalidParams{err}
			}
		}
		return fn(ctx, p)
	}
}

// Handler serves JSON-RPC requests from a static method table.
type Handler struct {
	methods map[string]method
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := httpx.ReadJSON(w, r, &req); err != nil {
		writeResponse(w, Response{Error: &Error{Code: CodeParseError, Message: "parse error"}})
		return
	}
	ctx := r.Context()
	if token, ok := httpx.BearerToken(r); ok {
		ctx = withBearer(ctx, token)
	}
	resp := h.dispatch(ctx, req)
	if req.IsNotification() {
		if resp.Error != nil {
			slogx.FromContext(ctx).Debug("rpc notification failed", "rpc_method", req.Method, "error", resp.Error.Message)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeResponse(w, resp)
}

func (h *Handler) dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}
	if req.JSONRPC != Version || req.Method == "" {
		resp.Error = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
		return resp
	}
	m, ok := h.methods[req.Method]
	if !ok {
		resp.Error = &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
		return resp
	}

	ctx = slogx.With(ctx, "rpc_method", req.Method)
	result, err := m(ctx, req.Params)
	if err != nil {
		resp.Error = toError(ctx, err)
		return resp
	}
	if result == nil {
		result = struct{}{}
	}
	resp.Result = result
	return resp
}

// toError maps a method error onto a JSON-RPC error object. Errors outside
// the service taxonomy are logged and reported generically.
func toError(ctx context.Context, err error) *Error {
	var ip invalidParams
	if errors.As(err, &ip) {
		return &Error{Code: CodeInvalidParams, Message: ip.Error()}
	}
	var se *service.Error
	if errors.As(err, &se) {
		return &Error{
			Code:    CodeServerError,
			Message: se.Message,
			Data:    &ErrorData{Name: se.Code, Status: se.Status},
		}
	}
	slogx.FromContext(ctx).Error("rpc method failed", "error", err)
	return &Error{
		Code:    CodeInternalError,
		Message: service.ErrInternal.Message,
		Data:    &ErrorData{Name: service.ErrInternal.Code, Status: service.ErrInternal.Status},
	}
}

func writeResponse(w http.ResponseWriter, resp Response) {
	resp.JSONRPC = Version
	if resp.ID == nil {
		resp.ID = json.RawMessage("null")
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
