package api

import (
	"github.com/snapshare/snapfeed/internal/apperr"
)

// Error codes beyond the JSON-RPC reserved range, one per apperr kind
const (
	ErrNotFound         = -32001
	ErrConflict         = -32002
	ErrStoreUnavailable = -32003
)

// ErrorData is attached to every application error response
type ErrorData struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// codeFor maps an error to its stable code and top-level message
func codeFor(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidArgument:
		return ErrInvalidParams, "Invalid params"
	case apperr.KindNotFound:
		return ErrNotFound, "Not found"
	case apperr.KindConflict:
		return ErrConflict, "Conflict"
	case apperr.KindStoreUnavailable:
		return ErrStoreUnavailable, "Store unavailable"
	}
	return ErrInternalError, "Internal error"
}

// toRPCError builds the response error. Detail carries the full error text
// and is only filled when debug is set.
func toRPCError(err error, debug bool) *JSONRPCError {
	code, msg := codeFor(err)
	data := ErrorData{Kind: apperr.KindOf(err).String(), Message: apperr.PublicMessage(err)}
	if debug {
		data.Detail = err.Error()
	}
	return &JSONRPCError{Code: code, Message: msg, Data: data}
}
