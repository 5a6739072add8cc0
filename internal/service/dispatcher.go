// Package service wires the moderation engine to its stores and to the
// request/reply transport. The Dispatcher turns raw request bytes into
// response bytes; the Moderator holds the per-request logic.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/cinetalk/forum-app/internal/metrics"
	"github.com/cinetalk/forum-app/internal/protocol"
)

// Handler serves one parsed request. msg is the concrete struct returned by
// protocol.ParseRequest (protocol.ModerateMsg, protocol.SanitizeMsg, ...).
// It returns the encoded response.
type Handler func(ctx context.Context, msg interface{}) []byte

// Dispatcher routes requests to registered handlers by message type. It
// answers ping itself and sends structured errors for malformed or
// unsupported requests.
type Dispatcher struct {
	handlers map[string]Handler
	log      *zap.Logger
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		log:      log.Named("dispatcher"),
	}
}

// Register associates a Handler with a message type, replacing any previous
// one. Register all handlers before the first Dispatch.
func (d *Dispatcher) Register(msgType string, handler Handler) {
	d.handlers[msgType] = handler
}

// Dispatch parses data, routes it and returns the response bytes. It never
// returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) []byte {
	msgType, msg, err := protocol.ParseRequest(data)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrUnknownType):
			d.log.Warn("unsupported request type", zap.String("type", msgType))
			metrics.RequestsTotal.WithLabelValues("unknown", outcomeInvalid).Inc()
			return errorResponse(d.log, protocol.CodeUnsupportedType, "unsupported request type")
		case errors.Is(err, protocol.ErrInvalidRequest):
			d.log.Info("invalid request", zap.String("type", msgType), zap.Error(err))
			metrics.RequestsTotal.WithLabelValues(msgType, outcomeInvalid).Inc()
			return errorResponse(d.log, protocol.CodeInvalidRequest, err.Error())
		default:
			d.log.Warn("parse error", zap.Error(err))
			metrics.RequestsTotal.WithLabelValues("unknown", outcomeInvalid).Inc()
			return errorResponse(d.log, protocol.CodeParseError, "invalid message format")
		}
	}

	if msgType == protocol.TypePing {
		metrics.RequestsTotal.WithLabelValues(msgType, outcomeOK).Inc()
		return response(d.log, protocol.TypePong, protocol.PongMsg{})
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		d.log.Warn("no handler registered", zap.String("type", msgType))
		metrics.RequestsTotal.WithLabelValues(msgType, outcomeInvalid).Inc()
		return errorResponse(d.log, protocol.CodeUnsupportedType, "unsupported request type")
	}

	return handler(ctx, msg)
}

// response encodes payload. The payloads are plain structs, so a failure is
// logged and turned into an internal error response.
func response(log *zap.Logger, msgType string, payload interface{}) []byte {
	data, err := protocol.NewResponse(msgType, payload)
	if err != nil {
		log.Error("build response", zap.String("type", msgType), zap.Error(err))
		return []byte(`{"type":"error","code":"internal_error","message":"failed to encode response"}`)
	}
	return data
}

func errorResponse(log *zap.Logger, code, message string) []byte {
	return response(log, protocol.TypeError, protocol.ErrorMsg{Code: code, Message: message})
}
