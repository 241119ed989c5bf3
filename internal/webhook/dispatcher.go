// Package webhook applies conversation lifecycle events to the store.
//
// The Dispatcher is the single failure boundary: handlers return typed
// errors, and the dispatcher turns every outcome into a response, records
// exactly one audit entry, and notifies observers.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/realmate/conversations/internal/models"
	"github.com/realmate/conversations/internal/store"
)

// Auditor records one entry per processed event and never fails.
type Auditor interface {
	Log(ctx context.Context, event, conversationID string, status models.LogStatus, message string)
}

// Observer is notified after each event has been audited.
type Observer interface {
	ObserveOutcome(ctx context.Context, outcome Outcome, elapsed time.Duration)
}

// Outcome is the uniform response contract. Exactly one of Message and
// Description is set.
type Outcome struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Description string `json:"description,omitempty"`

	StatusCode     int    `json:"-"`
	Event          string `json:"-"`
	ConversationID string `json:"-"`
	Kind           Kind   `json:"-"`
}

type failureRule struct {
	status   int
	describe func(e *Error) string
	audit    func(e *Error) string
}

// failureRules maps every error kind to its response. No kind maps to 5xx.
var failureRules = map[Kind]failureRule{
	KindValidation: {
		status:   http.StatusBadRequest,
		describe: func(e *Error) string { return e.Msg },
		audit:    func(e *Error) string { return e.Msg },
	},
	KindNotFound: {
		status:   http.StatusNotFound,
		describe: func(e *Error) string { return fmt.Sprintf("conversation with id %s not found", e.ConversationID) },
		audit:    func(e *Error) string { return e.Msg },
	},
	KindBusinessRule: {
		status:   http.StatusBadRequest,
		describe: func(e *Error) string { return e.Msg },
		audit:    func(e *Error) string { return e.Msg },
	},
	KindInvalidValue: {
		status:   http.StatusBadRequest,
		describe: func(e *Error) string { return "invalid value: " + e.Msg },
		audit:    func(e *Error) string { return "invalid value: " + e.Error() },
	},
	KindIntegrity: {
		status: http.StatusBadRequest,
		describe: func(e *Error) string {
			if errors.Is(e, store.ErrDuplicateMessage) {
				return "duplicate id detected: the id already exists"
			}
			return "database integrity error: " + e.Error()
		},
		audit: func(e *Error) string { return "integrity error: " + e.Error() },
	},
	KindUnexpected: {
		status:   http.StatusBadRequest,
		describe: func(e *Error) string { return "an error occurred while processing the request: " + e.Error() },
		audit:    func(e *Error) string { return "unexpected error: " + e.Error() },
	},
}

type Dispatcher struct {
	handlers  map[EventType]Handler
	auditor   Auditor
	observers []Observer
	logger    *zap.SugaredLogger
}

type Option func(*Dispatcher)

// WithHandler registers or replaces the handler for an event type.
func WithHandler(event EventType, handler Handler) Option {
	return func(d *Dispatcher) {
		d.handlers[event] = handler
	}
}

func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		if observer != nil {
			d.observers = append(d.observers, observer)
		}
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher wires the three lifecycle handlers against st.
func NewDispatcher(st store.Store, auditor Auditor, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: map[EventType]Handler{
			EventNewConversation:   NewConversationHandler{Store: st},
			EventCloseConversation: CloseConversationHandler{Store: st},
			EventNewMessage:        NewMessageHandler{Store: st},
		},
		auditor: auditor,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessJSON decodes body and processes it. Malformed bodies are answered
// and audited like any other failure.
func (d *Dispatcher) ProcessJSON(ctx context.Context, body []byte) Outcome {
	env, err := DecodeEnvelope(body)
	if err != nil {
		start := time.Now()
		outcome, auditMsg := d.failure(env, err)
		d.finish(ctx, outcome, auditMsg, time.Since(start))
		return outcome
	}
	return d.Process(ctx, env)
}

// Process applies one event and always returns a well-formed outcome.
func (d *Dispatcher) Process(ctx context.Context, env Envelope) Outcome {
	start := time.Now()
	if env.Data == nil {
		env.Data = map[string]any{}
	}

	outcome, auditMsg := d.process(ctx, env)
	d.finish(ctx, outcome, auditMsg, time.Since(start))
	return outcome
}

func (d *Dispatcher) process(ctx context.Context, env Envelope) (Outcome, string) {
	if env.Type == "" {
		return Outcome{
			Description: "event type is required",
			StatusCode:  http.StatusBadRequest,
			Event:       models.UnknownEvent,
			Kind:        KindValidation,
		}, "event type missing"
	}

	handler, ok := d.handlers[EventType(env.Type)]
	if !ok {
		msg := "unknown event type: " + env.Type
		return Outcome{
			Description:    msg,
			StatusCode:     http.StatusBadRequest,
			Event:          env.Type,
			ConversationID: fallbackConversationID(env.Data),
			Kind:           KindValidation,
		}, msg
	}

	result, err := d.apply(ctx, handler, env)
	if err != nil {
		return d.failure(env, err)
	}

	return Outcome{
		Success:        true,
		Message:        result.Message,
		StatusCode:     result.StatusCode,
		Event:          env.Type,
		ConversationID: result.ConversationID,
	}, result.AuditMessage
}

// apply runs the handler, turning a panic into an unexpected failure.
func (d *Dispatcher) apply(ctx context.Context, handler Handler, env Envelope) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("webhook handler panicked", "event", env.Type, "panic", r)
			err = unexpected("", fmt.Errorf("panic: %v", r))
		}
	}()
	return handler.Apply(ctx, env.Data, env.Timestamp)
}

func (d *Dispatcher) failure(env Envelope, err error) (Outcome, string) {
	var werr *Error
	if !errors.As(err, &werr) {
		werr = unexpected("", err)
	}

	rule, ok := failureRules[werr.Kind]
	if !ok {
		rule = failureRules[KindUnexpected]
	}

	conversationID := werr.ConversationID
	if conversationID == "" {
		conversationID = fallbackConversationID(env.Data)
	}
	if werr.ConversationID == "" {
		werr.ConversationID = conversationID
	}

	event := env.Type
	if event == "" {
		event = models.UnknownEvent
	}

	return Outcome{
		Description:    rule.describe(werr),
		StatusCode:     rule.status,
		Event:          event,
		ConversationID: conversationID,
		Kind:           werr.Kind,
	}, rule.audit(werr)
}

func (d *Dispatcher) finish(ctx context.Context, outcome Outcome, auditMsg string, elapsed time.Duration) {
	status := models.LogSuccess
	if !outcome.Success {
		status = models.LogError
	}

	if d.auditor != nil {
		d.auditor.Log(ctx, outcome.Event, outcome.ConversationID, status, auditMsg)
	}

	fields := []any{
		"event", outcome.Event,
		"conversation_id", outcome.ConversationID,
		"status_code", outcome.StatusCode,
		"elapsed", elapsed,
	}
	if outcome.Success {
		d.logger.Infow(auditMsg, fields...)
	} else {
		d.logger.Warnw(auditMsg, append(fields, "kind", outcome.Kind.String())...)
	}

	for _, observer := range d.observers {
		observer.ObserveOutcome(ctx, outcome, elapsed)
	}
}

// fallbackConversationID extracts a conversation id from raw event data for
// logging when the handler failed before resolving one.
func fallbackConversationID(data map[string]any) string {
	if id := lookupString(data, "conversation_id"); id != "" {
		return id
	}
	return lookupString(data, "id")
}
