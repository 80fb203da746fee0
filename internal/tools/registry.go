package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/log"
)

// Handler runs one tool against its raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type Tool struct {
	Name        string
	Description string
	Handler     Handler
}

// Result is what every call returns: data on success, a kind and a
// caller-safe message otherwise.
type Result struct {
	OK    bool         `json:"ok"`
	Data  any          `json:"data,omitempty"`
	Error *ErrorResult `json:"error,omitempty"`
}

type ErrorResult struct {
	Kind    core.Kind `json:"kind"`
	Message string    `json:"message"`
}

// Registry maps tool names to handlers. It is filled once at startup and
// read-only afterwards.
type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With(log.FieldComponent, log.ComponentTools),
	}
}

// Register adds t. Names must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("tool needs a name and a handler")
	}
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
	return nil
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Call dispatches name with args. It never returns a Go error: failures are
// reported in the Result, with internal details kept in the log.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (res Result) {
	tool, ok := r.tools[name]
	if !ok {
		return failure(core.Errorf(core.KindUnknownTool, "unknown tool: %s", name))
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "Tool panicked",
				log.FieldTool, name,
				"panic", p)
			res = failure(core.ErrInternal)
		}
	}()

	data, err := tool.Handler(ctx, args)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		kind := core.KindOf(err)
		if kind == core.KindInternal {
			r.logger.ErrorContext(ctx, "Tool failed",
				log.FieldTool, name,
				log.FieldError, err,
				log.FieldDuration, elapsed)
		} else {
			r.logger.InfoContext(ctx, "Tool rejected",
				log.FieldTool, name,
				log.FieldErrorKind, kind,
				log.FieldError, err,
				log.FieldDuration, elapsed)
		}
		return failure(err)
	}

	r.logger.DebugContext(ctx, "Tool completed",
		log.FieldTool, name,
		log.FieldDuration, elapsed)
	return Result{OK: true, Data: data}
}

func failure(err error) Result {
	return Result{Error: &ErrorResult{Kind: core.KindOf(err), Message: core.MessageOf(err)}}
}

// decodeArgs unmarshals args into v. Missing or null arguments leave v as is.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return core.Wrap(core.KindValidation, err, "invalid arguments: %s", describeJSONError(err))
	}
	return nil
}

func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be %s", typeErr.Field, typeErr.Type)
	}
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr.Message
	}
	return "arguments must be a JSON object"
}
