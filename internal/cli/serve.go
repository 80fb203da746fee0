package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"envelopes/internal/config"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/tools"
)

const maxRequestBytes = 1 << 20

// Request is one line of a serve session.
type Request struct {
	ID   json.RawMessage `json:"id,omitempty"`
	Tool string          `json:"tool"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Response echoes the request id next to the tool result.
type Response struct {
	ID json.RawMessage `json:"id,omitempty"`
	tools.Result
}

// Serve answers newline-delimited JSON requests from r on w, one response
// line per request, until r is exhausted or ctx is done. Blank lines are
// skipped. A malformed line gets a ValidationError response and the session
// goes on.
func (a *App) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestBytes)
	enc := json.NewEncoder(w)

	served := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil || req.Tool == "" {
			resp.Result = tools.Result{Error: &tools.ErrorResult{
				Kind:    core.KindValidation,
				Message: `each line must be a JSON object with a "tool" field`,
			}}
		} else {
			resp.ID = req.ID
			resp.Result = a.Registry.Call(ctx, req.Tool, req.Args)
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		served++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	a.Logger.Info("Session ended", "requests", served)
	return nil
}

// DisableStartupActions turns off reset-on-start and sync-on-start for a
// process that answers a single command. Both run once per session.
func DisableStartupActions(cfg *config.Config, logger *log.Logger) {
	if cfg.ResetOnStart {
		logger.Warn("RESET_DB_ON_START ignored for single commands, use serve for a session")
		cfg.ResetOnStart = false
	}
	if cfg.SyncOnStart {
		logger.Warn("SYNC_ON_START ignored for single commands, use serve for a session")
		cfg.SyncOnStart = false
	}
}
