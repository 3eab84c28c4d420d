// internal/bridge/bridge.go
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/emlanis/secret-ai-writer/internal/utils"
	"github.com/rs/zerolog"
)

// Operation names an action understood by the bridge process.
type Operation string

const (
	OpGenerate Operation = "generate"
	OpEnhance  Operation = "enhance"
	OpStore    Operation = "store"
	OpRetrieve Operation = "retrieve"
)

// FailureKind classifies why a bridge call produced no payload.
type FailureKind string

const (
	KindTimeout FailureKind = "timeout"
	KindExit    FailureKind = "exit"
	KindDecode  FailureKind = "decode"
	KindSpawn   FailureKind = "spawn"
	KindRemote  FailureKind = "remote"
)

// DefaultTimeout bounds a single invocation when none is configured.
const DefaultTimeout = 120 * time.Second

// Result is either a decoded payload or a failure with its kind.
type Result struct {
	Payload map[string]interface{}
	Reason  string
	Kind    FailureKind
}

func Success(payload map[string]interface{}) Result {
	return Result{Payload: payload}
}

func Failure(kind FailureKind, format string, args ...interface{}) Result {
	return Result{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Kind == ""
}

// Err converts a failure into an error; nil on success.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Kind: r.Kind, Reason: r.Reason}
}

// Error is the error form of a failed Result.
type Error struct {
	Kind   FailureKind
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bridge %s: %s", e.Kind, e.Reason)
}

// Bridge invokes the external generation and storage backend.
type Bridge interface {
	Invoke(ctx context.Context, op Operation, request interface{}) Result
}

// Config describes the bridge process.
type Config struct {
	Command string
	Args    []string
	Timeout time.Duration
	// WaitDelay bounds pipe draining after the process is killed.
	WaitDelay time.Duration
}

// ProcessBridge runs one process per call:
// <command> <args...> <operation> <request-json>.
// Stdout must hold a single JSON object; stderr is kept for diagnostics.
type ProcessBridge struct {
	cfg    Config
	logger zerolog.Logger
}

func NewProcessBridge(cfg Config, logger zerolog.Logger) (*ProcessBridge, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("bridge command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 2 * time.Second
	}
	return &ProcessBridge{
		cfg:    cfg,
		logger: logger.With().Str("component", "bridge").Logger(),
	}, nil
}

func (b *ProcessBridge) Invoke(ctx context.Context, op Operation, request interface{}) Result {
	start := time.Now()
	res := b.invoke(ctx, op, request)

	outcome := "success"
	if !res.OK() {
		outcome = string(res.Kind)
		b.logger.Warn().Str("op", string(op)).Str("kind", outcome).Str("reason", res.Reason).
			Dur("duration", time.Since(start)).Msg("bridge call failed")
	} else {
		b.logger.Debug().Str("op", string(op)).Dur("duration", time.Since(start)).Msg("bridge call ok")
	}
	utils.RecordBridgeCall(string(op), outcome, time.Since(start))
	return res
}

func (b *ProcessBridge) invoke(ctx context.Context, op Operation, request interface{}) Result {
	reqJSON, err := json.Marshal(request)
	if err != nil {
		return Failure(KindSpawn, "encode request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, b.cfg.Args...), string(op), string(reqJSON))
	cmd := exec.CommandContext(ctx, b.cfg.Command, args...)
	cmd.WaitDelay = b.cfg.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return Failure(KindTimeout, "operation timed out after %s", b.cfg.Timeout)
		}
		return Failure(KindTimeout, "operation cancelled: %v", ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Failure(KindExit, "exited with code %d: %s", exitErr.ExitCode(), trimDiag(stderr.String()))
		}
		return Failure(KindSpawn, "%v", err)
	}

	return decode(stdout.Bytes())
}

// decode parses stdout as one JSON object; a non-empty "error" field is a remote failure.
func decode(out []byte) Result {
	var payload map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(out), &payload); err != nil {
		return Failure(KindDecode, "failed to parse bridge output: %v", err)
	}
	if payload == nil {
		return Failure(KindDecode, "bridge output is not a JSON object")
	}
	if msg, ok := payload["error"]; ok && msg != nil && msg != "" {
		return Failure(KindRemote, "%v", msg)
	}
	return Success(payload)
}

func trimDiag(s string) string {
	s = strings.TrimSpace(s)
	const max = 512
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

// Disabled is used when no bridge command is configured; every call fails with KindSpawn.
type Disabled struct{}

func (Disabled) Invoke(_ context.Context, op Operation, _ interface{}) Result {
	return Failure(KindSpawn, "no bridge configured for %s", op)
}
