package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/errors"
	"github.com/forgeflow/forgeflow/internal/logging"
)

// CommandRunner executes a command with the given stdin payload and returns
// its stdout. Injected in tests.
type CommandRunner func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)

// defaultRunner runs commands using os/exec.
var defaultRunner CommandRunner = func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	return cmd.Output()
}

// ExecInvoker runs agent capabilities by invoking a configured agent binary
// with a JSON request on stdin and a JSON result expected on stdout.
type ExecInvoker struct {
	command string
	args    []string
	timeout time.Duration
	runner  CommandRunner
	logger  *logging.Logger
}

// NewExecInvoker creates an ExecInvoker from agent configuration.
func NewExecInvoker(cfg config.AgentConfig, logger *logging.Logger) *ExecInvoker {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &ExecInvoker{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: cfg.Timeout(),
		runner:  defaultRunner,
		logger:  logger,
	}
}

// NewExecInvokerWithRunner creates an ExecInvoker with a custom command
// runner for testing.
func NewExecInvokerWithRunner(cfg config.AgentConfig, runner CommandRunner, logger *logging.Logger) *ExecInvoker {
	inv := NewExecInvoker(cfg, logger)
	inv.runner = runner
	return inv
}

// wireRequest is the JSON payload written to the agent's stdin.
type wireRequest struct {
	Capability string         `json:"capability"`
	Project    string         `json:"project"`
	ItemID     string         `json:"item_id,omitempty"`
	Input      map[string]any `json:"input,omitempty"`
}

// wireResult is the JSON payload expected on the agent's stdout.
type wireResult struct {
	Artifacts  []string       `json:"artifacts,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	CostTokens int64          `json:"cost_tokens"`
}

// Invoke runs one capability invocation end to end.
func (e *ExecInvoker) Invoke(ctx context.Context, req Request) (Result, error) {
	if err := ValidateRequest(req); err != nil {
		return Result{}, err
	}

	payload, err := json.Marshal(wireRequest{
		Capability: req.Capability.String(),
		Project:    req.Project,
		ItemID:     req.ItemID,
		Input:      req.Input,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal capability request: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	args := append(append([]string{}, e.args...), "--capability", req.Capability.String())

	start := time.Now()
	e.logger.Debug("invoking capability",
		"capability", req.Capability.String(),
		"item_id", req.ItemID,
	)

	output, err := e.runner(ctx, e.command, args, payload)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("%w: %s: %v", errors.ErrCanceled, req.Capability, ctx.Err())
		}
		return Result{}, fmt.Errorf("%w: %s: %v", errors.ErrCapabilityUnavailable, req.Capability, err)
	}

	var wire wireResult
	if err := json.Unmarshal(output, &wire); err != nil {
		return Result{}, fmt.Errorf("%w: %s produced unparsable output: %v",
			errors.ErrCapabilityUnavailable, req.Capability, err)
	}

	e.logger.Info("capability completed",
		"capability", req.Capability.String(),
		"item_id", req.ItemID,
		"cost_tokens", wire.CostTokens,
		"duration_ms", elapsed.Milliseconds(),
	)

	return Result{
		Artifacts:  wire.Artifacts,
		Output:     wire.Output,
		CostTokens: wire.CostTokens,
		Duration:   elapsed,
	}, nil
}

// Ensure ExecInvoker implements Invoker
var _ Invoker = (*ExecInvoker)(nil)
