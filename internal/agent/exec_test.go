package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/forgeflow/forgeflow/internal/config"
	"github.com/forgeflow/forgeflow/internal/errors"
)

func agentCfg() config.AgentConfig {
	return config.AgentConfig{
		Command:        "fake-agent",
		Args:           []string{"--quiet"},
		TimeoutMinutes: 1,
	}
}

func TestInvokeRoundTripsWirePayload(t *testing.T) {
	var gotName string
	var gotArgs []string
	var gotStdin []byte

	runner := func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		gotName, gotArgs, gotStdin = name, args, stdin
		return []byte(`{
			"artifacts": ["docs/prd.md"],
			"output": {"items": [{"title": "auth"}]},
			"cost_tokens": 4200
		}`), nil
	}
	inv := NewExecInvokerWithRunner(agentCfg(), runner, nil)

	res, err := inv.Invoke(context.Background(), Request{
		Capability: CapDefineProduct,
		Project:    "demo",
		Input:      map[string]any{"request": "build a thing"},
	})
	if err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}

	if gotName != "fake-agent" {
		t.Errorf("command = %q", gotName)
	}
	wantArgs := []string{"--quiet", "--capability", "define-product"}
	if !reflect.DeepEqual(gotArgs, wantArgs) {
		t.Errorf("args = %v, want %v", gotArgs, wantArgs)
	}

	var req wireRequest
	if err := json.Unmarshal(gotStdin, &req); err != nil {
		t.Fatalf("stdin payload unparsable: %v", err)
	}
	if req.Capability != "define-product" || req.Project != "demo" {
		t.Errorf("wire request = %+v", req)
	}
	if req.Input["request"] != "build a thing" {
		t.Errorf("wire input = %v", req.Input)
	}

	if res.CostTokens != 4200 {
		t.Errorf("CostTokens = %d, want 4200", res.CostTokens)
	}
	if !reflect.DeepEqual(res.Artifacts, []string{"docs/prd.md"}) {
		t.Errorf("Artifacts = %v", res.Artifacts)
	}
}

func TestInvokeRejectsInvalidRequest(t *testing.T) {
	inv := NewExecInvokerWithRunner(agentCfg(), func(context.Context, string, []string, []byte) ([]byte, error) {
		t.Fatal("runner must not be called")
		return nil, nil
	}, nil)

	if _, err := inv.Invoke(context.Background(), Request{Capability: "bogus", Project: "p"}); err == nil {
		t.Error("unknown capability accepted")
	}
	if _, err := inv.Invoke(context.Background(), Request{Capability: CapScaffold}); err == nil {
		t.Error("missing project accepted")
	}
}

func TestInvokeCancellation(t *testing.T) {
	runner := func(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	inv := NewExecInvokerWithRunner(agentCfg(), runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := inv.Invoke(ctx, Request{Capability: CapImplement, Project: "demo", ItemID: "1"})
	if !errors.Is(err, errors.ErrCanceled) {
		t.Errorf("error = %v, want ErrCanceled", err)
	}
}

func TestInvokeRunnerFailure(t *testing.T) {
	runner := func(context.Context, string, []string, []byte) ([]byte, error) {
		return nil, fmt.Errorf("exec: command not found")
	}
	inv := NewExecInvokerWithRunner(agentCfg(), runner, nil)

	_, err := inv.Invoke(context.Background(), Request{Capability: CapVerify, Project: "demo"})
	if !errors.Is(err, errors.ErrCapabilityUnavailable) {
		t.Errorf("error = %v, want ErrCapabilityUnavailable", err)
	}
}

func TestInvokeUnparsableOutput(t *testing.T) {
	runner := func(context.Context, string, []string, []byte) ([]byte, error) {
		return []byte("agent crashed\n"), nil
	}
	inv := NewExecInvokerWithRunner(agentCfg(), runner, nil)

	_, err := inv.Invoke(context.Background(), Request{Capability: CapQA, Project: "demo"})
	if !errors.Is(err, errors.ErrCapabilityUnavailable) {
		t.Errorf("error = %v, want ErrCapabilityUnavailable", err)
	}
}
