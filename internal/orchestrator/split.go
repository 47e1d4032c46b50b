package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgeflow/forgeflow/internal/agent"
	"github.com/forgeflow/forgeflow/internal/complexity"
)

// decodeOutput extracts one field of a capability's structured output into
// dst via a JSON round-trip. A missing field leaves dst untouched.
func decodeOutput(output map[string]any, key string, dst any) error {
	raw, ok := output[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encode capability output %q: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode capability output %q: %w", key, err)
	}
	return nil
}

// agentSplitter satisfies the analyzer's Splitter by delegating to the
// decompose capability. The analyzer validates the returned children; the
// splitter only carries them.
type agentSplitter struct {
	machine *Machine
}

func (s *agentSplitter) Split(ctx context.Context, est complexity.Estimate, reason string) ([]complexity.Estimate, error) {
	res, err := s.machine.invoke(ctx, agent.CapDecompose, "", map[string]any{
		"item":   est,
		"reason": reason,
	})
	if err != nil {
		return nil, err
	}

	var children []complexity.Estimate
	if err := decodeOutput(res.Output, "children", &children); err != nil {
		return nil, err
	}
	return children, nil
}
