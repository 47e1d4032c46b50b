package agent

import (
	"context"
	"sync"
)

// ScriptedInvoker returns pre-programmed results per capability. Used by
// tests and dry-run mode. Responses are consumed in order per capability;
// the last response repeats once the script runs out.
type ScriptedInvoker struct {
	mu        sync.Mutex
	responses map[Capability][]ScriptedResponse
	calls     []Request
}

// ScriptedResponse is one scripted invocation outcome.
type ScriptedResponse struct {
	Result Result
	Err    error
}

// NewScriptedInvoker creates an empty ScriptedInvoker. With no script for a
// capability, Invoke returns an empty successful Result.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{
		responses: make(map[Capability][]ScriptedResponse),
	}
}

// Script appends a response for the given capability.
func (s *ScriptedInvoker) Script(cap Capability, resp ScriptedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[cap] = append(s.responses[cap], resp)
}

// Invoke pops the next scripted response for the request's capability.
func (s *ScriptedInvoker) Invoke(ctx context.Context, req Request) (Result, error) {
	if err := ValidateRequest(req); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, req)

	queue := s.responses[req.Capability]
	if len(queue) == 0 {
		return Result{}, nil
	}

	resp := queue[0]
	if len(queue) > 1 {
		s.responses[req.Capability] = queue[1:]
	}
	return resp.Result, resp.Err
}

// Calls returns all requests seen so far.
func (s *ScriptedInvoker) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsFor returns the requests seen for one capability.
func (s *ScriptedInvoker) CallsFor(cap Capability) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, c := range s.calls {
		if c.Capability == cap {
			out = append(out, c)
		}
	}
	return out
}

// Ensure ScriptedInvoker implements Invoker
var _ Invoker = (*ScriptedInvoker)(nil)
