// Package agent defines the boundary to the opaque external agent that
// produces free-form artifacts (documents, code, test results). The
// orchestration core never inspects capability output beyond existence
// checks and the structured fields declared here; everything else is the
// agent's business.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Capability identifies one delegated phase capability.
type Capability string

const (
	// CapScaffold sets up project infrastructure.
	CapScaffold Capability = "scaffold"
	// CapDefineProduct produces the product definition artifact and the
	// initial work item descriptions.
	CapDefineProduct Capability = "define-product"
	// CapDecompose splits an over-threshold work item into children.
	CapDecompose Capability = "decompose"
	// CapDesignArchitecture produces the architecture artifact.
	CapDesignArchitecture Capability = "design-architecture"
	// CapImplement implements one work item (or sub-unit of one).
	CapImplement Capability = "implement"
	// CapQA exercises the built system and reports defects.
	CapQA Capability = "qa"
	// CapVerify runs the verification suite and reports results.
	CapVerify Capability = "verify"
	// CapReport produces the final human-readable report.
	CapReport Capability = "report"
)

// String returns the capability name.
func (c Capability) String() string { return string(c) }

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	switch c {
	case CapScaffold, CapDefineProduct, CapDecompose, CapDesignArchitecture,
		CapImplement, CapQA, CapVerify, CapReport:
		return true
	}
	return false
}

// Request carries the structured input for a capability invocation.
type Request struct {
	// Capability selects what the agent is asked to do.
	Capability Capability
	// Project is the project name, for the agent's context.
	Project string
	// ItemID is the work item being processed, when item-scoped.
	ItemID string
	// Input is the capability-specific structured payload, serialized as
	// JSON on the wire. Its schema is a contract between the prompt
	// templates and this core; the core only round-trips it.
	Input map[string]any
}

// Result carries the structured output of a capability invocation.
type Result struct {
	// Artifacts lists identifiers of files the capability produced.
	Artifacts []string
	// Output is the capability-specific structured payload.
	Output map[string]any
	// CostTokens is the actual resource cost the invocation consumed.
	CostTokens int64
	// Duration is how long the invocation ran.
	Duration time.Duration
}

// Invoker runs agent capabilities. Implementations may be slow and may
// fail; the orchestrator treats every failure as suspend-and-resume, so an
// Invoke that errors must leave no partial side effects the caller needs
// to undo.
type Invoker interface {
	// Invoke runs one capability to completion. Cancellation via ctx must
	// abort the underlying work; the caller persists no checkpoint state
	// for a cancelled invocation, so a re-attempt starts from scratch.
	Invoke(ctx context.Context, req Request) (Result, error)
}

// ValidateRequest checks a request before dispatch.
func ValidateRequest(req Request) error {
	if !req.Capability.Valid() {
		return fmt.Errorf("unknown capability %q", req.Capability)
	}
	if strings.TrimSpace(req.Project) == "" {
		return fmt.Errorf("request is missing project name")
	}
	return nil
}
