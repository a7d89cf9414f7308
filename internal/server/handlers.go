package server

import (
	"context"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
	"github.com/spherex-xyz/flowguard/internal/flow"
	"github.com/spherex-xyz/flowguard/internal/rules"
)

// --- Input/Output types ---

// BeginInput is empty; the engine stamps the transaction identity itself.
type BeginInput struct{}

// BeginOutput reports the new transaction identity.
type BeginOutput struct {
	Session string `json:"session"`
}

// HookInput defines parameters for the enter and exit tools.
type HookInput struct {
	ID       int64  `json:"id" jsonschema:"positive routine id"`
	Caller   string `json:"caller" jsonschema:"calling principal"`
	Internal bool   `json:"internal,omitempty" jsonschema:"nested call inside an already guarded flow"`
}

// HookOutput reports the context after the hook, or block details.
type HookOutput struct {
	Blocked     bool   `json:"blocked,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Depth       uint64 `json:"depth"`
	Fingerprint string `json:"fingerprint"`
}

// CheckInput defines parameters for the flowguard_check tool.
type CheckInput struct {
	IDs []int64 `json:"ids" jsonschema:"signed routine id sequence, positive = entry, negative = exit"`
}

// CheckOutput contains the dry-run result.
type CheckOutput struct {
	Fingerprint string `json:"fingerprint"`
	Allowed     bool   `json:"allowed"`
}

// RulesInput defines parameters for the flowguard_rules tool.
type RulesInput struct {
	Principal string `json:"principal" jsonschema:"operator principal"`
	Mode      string `json:"mode" jsonschema:"continuity, prefix_flow, or off"`
}

// RulesOutput confirms the active mode.
type RulesOutput struct {
	Mode string `json:"mode"`
}

// AllowInput defines parameters for the flowguard_allow tool.
type AllowInput struct {
	Principal string   `json:"principal" jsonschema:"operator principal"`
	Action    string   `json:"action" jsonschema:"add or remove"`
	Kind      string   `json:"kind" jsonschema:"sender or pattern"`
	Keys      []string `json:"keys" jsonschema:"sender identities, or pattern fingerprints in hex"`
}

// AllowOutput reports how many keys were applied.
type AllowOutput struct {
	Applied int `json:"applied"`
}

// StatusInput is empty.
type StatusInput struct{}

// --- Handlers ---

func (s *Server) handleBegin(ctx context.Context, req *mcpsdk.CallToolRequest, input BeginInput) (*mcpsdk.CallToolResult, BeginOutput, error) {
	id := s.currentEngine().Begin()
	return nil, BeginOutput{Session: id.String()}, nil
}

func (s *Server) handleEnter(ctx context.Context, req *mcpsdk.CallToolRequest, input HookInput) (*mcpsdk.CallToolResult, HookOutput, error) {
	e := s.currentEngine()

	var err error
	if input.Internal {
		err = e.Validator.EnterInternal(ctx, input.ID, input.Caller)
	} else {
		err = e.Validator.EnterExternal(ctx, input.ID, input.Caller, nil)
	}
	return hookResult(e, err)
}

func (s *Server) handleExit(ctx context.Context, req *mcpsdk.CallToolRequest, input HookInput) (*mcpsdk.CallToolResult, HookOutput, error) {
	e := s.currentEngine()

	var err error
	if input.Internal {
		err = e.Validator.ExitInternal(ctx, input.ID, input.Caller, 0)
	} else {
		err = e.Validator.ExitExternal(ctx, input.ID, input.Caller, 0, nil, nil)
	}
	return hookResult(e, err)
}

// hookResult maps a hook error to a tool result. Guard violations come
// back as blocked outputs; anything else is an internal error.
func hookResult(e *Engine, err error) (*mcpsdk.CallToolResult, HookOutput, error) {
	st := e.Validator.Status()
	out := HookOutput{Depth: st.Depth, Fingerprint: st.Fingerprint}

	if err == nil {
		return nil, out, nil
	}

	var authErr *flow.AuthorizationError
	var intErr *flow.IntegrityError
	var cfgErr *flow.ConfigurationError
	if errors.As(err, &authErr) || errors.As(err, &intErr) || errors.As(err, &cfgErr) {
		out.Blocked = true
		out.Reason = err.Error()
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, HookOutput{}, err
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	fp, ok := s.currentEngine().Validator.CheckSequence(input.IDs)
	return nil, CheckOutput{Fingerprint: fp.String(), Allowed: ok}, nil
}

func (s *Server) handleRules(ctx context.Context, req *mcpsdk.CallToolRequest, input RulesInput) (*mcpsdk.CallToolResult, RulesOutput, error) {
	e := s.currentEngine()

	mode, err := rules.ParseMode(input.Mode)
	if err != nil {
		return nil, RulesOutput{}, err
	}

	if mode == 0 {
		err = e.Validator.DisableAllRules(ctx, input.Principal)
	} else {
		err = e.Validator.SetRules(ctx, input.Principal, mode)
	}
	if err != nil {
		return nil, RulesOutput{}, err
	}

	return nil, RulesOutput{Mode: e.Validator.Status().Mode}, nil
}

func (s *Server) handleAllow(ctx context.Context, req *mcpsdk.CallToolRequest, input AllowInput) (*mcpsdk.CallToolResult, AllowOutput, error) {
	e := s.currentEngine()

	var err error
	switch input.Kind {
	case "sender":
		switch input.Action {
		case "add":
			err = e.Validator.AddAllowedSenders(ctx, input.Principal, input.Keys...)
		case "remove":
			err = e.Validator.RemoveAllowedSenders(ctx, input.Principal, input.Keys...)
		default:
			err = fmt.Errorf("unknown action %q", input.Action)
		}
	case "pattern":
		patterns := make([]fingerprint.Hash, 0, len(input.Keys))
		for _, k := range input.Keys {
			h, perr := fingerprint.Parse(k)
			if perr != nil {
				return nil, AllowOutput{}, perr
			}
			patterns = append(patterns, h)
		}
		switch input.Action {
		case "add":
			err = e.Validator.AddAllowedPatterns(ctx, input.Principal, patterns...)
		case "remove":
			err = e.Validator.RemoveAllowedPatterns(ctx, input.Principal, patterns...)
		default:
			err = fmt.Errorf("unknown action %q", input.Action)
		}
	default:
		err = fmt.Errorf("unknown kind %q", input.Kind)
	}
	if err != nil {
		return nil, AllowOutput{}, err
	}

	return nil, AllowOutput{Applied: len(input.Keys)}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, flow.Status, error) {
	return nil, s.currentEngine().Validator.Status(), nil
}
