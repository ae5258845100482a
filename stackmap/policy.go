package stackmap

import (
	"fmt"

	"github.com/mirahmed753/cretonne/analysis"
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// Policy selects which instructions are safepoints.
type Policy uint8

const (
	// CallSites makes every call a safepoint. Collection may happen inside
	// any callee, so this is the default.
	CallSites Policy = iota
	// LoopHeaders makes the entry of every back-edge target a safepoint.
	LoopHeaders
	// ExplicitMarkers only honors safepoint instructions placed by the frontend.
	ExplicitMarkers
)

var policyNames = [...]string{
	CallSites:       "call-sites",
	LoopHeaders:     "loop-headers",
	ExplicitMarkers: "explicit-markers",
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy converts a policy name. The empty string selects the default.
func ParsePolicy(name string) (Policy, error) {
	if name == "" {
		return CallSites, nil
	}
	for i, n := range policyNames {
		if n == name {
			return Policy(i), nil
		}
	}
	return 0, errors.New(errors.PhaseStackmap, errors.KindInvalidInput).
		Detail("unknown safepoint policy %q (want call-sites, loop-headers or explicit-markers)", name).
		Build()
}

// MarshalText implements encoding.TextMarshaler so policies can live in config files.
func (p Policy) MarshalText() ([]byte, error) {
	if int(p) >= len(policyNames) {
		return nil, fmt.Errorf("invalid policy %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Selector answers whether an instruction is a safepoint under a policy.
type Selector struct {
	fn      *ir.Function
	policy  Policy
	headers map[ir.Block]bool
}

// NewSelector prepares a selector for fn. The dominator tree is only
// consulted by the loop-headers policy.
func NewSelector(fn *ir.Function, dt *analysis.DomTree, policy Policy) *Selector {
	s := &Selector{fn: fn, policy: policy}
	if policy == LoopHeaders {
		s.headers = make(map[ir.Block]bool)
		for _, h := range dt.LoopHeaders() {
			s.headers[h] = true
		}
	}
	return s
}

// Policy returns the selector's policy.
func (s *Selector) Policy() Policy { return s.policy }

// IsSafepoint reports whether inst is a safepoint. Inserted stackmap
// markers never are.
func (s *Selector) IsSafepoint(inst ir.Inst) bool {
	op := s.fn.Opcode(inst)
	if op.IsStackmap() {
		return false
	}
	switch s.policy {
	case CallSites:
		return op.IsCall()
	case ExplicitMarkers:
		return op.IsSafepointMarker()
	case LoopHeaders:
		b := s.fn.Layout.InstBlock(inst)
		if !s.headers[b] {
			return false
		}
		for i := s.fn.Layout.FirstInst(b); i != ir.NoInst; i = s.fn.Layout.NextInst(i) {
			if !s.fn.Opcode(i).IsStackmap() {
				return i == inst
			}
		}
	}
	return false
}
