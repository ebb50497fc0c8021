package proof

import (
	"fmt"
	"math"

	"zkcred-be/pkg/claim"

	"github.com/consensys/gnark/frontend"
)

// CircuitKind selects which constraint system the artifacts were built for.
type CircuitKind string

const (
	// CircuitFixed proves a constant relation (6 * 7 = 42). The proof does
	// not bind the extracted fact or the claim threshold.
	CircuitFixed CircuitKind = "fixed"
	// CircuitThreshold proves value >= threshold (+1 when strict) with the
	// value kept private.
	CircuitThreshold CircuitKind = "threshold"
)

// ValueScale converts decimal facts (grade points) into field integers. It
// matches the precision claim.Evaluate works at.
const ValueScale = claim.Scale

// FixedCircuit asserts C == A * B.
type FixedCircuit struct {
	A frontend.Variable
	B frontend.Variable
	C frontend.Variable `gnark:",public"`
}

func (c *FixedCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.C, api.Mul(c.A, c.B))
	return nil
}

// ThresholdCircuit asserts Threshold + Strict <= Value.
type ThresholdCircuit struct {
	Value     frontend.Variable
	Threshold frontend.Variable `gnark:",public"`
	Strict    frontend.Variable `gnark:",public"`
}

func (c *ThresholdCircuit) Define(api frontend.API) error {
	api.AssertIsBoolean(c.Strict)
	api.AssertIsLessOrEqual(api.Add(c.Threshold, c.Strict), c.Value)
	return nil
}

// ParseCircuitKind maps configuration values onto a CircuitKind.
func ParseCircuitKind(bindClaim bool) CircuitKind {
	if bindClaim {
		return CircuitThreshold
	}
	return CircuitFixed
}

func (k CircuitKind) definition() (frontend.Circuit, error) {
	switch k {
	case CircuitFixed:
		return &FixedCircuit{}, nil
	case CircuitThreshold:
		return &ThresholdCircuit{}, nil
	default:
		return nil, fmt.Errorf("unknown circuit %q", k)
	}
}

func (k CircuitKind) assignment(f claim.Fact, c claim.Claim) (frontend.Circuit, error) {
	switch k {
	case CircuitFixed:
		return &FixedCircuit{A: 6, B: 7, C: 42}, nil
	case CircuitThreshold:
		value, err := scaled(f.Value)
		if err != nil {
			return nil, err
		}
		threshold, err := scaled(c.Threshold)
		if err != nil {
			return nil, err
		}
		strict := 0
		if c.Comparator == claim.GreaterThan {
			strict = 1
		}
		return &ThresholdCircuit{Value: value, Threshold: threshold, Strict: strict}, nil
	default:
		return nil, fmt.Errorf("unknown circuit %q", k)
	}
}

func scaled(v float64) (uint64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("value %v cannot be encoded", v)
	}
	n := claim.Scaled(v)
	if n < 0 {
		return 0, fmt.Errorf("value %v cannot be encoded", v)
	}
	return uint64(n), nil
}
