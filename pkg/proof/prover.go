package proof

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"zkcred-be/pkg/claim"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
)

const (
	circuitFile      = "circuit.r1cs"
	provingKeyFile   = "proving.key"
	verifyingKeyFile = "verifying.key"
	kindFile         = "circuit.kind"
)

// ErrCircuitMismatch means the artifacts on disk were built for a different
// circuit than the one requested.
var ErrCircuitMismatch = errors.New("proof artifacts built for a different circuit")

var quietGnark sync.Once

// Artifacts are the pre-provisioned Groth16 materials for one circuit.
type Artifacts struct {
	Kind CircuitKind
	CS   constraint.ConstraintSystem
	PK   groth16.ProvingKey
	VK   groth16.VerifyingKey
}

// Setup compiles the circuit and runs a fresh (single party) Groth16 setup.
func Setup(kind CircuitKind) (*Artifacts, error) {
	silenceGnark()

	def, err := kind.definition()
	if err != nil {
		return nil, err
	}
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, def)
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	return &Artifacts{Kind: kind, CS: cs, PK: pk, VK: vk}, nil
}

// LoadArtifacts reads artifacts written by Save and checks they were built
// for kind.
func LoadArtifacts(dir string, kind CircuitKind) (*Artifacts, error) {
	marker, err := os.ReadFile(filepath.Join(dir, kindFile))
	switch {
	case err == nil:
		if got := CircuitKind(strings.TrimSpace(string(marker))); got != kind {
			return nil, fmt.Errorf("%w: found %q, want %q", ErrCircuitMismatch, got, kind)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	a := &Artifacts{
		Kind: kind,
		CS:   groth16.NewCS(ecc.BN254),
		PK:   groth16.NewProvingKey(ecc.BN254),
		VK:   groth16.NewVerifyingKey(ecc.BN254),
	}
	for name, r := range map[string]io.ReaderFrom{
		circuitFile:      a.CS,
		provingKeyFile:   a.PK,
		verifyingKeyFile: a.VK,
	} {
		if err := readFrom(filepath.Join(dir, name), r); err != nil {
			return nil, err
		}
	}
	if err := checkShape(a.CS, kind); err != nil {
		return nil, err
	}
	return a, nil
}

// checkShape compares a loaded constraint system with a fresh compile of
// kind. Artifact sets written before the kind marker existed rely on it.
func checkShape(cs constraint.ConstraintSystem, kind CircuitKind) error {
	def, err := kind.definition()
	if err != nil {
		return err
	}
	want, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, def)
	if err != nil {
		return fmt.Errorf("compile circuit: %w", err)
	}
	if cs.GetNbPublicVariables() != want.GetNbPublicVariables() ||
		cs.GetNbSecretVariables() != want.GetNbSecretVariables() ||
		cs.GetNbConstraints() != want.GetNbConstraints() {
		return fmt.Errorf("%w: constraint system does not match %q", ErrCircuitMismatch, kind)
	}
	return nil
}

// Save writes the artifacts into dir.
func (a *Artifacts) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, w := range map[string]io.WriterTo{
		circuitFile:      a.CS,
		provingKeyFile:   a.PK,
		verifyingKeyFile: a.VK,
	} {
		if err := writeTo(filepath.Join(dir, name), w); err != nil {
			return err
		}
	}
	return os.WriteFile(filepath.Join(dir, kindFile), []byte(string(a.Kind)+"\n"), 0o644)
}

// ArtifactsExist reports whether dir holds a full artifact set.
func ArtifactsExist(dir string) bool {
	for _, name := range []string{circuitFile, provingKeyFile, verifyingKeyFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Proof is a serialized Groth16 proof ready for submission.
type Proof struct {
	Circuit      CircuitKind
	Proof        []byte
	PublicInputs []byte
	VerifyingKey []byte
}

// Prover generates proofs from a fixed set of artifacts.
type Prover struct {
	artifacts *Artifacts
	vkBytes   []byte
}

func NewProver(a *Artifacts) (*Prover, error) {
	silenceGnark()

	var buf bytes.Buffer
	if _, err := a.VK.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize verifying key: %w", err)
	}
	return &Prover{artifacts: a, vkBytes: buf.Bytes()}, nil
}

// Kind returns the circuit the prover was built for.
func (p *Prover) Kind() CircuitKind { return p.artifacts.Kind }

// Prove builds the witness for (fact, claim) and runs groth16.Prove.
func (p *Prover) Prove(ctx context.Context, f claim.Fact, c claim.Claim) (*Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	assignment, err := p.artifacts.Kind.assignment(f, c)
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}
	public, err := w.Public()
	if err != nil {
		return nil, fmt.Errorf("public witness: %w", err)
	}

	proof, err := groth16.Prove(p.artifacts.CS, p.artifacts.PK, w)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}

	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("serialize proof: %w", err)
	}
	publicBytes, err := public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize public inputs: %w", err)
	}

	return &Proof{
		Circuit:      p.artifacts.Kind,
		Proof:        proofBuf.Bytes(),
		PublicInputs: publicBytes,
		VerifyingKey: p.vkBytes,
	}, nil
}

// Verify checks a serialized proof against the prover's verifying key.
func (p *Prover) Verify(pr *Proof) error {
	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(pr.Proof)); err != nil {
		return fmt.Errorf("read proof: %w", err)
	}
	public, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return err
	}
	if err := public.UnmarshalBinary(pr.PublicInputs); err != nil {
		return fmt.Errorf("read public inputs: %w", err)
	}
	return groth16.Verify(proof, p.artifacts.VK, public)
}

func silenceGnark() {
	quietGnark.Do(func() {
		gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	})
}

func readFrom(path string, r io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("proof artifact %s missing: %w", filepath.Base(path), err)
		}
		return err
	}
	defer f.Close()
	if _, err := r.ReadFrom(f); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeTo(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
