package proof

import (
	"context"

	"zkcred-be/pkg/claim"
)

// Progress marks the sub-steps of ProveAndSubmit as they start.
type Progress string

const (
	ProgressGenerating       Progress = "generating"
	ProgressSubmitting       Progress = "submitting"
	ProgressAwaitingFinality Progress = "awaiting-finality"
)

// Service turns an evaluated fact into an on-chain attestation.
type Service interface {
	// ProveAndSubmit must not return success before finality is observed.
	ProveAndSubmit(ctx context.Context, f claim.Fact, c claim.Claim, progress func(Progress)) (*Receipt, error)
}

// Generator produces a serialized proof.
type Generator interface {
	Prove(ctx context.Context, f claim.Fact, c claim.Claim) (*Proof, error)
}

// Chain submits a proof and waits for it to become final.
type Chain interface {
	Submit(ctx context.Context, p *Proof) (string, error)
	AwaitFinality(ctx context.Context, jobID string) (*Receipt, error)
}

// Adapter wires a Generator and a Chain into a Service.
type Adapter struct {
	generator Generator
	chain     Chain
}

func NewAdapter(generator Generator, chain Chain) *Adapter {
	return &Adapter{generator: generator, chain: chain}
}

func (a *Adapter) ProveAndSubmit(ctx context.Context, f claim.Fact, c claim.Claim, progress func(Progress)) (*Receipt, error) {
	if progress == nil {
		progress = func(Progress) {}
	}

	progress(ProgressGenerating)
	p, err := a.generator.Prove(ctx, f, c)
	if err != nil {
		return nil, &ProofError{Stage: StageGeneration, Err: err}
	}

	progress(ProgressSubmitting)
	jobID, err := a.chain.Submit(ctx, p)
	if err != nil {
		return nil, asProofError(StageSubmission, err)
	}

	progress(ProgressAwaitingFinality)
	receipt, err := a.chain.AwaitFinality(ctx, jobID)
	if err != nil {
		return nil, asProofError(StageSubmission, err)
	}
	return receipt, nil
}

func asProofError(stage Stage, err error) error {
	if StageOf(err) != "" {
		return err
	}
	return &ProofError{Stage: stage, Err: err}
}
