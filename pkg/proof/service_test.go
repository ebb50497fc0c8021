package proof

import (
	"context"
	"errors"
	"testing"

	"zkcred-be/pkg/claim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{ err error }

func (g stubGenerator) Prove(context.Context, claim.Fact, claim.Claim) (*Proof, error) {
	if g.err != nil {
		return nil, g.err
	}
	return testProof(), nil
}

type stubChain struct {
	submitErr error
	awaitErr  error
}

func (c stubChain) Submit(context.Context, *Proof) (string, error) {
	return "job-9", c.submitErr
}

func (c stubChain) AwaitFinality(_ context.Context, jobID string) (*Receipt, error) {
	if c.awaitErr != nil {
		return nil, c.awaitErr
	}
	return &Receipt{JobID: jobID, TransactionRef: "0xtx", AttestationRef: "7", Status: JobFinalized}, nil
}

func TestAdapterProgressAndReceipt(t *testing.T) {
	var seen []Progress
	a := NewAdapter(stubGenerator{}, stubChain{})

	receipt, err := a.ProveAndSubmit(context.Background(), claim.Fact{Value: 7}, claim.Claim{}, func(p Progress) {
		seen = append(seen, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "0xtx", receipt.TransactionRef)
	assert.Equal(t, []Progress{ProgressGenerating, ProgressSubmitting, ProgressAwaitingFinality}, seen)
}

func TestAdapterStages(t *testing.T) {
	boom := errors.New("boom")

	_, err := NewAdapter(stubGenerator{err: boom}, stubChain{}).ProveAndSubmit(context.Background(), claim.Fact{}, claim.Claim{}, nil)
	assert.Equal(t, StageGeneration, StageOf(err))
	assert.ErrorIs(t, err, boom)

	_, err = NewAdapter(stubGenerator{}, stubChain{submitErr: boom}).ProveAndSubmit(context.Background(), claim.Fact{}, claim.Claim{}, nil)
	assert.Equal(t, StageSubmission, StageOf(err))

	timeout := &ProofError{Stage: StageFinalityTimeout, Err: context.DeadlineExceeded}
	_, err = NewAdapter(stubGenerator{}, stubChain{awaitErr: timeout}).ProveAndSubmit(context.Background(), claim.Fact{}, claim.Claim{}, nil)
	assert.Equal(t, StageFinalityTimeout, StageOf(err))
	assert.Equal(t, "timed out waiting for block finality", err.Error())
}
