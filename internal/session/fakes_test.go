package session

import (
	"context"
	"sync"

	"zkcred-be/internal/entity"
	"zkcred-be/pkg/claim"
	"zkcred-be/pkg/events"
	"zkcred-be/pkg/extractor"
	"zkcred-be/pkg/proof"
)

type fakeExtractor struct {
	mu       sync.Mutex
	launched int
	closed   int

	launchErr error
	fact      claim.Fact
	err       error
	frames    int
	// block makes Extract wait for cancellation.
	block   bool
	entered chan struct{}
}

func newFakeExtractor(fact claim.Fact) *fakeExtractor {
	return &fakeExtractor{fact: fact, entered: make(chan struct{}, 16)}
}

func (f *fakeExtractor) Launch(ctx context.Context, sink extractor.Sink) (extractor.Run, error) {
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	f.mu.Lock()
	f.launched++
	f.mu.Unlock()
	return &fakeRun{f: f, sink: sink}, nil
}

func (f *fakeExtractor) counts() (launched, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launched, f.closed
}

type fakeRun struct {
	f    *fakeExtractor
	sink extractor.Sink
}

func (r *fakeRun) Extract(ctx context.Context, auth extractor.Auth) (claim.Fact, error) {
	r.sink.Log("Navigating to portal")
	for i := 0; i < r.f.frames; i++ {
		r.sink.Frame([]byte{0xff, 0xd8, byte(i)})
	}
	select {
	case r.f.entered <- struct{}{}:
	default:
	}
	if r.f.block {
		<-ctx.Done()
		return claim.Fact{}, extractor.NewError(extractor.ReasonCancelled, "Session cancelled", ctx.Err())
	}
	if r.f.err != nil {
		return claim.Fact{}, r.f.err
	}
	r.sink.Log("Fact located")
	return r.f.fact, nil
}

func (r *fakeRun) Close() error {
	r.f.mu.Lock()
	r.f.closed++
	r.f.mu.Unlock()
	return nil
}

type fakeProver struct {
	mu    sync.Mutex
	calls int

	err   error
	panic bool
	// When gate is set, the prover signals submitting and then waits on it.
	submitting chan struct{}
	gate       chan struct{}
	seenCtx    context.Context
}

func (p *fakeProver) ProveAndSubmit(ctx context.Context, f claim.Fact, c claim.Claim, progress func(proof.Progress)) (*proof.Receipt, error) {
	p.mu.Lock()
	p.calls++
	p.seenCtx = ctx
	p.mu.Unlock()

	if p.panic {
		panic("prover exploded")
	}
	progress(proof.ProgressGenerating)
	if p.err != nil && proof.StageOf(p.err) == proof.StageGeneration {
		return nil, p.err
	}
	progress(proof.ProgressSubmitting)
	if p.gate != nil {
		p.submitting <- struct{}{}
		<-p.gate
	}
	progress(proof.ProgressAwaitingFinality)
	if p.err != nil {
		return nil, p.err
	}
	return &proof.Receipt{JobID: "job-1", TransactionRef: "0xfeed", AttestationRef: "42", Status: proof.JobFinalized}, nil
}

func (p *fakeProver) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type fakeStore struct {
	mu      sync.Mutex
	records []*entity.VerificationRecord
	err     error
}

func (s *fakeStore) Create(ctx context.Context, record *entity.VerificationRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeEvents struct {
	mu    sync.Mutex
	types []string
}

func (p *fakeEvents) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, event.EventType())
	return nil
}

func (p *fakeEvents) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

type fakeTransitions struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *fakeTransitions) Publish(ctx context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakeTransitions) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}
