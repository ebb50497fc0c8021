package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"zkcred-be/internal/repository/contract"
	"zkcred-be/pkg/claim"
	"zkcred-be/pkg/extractor"
	"zkcred-be/pkg/proof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var gradeClaim = claim.Claim{Kind: claim.KindGradeThreshold, Comparator: claim.GreaterThan, Threshold: 6.0}

type harness struct {
	orch        *Orchestrator
	ext         *fakeExtractor
	prover      *fakeProver
	store       *fakeStore
	events      *fakeEvents
	transitions *fakeTransitions
	metrics     *Metrics
	registry    *Registry
}

func newHarness(t *testing.T, fact claim.Fact) *harness {
	t.Helper()
	h := &harness{
		ext:         newFakeExtractor(fact),
		prover:      &fakeProver{},
		store:       &fakeStore{},
		events:      &fakeEvents{},
		transitions: &fakeTransitions{},
		metrics:     NewMetrics(prometheus.NewRegistry()),
		registry:    NewRegistry(),
	}
	catalogue, err := NewCatalogue(
		Portal{Name: "nitw", RecordType: "nitw_cgpa", Claim: gradeClaim, Extractor: h.ext, RequiresCredentials: true},
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	h.orch = NewOrchestrator(ctx, Config{}, Deps{
		Portals:     catalogue,
		Prover:      h.prover,
		Records:     h.store,
		Events:      h.events,
		Transitions: h.transitions,
		Registry:    h.registry,
		Metrics:     h.metrics,
	})
	t.Cleanup(func() {
		cancel()
		waitCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		assert.NoError(t, h.orch.Wait(waitCtx))
	})
	return h
}

func gradeRequest() Request {
	return Request{Portal: "nitw", Auth: extractor.Auth{Username: "21cs1001", Password: "secret"}, OwnerID: "owner-1"}
}

// drain reads the outbox until the terminal event closes it.
func drain(t *testing.T, s *Session) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Outbox().Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-s.Outbox().Frames():
		case <-timeout:
			t.Fatalf("session %s did not finish, phase %s", s.ID, s.Phase())
		}
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %s did not finish, phase %s", s.ID, s.Phase())
	}
}

func phasesOf(entries []LogEntry) []Phase {
	var out []Phase
	for _, e := range entries {
		if len(out) == 0 || out[len(out)-1] != e.Phase {
			out = append(out, e.Phase)
		}
	}
	return out
}

func (h *harness) assertBrowsersBalanced(t *testing.T) {
	t.Helper()
	launched, closed := h.ext.counts()
	assert.Equal(t, launched, closed, "every launched browser is closed")
	assert.Equal(t, testutil.ToFloat64(h.metrics.BrowsersLaunched), testutil.ToFloat64(h.metrics.BrowsersReleased))
}

func TestClaimMetPersistsRecord(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 6.5})

	s, err := h.orch.Start("chan-a", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)
	waitDone(t, s)

	last := evs[len(evs)-1]
	require.Equal(t, EventComplete, last.Name)
	done := last.Data.(CompleteData)
	assert.Equal(t, "0xfeed", done.TransactionRef)
	assert.Equal(t, "42", done.AttestationRef)

	assert.Equal(t, []Phase{
		PhaseInitializing, PhaseExtracting, PhaseEvaluating, PhaseProving,
		PhaseSubmitting, PhasePersisting, PhaseCompleted,
	}, phasesOf(s.Log()))

	require.Equal(t, 1, h.store.count())
	rec := h.store.records[0]
	assert.Equal(t, done.RecordID, rec.Id.String())
	assert.Equal(t, "21cs1001", rec.SubjectHandle)
	assert.Equal(t, 6.5, rec.MeasuredValue)
	assert.True(t, rec.ClaimResult)
	assert.Equal(t, "verified", rec.Status)
	require.NotNil(t, rec.OwnerId)
	assert.Equal(t, "owner-1", *rec.OwnerId)

	out := s.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, PhaseCompleted, out.Phase)
	assert.True(t, out.Persisted)
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.RecordsWritten))
	assert.Contains(t, h.events.published(), EventVerificationCompleted)
	h.assertBrowsersBalanced(t)
}

func TestClaimNotMetEndsWithoutProof(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 5.9})

	s, err := h.orch.Start("chan-b", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)
	waitDone(t, s)

	last := evs[len(evs)-1]
	require.Equal(t, EventError, last.Name)
	data := last.Data.(ErrorData)
	assert.Equal(t, ReasonClaimNotMet, data.Reason)
	assert.Equal(t, "Threshold not met: 5.9 is not > 6", data.Message)

	assert.Equal(t, PhaseClaimFailed, s.Phase())
	assert.Equal(t, 0, h.store.count())
	assert.Equal(t, 0, h.prover.callCount())
	require.NotNil(t, s.Fact())
	assert.Equal(t, 5.9, s.Fact().Value)
	h.assertBrowsersBalanced(t)
}

func TestExtractionFailureEndsInError(t *testing.T) {
	h := newHarness(t, claim.Fact{})
	h.ext.err = extractor.NewError(extractor.ReasonFactNotFound, "CGPA not found", nil)

	s, err := h.orch.Start("chan-c", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)
	waitDone(t, s)

	last := evs[len(evs)-1]
	require.Equal(t, EventError, last.Name)
	data := last.Data.(ErrorData)
	assert.Equal(t, ReasonExtraction, data.Reason)
	assert.Equal(t, "CGPA not found", data.Message)

	assert.Equal(t, PhaseError, s.Phase())
	assert.Nil(t, s.Fact())
	assert.Equal(t, 0, h.store.count())
	launched, closed := h.ext.counts()
	assert.Equal(t, 1, launched)
	assert.Equal(t, 1, closed)
	h.assertBrowsersBalanced(t)
	assert.Contains(t, h.events.published(), EventVerificationFailed)
}

func TestFinalityTimeoutEndsInError(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 8.1})
	h.prover.err = &proof.ProofError{Stage: proof.StageFinalityTimeout, Err: context.DeadlineExceeded}

	s, err := h.orch.Start("chan-d", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)
	waitDone(t, s)

	last := evs[len(evs)-1]
	require.Equal(t, EventError, last.Name)
	data := last.Data.(ErrorData)
	assert.Equal(t, ReasonProof, data.Reason)
	assert.Equal(t, "timed out waiting for block finality", data.Message)
	assert.Equal(t, PhaseError, s.Phase())
	assert.Equal(t, 0, h.store.count())
	h.assertBrowsersBalanced(t)
}

func TestStoreFailureStillCompletes(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 9.0})
	h.store.err = &contract.StoreError{Op: "create", Err: errors.New("connection refused")}

	s, err := h.orch.Start("chan-e", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)
	waitDone(t, s)

	last := evs[len(evs)-1]
	require.Equal(t, EventComplete, last.Name)
	assert.NotEmpty(t, last.Data.(CompleteData).RecordID)

	out := s.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, PhaseCompleted, out.Phase)
	assert.False(t, out.Persisted)

	var durability bool
	for _, e := range s.Log() {
		if e.Phase == PhasePersisting && strings.HasPrefix(e.Text, "Durability failure") {
			durability = true
		}
	}
	assert.True(t, durability, "a durability-failure log entry is recorded")
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.RecordsWritten))
	assert.NotContains(t, h.events.published(), EventVerificationCompleted)
}

func TestDuplicateSessionIsRejected(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})
	h.ext.block = true

	first, err := h.orch.Start("chan-dup", gradeRequest())
	require.NoError(t, err)
	<-h.ext.entered

	_, err = h.orch.Start("chan-dup", gradeRequest())
	assert.ErrorIs(t, err, ErrSessionActive)

	launched, _ := h.ext.counts()
	assert.Equal(t, 1, launched, "no second browser for a rejected start")
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.SessionsRejected))

	h.orch.Cancel("chan-dup")
	waitDone(t, first)
	h.assertBrowsersBalanced(t)

	again, err := h.orch.Start("chan-dup", gradeRequest())
	require.NoError(t, err, "the slot is free once the session finished")
	h.orch.Cancel("chan-dup")
	waitDone(t, again)
}

func TestCancelDuringExtracting(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})
	h.ext.block = true

	s, err := h.orch.Start("chan-x", gradeRequest())
	require.NoError(t, err)
	<-h.ext.entered
	assert.Equal(t, PhaseExtracting, s.Phase())

	start := time.Now()
	h.orch.Cancel("chan-x")
	waitDone(t, s)
	assert.Less(t, time.Since(start), time.Second)

	out := s.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, PhaseError, out.Phase)
	assert.Equal(t, ReasonCancelled, out.Reason)
	assert.True(t, s.Cancelled())
	assert.Equal(t, 0, h.store.count())
	assert.Equal(t, 0, h.prover.callCount())
	h.assertBrowsersBalanced(t)

	_, ok := h.registry.Get("chan-x")
	assert.False(t, ok)
}

func TestCancelDuringSubmittingIsNotHonoured(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})
	h.prover.submitting = make(chan struct{}, 1)
	h.prover.gate = make(chan struct{})

	s, err := h.orch.Start("chan-s", gradeRequest())
	require.NoError(t, err)
	<-h.prover.submitting
	assert.Equal(t, PhaseSubmitting, s.Phase())

	h.orch.Cancel("chan-s")
	close(h.prover.gate)
	waitDone(t, s)

	assert.NoError(t, h.prover.seenCtx.Err(), "the proof call does not see the disconnect")
	out := s.Outcome()
	require.NotNil(t, out)
	assert.Equal(t, PhaseCompleted, out.Phase)
	assert.Equal(t, 1, h.store.count())
	h.assertBrowsersBalanced(t)
}

func TestFramesAreDroppedNotBlocking(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})
	h.ext.frames = 50

	s, err := h.orch.Start("chan-f", gradeRequest())
	require.NoError(t, err)

	// Only events are read; the frame queue is left to overflow.
	timeout := time.After(5 * time.Second)
	for open := true; open; {
		select {
		case _, open = <-s.Outbox().Events():
		case <-timeout:
			t.Fatal("session blocked on frames")
		}
	}
	waitDone(t, s)
	assert.Greater(t, testutil.ToFloat64(h.metrics.FramesDropped), float64(0))
	assert.Equal(t, PhaseCompleted, s.Phase())
}

func TestEventsMirrorLogInOrder(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})

	s, err := h.orch.Start("chan-o", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)
	waitDone(t, s)

	var texts []string
	for _, ev := range evs {
		if ev.Name == EventLog {
			texts = append(texts, ev.Data.(LogData).Text)
		}
	}
	log := s.Log()
	require.Len(t, texts, len(log))
	assert.Equal(t, EventComplete, evs[len(evs)-1].Name, "the terminal event comes last")
	for i, text := range texts {
		assert.Equal(t, log[i].Text, text)
	}
	assert.Equal(t, len(log), h.transitions.count(), "every entry reaches the audit topic")
}

func TestLaunchFailureHasNothingToRelease(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})
	h.ext.launchErr = extractor.NewError(extractor.ReasonLaunch, "Could not start browser", errors.New("no chrome"))

	s, err := h.orch.Start("chan-l", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)

	assert.Equal(t, "Could not start browser", evs[len(evs)-1].Data.(ErrorData).Message)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.BrowsersLaunched))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.BrowsersReleased))
}

func TestPanicIsContainedToTheSession(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})
	h.prover.panic = true

	s, err := h.orch.Start("chan-p", gradeRequest())
	require.NoError(t, err)
	evs := drain(t, s)
	waitDone(t, s)

	data := evs[len(evs)-1].Data.(ErrorData)
	assert.Equal(t, ReasonInternal, data.Reason)
	assert.Equal(t, 0, h.store.count())
	h.assertBrowsersBalanced(t)
}

func TestStartValidation(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})

	_, err := h.orch.Start("chan-v", Request{Portal: "unknown", Auth: extractor.Auth{Username: "x"}})
	assert.ErrorIs(t, err, ErrUnknownPortal)

	_, err = h.orch.Start("chan-v", Request{Portal: "nitw", Auth: extractor.Auth{Username: "x"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = h.orch.Start("chan-v", Request{Portal: "nitw", Auth: extractor.Auth{Password: "p"}})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, float64(3), testutil.ToFloat64(h.metrics.SessionsRejected))
}

func TestConcurrentWorkloadKeepsCountersBalanced(t *testing.T) {
	h := newHarness(t, claim.Fact{Value: 7})

	const n = 20
	sessions := make([]*Session, 0, n)
	for i := 0; i < n; i++ {
		s, err := h.orch.Start(fmt.Sprintf("chan-%d", i), gradeRequest())
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	for _, s := range sessions {
		drain(t, s)
		waitDone(t, s)
	}

	assert.Equal(t, float64(n), testutil.ToFloat64(h.metrics.SessionsStarted))
	assert.Equal(t, float64(n), testutil.ToFloat64(h.metrics.BrowsersLaunched))
	h.assertBrowsersBalanced(t)
	assert.Equal(t, n, h.store.count())
	assert.Equal(t, float64(n), testutil.ToFloat64(h.metrics.SessionsFinished.WithLabelValues(string(PhaseCompleted))))
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.ActiveSessions))
	assert.Equal(t, 0, h.registry.Len())
}
