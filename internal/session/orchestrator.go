package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"zkcred-be/internal/dto"
	"zkcred-be/internal/entity"
	"zkcred-be/internal/pkg/logger"
	"zkcred-be/pkg/claim"
	"zkcred-be/pkg/events"
	"zkcred-be/pkg/extractor"
	"zkcred-be/pkg/proof"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	EventVerificationCompleted = "VERIFICATION_COMPLETED"
	EventVerificationFailed    = "VERIFICATION_FAILED"
)

// RecordStore persists finished verifications.
type RecordStore interface {
	Create(ctx context.Context, record *entity.VerificationRecord) error
}

// EventPublisher sends cross-service events (NATS in production).
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// TransitionPublisher receives every session log entry as JSON.
type TransitionPublisher interface {
	Publish(ctx context.Context, payload []byte) error
}

type Config struct {
	PersistTimeout time.Duration
	PublishTimeout time.Duration
}

type Deps struct {
	Portals     *Catalogue
	Prover      proof.Service
	Records     RecordStore
	Events      EventPublisher      // optional
	Transitions TransitionPublisher // optional
	Registry    *Registry           // optional, a private one is created
	Metrics     *Metrics            // optional, registered on a private registry
	Logger      logger.ILogger
}

// Orchestrator runs verification sessions, one goroutine per session.
type Orchestrator struct {
	ctx         context.Context
	cfg         Config
	portals     *Catalogue
	prover      proof.Service
	records     RecordStore
	events      EventPublisher
	transitions TransitionPublisher
	registry    *Registry
	metrics     *Metrics
	logger      logger.ILogger
	tracer      trace.Tracer

	wg sync.WaitGroup
}

// NewOrchestrator builds an orchestrator whose sessions live as long as
// ctx. Proving and persisting run on ctx, never on the channel's lifetime.
func NewOrchestrator(ctx context.Context, cfg Config, deps Deps) *Orchestrator {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics(prometheus.NewRegistry())
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNopLogger()
	}
	return &Orchestrator{
		ctx:         ctx,
		cfg:         cfg,
		portals:     deps.Portals,
		prover:      deps.Prover,
		records:     deps.Records,
		events:      deps.Events,
		transitions: deps.Transitions,
		registry:    deps.Registry,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
		tracer:      otel.Tracer("zkcred-be/session"),
	}
}

func (o *Orchestrator) Portals() *Catalogue { return o.portals }

// Start registers a session for channelID and runs it in the background.
// The caller drains the returned session's Outbox.
func (o *Orchestrator) Start(channelID string, req Request) (*Session, error) {
	portal, ok := o.portals.Lookup(req.Portal)
	if !ok {
		o.metrics.SessionsRejected.Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnknownPortal, req.Portal)
	}
	if err := req.validate(portal); err != nil {
		o.metrics.SessionsRejected.Inc()
		return nil, err
	}

	s := newSession(channelID, portal, req, newOutbox(o.metrics.FramesDropped.Inc))
	s.observe = o.observe
	extractCtx, stop := context.WithCancel(o.ctx)
	s.stop = stop

	if err := o.registry.TryRegister(channelID, s); err != nil {
		stop()
		o.metrics.SessionsRejected.Inc()
		o.logger.Warn("Session", "Start rejected, session already active", map[string]interface{}{
			"channel_id": channelID,
			"portal":     portal.Name,
		})
		return nil, err
	}

	o.metrics.SessionsStarted.Inc()
	o.logger.Info("Session", "Session started", map[string]interface{}{
		"session_id": s.ID,
		"channel_id": channelID,
		"portal":     portal.Name,
		"owner_id":   req.OwnerID,
	})

	x := &execution{o: o, s: s, auth: req.Auth}
	o.wg.Add(1)
	go o.run(x, extractCtx)
	return s, nil
}

// Cancel is called when the channel disconnects. It is honoured only while
// the browser is running; proving and submission always run to completion.
func (o *Orchestrator) Cancel(channelID string) {
	s, ok := o.registry.Get(channelID)
	if !ok {
		return
	}
	s.outbox.Detach()
	s.cancel()
	o.logger.Info("Session", "Channel disconnected", map[string]interface{}{
		"session_id": s.ID,
		"channel_id": channelID,
		"phase":      string(s.Phase()),
	})
}

// Wait blocks until every started session has finished or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execution is the orchestrator-private half of a session: the browser it
// owns and the credentials it was started with.
type execution struct {
	o    *Orchestrator
	s    *Session
	auth extractor.Auth

	run         extractor.Run
	releaseOnce sync.Once
}

// releaseBrowser tears the browser down exactly once.
func (x *execution) releaseBrowser() {
	if x.run == nil {
		return
	}
	x.releaseOnce.Do(func() {
		if err := x.run.Close(); err != nil {
			x.o.logger.Warn("Session", "Browser close reported an error", map[string]interface{}{
				"session_id": x.s.ID,
				"error":      err.Error(),
			})
		}
		x.o.metrics.BrowsersReleased.Inc()
		x.s.note("Browser closed")
	})
}

func (x *execution) Frame(jpeg []byte) { x.s.outbox.frame(jpeg) }
func (x *execution) Log(text string)   { x.s.note(text) }

func (o *Orchestrator) run(x *execution, extractCtx context.Context) {
	s := x.s
	o.metrics.ActiveSessions.Inc()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Session", "Session panicked", map[string]interface{}{
				"session_id": s.ID,
				"phase":      string(s.Phase()),
				"panic":      fmt.Sprint(r),
			})
			o.fail(x, ReasonInternal, "Internal error")
		}
		if s.Outcome() == nil {
			o.fail(x, ReasonInternal, "Internal error")
		}
		x.releaseBrowser()
		s.stop()
		o.registry.Release(s.ChannelID, s)
		s.outbox.close()
		o.metrics.ActiveSessions.Dec()
		close(s.done)
		o.wg.Done()
	}()

	ctx, span := o.tracer.Start(o.ctx, "session.run", trace.WithAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("portal", s.Portal.Name),
	))
	defer span.End()

	fact, ok := o.extract(ctx, x, extractCtx)
	if !ok {
		return
	}

	if !o.step(x, PhaseEvaluating, fmt.Sprintf("Found %s, checking %s", strconv.FormatFloat(fact.Value, 'f', -1, 64), s.Portal.Claim)) {
		return
	}
	s.setFact(fact)
	if !claim.Evaluate(fact, s.Portal.Claim) {
		o.finish(x, Outcome{
			Phase:   PhaseClaimFailed,
			Reason:  ReasonClaimNotMet,
			Message: claim.NotMetMessage(fact, s.Portal.Claim),
		})
		return
	}

	receipt, ok := o.prove(ctx, x, fact)
	if !ok {
		return
	}

	if !o.step(x, PhasePersisting, fmt.Sprintf("Proof finalized in %s, saving record", receipt.TransactionRef)) {
		return
	}
	record := o.newRecord(s, fact, receipt)
	persisted := o.persist(ctx, x, record)

	o.finish(x, Outcome{
		Phase:          PhaseCompleted,
		RecordID:       record.Id.String(),
		TransactionRef: receipt.TransactionRef,
		AttestationRef: receipt.AttestationRef,
		Persisted:      persisted,
	})
	if persisted {
		o.publish(EventVerificationCompleted, map[string]interface{}{
			"record_id":       record.Id.String(),
			"owner_id":        s.OwnerID,
			"portal":          s.Portal.Name,
			"transaction_ref": receipt.TransactionRef,
		})
	}
}

// extract launches the browser and runs the portal script. The browser is
// released before extract returns, whatever the outcome.
func (o *Orchestrator) extract(ctx context.Context, x *execution, extractCtx context.Context) (claim.Fact, bool) {
	s := x.s
	_, span := o.tracer.Start(ctx, "session.extract")
	defer span.End()
	defer x.releaseBrowser()

	if !o.step(x, PhaseInitializing, fmt.Sprintf("Launching browser for %s", s.Portal.Name)) {
		return claim.Fact{}, false
	}
	run, err := s.Portal.Extractor.Launch(extractCtx, x)
	if err != nil {
		o.failExtraction(span, x, err)
		return claim.Fact{}, false
	}
	x.run = run
	o.metrics.BrowsersLaunched.Inc()

	if !o.step(x, PhaseExtracting, fmt.Sprintf("Browser ready, reading %s for %s", s.Portal.Name, s.Subject)) {
		return claim.Fact{}, false
	}
	fact, err := run.Extract(extractCtx, x.auth)
	x.releaseBrowser()
	if err == nil && s.Cancelled() {
		err = extractor.NewError(extractor.ReasonCancelled, "Session cancelled", context.Canceled)
	}
	if err != nil {
		o.failExtraction(span, x, err)
		return claim.Fact{}, false
	}
	return fact, true
}

func (o *Orchestrator) failExtraction(span trace.Span, x *execution, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if x.s.Cancelled() || extractor.ReasonOf(err) == extractor.ReasonCancelled {
		o.fail(x, ReasonCancelled, "Session cancelled")
		return
	}
	o.fail(x, ReasonExtraction, err.Error())
}

// prove hands off to the proof service on the orchestrator context, so a
// disconnect cannot orphan a submitted transaction.
func (o *Orchestrator) prove(ctx context.Context, x *execution, fact claim.Fact) (*proof.Receipt, bool) {
	s := x.s
	ctx, span := o.tracer.Start(ctx, "session.prove")
	defer span.End()

	if !o.step(x, PhaseProving, "Claim met, generating proof") {
		return nil, false
	}
	receipt, err := o.prover.ProveAndSubmit(ctx, fact, s.Portal.Claim, func(p proof.Progress) {
		switch p {
		case proof.ProgressSubmitting:
			o.step(x, PhaseSubmitting, "Submitting proof to the verification chain")
		case proof.ProgressAwaitingFinality:
			s.note("Waiting for block finality")
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.fail(x, ReasonProof, err.Error())
		return nil, false
	}
	if s.Phase() == PhaseProving && !o.step(x, PhaseSubmitting, "Submitting proof to the verification chain") {
		return nil, false
	}
	span.SetAttributes(attribute.String("transaction_ref", receipt.TransactionRef))
	return receipt, true
}

func (o *Orchestrator) newRecord(s *Session, fact claim.Fact, receipt *proof.Receipt) *entity.VerificationRecord {
	var owner *string
	if s.OwnerID != "" {
		id := s.OwnerID
		owner = &id
	}
	return &entity.VerificationRecord{
		Id:              uuid.New(),
		OwnerId:         owner,
		Portal:          s.Portal.Name,
		RecordType:      s.Portal.RecordType,
		SubjectHandle:   s.Subject,
		ClaimKind:       string(s.Portal.Claim.Kind),
		ClaimComparator: string(s.Portal.Claim.Comparator),
		ClaimThreshold:  s.Portal.Claim.Threshold,
		ClaimResult:     true,
		MeasuredValue:   fact.Value,
		Breakdown:       fact.Breakdown,
		TransactionRef:  receipt.TransactionRef,
		AttestationRef:  receipt.AttestationRef,
		Status:          entity.VerificationStatusVerified,
		CreatedAt:       time.Now().UTC(),
	}
}

// persist writes the record. A failure is logged loudly with the whole
// record so it can be re-inserted by hand; the client still sees success.
func (o *Orchestrator) persist(ctx context.Context, x *execution, record *entity.VerificationRecord) bool {
	ctx, span := o.tracer.Start(ctx, "session.persist")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
	defer cancel()

	if err := o.records.Create(ctx, record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("Session", "DURABILITY FAILURE: verified record was not saved", map[string]interface{}{
			"session_id": x.s.ID,
			"record":     record,
			"error":      err.Error(),
		})
		x.s.note(fmt.Sprintf("Durability failure: record %s could not be saved: %v", record.Id, err))
		return false
	}
	o.metrics.RecordsWritten.Inc()
	x.s.note(fmt.Sprintf("Record %s saved", record.Id))
	return true
}

// step performs a forward transition. An illegal transition is a bug and
// ends the session as an internal error.
func (o *Orchestrator) step(x *execution, to Phase, text string) bool {
	if err := x.s.transition(to, text); err != nil {
		o.logger.Error("Session", "Illegal transition", map[string]interface{}{
			"session_id": x.s.ID,
			"error":      err.Error(),
		})
		o.fail(x, ReasonInternal, "Internal error")
		return false
	}
	return true
}

func (o *Orchestrator) fail(x *execution, reason ErrorReason, message string) {
	o.finish(x, Outcome{Phase: PhaseError, Reason: reason, Message: message})
}

// finish releases the browser and the channel slot, then emits the terminal
// event. The slot is free by the time the client sees the event.
func (o *Orchestrator) finish(x *execution, out Outcome) {
	s := x.s
	x.releaseBrowser()
	from := s.Phase()
	o.registry.Release(s.ChannelID, s)

	var final Event
	if out.Phase == PhaseCompleted {
		final = Event{Name: EventComplete, Data: CompleteData{
			RecordID:       out.RecordID,
			TransactionRef: out.TransactionRef,
			AttestationRef: out.AttestationRef,
			Portal:         s.Portal.Name,
		}}
	} else {
		final = Event{Name: EventError, Data: ErrorData{Message: out.Message, Reason: out.Reason}}
	}
	if !s.terminate(out, final) {
		return
	}

	o.metrics.SessionsFinished.WithLabelValues(string(out.Phase)).Inc()
	o.logger.Info("Session", "Session finished", map[string]interface{}{
		"session_id": s.ID,
		"channel_id": s.ChannelID,
		"phase":      string(out.Phase),
		"from":       string(from),
		"reason":     string(out.Reason),
	})
	if out.Phase != PhaseCompleted {
		o.publish(EventVerificationFailed, map[string]interface{}{
			"portal":  s.Portal.Name,
			"phase":   string(from),
			"reason":  string(out.Reason),
			"message": out.Message,
		})
	}
}

func (o *Orchestrator) publish(eventType string, data map[string]interface{}) {
	if o.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(o.ctx), o.cfg.PublishTimeout)
	defer cancel()
	err := o.events.Publish(ctx, events.New(eventType, data))
	if err != nil {
		o.logger.Warn("Session", "Failed to publish event", map[string]interface{}{
			"event": eventType,
			"error": err.Error(),
		})
	}
}

// observe runs for every log entry under the session lock.
func (o *Orchestrator) observe(s *Session, entry LogEntry) {
	o.logger.Info("Session", entry.Text, map[string]interface{}{
		"session_id": s.ID,
		"channel_id": s.ChannelID,
		"phase":      string(entry.Phase),
	})
	if o.transitions == nil {
		return
	}
	payload, err := json.Marshal(dto.SessionTransitionMessage{
		SessionId: s.ID,
		ChannelId: s.ChannelID,
		Portal:    s.Portal.Name,
		Phase:     string(entry.Phase),
		Text:      entry.Text,
		At:        entry.At,
	})
	if err == nil {
		err = o.transitions.Publish(o.ctx, payload)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		o.logger.Warn("Session", "Failed to publish transition", map[string]interface{}{
			"session_id": s.ID,
			"error":      err.Error(),
		})
	}
}
