package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"zkcred-be/pkg/claim"

	"github.com/google/uuid"
)

// LogEntry is one line of the session's append-only log.
type LogEntry struct {
	At    time.Time
	Phase Phase
	Text  string
}

// Outcome summarises how a session ended. It is set exactly once.
type Outcome struct {
	Phase          Phase
	Reason         ErrorReason
	Message        string
	RecordID       string
	TransactionRef string
	AttestationRef string
	Persisted      bool
}

// Session is the state of one in-flight verification. It is owned by the
// orchestrator goroutine running it; readers use the accessor methods.
type Session struct {
	ID        string
	ChannelID string
	Portal    Portal
	OwnerID   string
	Subject   string

	mu      sync.Mutex
	phase   Phase
	fact    *claim.Fact
	log     []LogEntry
	outcome *Outcome

	cancelled atomic.Bool
	stop      context.CancelFunc
	outbox    *Outbox
	done      chan struct{}

	// observe is called for every log entry, inside the session lock.
	observe func(*Session, LogEntry)
}

func newSession(channelID string, portal Portal, req Request, outbox *Outbox) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Portal:    portal,
		OwnerID:   req.OwnerID,
		Subject:   req.Auth.Subject(),
		phase:     PhaseIdle,
		outbox:    outbox,
		done:      make(chan struct{}),
		stop:      func() {},
	}
}

func (s *Session) Outbox() *Outbox { return s.outbox }

// Done is closed once the session has fully finished and released
// everything it owned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Fact() *claim.Fact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fact == nil {
		return nil
	}
	f := *s.fact
	return &f
}

func (s *Session) Log() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.log))
	copy(out, s.log)
	return out
}

// Outcome is nil until the session reaches a terminal phase.
func (s *Session) Outcome() *Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return nil
	}
	o := *s.outcome
	return &o
}

func (s *Session) Cancelled() bool { return s.cancelled.Load() }

func (s *Session) cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.stop()
	}
}

func (s *Session) setFact(f claim.Fact) {
	s.mu.Lock()
	s.fact = &f
	s.mu.Unlock()
}

// appendLocked records one log entry and emits its event. The lock keeps
// log order and event order identical.
func (s *Session) appendLocked(text string) {
	entry := LogEntry{At: time.Now().UTC(), Phase: s.phase, Text: text}
	s.log = append(s.log, entry)
	if s.observe != nil {
		s.observe(s, entry)
	}
	s.outbox.push(Event{Name: EventLog, Data: LogData{Text: text, Phase: entry.Phase, Timestamp: entry.At}})
}

// note appends a log line without changing phase.
func (s *Session) note(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() {
		return
	}
	s.appendLocked(text)
}

func (s *Session) transition(to Phase, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.phase, to) {
		return fmt.Errorf("illegal transition %s -> %s", s.phase, to)
	}
	s.phase = to
	s.appendLocked(text)
	return nil
}

// terminate moves to a terminal phase, emits the final event and closes
// the outbox. Later calls are no-ops.
func (s *Session) terminate(out Outcome, final Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase.IsTerminal() || !canTransition(s.phase, out.Phase) {
		return false
	}
	s.phase = out.Phase
	text := out.Message
	if out.Phase == PhaseCompleted {
		text = fmt.Sprintf("Verification complete: record %s", out.RecordID)
	}
	s.appendLocked(text)
	s.outcome = &out
	s.outbox.push(final)
	s.outbox.close()
	return true
}
