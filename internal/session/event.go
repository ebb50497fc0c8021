package session

import (
	"sync"
	"time"
)

// Client-visible event names.
const (
	EventLog      = "log"
	EventFrame    = "screencast_frame"
	EventComplete = "verification_complete"
	EventError    = "error"
)

// ErrorReason tells the client why a session ended in an error event.
type ErrorReason string

const (
	ReasonSessionActive  ErrorReason = "session_active"
	ReasonInvalidRequest ErrorReason = "invalid_request"
	ReasonExtraction     ErrorReason = "extraction"
	ReasonClaimNotMet    ErrorReason = "claim_not_met"
	ReasonProof          ErrorReason = "proof"
	ReasonCancelled      ErrorReason = "cancelled"
	ReasonInternal       ErrorReason = "internal"
)

// Event is one ordered message for the client channel.
type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

type LogData struct {
	Text      string    `json:"text"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

type CompleteData struct {
	RecordID       string `json:"recordId"`
	TransactionRef string `json:"transactionRef"`
	AttestationRef string `json:"attestationRef"`
	Portal         string `json:"portal"`
}

type ErrorData struct {
	Message string      `json:"message"`
	Reason  ErrorReason `json:"reason"`
}

const (
	eventBuffer = 128
	frameBuffer = 4
)

// Outbox is the session's output queue, drained by the transport.
// Events are ordered and never dropped while a reader is attached; frames
// are best-effort and dropped when the reader falls behind.
type Outbox struct {
	events chan Event
	frames chan []byte

	detached   chan struct{}
	detachOnce sync.Once

	mu     sync.Mutex
	closed bool

	onDrop func()
}

func newOutbox(onDrop func()) *Outbox {
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Outbox{
		events:   make(chan Event, eventBuffer),
		frames:   make(chan []byte, frameBuffer),
		detached: make(chan struct{}),
		onDrop:   onDrop,
	}
}

// Events is closed after the terminal event.
func (o *Outbox) Events() <-chan Event { return o.events }

// Frames is never closed; stop reading once Events is closed.
func (o *Outbox) Frames() <-chan []byte { return o.frames }

// Detach tells the outbox nobody is reading any more. Pending and future
// sends are discarded instead of blocking the session.
func (o *Outbox) Detach() {
	o.detachOnce.Do(func() { close(o.detached) })
}

func (o *Outbox) push(ev Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.events <- ev:
	case <-o.detached:
	}
}

func (o *Outbox) frame(jpeg []byte) {
	select {
	case <-o.detached:
		return
	default:
	}
	select {
	case o.frames <- jpeg:
	default:
		o.onDrop()
	}
}

func (o *Outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.events)
	}
}
