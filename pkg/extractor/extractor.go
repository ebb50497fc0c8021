// Package extractor drives a disposable browser against a third-party
// portal and pulls a single numeric fact out of the rendered page.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zkcred-be/pkg/claim"
)

// Reason classifies why an extraction failed.
type Reason string

const (
	ReasonUnreachable     Reason = "target-unreachable"
	ReasonAuthRejected    Reason = "auth-rejected"
	ReasonFactNotFound    Reason = "fact-not-found"
	ReasonSubjectNotFound Reason = "subject-not-found"
	ReasonCancelled       Reason = "cancelled"
	ReasonLaunch          Reason = "browser-launch"
)

// ExtractionError is returned for every failed extraction. Message is shown
// to the client verbatim.
type ExtractionError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewError builds an ExtractionError.
func NewError(reason Reason, message string, err error) *ExtractionError {
	return &ExtractionError{Reason: reason, Message: message, Err: err}
}

// ReasonOf returns the reason carried by err, or "" when err is not an
// ExtractionError.
func ReasonOf(err error) Reason {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return ""
}

// Auth carries either a username/password pair or a public handle.
// For public-profile portals only Username is set.
type Auth struct {
	Username string
	Password string
}

// Subject is the identifier that may be persisted. Never the password.
func (a Auth) Subject() string { return a.Username }

// Sink receives the side effects of a run. Frame must never block.
type Sink interface {
	Frame(jpeg []byte)
	Log(text string)
}

// Extractor launches one browser per call. The returned Run exclusively owns
// that browser until Close.
type Extractor interface {
	Launch(ctx context.Context, sink Sink) (Run, error)
}

// Run is a single extraction against a launched browser.
type Run interface {
	Extract(ctx context.Context, auth Auth) (claim.Fact, error)
	Close() error
}

// pause waits for d or until ctx is done. It is the cooperative
// cancellation checkpoint used between browser steps.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return checkpoint(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return cancelled(ctx)
	case <-t.C:
		return nil
	}
}

func checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	return nil
}

func cancelled(ctx context.Context) error {
	return NewError(ReasonCancelled, "Session cancelled", ctx.Err())
}

// classify turns a browser error into an ExtractionError, preferring
// cancellation when the run context is already done.
func classify(ctx context.Context, reason Reason, message string, err error) error {
	if ctx.Err() != nil {
		return cancelled(ctx)
	}
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee
	}
	return NewError(reason, message, err)
}
