package contract

import (
	"context"
	"fmt"

	"zkcred-be/internal/entity"

	"github.com/google/uuid"
)

// StoreError marks a backend failure (unavailable, constraint, timeout).
// Absent records are not errors: finders return nil, nil.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type VerificationRepository interface {
	// Create assigns Id and CreatedAt when they are zero.
	Create(ctx context.Context, record *entity.VerificationRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.VerificationRecord, error)
	// FindVerifiedByOwner returns newest first, at most limit records.
	FindVerifiedByOwner(ctx context.Context, ownerId string, limit int) ([]*entity.VerificationRecord, error)
}

type SessionEventRepository interface {
	Create(ctx context.Context, event *entity.SessionEvent) error
	FindBySession(ctx context.Context, sessionId string) ([]*entity.SessionEvent, error)
}
