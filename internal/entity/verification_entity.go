package entity

import (
	"time"

	"github.com/google/uuid"
)

const VerificationStatusVerified = "verified"

// VerificationRecord is immutable once written.
type VerificationRecord struct {
	Id              uuid.UUID
	OwnerId         *string // opaque identity-provider id, nil when unauthenticated
	Portal          string
	RecordType      string
	SubjectHandle   string
	ClaimKind       string
	ClaimComparator string
	ClaimThreshold  float64
	ClaimResult     bool
	MeasuredValue   float64
	Breakdown       map[string]int
	TransactionRef  string
	AttestationRef  string
	Status          string
	CreatedAt       time.Time
}

// SessionEvent is one audit line of an ephemeral session.
type SessionEvent struct {
	Id        uuid.UUID
	SessionId string
	ChannelId string
	Portal    string
	Phase     string
	Text      string
	CreatedAt time.Time
}
