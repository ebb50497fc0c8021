package dto

import (
	"time"
)

// SessionTransitionMessage is published on the in-process audit topic for
// every session log entry. It never carries credentials.
type SessionTransitionMessage struct {
	SessionId string    `json:"session_id"`
	ChannelId string    `json:"channel_id"`
	Portal    string    `json:"portal"`
	Phase     string    `json:"phase"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

type CredentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// StartVerificationRequest is the data of a start_verification event.
type StartVerificationRequest struct {
	Portal      string              `json:"portal" validate:"omitempty,max=50"`
	Credentials *CredentialsPayload `json:"credentials"`
	Handle      string              `json:"handle" validate:"omitempty,max=100"`
	OwnerId     string              `json:"ownerId" validate:"omitempty,max=128"`
}

// LegacyLeetcodeRequest is the data of start_leetcode_verification.
type LegacyLeetcodeRequest struct {
	Username    string `json:"username" validate:"required,max=100"`
	FirebaseUid string `json:"firebaseUid" validate:"omitempty,max=128"`
}

type ProofsQuery struct {
	Owner string `query:"owner" validate:"required,max=128"`
	Limit int    `query:"limit" validate:"omitempty,min=1"`
}

type VerificationRecordResponse struct {
	Id             string         `json:"id"`
	OwnerId        *string        `json:"ownerId"`
	Portal         string         `json:"portal"`
	Type           string         `json:"type"`
	SubjectHandle  string         `json:"subjectHandle"`
	ClaimKind      string         `json:"claimKind"`
	Comparator     string         `json:"comparator"`
	ClaimThreshold float64        `json:"claimThreshold"`
	ClaimResult    bool           `json:"claimResult"`
	MeasuredValue  float64        `json:"measuredValue"`
	Breakdown      map[string]int `json:"breakdown,omitempty"`
	TransactionRef string         `json:"transactionRef"`
	AttestationRef string         `json:"attestationRef"`
	Status         string         `json:"status"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type ProofListResponse struct {
	Proofs []*VerificationRecordResponse `json:"proofs"`
}

type PortalResponse struct {
	Name                string  `json:"name"`
	Type                string  `json:"type"`
	ClaimKind           string  `json:"claimKind"`
	Comparator          string  `json:"comparator"`
	Threshold           float64 `json:"threshold"`
	RequiresCredentials bool    `json:"requiresCredentials"`
}
