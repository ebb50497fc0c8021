package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type VerificationRecord struct {
	Id              uuid.UUID                          `gorm:"type:uuid;primaryKey"`
	OwnerId         *string                            `gorm:"type:varchar(128);index:idx_verifications_owner_created,priority:1"`
	Portal          string                             `gorm:"type:varchar(50);not null"`
	RecordType      string                             `gorm:"type:varchar(50);not null"`
	SubjectHandle   string                             `gorm:"type:varchar(255);not null"`
	ClaimKind       string                             `gorm:"type:varchar(50);not null"`
	ClaimComparator string                             `gorm:"type:varchar(20);not null"`
	ClaimThreshold  float64                            `gorm:"not null"`
	ClaimResult     bool                               `gorm:"not null"`
	MeasuredValue   float64                            `gorm:"not null"`
	Breakdown       datatypes.JSONType[map[string]int] `gorm:"type:jsonb"`
	TransactionRef  string                             `gorm:"type:varchar(255);not null"`
	AttestationRef  string                             `gorm:"type:varchar(255);not null"`
	Status          string                             `gorm:"type:varchar(20);not null;index"`
	CreatedAt       time.Time                          `gorm:"not null;index:idx_verifications_owner_created,priority:2,sort:desc"`
}

func (VerificationRecord) TableName() string {
	return "verifications"
}

type SessionEvent struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SessionId string    `gorm:"type:varchar(64);not null;index"`
	ChannelId string    `gorm:"type:varchar(64);not null"`
	Portal    string    `gorm:"type:varchar(50)"`
	Phase     string    `gorm:"type:varchar(30);not null"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (SessionEvent) TableName() string {
	return "session_events"
}
