package mapper

import (
	"zkcred-be/internal/entity"
	"zkcred-be/internal/model"

	"gorm.io/datatypes"
)

type VerificationMapper struct{}

func NewVerificationMapper() *VerificationMapper {
	return &VerificationMapper{}
}

func (m *VerificationMapper) ToEntity(r *model.VerificationRecord) *entity.VerificationRecord {
	if r == nil {
		return nil
	}
	breakdown := r.Breakdown.Data()
	if len(breakdown) == 0 {
		breakdown = nil
	}
	return &entity.VerificationRecord{
		Id:              r.Id,
		OwnerId:         r.OwnerId,
		Portal:          r.Portal,
		RecordType:      r.RecordType,
		SubjectHandle:   r.SubjectHandle,
		ClaimKind:       r.ClaimKind,
		ClaimComparator: r.ClaimComparator,
		ClaimThreshold:  r.ClaimThreshold,
		ClaimResult:     r.ClaimResult,
		MeasuredValue:   r.MeasuredValue,
		Breakdown:       breakdown,
		TransactionRef:  r.TransactionRef,
		AttestationRef:  r.AttestationRef,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
	}
}

func (m *VerificationMapper) ToModel(r *entity.VerificationRecord) *model.VerificationRecord {
	if r == nil {
		return nil
	}
	return &model.VerificationRecord{
		Id:              r.Id,
		OwnerId:         r.OwnerId,
		Portal:          r.Portal,
		RecordType:      r.RecordType,
		SubjectHandle:   r.SubjectHandle,
		ClaimKind:       r.ClaimKind,
		ClaimComparator: r.ClaimComparator,
		ClaimThreshold:  r.ClaimThreshold,
		ClaimResult:     r.ClaimResult,
		MeasuredValue:   r.MeasuredValue,
		Breakdown:       datatypes.NewJSONType(r.Breakdown),
		TransactionRef:  r.TransactionRef,
		AttestationRef:  r.AttestationRef,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
	}
}

func (m *VerificationMapper) SessionEventToModel(e *entity.SessionEvent) *model.SessionEvent {
	if e == nil {
		return nil
	}
	return &model.SessionEvent{
		Id:        e.Id,
		SessionId: e.SessionId,
		ChannelId: e.ChannelId,
		Portal:    e.Portal,
		Phase:     e.Phase,
		Text:      e.Text,
		CreatedAt: e.CreatedAt,
	}
}

func (m *VerificationMapper) SessionEventToEntity(e *model.SessionEvent) *entity.SessionEvent {
	if e == nil {
		return nil
	}
	return &entity.SessionEvent{
		Id:        e.Id,
		SessionId: e.SessionId,
		ChannelId: e.ChannelId,
		Portal:    e.Portal,
		Phase:     e.Phase,
		Text:      e.Text,
		CreatedAt: e.CreatedAt,
	}
}
