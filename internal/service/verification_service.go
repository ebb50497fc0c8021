package service

import (
	"context"
	"errors"

	"zkcred-be/internal/dto"
	"zkcred-be/internal/entity"
	"zkcred-be/internal/repository/contract"
	"zkcred-be/internal/session"

	"github.com/google/uuid"
)

const (
	DefaultProofsLimit = 10
	MaxProofsLimit     = 50
)

var ErrRecordNotFound = errors.New("record not found")

type IVerificationService interface {
	GetProofs(ctx context.Context, ownerId string, limit int) (*dto.ProofListResponse, error)
	GetRecord(ctx context.Context, id uuid.UUID) (*dto.VerificationRecordResponse, error)
	ListPortals() []*dto.PortalResponse
}

type verificationService struct {
	repo    contract.VerificationRepository
	portals *session.Catalogue
}

func NewVerificationService(repo contract.VerificationRepository, portals *session.Catalogue) IVerificationService {
	return &verificationService{repo: repo, portals: portals}
}

func (s *verificationService) GetProofs(ctx context.Context, ownerId string, limit int) (*dto.ProofListResponse, error) {
	if limit <= 0 {
		limit = DefaultProofsLimit
	}
	if limit > MaxProofsLimit {
		limit = MaxProofsLimit
	}

	records, err := s.repo.FindVerifiedByOwner(ctx, ownerId, limit)
	if err != nil {
		return nil, err
	}

	res := &dto.ProofListResponse{Proofs: make([]*dto.VerificationRecordResponse, 0, len(records))}
	for _, r := range records {
		res.Proofs = append(res.Proofs, toRecordResponse(r))
	}
	return res, nil
}

func (s *verificationService) GetRecord(ctx context.Context, id uuid.UUID) (*dto.VerificationRecordResponse, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	return toRecordResponse(record), nil
}

func (s *verificationService) ListPortals() []*dto.PortalResponse {
	portals := s.portals.List()
	res := make([]*dto.PortalResponse, 0, len(portals))
	for _, p := range portals {
		res = append(res, &dto.PortalResponse{
			Name:                p.Name,
			Type:                p.RecordType,
			ClaimKind:           string(p.Claim.Kind),
			Comparator:          string(p.Claim.Comparator),
			Threshold:           p.Claim.Threshold,
			RequiresCredentials: p.RequiresCredentials,
		})
	}
	return res
}

func toRecordResponse(r *entity.VerificationRecord) *dto.VerificationRecordResponse {
	return &dto.VerificationRecordResponse{
		Id:             r.Id.String(),
		OwnerId:        r.OwnerId,
		Portal:         r.Portal,
		Type:           r.RecordType,
		SubjectHandle:  r.SubjectHandle,
		ClaimKind:      r.ClaimKind,
		Comparator:     r.ClaimComparator,
		ClaimThreshold: r.ClaimThreshold,
		ClaimResult:    r.ClaimResult,
		MeasuredValue:  r.MeasuredValue,
		Breakdown:      r.Breakdown,
		TransactionRef: r.TransactionRef,
		AttestationRef: r.AttestationRef,
		Status:         r.Status,
		CreatedAt:      r.CreatedAt,
	}
}
