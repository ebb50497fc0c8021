package implementation

import (
	"context"
	"errors"
	"time"

	"zkcred-be/internal/entity"
	"zkcred-be/internal/mapper"
	"zkcred-be/internal/model"
	"zkcred-be/internal/repository/contract"
	"zkcred-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.VerificationMapper
}

func NewVerificationRepository(db *gorm.DB) contract.VerificationRepository {
	return &VerificationRepositoryImpl{
		db:     db,
		mapper: mapper.NewVerificationMapper(),
	}
}

func applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *VerificationRepositoryImpl) Create(ctx context.Context, record *entity.VerificationRecord) error {
	if record.Id == uuid.Nil {
		record.Id = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m := r.mapper.ToModel(record)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return &contract.StoreError{Op: "create", Err: err}
	}
	return nil
}

func (r *VerificationRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.VerificationRecord, error) {
	var m model.VerificationRecord
	query := applySpecifications(r.db.WithContext(ctx), specification.ByID{ID: id})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, &contract.StoreError{Op: "find", Err: err}
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *VerificationRepositoryImpl) FindVerifiedByOwner(ctx context.Context, ownerId string, limit int) ([]*entity.VerificationRecord, error) {
	var models []*model.VerificationRecord
	query := applySpecifications(r.db.WithContext(ctx),
		specification.ByOwner{OwnerId: ownerId},
		specification.ByStatus{Status: entity.VerificationStatusVerified},
		specification.NewestFirst(),
		specification.Limit(limit),
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, &contract.StoreError{Op: "query", Err: err}
	}

	records := make([]*entity.VerificationRecord, 0, len(models))
	for _, m := range models {
		records = append(records, r.mapper.ToEntity(m))
	}
	return records, nil
}

type SessionEventRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.VerificationMapper
}

func NewSessionEventRepository(db *gorm.DB) contract.SessionEventRepository {
	return &SessionEventRepositoryImpl{
		db:     db,
		mapper: mapper.NewVerificationMapper(),
	}
}

func (r *SessionEventRepositoryImpl) Create(ctx context.Context, event *entity.SessionEvent) error {
	m := r.mapper.SessionEventToModel(event)
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return &contract.StoreError{Op: "create", Err: err}
	}
	event.Id = m.Id
	return nil
}

func (r *SessionEventRepositoryImpl) FindBySession(ctx context.Context, sessionId string) ([]*entity.SessionEvent, error) {
	var models []*model.SessionEvent
	query := applySpecifications(r.db.WithContext(ctx),
		specification.BySession{SessionId: sessionId},
		specification.OldestFirst(),
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, &contract.StoreError{Op: "query", Err: err}
	}

	events := make([]*entity.SessionEvent, 0, len(models))
	for _, m := range models {
		events = append(events, r.mapper.SessionEventToEntity(m))
	}
	return events, nil
}
