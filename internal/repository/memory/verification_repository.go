package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"zkcred-be/internal/entity"
	"zkcred-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// VerificationRepository keeps records in process memory. Used when no
// database is configured; records do not survive a restart.
type VerificationRepository struct {
	cache *cache.Cache
}

func NewVerificationRepository() *VerificationRepository {
	return &VerificationRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

var _ contract.VerificationRepository = (*VerificationRepository)(nil)

func (r *VerificationRepository) Create(ctx context.Context, record *entity.VerificationRecord) error {
	if err := ctx.Err(); err != nil {
		return &contract.StoreError{Op: "create", Err: err}
	}
	if record.Id == uuid.Nil {
		record.Id = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	stored := *record
	if err := r.cache.Add(record.Id.String(), &stored, cache.NoExpiration); err != nil {
		return &contract.StoreError{Op: "create", Err: err}
	}
	return nil
}

func (r *VerificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.VerificationRecord, error) {
	if x, found := r.cache.Get(id.String()); found {
		record := *x.(*entity.VerificationRecord)
		return &record, nil
	}
	return nil, nil
}

func (r *VerificationRepository) FindVerifiedByOwner(ctx context.Context, ownerId string, limit int) ([]*entity.VerificationRecord, error) {
	var records []*entity.VerificationRecord
	for _, item := range r.cache.Items() {
		record := *item.Object.(*entity.VerificationRecord)
		if record.OwnerId == nil || *record.OwnerId != ownerId {
			continue
		}
		if record.Status != entity.VerificationStatusVerified {
			continue
		}
		records = append(records, &record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SessionEventRepository is the in-memory audit trail.
type SessionEventRepository struct {
	mu     sync.Mutex
	events map[string][]*entity.SessionEvent
}

func NewSessionEventRepository() *SessionEventRepository {
	return &SessionEventRepository{events: make(map[string][]*entity.SessionEvent)}
}

var _ contract.SessionEventRepository = (*SessionEventRepository)(nil)

func (r *SessionEventRepository) Create(ctx context.Context, event *entity.SessionEvent) error {
	if event.Id == uuid.Nil {
		event.Id = uuid.New()
	}
	stored := *event
	r.mu.Lock()
	r.events[event.SessionId] = append(r.events[event.SessionId], &stored)
	r.mu.Unlock()
	return nil
}

func (r *SessionEventRepository) FindBySession(ctx context.Context, sessionId string) ([]*entity.SessionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entity.SessionEvent, 0, len(r.events[sessionId]))
	for _, e := range r.events[sessionId] {
		cp := *e
		out = append(out, &cp)
	}
	// Delivery order on the audit bus is not guaranteed.
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
