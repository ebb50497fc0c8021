package specification

import "gorm.io/gorm"

// ByOwner filters records by the opaque identity-provider id.
type ByOwner struct {
	OwnerId string
}

func (s ByOwner) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("owner_id = ?", s.OwnerId)
}

type ByStatus struct {
	Status string
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

// BySession filters audit events of one session.
type BySession struct {
	SessionId string
}

func (s BySession) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionId)
}

// NewestFirst orders by creation time, descending.
func NewestFirst() Specification {
	return OrderBy{Column: "created_at", Desc: true}
}

// OldestFirst keeps audit trails in the order they happened.
func OldestFirst() Specification {
	return OrderBy{Column: "created_at"}
}
