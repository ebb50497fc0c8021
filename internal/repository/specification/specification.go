// Package specification holds composable gorm query fragments used by the
// repository implementations.
package specification

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Specification narrows or orders a query.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}

type ByID struct {
	ID uuid.UUID
}

func (s ByID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.ID)
}

// OrderBy quotes Column, so it is safe for any identifier.
type OrderBy struct {
	Column string
	Desc   bool
}

func (s OrderBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Column}, Desc: s.Desc})
}

// Limit caps the result size. Zero or negative means no cap.
type Limit int

func (s Limit) Apply(db *gorm.DB) *gorm.DB {
	if s <= 0 {
		return db
	}
	return db.Limit(int(s))
}
