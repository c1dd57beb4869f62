package domain

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the identity and timestamps of a stored record.
// Embed it by value; Touch needs an addressable receiver.
type BaseEntity struct {
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
}

// NewBaseEntity returns an entity with a fresh id, created now.
func NewBaseEntity() BaseEntity {
	now := time.Now().UTC()
	return BaseEntity{id: uuid.New(), createdAt: now, updatedAt: now}
}

// RehydrateBaseEntity recreates an entity from persisted state.
func RehydrateBaseEntity(id uuid.UUID, createdAt, updatedAt time.Time) BaseEntity {
	return BaseEntity{id: id, createdAt: createdAt, updatedAt: updatedAt}
}

func (e BaseEntity) ID() uuid.UUID        { return e.id }
func (e BaseEntity) CreatedAt() time.Time { return e.createdAt }
func (e BaseEntity) UpdatedAt() time.Time { return e.updatedAt }

// Touch moves updatedAt to now. It never moves backwards, so two updates
// within one clock tick still order after creation.
func (e *BaseEntity) Touch() {
	now := time.Now().UTC()
	if now.Before(e.updatedAt) {
		return
	}
	e.updatedAt = now
}
