package domain

import (
	"context"
	"time"

	sharedDomain "github.com/felixgeelhaar/almanac/internal/shared/domain"
	"github.com/google/uuid"
)

// SyncState tracks the import bookkeeping for one configured source.
type SyncState struct {
	sharedDomain.BaseEntity
	sourceID     string
	sourceType   SourceType
	cursor       string    // Provider-specific incremental token, if any
	lastSyncedAt time.Time // Start of the last successful pass
	itemsSeen    int       // Raw items enumerated by the last successful pass
	syncErrors   int       // Count of consecutive failed passes
	lastError    string
}

// NewSyncState creates a new sync state for a source.
func NewSyncState(sourceID string, sourceType SourceType) *SyncState {
	return &SyncState{
		BaseEntity: sharedDomain.NewBaseEntity(),
		sourceID:   sourceID,
		sourceType: sourceType,
	}
}

// Getters
func (s *SyncState) SourceID() string        { return s.sourceID }
func (s *SyncState) SourceType() SourceType  { return s.sourceType }
func (s *SyncState) Cursor() string          { return s.cursor }
func (s *SyncState) LastSyncedAt() time.Time { return s.lastSyncedAt }
func (s *SyncState) ItemsSeen() int          { return s.itemsSeen }
func (s *SyncState) SyncErrors() int         { return s.syncErrors }
func (s *SyncState) LastError() string       { return s.lastError }

// HasSynced returns true if at least one successful pass has completed.
func (s *SyncState) HasSynced() bool {
	return !s.lastSyncedAt.IsZero()
}

// ModifiedAfter returns the catch-up filter for the next pass: items not
// modified since the last successful pass began can be skipped. The zero
// time means everything must be imported.
func (s *SyncState) ModifiedAfter() time.Time {
	return s.lastSyncedAt
}

// MarkSyncSuccess records a successful pass that started at startedAt.
func (s *SyncState) MarkSyncSuccess(startedAt time.Time, cursor string, itemsSeen int) {
	s.lastSyncedAt = startedAt.UTC()
	s.cursor = cursor
	s.itemsSeen = itemsSeen
	s.syncErrors = 0
	s.lastError = ""
	s.Touch()
}

// MarkSyncFailure records a failed pass.
func (s *SyncState) MarkSyncFailure(err string) {
	s.syncErrors++
	s.lastError = err
	s.Touch()
}

// ShouldRetry returns false once maxErrors consecutive passes have failed.
func (s *SyncState) ShouldRetry(maxErrors int) bool {
	return maxErrors <= 0 || s.syncErrors < maxErrors
}

// SyncStateSnapshot is the persisted form of a sync state.
type SyncStateSnapshot struct {
	ID           uuid.UUID
	SourceID     string
	SourceType   SourceType
	Cursor       string
	LastSyncedAt time.Time
	ItemsSeen    int
	SyncErrors   int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RehydrateSyncState recreates a sync state from persisted data.
func RehydrateSyncState(s SyncStateSnapshot) *SyncState {
	return &SyncState{
		BaseEntity:   sharedDomain.RehydrateBaseEntity(s.ID, s.CreatedAt, s.UpdatedAt),
		sourceID:     s.SourceID,
		sourceType:   s.SourceType,
		cursor:       s.Cursor,
		lastSyncedAt: s.LastSyncedAt,
		itemsSeen:    s.ItemsSeen,
		syncErrors:   s.SyncErrors,
		lastError:    s.LastError,
	}
}

// Snapshot returns the persisted form of the sync state.
func (s *SyncState) Snapshot() SyncStateSnapshot {
	return SyncStateSnapshot{
		ID:           s.ID(),
		SourceID:     s.sourceID,
		SourceType:   s.sourceType,
		Cursor:       s.cursor,
		LastSyncedAt: s.lastSyncedAt,
		ItemsSeen:    s.itemsSeen,
		SyncErrors:   s.syncErrors,
		LastError:    s.lastError,
		CreatedAt:    s.CreatedAt(),
		UpdatedAt:    s.UpdatedAt(),
	}
}

// SyncStateRepository defines the interface for sync state persistence.
type SyncStateRepository interface {
	// Save persists a sync state (create or update).
	Save(ctx context.Context, state *SyncState) error

	// FindBySource finds the sync state of a source, or nil.
	FindBySource(ctx context.Context, sourceID string) (*SyncState, error)

	// FindAll returns every sync state ordered by source id.
	FindAll(ctx context.Context) ([]*SyncState, error)

	// DeleteAll removes every sync state.
	DeleteAll(ctx context.Context) error
}
