package domain

import (
	sharedDomain "github.com/felixgeelhaar/almanac/internal/shared/domain"
)

const (
	// AggregateTypeSeries is the aggregate type for series.
	AggregateTypeSeries = "series"
	// AggregateTypeOccurrence is the aggregate type for events and reminders.
	AggregateTypeOccurrence = "occurrence"
	// AggregateTypeStore is the aggregate type for whole-store operations.
	AggregateTypeStore = "store"

	// Event routing keys
	RoutingKeySeriesCreated      = "series.created"
	RoutingKeySeriesMerged       = "series.merged"
	RoutingKeySeriesArchived     = "series.archived"
	RoutingKeyOccurrenceImported = "occurrence.imported"
	RoutingKeyOccurrenceMerged   = "occurrence.merged"
	RoutingKeyOccurrenceDetached = "occurrence.detached"
	RoutingKeyOccurrenceRemoved  = "occurrence.removed"
	RoutingKeyStoreReset         = "store.reset"
)

// SeriesCreatedEvent is published when a series is first sighted.
type SeriesCreatedEvent struct {
	sharedDomain.BaseEvent
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Origin      string `json:"origin"`
	Referencing string `json:"referencing,omitempty"`
}

// NewSeriesCreatedEvent creates a new series created event.
func NewSeriesCreatedEvent(s *Series) SeriesCreatedEvent {
	return SeriesCreatedEvent{
		BaseEvent:   sharedDomain.NewBaseEvent(s.ID(), AggregateTypeSeries, RoutingKeySeriesCreated),
		Kind:        s.Kind().String(),
		Title:       s.Title(),
		Origin:      s.Origin().String(),
		Referencing: s.Referencing(),
	}
}

// SeriesMergedEvent is published when a sighting changes a stored series.
type SeriesMergedEvent struct {
	sharedDomain.BaseEvent
	ExternalID string `json:"external_id"`
	Origin     string `json:"origin"`
	Status     string `json:"status"`
}

// NewSeriesMergedEvent creates a new series merged event.
func NewSeriesMergedEvent(s *Series, externalID string) SeriesMergedEvent {
	return SeriesMergedEvent{
		BaseEvent:  sharedDomain.NewBaseEvent(s.ID(), AggregateTypeSeries, RoutingKeySeriesMerged),
		ExternalID: externalID,
		Origin:     s.Origin().String(),
		Status:     s.Status().String(),
	}
}

// SeriesArchivedEvent is published when a series is withdrawn.
type SeriesArchivedEvent struct {
	sharedDomain.BaseEvent
	Reason string `json:"reason"`
}

// NewSeriesArchivedEvent creates a new series archived event.
func NewSeriesArchivedEvent(seriesID, reason string) SeriesArchivedEvent {
	return SeriesArchivedEvent{
		BaseEvent: sharedDomain.NewBaseEvent(seriesID, AggregateTypeSeries, RoutingKeySeriesArchived),
		Reason:    reason,
	}
}

// OccurrenceImportedEvent is published when an event or reminder is stored
// for the first time, either imported or materialized.
type OccurrenceImportedEvent struct {
	sharedDomain.BaseEvent
	Kind     string `json:"kind"`
	SeriesID string `json:"series_id,omitempty"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
}

// NewOccurrenceImportedEvent creates a new occurrence imported event.
func NewOccurrenceImportedEvent(o *Occurrence) OccurrenceImportedEvent {
	return OccurrenceImportedEvent{
		BaseEvent: sharedDomain.NewBaseEvent(o.ID(), AggregateTypeOccurrence, RoutingKeyOccurrenceImported),
		Kind:      o.Kind().String(),
		SeriesID:  o.SeriesID(),
		Start:     o.Start().Unix(),
		End:       o.End().Unix(),
	}
}

// OccurrenceMergedEvent is published when a sighting changes a stored
// event or reminder.
type OccurrenceMergedEvent struct {
	sharedDomain.BaseEvent
	Kind       string `json:"kind"`
	ExternalID string `json:"external_id"`
	Origin     string `json:"origin"`
}

// NewOccurrenceMergedEvent creates a new occurrence merged event.
func NewOccurrenceMergedEvent(o *Occurrence, externalID string) OccurrenceMergedEvent {
	return OccurrenceMergedEvent{
		BaseEvent:  sharedDomain.NewBaseEvent(o.ID(), AggregateTypeOccurrence, RoutingKeyOccurrenceMerged),
		Kind:       o.Kind().String(),
		ExternalID: externalID,
		Origin:     o.Origin().String(),
	}
}

// OccurrenceDetachedEvent is published when an occurrence diverges from
// its series.
type OccurrenceDetachedEvent struct {
	sharedDomain.BaseEvent
	SeriesID   string `json:"series_id"`
	PreviousID string `json:"previous_id,omitempty"`
}

// NewOccurrenceDetachedEvent creates a new occurrence detached event.
func NewOccurrenceDetachedEvent(o *Occurrence, previousID string) OccurrenceDetachedEvent {
	return OccurrenceDetachedEvent{
		BaseEvent:  sharedDomain.NewBaseEvent(o.ID(), AggregateTypeOccurrence, RoutingKeyOccurrenceDetached),
		SeriesID:   o.SeriesID(),
		PreviousID: previousID,
	}
}

// OccurrenceRemovedEvent is published when a standalone record is folded
// into a newly discovered series.
type OccurrenceRemovedEvent struct {
	sharedDomain.BaseEvent
	Kind     string `json:"kind"`
	SeriesID string `json:"series_id"`
}

// NewOccurrenceRemovedEvent creates a new occurrence removed event.
func NewOccurrenceRemovedEvent(o *Occurrence, seriesID string) OccurrenceRemovedEvent {
	return OccurrenceRemovedEvent{
		BaseEvent: sharedDomain.NewBaseEvent(o.ID(), AggregateTypeOccurrence, RoutingKeyOccurrenceRemoved),
		Kind:      o.Kind().String(),
		SeriesID:  seriesID,
	}
}

// StoreResetEvent is published after the store has been cleared.
type StoreResetEvent struct {
	sharedDomain.BaseEvent
	Generation uint64 `json:"generation"`
}

// NewStoreResetEvent creates a new store reset event.
func NewStoreResetEvent(generation uint64) StoreResetEvent {
	return StoreResetEvent{
		BaseEvent:  sharedDomain.NewBaseEvent("store", AggregateTypeStore, RoutingKeyStoreReset),
		Generation: generation,
	}
}
