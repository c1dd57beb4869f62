package subscribers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/shared/infrastructure/eventbus"
)

// Shadower creates the reminder series mirroring an event series.
type Shadower interface {
	ShadowAsReminders(ctx context.Context, seriesID string) (*domain.Series, error)
}

// SeriesShadowSubscriber mirrors every newly created event series as a
// reminder series. It starts disabled.
type SeriesShadowSubscriber struct {
	shadower Shadower
	logger   *slog.Logger
	enabled  atomic.Bool
}

// NewSeriesShadowSubscriber creates a new series shadow subscriber.
func NewSeriesShadowSubscriber(shadower Shadower, logger *slog.Logger) *SeriesShadowSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &SeriesShadowSubscriber{
		shadower: shadower,
		logger:   logger,
	}
}

// SetEnabled enables or disables the subscriber.
func (s *SeriesShadowSubscriber) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

// IsEnabled reports whether the subscriber acts on events.
func (s *SeriesShadowSubscriber) IsEnabled() bool {
	return s.enabled.Load()
}

// EventTypes returns the event types this subscriber handles.
func (s *SeriesShadowSubscriber) EventTypes() []string {
	return []string{domain.RoutingKeySeriesCreated}
}

// SeriesCreatedPayload is the payload for series.created events.
type SeriesCreatedPayload struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Origin      string `json:"origin"`
	Referencing string `json:"referencing,omitempty"`
}

// Handle processes a series event. Malformed payloads are dropped; storage
// failures are returned so the event is redelivered.
func (s *SeriesShadowSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	if !s.enabled.Load() {
		s.logger.Debug("series shadow subscriber disabled, skipping event",
			"routing_key", event.RoutingKey,
		)
		return nil
	}
	if s.shadower == nil {
		s.logger.Debug("shadower not configured, skipping event",
			"routing_key", event.RoutingKey,
		)
		return nil
	}
	if event.RoutingKey != domain.RoutingKeySeriesCreated {
		s.logger.Warn("unknown event type",
			"routing_key", event.RoutingKey,
		)
		return nil
	}

	var payload SeriesCreatedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal series created payload",
			"series_id", event.AggregateID,
			"error", err,
		)
		return nil
	}

	// Reminder series and existing shadows are never shadowed again.
	if payload.Kind != domain.KindEvent.String() || payload.Referencing != "" {
		return nil
	}

	shadow, err := s.shadower.ShadowAsReminders(ctx, event.AggregateID)
	if errors.Is(err, domain.ErrSeriesNotFound) {
		s.logger.Debug("series gone before it could be shadowed",
			"series_id", event.AggregateID,
		)
		return nil
	}
	if err != nil {
		return err
	}

	s.logger.Info("shadowed event series as reminders",
		"series_id", event.AggregateID,
		"shadow_id", shadow.ID(),
		"title", payload.Title,
	)
	return nil
}
