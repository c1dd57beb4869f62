package setup

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/pkg/config"
)

// SourceConfigs converts the entries of a sources file into source
// configurations. Every invalid entry is reported.
func SourceConfigs(sources []config.Source) ([]application.SourceConfig, error) {
	configs := make([]application.SourceConfig, 0, len(sources))
	var errs []error
	for _, src := range sources {
		sourceType := domain.SourceType(src.Type)
		if !sourceType.IsValid() {
			errs = append(errs, fmt.Errorf("source %s: %w: %s", src.ID, application.ErrUnsupportedSource, src.Type))
			continue
		}
		origin, err := domain.ParseOrigin(src.Origin)
		if err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.ID, err))
			continue
		}
		configs = append(configs, application.SourceConfig{
			ID:           src.ID,
			Type:         sourceType,
			URL:          src.URL,
			Username:     src.Username,
			Password:     src.Password,
			CalendarIDs:  src.Calendars,
			RefreshToken: src.RefreshToken,
			Origin:       origin,
		})
	}
	return configs, errors.Join(errs...)
}
