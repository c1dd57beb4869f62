package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, p application.RawItemProvider, q application.ItemQuery) []string {
	t.Helper()
	var ids []string
	for raw, err := range p.Items(context.Background(), q) {
		require.NoError(t, err)
		ids = append(ids, raw.ExternalID)
	}
	return ids
}

func TestSliceProvider_Items(t *testing.T) {
	lunch := rawEvent("lunch", "Lunch", at(time.March, 3, 12, 0))
	offsite := rawEvent("offsite", "Offsite", at(time.March, 1, 0, 0))
	offsite.AllDay = true
	offsite.End = at(time.March, 5, 0, 0)
	ended := standupSeries()
	ended.ExternalID, ended.CleanID = "retro", "retro"
	ended.RecurrenceEnd = at(time.February, 1, 0, 0)
	edited := rawEvent("edited", "Edited", at(time.March, 3, 15, 0))
	edited.LastModified = baseMod.Add(48 * time.Hour)

	p := application.SliceProvider{standupSeries(), lunch, offsite, ended, edited}

	t.Run("unbounded query yields everything", func(t *testing.T) {
		assert.Equal(t, []string{"standup", "lunch", "offsite", "retro", "edited"}, collect(t, p, application.ItemQuery{}))
	})

	t.Run("window", func(t *testing.T) {
		q := application.ItemQuery{From: at(time.March, 3, 0, 0), To: at(time.March, 4, 0, 0)}
		assert.Equal(t, []string{"standup", "lunch", "offsite", "edited"}, collect(t, p, q))
	})

	t.Run("nothing starts before the window ends", func(t *testing.T) {
		q := application.ItemQuery{From: at(time.February, 1, 0, 0), To: at(time.March, 1, 0, 0)}
		assert.Empty(t, collect(t, p, q))
	})

	t.Run("modified after", func(t *testing.T) {
		q := application.ItemQuery{ModifiedAfter: baseMod.Add(time.Hour)}
		assert.Equal(t, []string{"edited"}, collect(t, p, q))
	})

	t.Run("stops when the consumer breaks", func(t *testing.T) {
		var ids []string
		for raw, err := range p.Items(context.Background(), application.ItemQuery{}) {
			require.NoError(t, err)
			ids = append(ids, raw.ExternalID)
			if len(ids) == 2 {
				break
			}
		}
		assert.Equal(t, []string{"standup", "lunch"}, ids)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		var errs []error
		for _, err := range p.Items(ctx, application.ItemQuery{}) {
			errs = append(errs, err)
		}
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], context.Canceled)
	})
}

func TestSliceProvider_Empty(t *testing.T) {
	assert.Empty(t, collect(t, application.SliceProvider(nil), application.ItemQuery{}))
	assert.Empty(t, collect(t, application.SliceProvider{}, application.ItemQuery{From: time.Now(), To: time.Now().Add(time.Hour)}))
}
