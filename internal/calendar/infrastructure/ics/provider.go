// Package ics reads iCalendar subscription feeds over HTTP.
package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/icalendar"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/rrule"
)

const (
	requestTimeout = 30 * time.Second
	maxFeedSize    = 16 << 20
)

// ErrFeedStatus is returned when the feed server answers with a non-2xx status.
var ErrFeedStatus = errors.New("unexpected feed status")

// Provider reads a subscription feed. Feeds are fetched whole on every
// enumeration and filtered locally.
type Provider struct {
	url        string
	calendarID string
	origin     domain.Origin
	self       string
	client     *http.Client
	logger     *slog.Logger
}

// NewProvider creates a provider for the feed at url. webcal:// URLs are
// fetched over https.
func NewProvider(url string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if rest, ok := strings.CutPrefix(url, "webcal://"); ok {
		url = "https://" + rest
	}
	return &Provider{
		url:        url,
		calendarID: url,
		origin:     domain.OriginSubscription,
		client:     &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// WithOrigin sets the origin stamped on items that are not invitations.
func (p *Provider) WithOrigin(origin domain.Origin) *Provider {
	p.origin = origin
	return p
}

// WithSelf sets the current user's address.
func (p *Provider) WithSelf(address string) *Provider {
	p.self = address
	return p
}

// WithHTTPClient replaces the HTTP client.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	p.client = client
	return p
}

// Items fetches the feed and yields the events matching the query.
func (p *Provider) Items(ctx context.Context, q application.ItemQuery) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		items, err := p.Fetch(ctx)
		if err != nil {
			yield(domain.RawItem{}, err)
			return
		}
		for item, err := range application.SliceProvider(items).Items(ctx, q) {
			if !yield(item, err) || err != nil {
				return
			}
		}
	}
}

// Fetch downloads and converts the whole feed.
func (p *Provider) Fetch(ctx context.Context) ([]domain.RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrFeedStatus, resp.StatusCode)
	}

	cal, err := ical.ParseCalendar(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	events := cal.Events()
	items := make([]domain.RawItem, 0, len(events))
	for _, event := range events {
		item, err := p.convert(event)
		if err != nil {
			p.logger.Warn("skipping feed event", "url", p.url, "uid", event.Id(), "error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Provider) convert(event *ical.VEvent) (domain.RawItem, error) {
	uid := event.Id()
	if uid == "" {
		return domain.RawItem{}, icalendar.ErrMissingUID
	}

	item := domain.RawItem{
		ExternalID: uid,
		CleanID:    uid,
		Kind:       domain.KindEvent,
		Title:      text(event, ical.ComponentPropertySummary),
		Detail:     text(event, ical.ComponentPropertyDescription),
		Location:   text(event, ical.ComponentPropertyLocation),
		CalendarID: p.calendarID,
	}

	if err := readTimes(event, &item); err != nil {
		return item, err
	}

	if prop := event.GetProperty(ical.ComponentPropertyRecurrenceId); prop != nil {
		original, err := parseTime(prop)
		if err != nil {
			return item, fmt.Errorf("recurrence id: %w", err)
		}
		item.Detached = true
		item.OriginalStart = original
		item.ExternalID = icalendar.InstanceID(uid, original)
	} else if prop := event.GetProperty(ical.ComponentPropertyRrule); prop != nil {
		if err := rrule.Apply(&item, prop.Value); err != nil {
			return item, err
		}
	}

	item.Cancelled = strings.EqualFold(text(event, ical.ComponentPropertyStatus), "CANCELLED")
	for _, name := range []ical.ComponentProperty{ical.ComponentPropertyLastModified, ical.ComponentPropertyDtstamp} {
		if prop := event.GetProperty(name); prop != nil {
			if t, err := parseTime(prop); err == nil {
				item.LastModified = t
				break
			}
		}
	}
	item.Participants = p.participants(event)
	item.Alarms = alarms(event, item.Start, item.End)
	item.Origin = icalendar.OriginFor(p.origin, item.Participants)
	return item, nil
}

func readTimes(event *ical.VEvent, item *domain.RawItem) error {
	start := event.GetProperty(ical.ComponentPropertyDtStart)
	if start == nil {
		return icalendar.ErrMissingStart
	}
	item.AllDay = isDate(start)

	var err error
	if item.AllDay {
		item.Start, err = event.GetAllDayStartAt()
	} else {
		item.Start, err = event.GetStartAt()
	}
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if end := event.GetProperty(ical.ComponentPropertyDtEnd); end != nil {
		if item.AllDay {
			item.End, err = event.GetAllDayEndAt()
		} else {
			item.End, err = event.GetEndAt()
		}
		if err != nil {
			return fmt.Errorf("end: %w", err)
		}
	} else if dur := event.GetProperty(ical.ComponentPropertyDuration); dur != nil {
		d, err := icalendar.Duration(dur.Value)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		item.End = item.Start.Add(d)
	}
	return nil
}

func isDate(prop *ical.IANAProperty) bool {
	if vs := prop.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(prop.Value, "T")
}

// parseTime reads a DATE or DATE-TIME property, honoring TZID.
func parseTime(prop *ical.IANAProperty) (time.Time, error) {
	v := strings.TrimSpace(prop.Value)
	loc := time.UTC
	if tz := prop.ICalParameters["TZID"]; len(tz) > 0 {
		if l, err := time.LoadLocation(tz[0]); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}

func text(event *ical.VEvent, name ical.ComponentProperty) string {
	if prop := event.GetProperty(name); prop != nil {
		return prop.Value
	}
	return ""
}

func param(prop *ical.IANAProperty, name string) string {
	if vs := prop.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (p *Provider) participants(event *ical.VEvent) []domain.Participant {
	var out []domain.Participant
	organizer := ""
	org := event.GetProperty(ical.ComponentPropertyOrganizer)
	if org != nil {
		organizer = icalendar.Address(org.Value)
	}
	for _, prop := range event.GetProperties(ical.ComponentPropertyAttendee) {
		pt := icalendar.Participant(param(prop, "CN"), prop.Value, param(prop, "ROLE"), param(prop, "PARTSTAT"), p.self)
		if organizer != "" && strings.EqualFold(pt.Email, organizer) {
			pt.Role = domain.RoleChair
		}
		out = append(out, pt)
	}
	if organizer != "" {
		for _, pt := range out {
			if strings.EqualFold(pt.Email, organizer) {
				return out
			}
		}
		out = append(out, icalendar.Participant(param(org, "CN"), org.Value, "CHAIR", "ACCEPTED", p.self))
	}
	return out
}

func alarms(event *ical.VEvent, start, end time.Time) []domain.Alarm {
	var out []domain.Alarm
	for _, valarm := range event.Alarms() {
		trigger := valarm.GetProperty(ical.ComponentPropertyTrigger)
		if trigger == nil {
			continue
		}
		alarm := domain.Alarm{}
		if action := valarm.GetProperty(ical.ComponentPropertyAction); action != nil {
			alarm.Action = icalendar.AlarmAction(action.Value)
		}
		if strings.EqualFold(param(trigger, "VALUE"), "DATE-TIME") {
			at, err := parseTime(trigger)
			if err != nil {
				continue
			}
			alarm.At = at
		} else {
			offset, err := icalendar.Duration(trigger.Value)
			if err != nil {
				continue
			}
			if strings.EqualFold(param(trigger, "RELATED"), "END") && end.After(start) {
				offset += end.Sub(start)
			}
			alarm.Offset = offset
		}
		out = append(out, alarm)
	}
	return out
}
