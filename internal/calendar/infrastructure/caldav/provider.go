package caldav

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/icalendar"
)

// Common CalDAV server URLs
const (
	AppleCalDAVURL    = "https://caldav.icloud.com"
	FastmailCalDAVURL = "https://caldav.fastmail.com"
)

const requestTimeout = 30 * time.Second

// Calendar is a calendar collection found on the server.
type Calendar struct {
	Path        string
	Name        string
	Description string
}

// Provider reads events and tasks from a CalDAV server (Apple Calendar,
// Fastmail, Nextcloud, etc.).
type Provider struct {
	baseURL       string
	username      string
	password      string // App-specific password for Apple
	calendarPaths []string
	origin        domain.Origin
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewProvider creates a CalDAV provider. Without calendar paths every
// calendar in the user's home set is read.
func NewProvider(baseURL, username, password string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		baseURL:    baseURL,
		username:   username,
		password:   password,
		origin:     domain.OriginPersonal,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger,
	}
}

// WithCalendarPaths restricts the provider to the given calendars.
func (p *Provider) WithCalendarPaths(paths ...string) *Provider {
	p.calendarPaths = paths
	return p
}

// WithOrigin sets the origin stamped on items that are not invitations.
func (p *Provider) WithOrigin(origin domain.Origin) *Provider {
	p.origin = origin
	return p
}

// WithHTTPClient replaces the HTTP client.
func (p *Provider) WithHTTPClient(client *http.Client) *Provider {
	p.httpClient = client
	return p
}

// Items yields the events and tasks of every calendar that overlap the query
// range. Recurring masters are returned whole, with their modified instances
// as separate detached items.
func (p *Provider) Items(ctx context.Context, q application.ItemQuery) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		client, err := p.getClient()
		if err != nil {
			yield(domain.RawItem{}, err)
			return
		}

		paths, err := p.findCalendarPaths(ctx, client)
		if err != nil {
			yield(domain.RawItem{}, fmt.Errorf("failed to find calendars: %w", err))
			return
		}

		for _, path := range paths {
			for _, comp := range []string{ical.CompEvent, ical.CompToDo} {
				objects, err := client.QueryCalendar(ctx, path, calendarQuery(comp, q.From, q.To))
				if err != nil {
					yield(domain.RawItem{}, fmt.Errorf("failed to query calendar %s: %w", path, err))
					return
				}
				for _, obj := range objects {
					for _, item := range p.parseCalendarObject(path, &obj) {
						if !q.ModifiedAfter.IsZero() && !item.LastModified.After(q.ModifiedAfter) {
							continue
						}
						if !yield(item, nil) {
							return
						}
					}
				}
			}
		}
	}
}

// ListCalendars returns calendars accessible to the user.
func (p *Provider) ListCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}

	cals, err := p.discover(ctx, client)
	if err != nil {
		return nil, err
	}

	calendars := make([]Calendar, 0, len(cals))
	for _, cal := range cals {
		calendars = append(calendars, Calendar{
			Path:        cal.Path,
			Name:        cal.Name,
			Description: cal.Description,
		})
	}
	return calendars, nil
}

func calendarQuery(comp string, start, end time.Time) *caldav.CalendarQuery {
	return &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  comp,
					Start: start,
					End:   end,
				},
			},
		},
	}
}

func (p *Provider) getClient() (*caldav.Client, error) {
	client, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(p.httpClient, p.username, p.password), p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	return client, nil
}

func (p *Provider) findCalendarPaths(ctx context.Context, client *caldav.Client) ([]string, error) {
	if len(p.calendarPaths) > 0 {
		return p.calendarPaths, nil
	}

	cals, err := p.discover(ctx, client)
	if err != nil {
		return nil, err
	}
	if len(cals) == 0 {
		return nil, fmt.Errorf("no calendars found")
	}

	paths := make([]string, 0, len(cals))
	for _, cal := range cals {
		paths = append(paths, cal.Path)
	}
	return paths, nil
}

func (p *Provider) discover(ctx context.Context, client *caldav.Client) ([]caldav.Calendar, error) {
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find principal: %w", err)
	}

	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}

	cals, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendars: %w", err)
	}
	return cals, nil
}

func (p *Provider) parseCalendarObject(calendarPath string, obj *caldav.CalendarObject) []domain.RawItem {
	if obj == nil || obj.Data == nil {
		return nil
	}
	opts := icalendar.Options{
		CalendarID: calendarPath,
		Origin:     p.origin,
		Self:       p.username,
	}
	return icalendar.Items(obj.Data, opts, func(uid string, err error) {
		p.logger.Warn("skipping caldav component", "path", obj.Path, "uid", uid, "error", err)
	})
}
