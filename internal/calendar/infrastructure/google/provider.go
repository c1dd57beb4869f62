package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/icalendar"
	"github.com/felixgeelhaar/almanac/internal/calendar/infrastructure/rrule"
	"golang.org/x/oauth2"
)

const (
	defaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	defaultAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	pageSize        = 250
)

// ErrNoToken is returned when the provider has no token source.
var ErrNoToken = errors.New("oauth token source not configured")

// OAuthConfig holds the client credentials used to refresh access tokens.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// RefreshTokenSource returns a token source that trades refreshToken for
// access tokens and caches them until they expire.
func RefreshTokenSource(ctx context.Context, cfg OAuthConfig, refreshToken string) oauth2.TokenSource {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  defaultAuthURL,
			TokenURL: tokenURL,
		},
	}
	return oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

// Calendar is an entry of the user's calendar list.
type Calendar struct {
	ID      string
	Name    string
	Primary bool
}

// Provider reads events from Google Calendar.
type Provider struct {
	tokens      oauth2.TokenSource
	logger      *slog.Logger
	baseURL     string
	calendarIDs []string
	origin      domain.Origin
	timeout     time.Duration
}

// NewProvider creates a Google Calendar provider reading the primary calendar.
func NewProvider(tokens oauth2.TokenSource, logger *slog.Logger) *Provider {
	return NewProviderWithBaseURL(tokens, logger, defaultBaseURL)
}

// NewProviderWithBaseURL creates a Google Calendar provider with a custom base URL.
func NewProviderWithBaseURL(tokens oauth2.TokenSource, logger *slog.Logger, baseURL string) *Provider {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		tokens:      tokens,
		logger:      logger,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		calendarIDs: []string{"primary"},
		origin:      domain.OriginPersonal,
		timeout:     15 * time.Second,
	}
}

// WithCalendarIDs sets the calendars to read.
func (p *Provider) WithCalendarIDs(ids ...string) *Provider {
	if len(ids) > 0 {
		p.calendarIDs = ids
	}
	return p
}

// WithOrigin sets the origin stamped on items that are not invitations.
func (p *Provider) WithOrigin(origin domain.Origin) *Provider {
	p.origin = origin
	return p
}

func (p *Provider) client() (*http.Client, error) {
	if p.tokens == nil {
		return nil, ErrNoToken
	}
	return &http.Client{
		Timeout: p.timeout,
		Transport: &oauthTransport{
			base:   http.DefaultTransport,
			source: p.tokens,
		},
	}, nil
}

// Items yields the events of every configured calendar that overlap the
// query range. Recurring events come back as their master plus one detached
// item per modified or cancelled instance.
func (p *Provider) Items(ctx context.Context, q application.ItemQuery) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		client, err := p.client()
		if err != nil {
			yield(domain.RawItem{}, err)
			return
		}

		for _, calendarID := range p.calendarIDs {
			pageToken := ""
			for {
				page, err := p.listEvents(ctx, client, calendarID, q, pageToken)
				if err != nil {
					yield(domain.RawItem{}, err)
					return
				}
				for _, ev := range page.Items {
					item, err := p.toRawItem(calendarID, ev)
					if err != nil {
						p.logger.Warn("skipping google event", "calendar_id", calendarID, "event_id", ev.ID, "error", err)
						continue
					}
					if !yield(item, nil) {
						return
					}
				}
				if page.NextPageToken == "" {
					break
				}
				pageToken = page.NextPageToken
			}
		}
	}
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
	TimeZone string `json:"timeZone"`
}

type person struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName"`
	ResponseStatus string `json:"responseStatus"`
	Optional       bool   `json:"optional"`
	Organizer      bool   `json:"organizer"`
	Self           bool   `json:"self"`
}

type googleEvent struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	Summary           string    `json:"summary"`
	Description       string    `json:"description"`
	Location          string    `json:"location"`
	Updated           string    `json:"updated"`
	RecurringEventID  string    `json:"recurringEventId"`
	OriginalStartTime eventTime `json:"originalStartTime"`
	Recurrence        []string  `json:"recurrence"`
	Start             eventTime `json:"start"`
	End               eventTime `json:"end"`
	Organizer         person    `json:"organizer"`
	Attendees         []person  `json:"attendees"`
	Reminders         struct {
		UseDefault bool `json:"useDefault"`
		Overrides  []struct {
			Method  string `json:"method"`
			Minutes int    `json:"minutes"`
		} `json:"overrides"`
	} `json:"reminders"`
}

type eventsPage struct {
	Items         []googleEvent `json:"items"`
	NextPageToken string        `json:"nextPageToken"`
}

func (p *Provider) listEvents(ctx context.Context, client *http.Client, calendarID string, q application.ItemQuery, pageToken string) (*eventsPage, error) {
	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(pageSize))
	if !q.From.IsZero() {
		params.Set("timeMin", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		params.Set("timeMax", q.To.UTC().Format(time.RFC3339))
	}
	if !q.ModifiedAfter.IsZero() {
		params.Set("updatedMin", q.ModifiedAfter.UTC().Format(time.RFC3339))
		params.Set("showDeleted", "true")
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	listURL := fmt.Sprintf("%s/calendars/%s/events?%s", p.baseURL, url.PathEscape(calendarID), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var page eventsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode events: %w", err)
	}
	return &page, nil
}

func (p *Provider) toRawItem(calendarID string, ev googleEvent) (domain.RawItem, error) {
	item := domain.RawItem{
		ExternalID: ev.ID,
		CleanID:    ev.ID,
		Kind:       domain.KindEvent,
		Title:      ev.Summary,
		Detail:     ev.Description,
		Location:   ev.Location,
		CalendarID: calendarID,
		Cancelled:  ev.Status == "cancelled",
	}

	if ev.RecurringEventID != "" {
		original, _, err := parseEventTime(ev.OriginalStartTime)
		if err != nil {
			return item, fmt.Errorf("original start: %w", err)
		}
		item.CleanID = ev.RecurringEventID
		item.Detached = true
		item.OriginalStart = original
	}

	start, allDay, err := parseEventTime(ev.Start)
	switch {
	case err == nil:
		item.Start, item.AllDay = start, allDay
	case item.Cancelled && item.Detached:
		// Cancelled instances only carry their original start.
		item.Start = item.OriginalStart
	default:
		return item, fmt.Errorf("start: %w", err)
	}
	if end, _, err := parseEventTime(ev.End); err == nil {
		item.End = end
	}

	for _, line := range ev.Recurrence {
		if strings.HasPrefix(line, "RRULE:") {
			if err := rrule.Apply(&item, line); err != nil {
				return item, err
			}
			break
		}
	}

	if ev.Updated != "" {
		if updated, err := time.Parse(time.RFC3339, ev.Updated); err == nil {
			item.LastModified = updated
		}
	}

	for _, a := range ev.Attendees {
		item.Participants = append(item.Participants, participant(a))
	}
	for _, o := range ev.Reminders.Overrides {
		action := domain.AlarmDisplay
		if o.Method == "email" {
			action = domain.AlarmEmail
		}
		item.Alarms = append(item.Alarms, domain.Alarm{
			Action: action,
			Offset: -time.Duration(o.Minutes) * time.Minute,
		})
	}
	item.Origin = icalendar.OriginFor(p.origin, item.Participants)
	return item, nil
}

func participant(a person) domain.Participant {
	role := domain.RoleRequired
	switch {
	case a.Organizer:
		role = domain.RoleChair
	case a.Optional:
		role = domain.RoleOptional
	}
	status := domain.ParticipantUnknown
	switch a.ResponseStatus {
	case "needsAction":
		status = domain.ParticipantPending
	case "accepted":
		status = domain.ParticipantAccepted
	case "declined":
		status = domain.ParticipantDeclined
	case "tentative":
		status = domain.ParticipantTentative
	}
	return domain.Participant{
		Name:          a.DisplayName,
		Email:         a.Email,
		Role:          role,
		Status:        status,
		IsCurrentUser: a.Self,
	}
}

// parseEventTime reads a timed or all-day event time. All-day dates are
// taken at midnight in the event's time zone, or UTC without one.
func parseEventTime(t eventTime) (time.Time, bool, error) {
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, false, err
	}
	if t.Date != "" {
		loc := time.UTC
		if t.TimeZone != "" {
			if l, err := time.LoadLocation(t.TimeZone); err == nil {
				loc = l
			}
		}
		v, err := time.ParseInLocation(time.DateOnly, t.Date, loc)
		return v, true, err
	}
	return time.Time{}, false, errors.New("missing time")
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("google calendar request failed: status=%d body=%s", resp.StatusCode, string(body))
}

type oauthTransport struct {
	base   http.RoundTripper
	source oauth2.TokenSource
}

func (t *oauthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token()
	if err != nil {
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	return t.base.RoundTrip(req)
}

// ListCalendars returns calendars accessible to the user.
func (p *Provider) ListCalendars(ctx context.Context) ([]Calendar, error) {
	client, err := p.client()
	if err != nil {
		return nil, err
	}

	listURL := fmt.Sprintf("%s/users/me/calendarList", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, responseError(resp)
	}

	var payload struct {
		Items []struct {
			ID      string `json:"id"`
			Summary string `json:"summary"`
			Primary bool   `json:"primary"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	calendars := make([]Calendar, 0, len(payload.Items))
	for _, item := range payload.Items {
		calendars = append(calendars, Calendar{
			ID:      item.ID,
			Name:    item.Summary,
			Primary: item.Primary,
		})
	}
	return calendars, nil
}
