package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/application"
	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
	"golang.org/x/oauth2"
)

func staticTokens() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test"})
}

func collect(t *testing.T, p *Provider, q application.ItemQuery) []domain.RawItem {
	t.Helper()
	var items []domain.RawItem
	for item, err := range p.Items(context.Background(), q) {
		if err != nil {
			t.Fatalf("items failed: %v", err)
		}
		items = append(items, item)
	}
	return items
}

func TestProvider_Items_PaginatesAndMaps(t *testing.T) {
	from := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	requests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/team@example.com/events" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		requests++
		query := r.URL.Query()
		if query.Get("timeMin") != from.Format(time.RFC3339) || query.Get("timeMax") != to.Format(time.RFC3339) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if query.Get("singleEvents") != "" || query.Get("updatedMin") != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if query.Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "page-2",
				"items": []map[string]any{
					{
						"id":         "retro",
						"status":     "confirmed",
						"summary":    "Retro",
						"updated":    "2026-02-20T10:00:00Z",
						"recurrence": []string{"EXDATE:20260316T160000Z", "RRULE:FREQ=WEEKLY;BYDAY=MO"},
						"start":      map[string]any{"dateTime": "2026-03-02T16:00:00Z"},
						"end":        map[string]any{"dateTime": "2026-03-02T17:00:00Z"},
						"attendees": []map[string]any{
							{"email": "lead@example.com", "organizer": true, "responseStatus": "accepted"},
							{"email": "ada@example.com", "self": true, "responseStatus": "tentative", "optional": true},
						},
						"reminders": map[string]any{
							"useDefault": false,
							"overrides":  []map[string]any{{"method": "popup", "minutes": 10}},
						},
					},
					{
						"id":                "retro_20260309T160000Z",
						"status":            "confirmed",
						"summary":           "Retro (moved)",
						"updated":           "2026-03-05T10:00:00Z",
						"recurringEventId":  "retro",
						"originalStartTime": map[string]any{"dateTime": "2026-03-09T16:00:00Z"},
						"start":             map[string]any{"dateTime": "2026-03-10T16:00:00Z"},
						"end":               map[string]any{"dateTime": "2026-03-10T17:00:00Z"},
					},
				},
			})
			return
		}
		if query.Get("pageToken") != "page-2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{
					"id":                "retro_20260323T160000Z",
					"status":            "cancelled",
					"recurringEventId":  "retro",
					"originalStartTime": map[string]any{"dateTime": "2026-03-23T16:00:00Z"},
				},
				{
					"id":      "offsite",
					"status":  "confirmed",
					"summary": "Offsite",
					"start":   map[string]any{"date": "2026-03-19", "timeZone": "Europe/Berlin"},
					"end":     map[string]any{"date": "2026-03-21", "timeZone": "Europe/Berlin"},
				},
				{"id": "broken", "summary": "No start"},
			},
		})
	}))
	defer server.Close()

	provider := NewProviderWithBaseURL(staticTokens(), nil, server.URL).WithCalendarIDs("team@example.com")
	items := collect(t, provider, application.ItemQuery{From: from, To: to})

	if requests != 2 {
		t.Fatalf("expected 2 page requests, got %d", requests)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d: %+v", len(items), items)
	}

	master := items[0]
	if master.ID() != "retro" || master.Detached || master.Recurrence == nil {
		t.Fatalf("unexpected master: %+v", master)
	}
	if master.Recurrence.Frequency != domain.FrequencyWeekly {
		t.Fatalf("expected weekly rule, got %v", master.Recurrence.Frequency)
	}
	if master.CalendarID != "team@example.com" {
		t.Fatalf("unexpected calendar id %q", master.CalendarID)
	}
	if len(master.Participants) != 2 || master.Participants[0].Role != domain.RoleChair {
		t.Fatalf("unexpected participants: %+v", master.Participants)
	}
	self := master.Participants[1]
	if !self.IsCurrentUser || self.Role != domain.RoleOptional || self.Status != domain.ParticipantTentative {
		t.Fatalf("unexpected self participant: %+v", self)
	}
	if master.Origin != domain.OriginInvite {
		t.Fatalf("expected invite origin, got %v", master.Origin)
	}
	if len(master.Alarms) != 1 || master.Alarms[0].Offset != -10*time.Minute {
		t.Fatalf("unexpected alarms: %+v", master.Alarms)
	}
	if !master.LastModified.Equal(time.Date(2026, time.February, 20, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected last modified %v", master.LastModified)
	}

	moved := items[1]
	if !moved.Detached || moved.CleanID != "retro" || moved.ExternalID != "retro_20260309T160000Z" {
		t.Fatalf("unexpected moved instance: %+v", moved)
	}
	if !moved.OriginalStart.Equal(time.Date(2026, time.March, 9, 16, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected original start %v", moved.OriginalStart)
	}

	cancelled := items[2]
	if !cancelled.Cancelled || !cancelled.Detached || !cancelled.Start.Equal(cancelled.OriginalStart) {
		t.Fatalf("unexpected cancelled instance: %+v", cancelled)
	}

	offsite := items[3]
	berlin, _ := time.LoadLocation("Europe/Berlin")
	if !offsite.AllDay || !offsite.Start.Equal(time.Date(2026, time.March, 19, 0, 0, 0, 0, berlin)) {
		t.Fatalf("unexpected all-day event: %+v", offsite)
	}
	if offsite.Origin != domain.OriginPersonal {
		t.Fatalf("expected personal origin, got %v", offsite.Origin)
	}
}

func TestProvider_Items_UpdatedMin(t *testing.T) {
	since := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	var seen string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		seen = query.Get("updatedMin")
		if query.Get("showDeleted") != "true" || query.Get("timeMin") != "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"items": []map[string]any{}})
	}))
	defer server.Close()

	provider := NewProviderWithBaseURL(staticTokens(), nil, server.URL)
	items := collect(t, provider, application.ItemQuery{ModifiedAfter: since})

	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
	if seen != since.Format(time.RFC3339) {
		t.Fatalf("unexpected updatedMin %q", seen)
	}
}

func TestProvider_Items_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("backend error"))
	}))
	defer server.Close()

	provider := NewProviderWithBaseURL(staticTokens(), nil, server.URL)
	var errs int
	for _, err := range provider.Items(context.Background(), application.ItemQuery{}) {
		if err != nil {
			errs++
		}
	}
	if errs != 1 {
		t.Fatalf("expected one error, got %d", errs)
	}
}

func TestProvider_NoTokenSource(t *testing.T) {
	provider := NewProvider(nil, nil)

	for _, err := range provider.Items(context.Background(), application.ItemQuery{}) {
		if !errors.Is(err, ErrNoToken) {
			t.Fatalf("expected ErrNoToken, got %v", err)
		}
	}
	if _, err := provider.ListCalendars(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestProvider_ListCalendars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/me/calendarList" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "primary", "summary": "Ada", "primary": true},
				{"id": "team@example.com", "summary": "Team"},
			},
		})
	}))
	defer server.Close()

	provider := NewProviderWithBaseURL(staticTokens(), nil, server.URL)
	calendars, err := provider.ListCalendars(context.Background())
	if err != nil {
		t.Fatalf("list calendars failed: %v", err)
	}
	if len(calendars) != 2 || !calendars[0].Primary || calendars[1].Name != "Team" {
		t.Fatalf("unexpected calendars: %+v", calendars)
	}
}

func TestRefreshTokenSource(t *testing.T) {
	var grant, refresh string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		grant = r.PostForm.Get("grant_type")
		refresh = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	source := RefreshTokenSource(context.Background(), OAuthConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		TokenURL:     server.URL,
	}, "refresh-me")

	token, err := source.Token()
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if token.AccessToken != "fresh" {
		t.Fatalf("unexpected access token %q", token.AccessToken)
	}
	if grant != "refresh_token" || refresh != "refresh-me" {
		t.Fatalf("unexpected grant %q refresh %q", grant, refresh)
	}
}
