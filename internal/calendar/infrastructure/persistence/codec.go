package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/almanac/internal/calendar/domain"
)

// Enums are stored by name so rows stay readable and survive reordering.
type named interface {
	~int
	String() string
}

func parseEnum[E named](column, value string, values ...E) (E, error) {
	for _, v := range values {
		if v.String() == value {
			return v, nil
		}
	}
	var zero E
	return zero, fmt.Errorf("unknown %s %q", column, value)
}

func parseKind(s string) (domain.ItemKind, error) {
	return parseEnum("kind", s, domain.KindEvent, domain.KindReminder)
}

func parseOrigin(s string) (domain.Origin, error) {
	return parseEnum("origin", s,
		domain.OriginUnknown, domain.OriginPersonal, domain.OriginSubscription,
		domain.OriginShare, domain.OriginInvite)
}

func parseStatus(s string) (domain.ObjectStatus, error) {
	return parseEnum("status", s, domain.StatusActive, domain.StatusArchived, domain.StatusDeleted)
}

func parseEngagement(s string) (domain.Engagement, error) {
	return parseEnum("engagement", s,
		domain.EngagementNone, domain.EngagementAccepted,
		domain.EngagementTentative, domain.EngagementDeclined)
}

// Instants are unix milliseconds; the zero time is NULL.
func millis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

type participantRecord struct {
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	IsCurrentUser bool   `json:"is_current_user,omitempty"`
}

type alarmRecord struct {
	Action string `json:"action"`
	Offset int64  `json:"offset_seconds,omitempty"`
	At     int64  `json:"at,omitempty"`
}

type linkRecord struct {
	CalendarID string `json:"calendar_id,omitempty"`
	ExternalID string `json:"external_id"`
}

type templateRecord struct {
	Title           string              `json:"title"`
	Detail          string              `json:"detail,omitempty"`
	Location        string              `json:"location,omitempty"`
	Modality        string              `json:"modality"`
	StartHour       int                 `json:"start_hour"`
	StartMinute     int                 `json:"start_minute"`
	DurationMinutes int                 `json:"duration_minutes"`
	AllDay          bool                `json:"all_day,omitempty"`
	Participants    []participantRecord `json:"participants,omitempty"`
	Alarms          []alarmRecord       `json:"alarms,omitempty"`
	Links           []linkRecord        `json:"links,omitempty"`
	Origin          string              `json:"origin"`
}

type dayOfWeekRecord struct {
	Weekday int `json:"weekday"`
	Week    int `json:"week,omitempty"`
}

type recurrenceRecord struct {
	Frequency    string            `json:"frequency"`
	Interval     int               `json:"interval,omitempty"`
	WeekStart    int               `json:"week_start"`
	Count        int               `json:"count,omitempty"`
	DaysOfWeek   []dayOfWeekRecord `json:"days_of_week,omitempty"`
	DaysOfMonth  []int             `json:"days_of_month,omitempty"`
	DaysOfYear   []int             `json:"days_of_year,omitempty"`
	WeeksOfYear  []int             `json:"weeks_of_year,omitempty"`
	MonthsOfYear []int             `json:"months_of_year,omitempty"`
	SetPositions []int             `json:"set_positions,omitempty"`
}

func encodeParticipants(ps []domain.Participant) []participantRecord {
	records := make([]participantRecord, 0, len(ps))
	for _, p := range ps {
		records = append(records, participantRecord{
			Name:          p.Name,
			Email:         p.Email,
			Role:          p.Role.String(),
			Status:        p.Status.String(),
			IsCurrentUser: p.IsCurrentUser,
		})
	}
	return records
}

func decodeParticipants(records []participantRecord) ([]domain.Participant, error) {
	if len(records) == 0 {
		return nil, nil
	}
	ps := make([]domain.Participant, 0, len(records))
	for _, r := range records {
		role, err := parseEnum("participant role", r.Role,
			domain.RoleRequired, domain.RoleOptional, domain.RoleChair, domain.RoleNonParticipant)
		if err != nil {
			return nil, err
		}
		status, err := parseEnum("participant status", r.Status,
			domain.ParticipantUnknown, domain.ParticipantPending, domain.ParticipantAccepted,
			domain.ParticipantDeclined, domain.ParticipantTentative, domain.ParticipantDelegated)
		if err != nil {
			return nil, err
		}
		ps = append(ps, domain.Participant{
			Name:          r.Name,
			Email:         r.Email,
			Role:          role,
			Status:        status,
			IsCurrentUser: r.IsCurrentUser,
		})
	}
	return ps, nil
}

func encodeAlarms(alarms []domain.Alarm) []alarmRecord {
	records := make([]alarmRecord, 0, len(alarms))
	for _, a := range alarms {
		r := alarmRecord{Action: a.Action.String(), Offset: int64(a.Offset / time.Second)}
		if !a.At.IsZero() {
			r.At = a.At.UnixMilli()
		}
		records = append(records, r)
	}
	return records
}

func decodeAlarms(records []alarmRecord) ([]domain.Alarm, error) {
	if len(records) == 0 {
		return nil, nil
	}
	alarms := make([]domain.Alarm, 0, len(records))
	for _, r := range records {
		action, err := parseEnum("alarm action", r.Action, domain.AlarmDisplay, domain.AlarmAudio, domain.AlarmEmail)
		if err != nil {
			return nil, err
		}
		a := domain.Alarm{Action: action, Offset: time.Duration(r.Offset) * time.Second}
		if r.At != 0 {
			a.At = time.UnixMilli(r.At).UTC()
		}
		alarms = append(alarms, a)
	}
	return alarms, nil
}

func encodeLinks(links []domain.Link) []linkRecord {
	records := make([]linkRecord, 0, len(links))
	for _, l := range links {
		records = append(records, linkRecord(l))
	}
	return records
}

func decodeLinks(records []linkRecord) []domain.Link {
	if len(records) == 0 {
		return nil
	}
	links := make([]domain.Link, 0, len(records))
	for _, r := range records {
		links = append(links, domain.Link(r))
	}
	return links
}

func encodeTemplate(t domain.Template) (string, error) {
	data, err := json.Marshal(templateRecord{
		Title:           t.Title,
		Detail:          t.Detail,
		Location:        t.Location,
		Modality:        t.Modality.String(),
		StartHour:       t.StartHour,
		StartMinute:     t.StartMinute,
		DurationMinutes: t.DurationMinutes,
		AllDay:          t.AllDay,
		Participants:    encodeParticipants(t.Participants),
		Alarms:          encodeAlarms(t.Alarms),
		Links:           encodeLinks(t.Links),
		Origin:          t.Origin.String(),
	})
	return string(data), err
}

func decodeTemplate(data string) (domain.Template, error) {
	var r templateRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return domain.Template{}, fmt.Errorf("malformed template: %w", err)
	}
	modality, err := parseEnum("modality", r.Modality,
		domain.ModalityUnspecified, domain.ModalityInPerson, domain.ModalityRemote)
	if err != nil {
		return domain.Template{}, err
	}
	origin, err := parseOrigin(r.Origin)
	if err != nil {
		return domain.Template{}, err
	}
	participants, err := decodeParticipants(r.Participants)
	if err != nil {
		return domain.Template{}, err
	}
	alarms, err := decodeAlarms(r.Alarms)
	if err != nil {
		return domain.Template{}, err
	}
	return domain.Template{
		Title:           r.Title,
		Detail:          r.Detail,
		Location:        r.Location,
		Modality:        modality,
		StartHour:       r.StartHour,
		StartMinute:     r.StartMinute,
		DurationMinutes: r.DurationMinutes,
		AllDay:          r.AllDay,
		Participants:    participants,
		Alarms:          alarms,
		Links:           decodeLinks(r.Links),
		Origin:          origin,
	}, nil
}

func encodeRecurrence(rec domain.Recurrence) (string, error) {
	r := recurrenceRecord{
		Frequency:    rec.Frequency.String(),
		Interval:     rec.Interval,
		WeekStart:    int(rec.WeekStart),
		Count:        rec.Count,
		DaysOfMonth:  rec.DaysOfMonth,
		DaysOfYear:   rec.DaysOfYear,
		WeeksOfYear:  rec.WeeksOfYear,
		MonthsOfYear: rec.MonthsOfYear,
		SetPositions: rec.SetPositions,
	}
	for _, d := range rec.DaysOfWeek {
		r.DaysOfWeek = append(r.DaysOfWeek, dayOfWeekRecord{Weekday: int(d.Weekday), Week: d.Week})
	}
	data, err := json.Marshal(r)
	return string(data), err
}

func decodeRecurrence(data string) (domain.Recurrence, error) {
	var r recurrenceRecord
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return domain.Recurrence{}, fmt.Errorf("malformed recurrence: %w", err)
	}
	freq, err := parseEnum("frequency", r.Frequency,
		domain.FrequencyUnknown, domain.FrequencyDaily, domain.FrequencyWeekly,
		domain.FrequencyMonthly, domain.FrequencyYearly)
	if err != nil {
		return domain.Recurrence{}, err
	}
	rec := domain.Recurrence{
		Frequency:    freq,
		Interval:     r.Interval,
		WeekStart:    time.Weekday(r.WeekStart),
		Count:        r.Count,
		DaysOfMonth:  r.DaysOfMonth,
		DaysOfYear:   r.DaysOfYear,
		WeeksOfYear:  r.WeeksOfYear,
		MonthsOfYear: r.MonthsOfYear,
		SetPositions: r.SetPositions,
	}
	for _, d := range r.DaysOfWeek {
		rec.DaysOfWeek = append(rec.DaysOfWeek, domain.DayOfWeek{Weekday: time.Weekday(d.Weekday), Week: d.Week})
	}
	return rec, nil
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}
