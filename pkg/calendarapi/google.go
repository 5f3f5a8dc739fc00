package calendarapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"

	"github.com/smartmeet/notetaker/pkg/models"
)

const eventsEndpoint = "https://www.googleapis.com/calendar/v3/calendars/%s/events"

// GoogleCalendar implements Provider against the Google Calendar v3 REST
// API, grounded on original_source/smartmeetos/calendar/google_calendar.py's
// list_upcoming_events. Credential refresh is delegated to an
// oauth2.TokenSource built from a stored refresh token, rather than the
// original's on-disk token-file dance — the OAuth onboarding flow itself is
// an explicit spec Non-goal, but once a token exists, refreshing it is an
// ambient concern this client still needs to handle.
type GoogleCalendar struct {
	httpClient *http.Client
}

// NewGoogleCalendar returns a client that authenticates every request using
// tokens vended by src.
func NewGoogleCalendar(ctx context.Context, src oauth2.TokenSource) *GoogleCalendar {
	return &GoogleCalendar{httpClient: oauth2.NewClient(ctx, src)}
}

type calendarEventsResponse struct {
	Items []calendarEvent `json:"items"`
}

type calendarEvent struct {
	ID           string               `json:"id"`
	Summary      string               `json:"summary"`
	Start        calendarEventTime    `json:"start"`
	End          calendarEventTime    `json:"end"`
	Updated      time.Time            `json:"updated"`
	Organizer    calendarOrganizer    `json:"organizer"`
	HangoutLink  string               `json:"hangoutLink"`
	Description  string               `json:"description"`
	ConferenceData *calendarConference `json:"conferenceData"`
}

type calendarOrganizer struct {
	Email string `json:"email"`
}

type calendarEventTime struct {
	DateTime time.Time `json:"dateTime"`
	Date     string    `json:"date"`
}

type calendarConference struct {
	EntryPoints []calendarEntryPoint `json:"entryPoints"`
}

type calendarEntryPoint struct {
	EntryPointType string `json:"entryPointType"`
	URI            string `json:"uri"`
}

// ListUpcomingEvents fetches events in [timeMin, timeMax) for calendarID,
// sorted by start time (singleEvents expanded, matching the original's
// query parameters).
func (g *GoogleCalendar) ListUpcomingEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int) ([]models.Event, error) {
	endpoint := fmt.Sprintf(eventsEndpoint, url.PathEscape(calendarID))

	q := url.Values{}
	q.Set("timeMin", timeMin.UTC().Format(time.RFC3339))
	q.Set("timeMax", timeMax.UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", fmt.Sprintf("%d", maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("calendarapi: build request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendarapi: list events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendarapi: list events: unexpected status %d", resp.StatusCode)
	}

	var parsed calendarEventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("calendarapi: decode response: %w", err)
	}

	events := make([]models.Event, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Start.DateTime.IsZero() {
			// All-day events have no joinable meeting and are never
			// Notetaker candidates.
			continue
		}
		events = append(events, models.Event{
			EventID:      item.ID,
			Summary:      item.Summary,
			StartUTC:     item.Start.DateTime.UTC(),
			EndUTC:       item.End.DateTime.UTC(),
			MeetURL:      extractMeetURL(item),
			OrganizerID:  item.Organizer.Email,
			CalendarID:   calendarID,
			LastModified: item.Updated,
		})
	}
	return events, nil
}

// extractMeetURL applies MeetURLPriority: an explicit video conference
// entry point wins, then the legacy hangoutLink field, then a best-effort
// scan of the description text.
func extractMeetURL(ev calendarEvent) string {
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.URI != "" {
				return ep.URI
			}
		}
	}
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	return findMeetURLInText(ev.Description)
}
