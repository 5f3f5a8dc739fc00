// Package calendarapi provides the Calendar Poller's external interface to
// a calendar provider (spec §4.3, §6). Provider is the capability every
// other component depends on; GoogleCalendar is the concrete
// implementation backed by the Google Calendar HTTP API.
package calendarapi

import (
	"context"
	"time"

	"github.com/smartmeet/notetaker/pkg/models"
)

// Provider lists upcoming calendar events in a time window. Implementations
// must be read-only: the Calendar Poller never mutates calendar state.
type Provider interface {
	ListUpcomingEvents(ctx context.Context, calendarID string, timeMin, timeMax time.Time, maxResults int) ([]models.Event, error)
}

// MeetURLPriority is the order in which a raw calendar event's fields are
// checked for a joinable meeting link, matching the original
// google_calendar.py extraction order: an explicit conferenceData entry
// point beats a hangoutLink beats a link embedded in the description.
var MeetURLPriority = []string{"conference_entry_point", "hangout_link", "description_link"}
