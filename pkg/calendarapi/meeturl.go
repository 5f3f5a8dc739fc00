package calendarapi

import "regexp"

var meetLinkPattern = regexp.MustCompile(`https://meet\.google\.com/[a-z0-9-]+`)

// findMeetURLInText performs a best-effort scan of free text (typically an
// event description) for an embedded Google Meet link, the last-resort
// tier of the extraction priority.
func findMeetURLInText(text string) string {
	return meetLinkPattern.FindString(text)
}

// IsSupportedMeetURL reports whether url points to a conferencing provider
// the Notetaker bot can join. Only Google Meet is supported; any other
// link (a phone dial-in, a third-party conferencing tool) makes the event
// ineligible for dispatch (spec §4.3).
func IsSupportedMeetURL(url string) bool {
	return meetLinkPattern.MatchString(url)
}
